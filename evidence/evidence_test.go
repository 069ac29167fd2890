package evidence

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 2, 2))))
}

func TestDirProvider_Capture(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "TestLogin.png"))

	p := NewDirProvider(zerolog.Nop(), dir, false)

	path, ok := p.Capture("TestLogin")
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "TestLogin.png"), path)

	_, ok = p.Capture("TestUnknown")
	require.False(t, ok)
}

func TestDirProvider_SanitizesSubtestNames(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "TestSum_n=3.png"))

	p := NewDirProvider(zerolog.Nop(), dir, false)

	path, ok := p.Capture("TestSum/n=3")
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "TestSum_n=3.png"), path)
}

func TestDirProvider_ConvertsToJPG(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "TestLogin.png"))

	p := NewDirProvider(zerolog.Nop(), dir, true)

	path, ok := p.Capture("TestLogin")
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "TestLogin.jpg"), path)

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestDirProvider_RejectsUnparseableProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TestLogin.pb.gz"), []byte("junk"), 0o644))

	p := NewDirProvider(zerolog.Nop(), dir, false)

	_, ok := p.Capture("TestLogin")
	require.False(t, ok)
}

func TestStore(t *testing.T) {
	s := NewStore()
	require.Zero(t, s.Len())

	s.Put([]int{7, 42}, "screenshots/TestCheckout.png")

	path, ok := s.Get(42)
	require.True(t, ok)
	require.Equal(t, "screenshots/TestCheckout.png", path)

	_, ok = s.Get(99)
	require.False(t, ok)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	snap[7] = "elsewhere"
	original, _ := s.Get(7)
	require.Equal(t, "screenshots/TestCheckout.png", original)
}
