package model

import "testing"

func TestOutcomeStatus(t *testing.T) {
	tests := []struct {
		action string
		want   StatusID
		ok     bool
	}{
		{action: "pass", want: StatusPassed, ok: true},
		{action: "fail", want: StatusFailed, ok: true},
		// Skipped maps to blocked, not untested
		{action: "skip", want: StatusBlocked, ok: true},
		{action: "run", ok: false},
		{action: "output", ok: false},
		{action: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, ok := OutcomeStatus(tt.action)
			if ok != tt.ok {
				t.Fatalf("OutcomeStatus(%q) ok = %v, want %v", tt.action, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("OutcomeStatus(%q) = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}

func TestStatusIDString(t *testing.T) {
	tests := []struct {
		status StatusID
		want   string
	}{
		{StatusPassed, "passed"},
		{StatusBlocked, "blocked"},
		{StatusUntested, "untested"},
		{StatusRetest, "retest"},
		{StatusFailed, "failed"},
		{StatusID(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("StatusID(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
