package testrail

// TestRail API v2 binding (available since TestRail 3.0).
// Learn more: http://docs.gurock.com/testrail-api2/start

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotrail/gotrail/model"
	"github.com/rs/zerolog"
)

const apiPrefix = "index.php?/api/v2/"

// Endpoint templates, completed with a numeric resource id.
const (
	addRunURL        = "add_run/%d"
	closeRunURL      = "close_run/%d"
	closePlanURL     = "close_plan/%d"
	getRunURL        = "get_run/%d"
	getPlanURL       = "get_plan/%d"
	getTestsURL      = "get_tests/%d"
	addResultsURL    = "add_results_for_cases/%d"
	addAttachmentURL = "add_attachment_to_result/%d"
	getAttachmentURL = "get_attachment/%d"
)

// RemoteError is a service-level error reported by TestRail, either as
// an `error` field in the response body or as a non-2xx status.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("testrail %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("testrail %s: HTTP %d", e.Op, e.Status)
}

// Client talks to a TestRail instance using basic auth. All calls are
// synchronous and bounded by the configured HTTP timeout; there is no
// retry policy.
type Client struct {
	logger  zerolog.Logger
	baseURL string
	user    string
	apiKey  string
	http    *http.Client
}

// New creates a client for the TestRail instance at baseURL (the same
// address used in a browser, e.g. https://example.testrail.com/).
func New(logger zerolog.Logger, baseURL, user, apiKey string, timeout time.Duration, insecure bool) *Client {
	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		logger:  logger,
		baseURL: baseURL + apiPrefix,
		user:    user,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// serviceError extracts the error field from a response body. It
// returns an empty string when the body carries no service error.
func serviceError(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	// List responses are JSON arrays; those never carry an error field.
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.user + ":" + c.apiKey))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response of %s: %w", op, err)
	}

	// Anything above 201 needs explicit inspection: prefer the
	// service-reported message over the bare status code.
	if msg := serviceError(body); msg != "" {
		return body, &RemoteError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode > 201 {
		return body, &RemoteError{Op: op, Status: resp.StatusCode}
	}
	return body, nil
}

func (c *Client) get(uri string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("uri", uri).Msg("GET")
	body, err := c.do(req, uri)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response of %s: %w", uri, err)
	}
	return nil
}

func (c *Client) post(uri string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s: %w", uri, err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+uri, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("uri", uri).Int("bytes", len(data)).Msg("POST")
	body, err := c.do(req, uri)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response of %s: %w", uri, err)
	}
	return nil
}

// GetRun fetches a run resource.
func (c *Client) GetRun(id int) (*model.Run, error) {
	var run model.Run
	if err := c.get(fmt.Sprintf(getRunURL, id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetPlan fetches a plan resource including its run entries.
func (c *Client) GetPlan(id int) (*model.Plan, error) {
	var plan model.Plan
	if err := c.get(fmt.Sprintf(getPlanURL, id), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetTests fetches the current test list of a run.
func (c *Client) GetTests(runID int) ([]model.Test, error) {
	var tests []model.Test
	if err := c.get(fmt.Sprintf(getTestsURL, runID), &tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// AddRun creates a new run under the given project.
func (c *Client) AddRun(projectID int, req model.AddRunRequest) (*model.Run, error) {
	var run model.Run
	if err := c.post(fmt.Sprintf(addRunURL, projectID), req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// AddResults submits a result batch for a run in a single request.
func (c *Client) AddResults(runID int, req model.AddResultsRequest) ([]model.CreatedResult, error) {
	var created []model.CreatedResult
	if err := c.post(fmt.Sprintf(addResultsURL, runID), req, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// CloseRun closes a run.
func (c *Client) CloseRun(id int) error {
	return c.post(fmt.Sprintf(closeRunURL, id), struct{}{}, nil)
}

// ClosePlan closes a plan and all of its runs.
func (c *Client) ClosePlan(id int) error {
	return c.post(fmt.Sprintf(closePlanURL, id), struct{}{}, nil)
}

// AddAttachment uploads the file at path as an attachment to a
// previously created result.
func (c *Client) AddAttachment(resultID int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("attachment", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	uri := fmt.Sprintf(addAttachmentURL, resultID)
	req, err := http.NewRequest(http.MethodPost, c.baseURL+uri, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug().Str("uri", uri).Str("file", path).Msg("POST attachment")
	_, err = c.do(req, uri)
	return err
}

// GetAttachment downloads an attachment to destPath. The response body
// is raw bytes, not JSON.
func (c *Client) GetAttachment(attachmentID int, destPath string) error {
	uri := fmt.Sprintf(getAttachmentURL, attachmentID)
	req, err := http.NewRequest(http.MethodGet, c.baseURL+uri, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req, uri)
	if err != nil {
		return err
	}
	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return fmt.Errorf("save attachment: %w", err)
	}
	return nil
}
