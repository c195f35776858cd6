// Package client is a typed HTTP client for the assessment backend. It covers
// the four calls the generation flow needs: job creation, status polling,
// cancellation, and PDF rendering.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/jobs"
)

const defaultTimeout = 30 * time.Second

// Client talks to the assessment backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client against the given base URL, e.g.
// "http://127.0.0.1:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewWithHTTPClient allows callers to supply their own http.Client, mainly
// for tests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	c := New(baseURL)
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// CreateJobInput is the submission payload.
type CreateJobInput struct {
	Query       string           `json:"query"`
	WorkType    string           `json:"workType"`
	ProjectInfo jobs.ProjectInfo `json:"projectInfo"`
}

// CreateJobResult is the accepted-job response.
type CreateJobResult struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

// JobStatus is one poll response.
type JobStatus struct {
	JobID       string                `json:"jobId"`
	Status      jobs.Status           `json:"status"`
	Progress    int                   `json:"progress"`
	CurrentStep string                `json:"currentStep"`
	Result      *assessments.Document `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	ErrorCode   string                `json:"errorCode,omitempty"`
}

// CancelResult reports the outcome of a cancel request.
type CancelResult struct {
	JobID     string      `json:"jobId"`
	Status    jobs.Status `json:"status"`
	Cancelled bool        `json:"cancelled"`
}

// PDFResult is the remote renderer's answer. Exactly one of Success or
// UseFallback is set on a 200 response.
type PDFResult struct {
	Success     bool   `json:"success"`
	UseFallback bool   `json:"useFallback"`
	Message     string `json:"message"`
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
}

// CreateJob submits a new generation job.
func (c *Client) CreateJob(ctx context.Context, in CreateJobInput) (CreateJobResult, error) {
	var out CreateJobResult
	resp, err := c.post(ctx, "/api/v1/jobs", in)
	if err != nil {
		return out, err
	}
	if err := decodeJSON(resp, &out); err != nil {
		return CreateJobResult{}, err
	}
	return out, nil
}

// GetJobStatus fetches the current state of a job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	var out JobStatus
	resp, err := c.get(ctx, "/api/v1/jobs/"+jobID)
	if err != nil {
		return out, err
	}
	if err := decodeJSON(resp, &out); err != nil {
		return JobStatus{}, err
	}
	return out, nil
}

// CancelJob asks the backend to cancel a job. Cancellation is advisory; the
// job may already be terminal, in which case Cancelled is false.
func (c *Client) CancelJob(ctx context.Context, jobID string) (CancelResult, error) {
	var out CancelResult
	resp, err := c.post(ctx, "/api/v1/jobs/"+jobID+"/cancel", nil)
	if err != nil {
		return out, err
	}
	if err := decodeJSON(resp, &out); err != nil {
		return CancelResult{}, err
	}
	return out, nil
}

// GeneratePDF asks the remote renderer to produce a PDF of the document.
func (c *Client) GeneratePDF(ctx context.Context, doc assessments.Document) (PDFResult, error) {
	var out PDFResult
	resp, err := c.post(ctx, "/api/v1/exports/pdf", map[string]any{"document": doc})
	if err != nil {
		return out, err
	}
	if err := decodeJSON(resp, &out); err != nil {
		return PDFResult{}, err
	}
	return out, nil
}

// Download fetches a rendered PDF. The URL may be relative to the backend
// base URL, as returned by GeneratePDF.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "/") {
		url = c.baseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "download failed"}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend not reachable (%w)", err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && len(payload.Error) > 0 {
			var obj struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &obj) == nil && obj.Code != "" {
				apiErr.Code = obj.Code
				apiErr.Message = obj.Message
			} else {
				// Rate-limit responses carry the code as a bare string.
				var code string
				if json.Unmarshal(payload.Error, &code) == nil {
					apiErr.Code = code
				}
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
