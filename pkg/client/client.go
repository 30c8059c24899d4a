// Package client provides a Go client for the pdfdrop HTTP API.
//
// It covers synchronous extraction, asynchronous extraction tasks and the
// JSON/CSV export downloads. Files are uploaded as multipart/form-data in the
// order they are given, and results come back in that same order.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sanonone/pdfdrop/pkg/export"
	"github.com/sanonone/pdfdrop/pkg/extract"
)

// --- Custom Errors ---

// APIError represents an error returned by the pdfdrop API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
	// Kind is the extraction error kind ("read", "decode", ...) when the server reported one.
	Kind string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Task represents an asynchronous extraction on the pdfdrop server.
type Task struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	ProgressMessage string        `json:"progress_message,omitempty"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	Files           int           `json:"files"`
	Result          extract.Batch `json:"result,omitempty"`

	client *Client // Reference to the client for polling.
}

// --- Client ---

// Client is the Go client for pdfdrop.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the server at host:port. token may be empty.
func New(host string, port int, token string) *Client {
	return NewFromURL(fmt.Sprintf("http://%s:%d", host, port), token)
}

// NewFromURL creates a client for a server base URL such as "http://localhost:8000".
func NewFromURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// extraction of large drops can take a while; callers bound it with their context
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// do executes a request and returns the response body, turning statuses >= 400 into *APIError.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Kind: errResp.Kind}
		}
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	return respBody, resp.Header, nil
}

// jsonRequest is a helper for the JSON endpoints.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload any) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}
	return c.do(ctx, method, endpoint, "application/json", reqBody)
}

// multipartRequest uploads files under the "files" field, in order.
func (c *Client) multipartRequest(ctx context.Context, endpoint string, files []extract.FileHandle) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		if err := addFile(mw, f); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	body, _, err := c.do(ctx, http.MethodPost, endpoint, mw.FormDataContentType(), &buf)
	return body, err
}

func addFile(mw *multipart.Writer, f extract.FileHandle) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", extract.ErrRead, f.Name(), err)
	}
	defer rc.Close()

	part, err := mw.CreateFormFile("files", f.Name())
	if err != nil {
		return fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("%w: %s: %w", extract.ErrRead, f.Name(), err)
	}
	return nil
}

// --- Extraction ---

// Extract uploads files and waits for their text fragments.
func (c *Client) Extract(ctx context.Context, files ...extract.FileHandle) (extract.Batch, error) {
	respBody, err := c.multipartRequest(ctx, "/api/extract", files)
	if err != nil {
		return nil, err
	}
	var batch extract.Batch
	if err := json.Unmarshal(respBody, &batch); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Extract: %w", err)
	}
	return batch, nil
}

// ExtractPaths is Extract for local files.
func (c *Client) ExtractPaths(ctx context.Context, paths ...string) (extract.Batch, error) {
	return c.Extract(ctx, pathHandles(paths)...)
}

// SubmitTask uploads files for background extraction and returns the started Task.
func (c *Client) SubmitTask(ctx context.Context, files ...extract.FileHandle) (*Task, error) {
	respBody, err := c.multipartRequest(ctx, "/api/tasks", files)
	if err != nil {
		return nil, err
	}
	return c.decodeTask(respBody, "SubmitTask")
}

// GetTaskStatus retrieves the status (and, once completed, the result) of a task.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*Task, error) {
	respBody, _, err := c.jsonRequest(ctx, http.MethodGet, "/api/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeTask(respBody, "GetTaskStatus")
}

// ListTasks returns the tasks retained by the server, oldest first, without results.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	respBody, _, err := c.jsonRequest(ctx, http.MethodGet, "/api/tasks", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON response for ListTasks: %w", err)
	}
	for i := range resp.Tasks {
		resp.Tasks[i].client = c
	}
	return resp.Tasks, nil
}

// CancelTask asks the server to stop a task.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	_, _, err := c.jsonRequest(ctx, http.MethodDelete, "/api/tasks/"+taskID, nil)
	return err
}

func (c *Client) decodeTask(body []byte, op string) (*Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("invalid JSON response for %s: %w", op, err)
	}
	task.client = c
	return &task, nil
}

// Refresh updates the task's status by querying the server.
func (t *Task) Refresh(ctx context.Context) error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updatedTask, err := t.client.GetTaskStatus(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Status = updatedTask.Status
	t.ProgressMessage = updatedTask.ProgressMessage
	t.Error = updatedTask.Error
	t.ErrorKind = updatedTask.ErrorKind
	t.Files = updatedTask.Files
	t.Result = updatedTask.Result
	return nil
}

// Wait blocks until the task finishes, checking its status every interval.
// It returns an error if the task failed or was canceled, or when ctx is done.
func (t *Task) Wait(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("stopped waiting for task %s: %w", t.ID, ctx.Err())
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				return err
			}
			switch t.Status {
			case "completed":
				return nil
			case "failed", "canceled":
				return fmt.Errorf("task %s %s (%s): %s", t.ID, t.Status, t.ErrorKind, t.Error)
			case "running", "started":
				// Continue waiting.
			default:
				return fmt.Errorf("unknown task status: %s", t.Status)
			}
		}
	}
}

// --- Export ---

// ExportJSON asks the server to wrap transactions as a JSON download.
func (c *Client) ExportJSON(ctx context.Context, fileName string, transactions any) (export.Download, error) {
	raw, err := json.Marshal(transactions)
	if err != nil {
		return export.Download{}, fmt.Errorf("failed to marshal transactions: %w", err)
	}
	return c.export(ctx, "/api/export/json", export.Request{FileName: fileName, Transactions: raw})
}

// ExportCSV asks the server to turn already formatted CSV text into a download.
func (c *Client) ExportCSV(ctx context.Context, fileName, csvText string) (export.Download, error) {
	raw, err := json.Marshal(csvText)
	if err != nil {
		return export.Download{}, fmt.Errorf("failed to marshal transactions: %w", err)
	}
	return c.export(ctx, "/api/export/csv", export.Request{FileName: fileName, Transactions: raw})
}

func (c *Client) export(ctx context.Context, endpoint string, req export.Request) (export.Download, error) {
	body, header, err := c.jsonRequest(ctx, http.MethodPost, endpoint, req)
	if err != nil {
		return export.Download{}, err
	}
	d := export.Download{ContentType: header.Get("Content-Type"), Body: body}
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		d.FileName = params["filename"]
	}
	return d, nil
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.jsonRequest(ctx, http.MethodGet, "/healthz", nil)
	return err
}

func pathHandles(paths []string) []extract.FileHandle {
	handles := make([]extract.FileHandle, len(paths))
	for i, p := range paths {
		handles[i] = extract.PathHandle(p)
	}
	return handles
}
