package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIURL    = "PDFQA_API_URL"
	envSessionID = "PDFQA_SESSION"

	defaultAPIURL = "http://localhost:8080"

	// Uploads embed a whole document and asks wait on the model, so the
	// client allows more than the usual request budget.
	defaultTimeout = 5 * time.Minute
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves the server URL from the --api-url flag, then
// PDFQA_API_URL (a .env file counts), then the global config, then the
// local default. cmd may be nil.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	if cmd != nil {
		if u, _ := cmd.Flags().GetString("api-url"); u != "" {
			return NewAPIClientWithConfig(u), nil
		}
	}
	if u := os.Getenv(envAPIURL); u != "" {
		return NewAPIClientWithConfig(u), nil
	}

	stored, err := LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.APIURL != "" {
		return NewAPIClientWithConfig(stored.APIURL), nil
	}
	return NewAPIClientWithConfig(defaultAPIURL), nil
}

func NewAPIClientWithConfig(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// APIResponse is the server envelope: data on success, error and code
// otherwise.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// APIError is a failed request. Code carries the server's error code, such
// as RETRIEVAL_FAILURE, when the body had one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *APIClient) Post(path string, body any) (*APIResponse, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *APIClient) Put(path string, body any) (*APIResponse, error) {
	return c.do(http.MethodPut, path, body)
}

func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.do(http.MethodDelete, path, nil)
}

// newRequest builds a request against the API, JSON-encoding body if set.
func (c *APIClient) newRequest(method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *APIClient) do(method, path string, body any) (*APIResponse, error) {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *APIClient) send(req *http.Request) (*APIResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return parseResponse(resp)
}

func parseResponse(resp *http.Response) (*APIResponse, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{}, nil
	}

	var env APIResponse
	decodeErr := json.Unmarshal(raw, &env)
	switch {
	case resp.StatusCode >= 400 && decodeErr != nil:
		// proxies and the body limit answer in plain text
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Error}
	case decodeErr != nil:
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	return &env, nil
}

// PostFile sends a file as the named part of a multipart form.
func (c *APIClient) PostFile(path, field, filePath string) (*APIResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(field, filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.send(req)
}

// Stream posts a JSON body and delivers each server-sent event to onEvent.
// A non-2xx reply is returned as an APIError before any event is read.
func (c *APIClient) Stream(path string, body any, onEvent func(event string, data []byte) error) error {
	req, err := c.newRequest(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, err := parseResponse(resp)
		return err
	}

	return readEvents(resp.Body, onEvent)
}

// readEvents parses a text/event-stream body. Only the event and data
// fields are used.
func readEvents(r io.Reader, onEvent func(event string, data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event string
	var data bytes.Buffer
	dispatch := func() error {
		if data.Len() == 0 {
			event = ""
			return nil
		}
		name := event
		if name == "" {
			name = "message"
		}
		err := onEvent(name, bytes.TrimSuffix(data.Bytes(), []byte("\n")))
		event = ""
		data.Reset()
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}
	return dispatch()
}

// ProgressFunc receives the bytes sent so far and the total size.
type ProgressFunc func(sent, total int64)

type countingReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.sent += int64(n)
	if cr.report != nil && n > 0 {
		cr.report(cr.sent, cr.total)
	}
	return n, err
}

// PutPresigned sends a local file to a presigned storage URL. The request
// goes to storage directly, so failures are not API envelopes.
func (c *APIClient) PutPresigned(uploadURL, filePath, contentType string, onProgress ProgressFunc) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	req, err := http.NewRequest(http.MethodPut, uploadURL, &countingReader{r: file, total: info.Size(), report: onProgress})
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = info.Size()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage rejected upload (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
