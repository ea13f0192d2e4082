package control

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/logcollection"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"
)

// DefaultClientTimeout covers a stop that needs the full graceful and kill timeouts
const DefaultClientTimeout = 60 * time.Second

// Client calls the control API. Transport failures are IO errors; API
// failures come back as the domain error type the server reported.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a client for the given transport
func NewClient(transport TransportConfig, timeout time.Duration) (*Client, error) {
	roundTripper, baseURL, err := transport.roundTripper()
	if err != nil {
		return nil, err
	}
	return newClient(baseURL, &http.Client{Transport: roundTripper}, timeout), nil
}

// NewClientWithHTTP creates a client for an explicit base URL, e.g. an httptest server
func NewClientWithHTTP(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return newClient(baseURL, httpClient, timeout)
}

func newClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{baseURL: baseURL, http: httpClient, timeout: timeout}
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var response HealthResponse
	err := c.do(ctx, http.MethodGet, apiPrefix+"/health", nil, &response)
	return response, err
}

func (c *Client) List(ctx context.Context) ([]processmanagement.ProcessStatus, error) {
	var response ProcessListResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/processes", nil, &response); err != nil {
		return nil, err
	}
	return response.Processes, nil
}

func (c *Client) Status(ctx context.Context, name string) (processmanagement.ProcessStatus, error) {
	var status processmanagement.ProcessStatus
	err := c.do(ctx, http.MethodGet, processPath(name), nil, &status)
	return status, err
}

func (c *Client) Start(ctx context.Context, name string) (OperationResponse, error) {
	return c.operation(ctx, name, processmanagement.OperationStart)
}

func (c *Client) Stop(ctx context.Context, name string) (OperationResponse, error) {
	return c.operation(ctx, name, processmanagement.OperationStop)
}

func (c *Client) Restart(ctx context.Context, name string) (OperationResponse, error) {
	return c.operation(ctx, name, processmanagement.OperationRestart)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, processPath(name), nil, nil)
}

func (c *Client) operation(ctx context.Context, name, operation string) (OperationResponse, error) {
	var response OperationResponse
	err := c.do(ctx, http.MethodPost, processPath(name)+"/"+operation, nil, &response)
	return response, err
}

// Bulk runs start, stop or restart over names, or over every process when names is empty
func (c *Client) Bulk(ctx context.Context, operation string, names []string) (processmanagement.BulkResult, error) {
	var body interface{}
	if len(names) > 0 {
		body = BulkRequest{Names: names}
	}

	var response BulkResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/bulk/"+operation, body, &response); err != nil {
		return processmanagement.BulkResult{}, err
	}
	return response.BulkResult(), nil
}

// Logs follows the aggregated log stream, calling fn for every line until ctx
// is done, the server ends the stream or fn returns an error. processes
// optionally restricts the stream.
func (c *Client) Logs(ctx context.Context, processes []string, fn func(line logcollection.LogLine) error) error {
	query := url.Values{}
	for _, name := range processes {
		query.Add("process", name)
	}
	path := apiPrefix + "/logs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	// no client timeout: the stream lives as long as ctx
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.NewInternalError("failed to build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.NewIOError("control request failed", err).WithContext("path", path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*logcollection.MaxLineLength)
	for scanner.Scan() {
		var line logcollection.LogLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return errors.NewInternalError("invalid log stream line", err)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.NewIOError("log stream interrupted", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewInternalError("failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewIOError("control request failed", err).WithContext("path", path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewInternalError("failed to decode response", err).WithContext("path", path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.NewIOError("failed to read error response", err)
	}

	var response ErrorResponse
	if err := json.Unmarshal(data, &response); err != nil {
		response.Error = fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(data))
	}
	return response.Err(resp.StatusCode)
}

func processPath(name string) string {
	return apiPrefix + "/processes/" + url.PathEscape(name)
}
