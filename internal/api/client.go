package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	Logger   *slog.Logger
}

// Client calls a scopesync API server. Reads are retried; writes are
// sent once.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewClient creates an API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api client: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.RetryMax < 0 {
		return nil, fmt.Errorf("api client: retry max must not be negative")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = logger.With("component", "api-client-http")
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		// 502 carries a Teamwork failure the server already retried.
		if resp != nil && resp.StatusCode == http.StatusBadGateway {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: base.String(),
		http:    rc,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "api-client"),
	}, nil
}

// AddConnection links a Teamwork account by token.
func (c *Client) AddConnection(ctx context.Context, req connection.NewConnection) (*connection.Connection, error) {
	var out connection.Connection
	if err := c.do(ctx, http.MethodPost, "/api/connections", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveConnection deletes a connection.
func (c *Client) RemoveConnection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/connections/"+url.PathEscape(id), nil, nil)
}

// GetConnection returns one connection.
func (c *Client) GetConnection(ctx context.Context, id string) (*connection.Connection, error) {
	var out struct {
		Connection *connection.Connection `json:"connection"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/connections/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Connection, nil
}

// ListConnections returns every connection.
func (c *Client) ListConnections(ctx context.Context) ([]*connection.Connection, error) {
	var out struct {
		Connections []*connection.Connection `json:"connections"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/connections", nil, &out); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

// GetProjects lists the projects of a connection.
func (c *Client) GetProjects(ctx context.Context, connectionID string) ([]teamwork.Project, error) {
	var out struct {
		Projects []teamwork.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, connectionPath(connectionID, "projects"), nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// GetTaskLists lists every task list of a project.
func (c *Client) GetTaskLists(ctx context.Context, connectionID, projectID string) ([]connection.TaskList, error) {
	var out struct {
		TaskLists []connection.TaskList `json:"taskLists"`
	}
	path := connectionPath(connectionID, "projects", projectID, "taskLists")
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.TaskLists, nil
}

// GetTasks returns the task forest of a task list.
func (c *Client) GetTasks(ctx context.Context, connectionID, taskListID string) ([]*connection.Task, error) {
	var out struct {
		Tasks []*connection.Task `json:"tasks"`
	}
	path := connectionPath(connectionID, "tasks") + "?taskListId=" + url.QueryEscape(taskListID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, connectionID, taskID string) (*connection.Task, error) {
	var out struct {
		Task *connection.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodGet, connectionPath(connectionID, "tasks", taskID), nil, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}

// PutEstimation writes an estimation in hours to a task.
func (c *Client) PutEstimation(ctx context.Context, connectionID, taskID string, hours float64) error {
	path := connectionPath(connectionID, "tasks", taskID, "estimation")
	return c.do(ctx, http.MethodPut, path, EstimationRequest{Hours: &hours}, nil)
}

// Subscribe opens the websocket change feed. The returned channel follows
// the connection.Feed contract.
func (c *Client) Subscribe(ctx context.Context) (<-chan connection.Batch, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/connections/feed"
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("feed dial failed", "error", err)
		return nil, syncerrors.ErrFeedClosed().WithCause(err)
	}

	out := make(chan connection.Batch, 1)
	go c.readFeed(ctx, conn, out)
	return out, nil
}

func (c *Client) readFeed(ctx context.Context, conn *websocket.Conn, out chan<- connection.Batch) {
	defer close(out)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	send := func(b connection.Batch) bool {
		select {
		case out <- b:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("feed read ended", "error", err)
			send(connection.Batch{Err: syncerrors.ErrFeedClosed()})
			return
		}

		batch, err := decodeFeedMessage(data)
		if err != nil {
			c.logger.Warn("malformed feed message", "error", err)
			send(connection.Batch{Err: syncerrors.ErrFeedClosed()})
			return
		}
		if !send(batch) || batch.Err != nil {
			return
		}
	}
}

// do sends one request and decodes a JSON response into out. GETs go
// through the retrying client.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var resp *http.Response
	var err error
	if method == http.MethodGet {
		var req *retryablehttp.Request
		req, err = retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err = c.http.Do(req)
	} else {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err = c.http.HTTPClient.Do(req)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// responseError rebuilds the server's SyncError from an error body.
func responseError(method, path string, status int, data []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Code != "" {
		return &syncerrors.SyncError{
			Code: syncerrors.Code(apiErr.Code),
			What: apiErr.Error,
		}
	}
	return fmt.Errorf("%s %s: status %d", method, path, status)
}

func connectionPath(connectionID string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/connections/")
	b.WriteString(url.PathEscape(connectionID))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

