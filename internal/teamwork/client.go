package teamwork

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

// DefaultAuthURL is the Teamwork endpoint that resolves a token to its account.
const DefaultAuthURL = "https://authenticate.teamwork.com/authenticate.json"

const (
	// Teamwork expects the token as the basic-auth user and any password.
	authPassword = "X"

	maxBodyBytes = 32 << 20

	// maxConcurrentPages bounds the fan-out of GetTasks page fetches.
	maxConcurrentPages = 8
)

// MaxPages is the largest page count accepted from an x-pages header.
const MaxPages = 500

// ClientConfig holds the configuration for talking to Teamwork.
type ClientConfig struct {
	// AuthURL is the authenticate endpoint. Account base URLs come from its response.
	AuthURL string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt for 5xx,
	// 429 and transport failures.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit is the sustained request rate in requests per second.
	// Zero or negative disables limiting.
	RateLimit float64
	RateBurst int
	UserAgent string
	Logger    *slog.Logger
}

// DefaultClientConfig returns the configuration used when none is supplied.
// Teamwork allows 150 requests per minute per account.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		AuthURL:      DefaultAuthURL,
		Timeout:      30 * time.Second,
		RetryMax:     2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		RateLimit:    2.5,
		RateBurst:    10,
		UserAgent:    "scopesync/1.0",
	}
}

// Client is a Teamwork API client.
//
// Every failure is logged with its cause and then replaced by one fixed,
// operation-specific error; callers never see transport detail.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	auth    singleflight.Group
	cfg     ClientConfig
	logger  *slog.Logger
}

// NewClient creates a Teamwork client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("teamwork auth URL is required")
	}
	if cfg.RetryMax < 0 {
		return nil, fmt.Errorf("teamwork retry max must not be negative")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = logger.With("component", "teamwork-http")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		http:    rc,
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		logger:  logger.With("component", "teamwork"),
	}, nil
}

// ValidateToken resolves token to the account it belongs to.
// Concurrent calls for the same token share one request. The shared request
// does not end when one caller gives up; each caller waits on its own ctx.
func (c *Client) ValidateToken(ctx context.Context, token string) (*AccountInfo, error) {
	ch := c.auth.DoChan(token, func() (any, error) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.authBudget())
		defer cancel()
		return c.authenticate(actx, token)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		account := *res.Val.(*AccountInfo)
		return &account, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// authBudget bounds a shared authenticate call: every attempt plus the
// longest wait between them.
func (c *Client) authBudget() time.Duration {
	attempt := c.cfg.Timeout
	if attempt <= 0 {
		attempt = DefaultClientConfig().Timeout
	}
	attempts := time.Duration(c.cfg.RetryMax + 1)
	return attempts*attempt + time.Duration(c.cfg.RetryMax)*c.http.RetryWaitMax
}

func (c *Client) authenticate(ctx context.Context, token string) (*AccountInfo, error) {
	const op = "validate_token"

	_, body, err := c.do(ctx, http.MethodGet, c.cfg.AuthURL, token, nil)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrAuth())
	}

	account := gjson.GetBytes(body, "account")
	if !account.IsObject() {
		return nil, c.fail(op, fmt.Errorf("response has no account object"), syncerrors.ErrAuth())
	}

	info := &AccountInfo{
		ID:        account.Get("id").String(),
		BaseURL:   account.Get("URL").String(),
		UserID:    account.Get("userId").String(),
		Name:      account.Get("firstname").String() + " " + account.Get("lastname").String(),
		Company:   account.Get("companyname").String(),
		CompanyID: account.Get("companyid").String(),
	}
	if info.BaseURL == "" {
		return nil, c.fail(op, fmt.Errorf("account has no URL"), syncerrors.ErrAuth())
	}
	return info, nil
}

// GetProjects lists the projects visible to token on the account at baseURL.
func (c *Client) GetProjects(ctx context.Context, token, baseURL string) ([]Project, error) {
	const op = "get_projects"

	_, body, err := c.do(ctx, http.MethodGet, endpoint(baseURL, "projects.json"), token, nil)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrProjectsFetch())
	}

	items := gjson.GetBytes(body, "projects")
	if !items.IsArray() {
		return nil, c.fail(op, fmt.Errorf("response has no projects array"), syncerrors.ErrProjectsFetch())
	}

	projects := make([]Project, 0, len(items.Array()))
	for _, p := range items.Array() {
		projects = append(projects, Project{
			ID:          p.Get("id").String(),
			Name:        p.Get("name").String(),
			Description: p.Get("description").String(),
			Created:     p.Get("created-on").String(),
		})
	}
	return projects, nil
}

// GetTaskLists fetches one page of the task lists of a project.
// The token is validated first to discover the account base URL.
func (c *Client) GetTaskLists(ctx context.Context, token, projectID string, page int) (*TaskListPage, error) {
	const op = "get_tasklists"

	account, err := c.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	url := endpoint(account.BaseURL, fmt.Sprintf("projects/%s/tasklists.json?page=%d", projectID, page))
	header, body, err := c.do(ctx, http.MethodGet, url, token, nil)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrTaskListsFetch())
	}

	items := gjson.GetBytes(body, "tasklists")
	if !items.IsArray() {
		return nil, c.fail(op, fmt.Errorf("response has no tasklists array"), syncerrors.ErrTaskListsFetch())
	}

	result := &TaskListPage{TaskLists: make([]TaskList, 0, len(items.Array()))}
	result.Page, result.TotalPages, err = pageHeaders(header, page)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrTaskListsFetch())
	}
	for _, t := range items.Array() {
		result.TaskLists = append(result.TaskLists, TaskList{
			ID:          t.Get("id").String(),
			Name:        t.Get("name").String(),
			Description: t.Get("description").String(),
		})
	}
	return result, nil
}

// GetTasks fetches every page of a task list and returns the task forest.
// Page 1 reports the page count; the remaining pages are fetched
// concurrently and merged by task id, so completion order does not matter.
func (c *Client) GetTasks(ctx context.Context, token, taskListID string) ([]*Task, error) {
	account, err := c.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	first, err := c.getTasksPage(ctx, token, account.BaseURL, taskListID, 1)
	if err != nil {
		return nil, err
	}

	pages := make([][]Task, first.pages)
	pages[0] = first.tasks

	if first.pages > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentPages)
		for i := 2; i <= first.pages; i++ {
			g.Go(func() error {
				p, err := c.getTasksPage(gctx, token, account.BaseURL, taskListID, i)
				if err != nil {
					return err
				}
				pages[i-1] = p.tasks
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var all []Task
	for _, p := range pages {
		all = append(all, p...)
	}
	return BuildTaskTree(all), nil
}

func (c *Client) getTasksPage(ctx context.Context, token, baseURL, taskListID string, page int) (*taskPage, error) {
	const op = "get_tasks"

	url := endpoint(baseURL, fmt.Sprintf("tasklists/%s/tasks.json?page=%d", taskListID, page))
	header, body, err := c.do(ctx, http.MethodGet, url, token, nil)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrTasksFetch())
	}

	items := gjson.GetBytes(body, "todo-items")
	if !items.IsArray() {
		return nil, c.fail(op, fmt.Errorf("response has no todo-items array"), syncerrors.ErrTasksFetch())
	}

	result := &taskPage{tasks: make([]Task, 0, len(items.Array()))}
	result.page, result.pages, err = pageHeaders(header, page)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrTasksFetch())
	}
	for _, t := range items.Array() {
		result.tasks = append(result.tasks, parseTask(t))
	}
	return result, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, token, taskID string) (*Task, error) {
	const op = "get_task"

	account, err := c.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	_, body, err := c.do(ctx, http.MethodGet, endpoint(account.BaseURL, "tasks/"+taskID+".json"), token, nil)
	if err != nil {
		return nil, c.fail(op, err, syncerrors.ErrTaskFetch())
	}

	item := gjson.GetBytes(body, "todo-item")
	if !item.IsObject() {
		return nil, c.fail(op, fmt.Errorf("response has no todo-item object"), syncerrors.ErrTaskFetch())
	}

	task := parseTask(item)
	return &task, nil
}

// PutEstimation writes hours to the task as estimated minutes.
// The updated task is not read back.
func (c *Client) PutEstimation(ctx context.Context, token, taskID string, hours float64) error {
	const op = "put_estimation"

	account, err := c.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]map[string]string{
		"todo-item": {"estimated-minutes": strconv.Itoa(HoursToMinutes(hours))},
	})
	if err != nil {
		return c.fail(op, err, syncerrors.ErrEstimationWrite())
	}

	if _, _, err := c.do(ctx, http.MethodPut, endpoint(account.BaseURL, "tasks/"+taskID+".json"), token, payload); err != nil {
		return c.fail(op, err, syncerrors.ErrEstimationWrite())
	}
	return nil
}

// do issues one request and returns the response headers and body.
// Non-2xx responses are errors.
func (c *Client) do(ctx context.Context, method, url, token string, body []byte) (http.Header, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var raw any
	if body != nil {
		raw = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", AuthorizationHeader(token))
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, redactURL(url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%s %s: status %d", method, redactURL(url), resp.StatusCode)
	}
	if len(data) > 0 && !gjson.ValidBytes(data) {
		return nil, nil, fmt.Errorf("%s %s: malformed JSON body", method, redactURL(url))
	}
	return resp.Header, data, nil
}

// fail logs the underlying cause and returns the fixed error in its place.
func (c *Client) fail(op string, cause error, fixed *syncerrors.SyncError) error {
	c.logger.Warn("teamwork request failed", "op", op, "error", cause)
	return fixed
}

// AuthorizationHeader returns the Authorization header value for token.
func AuthorizationHeader(token string) string {
	return "BASIC " + base64.StdEncoding.EncodeToString([]byte(token+":"+authPassword))
}

func parseTask(r gjson.Result) Task {
	return Task{
		ID:          r.Get("id").String(),
		Name:        r.Get("content").String(),
		Description: r.Get("description").String(),
		Parent:      r.Get("parentTaskId").String(),
		Estimation:  MinutesToHours(r.Get("estimated-minutes").Float()),
	}
}

// pageHeaders reads the x-page / x-pages counters. Missing or malformed
// headers mean the requested page is the only one. A page count above
// MaxPages is an error.
func pageHeaders(h http.Header, requested int) (page, pages int, err error) {
	page, err = strconv.Atoi(h.Get("X-Page"))
	if err != nil || page < 1 {
		page = requested
	}
	raw := h.Get("X-Pages")
	pages, err = strconv.Atoi(raw)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, 0, fmt.Errorf("x-pages %q exceeds %d", raw, MaxPages)
		}
		return page, 1, nil
	}
	if pages > MaxPages {
		return 0, 0, fmt.Errorf("x-pages %d exceeds %d", pages, MaxPages)
	}
	if pages < 1 {
		pages = 1
	}
	return page, pages, nil
}

// endpoint joins an account base URL and an API path.
func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func redactURL(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
