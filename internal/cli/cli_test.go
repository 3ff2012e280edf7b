package cli

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/scopesync/internal/api"
	"github.com/randalmurphal/scopesync/internal/config"
	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/orchestrator"
	"github.com/randalmurphal/scopesync/internal/storage"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// stubTeamwork serves one account with two projects and one task list.
type stubTeamwork struct {
	mu          sync.Mutex
	estimations map[string]float64
}

func (s *stubTeamwork) ValidateToken(_ context.Context, token string) (*teamwork.AccountInfo, error) {
	if token != "good" {
		return nil, syncerrors.ErrAuth()
	}
	return &teamwork.AccountInfo{ID: "42", Name: "Ada Lovelace", Company: "Acme", BaseURL: "https://acme.teamwork.com"}, nil
}

func (s *stubTeamwork) GetProjects(context.Context, string, string) ([]teamwork.Project, error) {
	return []teamwork.Project{{ID: "p1", Name: "Web"}, {ID: "p2", Name: "App"}}, nil
}

func (s *stubTeamwork) GetTaskLists(_ context.Context, _, projectID string, page int) (*teamwork.TaskListPage, error) {
	return &teamwork.TaskListPage{Page: page, TotalPages: 1, TaskLists: []teamwork.TaskList{{ID: "t1", Name: "Backlog"}}}, nil
}

func (s *stubTeamwork) GetTasks(context.Context, string, string) ([]*teamwork.Task, error) {
	return teamwork.BuildTaskTree([]teamwork.Task{{ID: "a", Name: "Design", Estimation: 2}}), nil
}

func (s *stubTeamwork) GetTask(_ context.Context, _, taskID string) (*teamwork.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &teamwork.Task{ID: taskID, Name: "Design", Estimation: s.estimations[taskID]}, nil
}

func (s *stubTeamwork) PutEstimation(_ context.Context, _, taskID string, hours float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimations[taskID] = hours
	return nil
}

type cliEnv struct {
	url    string
	client *api.Client
	conn   *connection.Connection
}

// newCLIEnv runs an API server with one stored connection and points the
// CLI at it.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	backend, _ := storage.NewTestBackend(t)
	svc := connection.NewService(&stubTeamwork{estimations: map[string]float64{}}, backend, nil)
	srv, err := api.New(api.Config{Service: svc, Feed: backend})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Feed().Close()
		ts.Close()
	})

	c, err := svc.AddConnection(context.Background(), connection.NewConnection{Token: "good"})
	require.NoError(t, err)

	client, err := api.NewClient(api.ClientConfig{BaseURL: ts.URL})
	require.NoError(t, err)

	isolateConfig(t)
	prev := serverURL
	serverURL = ts.URL
	t.Cleanup(func() { serverURL = prev })

	return &cliEnv{url: ts.URL, client: client, conn: c}
}

// isolateConfig runs the test in an empty directory and home.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func runBrowse(t *testing.T, env *cliEnv, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o := orchestrator.New(env.client, env.client)
	defer o.Close()

	var buf bytes.Buffer
	err := browse(ctx, o, newRenderer(&buf), args)
	return buf.String(), err
}

func TestBrowse_Connections(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runBrowse(t, env)

	require.NoError(t, err)
	assert.Contains(t, out, "Acme / Ada Lovelace")
	assert.Contains(t, out, "["+env.conn.ID+"]")
}

func TestBrowse_Projects(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runBrowse(t, env, env.conn.ID)

	require.NoError(t, err)
	assert.Equal(t, "Projects of Acme\n  App  [p2]\n  Web  [p1]\n", out)
}

func TestBrowse_TaskLists(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runBrowse(t, env, env.conn.ID, "p1")

	require.NoError(t, err)
	assert.Equal(t, "Task lists of Web\n  Backlog  [t1]\n", out)
}

func TestBrowse_UnknownConnection(t *testing.T) {
	env := newCLIEnv(t)

	_, err := runBrowse(t, env, "missing")

	assert.ErrorIs(t, err, syncerrors.ErrConnectionNotFound("missing"))
}

func TestTasksAndEstimateCommands(t *testing.T) {
	env := newCLIEnv(t)

	var out bytes.Buffer
	cmd := newEstimateCmd()
	cmd.SetArgs([]string{env.conn.ID, "99", "1.5"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Design  1.5h  [99]\n", out.String())

	out.Reset()
	cmd = newTasksCmd()
	cmd.SetArgs([]string{env.conn.ID, "t1"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Design  2h  [a]\nTotal: 2h\n", out.String())
}

func TestEstimateCmd_RejectsBadHours(t *testing.T) {
	cmd := newEstimateCmd()
	cmd.SetArgs([]string{"c1", "99", "lots"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	assert.ErrorIs(t, err, syncerrors.ErrInvalidInput("hours", ""))
}

func TestTerminalPrompter(t *testing.T) {
	v := orchestrator.Verification{ConnectionID: "c9", Type: "teamwork", Company: "Acme", Name: "Ada"}

	tests := []struct {
		name         string
		input        string
		yes          bool
		wantErr      bool
		wantDeclined string
	}{
		{"confirmed", "y\n", false, false, ""},
		{"confirmed long form", "YES\n", false, false, ""},
		{"declined", "n\n", false, true, "c9"},
		{"no answer", "", false, true, "c9"},
		{"skipped with yes flag", "", true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &terminalPrompter{in: bufio.NewReader(strings.NewReader(tt.input)), out: &out, yes: tt.yes}

			err := p.Verify(context.Background(), v)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantDeclined, p.declined)
			assert.Contains(t, out.String(), "Ada (Acme)")
		})
	}
}

func TestConnectCmd_DeclineRemovesConnection(t *testing.T) {
	env := newCLIEnv(t)

	cmd := newConnectCmd()
	cmd.SetArgs([]string{"--token", "good"})
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.Error(t, cmd.Execute())

	conns, err := env.client.ListConnections(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 1, "only the connection created by the fixture should remain")
	assert.Equal(t, env.conn.ID, conns[0].ID)
}

func TestConnectCmd_Confirmed(t *testing.T) {
	env := newCLIEnv(t)

	var out bytes.Buffer
	cmd := newConnectCmd()
	cmd.SetArgs([]string{"--yes"})
	cmd.SetIn(strings.NewReader("good\n"))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Acme")

	conns, err := env.client.ListConnections(context.Background())
	require.NoError(t, err)
	assert.Len(t, conns, 2)
}

func TestConfigShowCmd_OutputsValidYAML(t *testing.T) {
	dir := isolateConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, config.ConfigDir), 0o755))
	content := "server:\n  addr: 127.0.0.1:9999\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigDir, config.ConfigFileName), []byte(content), 0o644))

	var buf bytes.Buffer
	cmd := newConfigShowCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "# source:")
	assert.Contains(t, output, "addr: 127.0.0.1:9999")
	assert.Contains(t, output, "dialect: sqlite")
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()

	logger := newLogger(&bytes.Buffer{}, cfg, false)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))

	logger = newLogger(&bytes.Buffer{}, cfg, true)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	var buf bytes.Buffer
	cfg.Log.Format = "json"
	newLogger(&buf, cfg, false).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
}
