package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
)

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func TestNew_RequiresServiceAndFeed(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	env := newTestEnv(t)
	_, err = New(Config{Service: env.svc})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	w := doRequest(t, env.server, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleAddConnection(t *testing.T) {
	env := newTestEnv(t)

	w := doRequest(t, env.server, http.MethodPost, "/api/connections", `{"token":" good "}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "teamwork", body["type"])
	assert.NotContains(t, body, "token")

	external, ok := body["externalData"].(map[string]any)
	require.True(t, ok, "externalData missing: %v", body)
	assert.Equal(t, "Acme", external["company"])
	assert.Equal(t, "Ada Lovelace", external["name"])
	assert.Equal(t, "https://acme.teamwork.com", external["baseUrl"])

	stored, err := env.backend.Get(t.Context(), body["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "good", stored.Token)
}

func TestHandleAddConnection_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   syncerrors.Code
		wantError  string
	}{
		{"rejected token", `{"token":"bad"}`, http.StatusUnauthorized, syncerrors.CodeAuthFailed, syncerrors.MsgAuthFailed},
		{"blank token", `{"token":"  "}`, http.StatusBadRequest, syncerrors.CodeInvalidInput, "invalid token"},
		{"malformed body", `{"token":`, http.StatusBadRequest, syncerrors.CodeInvalidInput, "invalid body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := doRequest(t, env.server, http.MethodPost, "/api/connections", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var apiErr APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, string(tt.wantCode), apiErr.Code)
			assert.Equal(t, tt.wantError, apiErr.Error)
		})
	}
}

func TestHandleListAndDeleteConnections(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConnection(t)

	w := doRequest(t, env.server, http.MethodGet, "/api/connections", "")
	require.Equal(t, http.StatusOK, w.Code)
	conns := decode(t, w)["connections"].([]any)
	require.Len(t, conns, 1)
	assert.Equal(t, c.ID, conns[0].(map[string]any)["id"])

	w = doRequest(t, env.server, http.MethodGet, "/api/connections/"+c.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", decode(t, w)["connection"].(map[string]any)["company"])

	w = doRequest(t, env.server, http.MethodDelete, "/api/connections/"+c.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, env.server, http.MethodDelete, "/api/connections/"+c.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, env.server, http.MethodGet, "/api/connections", "")
	assert.Empty(t, decode(t, w)["connections"])
}

func TestHandleGetProjectsAndTaskLists(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConnection(t)

	w := doRequest(t, env.server, http.MethodGet, "/api/connections/"+c.ID+"/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["projects"], 2)

	w = doRequest(t, env.server, http.MethodGet, "/api/connections/"+c.ID+"/projects/p1/taskLists", "")
	require.Equal(t, http.StatusOK, w.Code)
	lists := decode(t, w)["taskLists"].([]any)
	require.Len(t, lists, 2)
	assert.Equal(t, "t1", lists[0].(map[string]any)["id"])
	assert.Equal(t, "t2", lists[1].(map[string]any)["id"])
}

func TestHandleGetTaskLists_TeamworkFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConnection(t)
	env.tw.setFailLists(true)

	w := doRequest(t, env.server, http.MethodGet, "/api/connections/"+c.ID+"/projects/p1/taskLists", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, syncerrors.ErrTaskListsFetch().What, apiErr.Error)
}

func TestHandleGetTasks(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConnection(t)

	w := doRequest(t, env.server, http.MethodGet, "/api/connections/"+c.ID+"/tasks?taskListId=t1", "")
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode(t, w)["tasks"].([]any)
	require.Len(t, tasks, 1)
	root := tasks[0].(map[string]any)
	assert.Equal(t, "a", root["id"])
	children := root["childTasks"].([]any)
	require.Len(t, children, 1)
	assert.Equal(t, "b", children[0].(map[string]any)["id"])

	w = doRequest(t, env.server, http.MethodGet, "/api/connections/"+c.ID+"/tasks", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEstimation(t *testing.T) {
	env := newTestEnv(t)
	c := env.addConnection(t)
	path := "/api/connections/" + c.ID + "/tasks/99"

	w := doRequest(t, env.server, http.MethodPut, path+"/estimation", `{"hours":2.5}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = doRequest(t, env.server, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	task := decode(t, w)["task"].(map[string]any)
	assert.Equal(t, "99", task["id"])
	assert.Equal(t, 2.5, task["estimation"])

	tests := []struct {
		name string
		body string
	}{
		{"missing hours", `{}`},
		{"negative hours", `{"hours":-1}`},
		{"not a number", `{"hours":"two"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, env.server, http.MethodPut, path+"/estimation", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleUnknownConnection(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/api/connections/nope",
		"/api/connections/nope/projects",
		"/api/connections/nope/projects/p1/taskLists",
		"/api/connections/nope/tasks?taskListId=t1",
		"/api/connections/nope/tasks/1",
	}
	for _, p := range paths {
		w := doRequest(t, env.server, http.MethodGet, p, "")
		assert.Equal(t, http.StatusNotFound, w.Code, p)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w := doRequest(t, env.server, http.MethodOptions, "/api/connections", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
