package api

import (
	"net/http"
	"strings"

	"github.com/randalmurphal/scopesync/internal/connection"
	syncerrors "github.com/randalmurphal/scopesync/internal/errors"
	"github.com/randalmurphal/scopesync/internal/teamwork"
)

// ConnectionResponse is a connection as returned by the create endpoint:
// the stored fields plus the account details used for verification.
type ConnectionResponse struct {
	*connection.Connection
	ExternalData teamwork.AccountInfo `json:"externalData"`
}

// EstimationRequest is the body of an estimation update.
type EstimationRequest struct {
	Hours *float64 `json:"hours"`
}

func (s *Server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	var req connection.NewConnection
	if err := decodeBody(w, r, &req); err != nil {
		HandleError(w, err)
		return
	}

	c, err := s.svc.AddConnection(r.Context(), req)
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}

	JSONResponseStatus(w, ConnectionResponse{Connection: c, ExternalData: c.ExternalData()}, http.StatusCreated)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.svc.ListConnections(r.Context())
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]any{"connections": conns})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetConnection(r.Context(), r.PathValue("connectionId"))
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]any{"connection": c})
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveConnection(r.Context(), r.PathValue("connectionId")); err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	NoContent(w)
}

func (s *Server) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.GetProjects(r.Context(), r.PathValue("connectionId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	if projects == nil {
		projects = []teamwork.Project{}
	}
	JSONResponse(w, map[string]any{"projects": projects})
}

func (s *Server) handleGetTaskLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.svc.GetTaskLists(r.Context(), r.PathValue("connectionId"), r.PathValue("projectId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	if lists == nil {
		lists = []connection.TaskList{}
	}
	JSONResponse(w, map[string]any{"taskLists": lists})
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	taskListID := strings.TrimSpace(r.URL.Query().Get("taskListId"))
	if taskListID == "" {
		HandleError(w, syncerrors.ErrInvalidInput("taskListId", "query parameter is required"))
		return
	}

	tasks, err := s.svc.GetTasks(r.Context(), r.PathValue("connectionId"), taskListID)
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*connection.Task{}
	}
	JSONResponse(w, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.GetTask(r.Context(), r.PathValue("connectionId"), r.PathValue("taskId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]any{"task": task})
}

func (s *Server) handlePutEstimation(w http.ResponseWriter, r *http.Request) {
	var req EstimationRequest
	if err := decodeBody(w, r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if req.Hours == nil {
		HandleError(w, syncerrors.ErrInvalidInput("hours", "is required"))
		return
	}

	err := s.svc.PutEstimation(r.Context(), r.PathValue("connectionId"), r.PathValue("taskId"), *req.Hours)
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// logFailure records a failed request. Client errors are logged at Debug.
func (s *Server) logFailure(r *http.Request, err error) {
	status := http.StatusInternalServerError
	if syncErr := syncerrors.AsSyncError(err); syncErr != nil {
		status = syncErr.HTTPStatus()
	}
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "error", err}
	if status < http.StatusInternalServerError {
		s.logger.Debug("request failed", attrs...)
		return
	}
	s.logger.Warn("request failed", attrs...)
}
