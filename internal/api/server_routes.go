package api

import "net/http"

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Change feed
	s.mux.Handle("GET /api/connections/feed", s.feed)

	// Connections
	s.mux.HandleFunc("GET /api/connections", cors(s.handleListConnections))
	s.mux.HandleFunc("POST /api/connections", cors(s.handleAddConnection))
	s.mux.HandleFunc("GET /api/connections/{connectionId}", cors(s.handleGetConnection))
	s.mux.HandleFunc("DELETE /api/connections/{connectionId}", cors(s.handleDeleteConnection))

	// Teamwork read-through
	s.mux.HandleFunc("GET /api/connections/{connectionId}/projects", cors(s.handleGetProjects))
	s.mux.HandleFunc("GET /api/connections/{connectionId}/projects/{projectId}/taskLists", cors(s.handleGetTaskLists))
	s.mux.HandleFunc("GET /api/connections/{connectionId}/tasks", cors(s.handleGetTasks))
	s.mux.HandleFunc("GET /api/connections/{connectionId}/tasks/{taskId}", cors(s.handleGetTask))
	s.mux.HandleFunc("PUT /api/connections/{connectionId}/tasks/{taskId}/estimation", cors(s.handlePutEstimation))

	s.mux.HandleFunc("OPTIONS /api/", cors(func(http.ResponseWriter, *http.Request) {}))
}
