// Package httpapi is the thin HTTP transport shell over internal/api,
// per spec.md §6's note that transport shells are "specified only at
// the boundary." It translates JSON request bodies into api.API calls
// and api.APIError into the HTTP-style status codes spec.md §7
// mandates, and serves the SSE event stream.
//
// Grounded on the teacher's cmd/amanmcp/cmd/daemon.go HTTP handler
// registration style (net/http, no framework) and internal/mcp's
// error-mapping convention, generalized from MCP's JSON-RPC transport
// to plain HTTP.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/api"
)

// Server is a net/http handler wrapping one api.API.
type Server struct {
	api *api.API
	mux *http.ServeMux
}

// New builds the HTTP handler, registering every route spec.md §6
// describes.
func New(a *api.API) *Server {
	s := &Server{api: a, mux: http.NewServeMux()}
	s.mux.HandleFunc("/query", s.handleQuery)
	s.mux.HandleFunc("/fetch_exact", s.handleFetchExact)
	s.mux.HandleFunc("/jobs", s.handleJobsCollection)
	s.mux.HandleFunc("/jobs/", s.handleJobsItem)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, err *api.APIError) {
	writeJSON(w, err.Status, map[string]string{"code": err.Code, "message": err.Message})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "POST only"})
		return
	}
	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	resp, apiErr := s.api.Query(r.Context(), req)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFetchExact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "POST only"})
		return
	}
	var req api.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	resp, apiErr := s.api.FetchExact(r.Context(), req)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "POST only"})
		return
	}
	var req api.JobSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	resp, apiErr := s.api.SubmitJob(r.Context(), req)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobsItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "job id required"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		job, apiErr := s.api.GetJob(r.Context(), id)
		if apiErr != nil {
			writeAPIError(w, apiErr)
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		resp, apiErr := s.api.CancelJob(r.Context(), id)
		if apiErr != nil {
			writeAPIError(w, apiErr)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "GET or DELETE only"})
	}
}

// handleEvents serves spec.md §6's SSE event stream: subscribers
// receive every job_update/log/suggestion event broadcast from this
// point on, with no replay of past events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.api.Broadcaster.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.api.HealthSnapshot()
	writeJSON(w, http.StatusOK, snap)
}

// ParsePort parses a "host:port" or bare port flag value, defaulting
// the host to localhost when only a port is given.
func ParsePort(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("address must not be empty")
	}
	if _, err := strconv.Atoi(addr); err == nil {
		return "127.0.0.1:" + addr, nil
	}
	return addr, nil
}
