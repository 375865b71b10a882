package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/intake"
	"loom/internal/logging"
	"loom/internal/services"
	"loom/internal/services/engine"
	"loom/internal/store"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	token := strings.TrimSpace(cfg.Paths.APIToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/requests", authMiddleware(token, srv.handleRequests))
	mux.HandleFunc("/api/requests/", authMiddleware(token, srv.handleRequestItem))
	mux.HandleFunc("/api/tasks/", authMiddleware(token, srv.handleTaskItem))
	// Callbacks authenticate with the HMAC signature, not the bearer token.
	mux.HandleFunc("/api/callbacks/engine", srv.handleEngineCallback)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Args(logging.Error(err))...)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.Args(logging.String("address", listener.Addr().String()))...)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address, useful when binding port 0 in tests.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	counts := make(map[string]int, len(status.RequestCounts))
	for requestStatus, count := range status.RequestCounts {
		counts[string(requestStatus)] = count
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:         status.Running,
		DBPath:          status.DBPath,
		LockFilePath:    status.LockFilePath,
		RequestCounts:   counts,
		Breakers:        api.FromBreakerStatuses(status.Breakers),
		StaleDispatches: api.FromTasks(status.StaleDispatches),
	})
}

func (s *apiServer) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRequests(w, r)
	case http.MethodPost:
		s.createRequest(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listRequests(w http.ResponseWriter, r *http.Request) {
	var statuses []store.RequestStatus
	for _, value := range r.URL.Query()["status"] {
		status, ok := store.ParseRequestStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	requests, err := s.daemon.store.ListRequests(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RequestListResponse{Requests: api.FromRequests(requests)})
}

func (s *apiServer) createRequest(w http.ResponseWriter, r *http.Request) {
	var input api.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	request, tasks, err := s.daemon.intake.CreateRequest(r.Context(), intake.NewRequestInput{
		RequestType: input.RequestType,
		Title:       input.Title,
		Metadata:    input.Metadata,
		TaskInput:   input.TaskInput,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.daemon.notifier.NotifyRequestReceived(r.Context(), request); err != nil {
		s.log().Warn("intake notification failed", logging.Args(logging.Error(err))...)
	}
	s.writeJSON(w, http.StatusCreated, api.RequestDetailResponse{
		Request: api.FromRequest(request),
		Tasks:   api.FromTasks(tasks),
	})
}

func (s *apiServer) handleRequestItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.describeRequest(w, r, id)
	case "progress":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.requestProgress(w, r, id)
	case "events":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		events, err := s.daemon.store.EventsForRequest(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: api.FromEvents(events)})
	case "process":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		summary, err := s.daemon.orch.ProcessRequest(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromSummary(summary))
	case "approve":
		s.requestAction(w, r, id, s.daemon.orch.Approve)
	case "cancel":
		s.requestAction(w, r, id, s.daemon.orch.Cancel)
	case "rollback":
		s.requestAction(w, r, id, s.daemon.orch.Rollback)
	default:
		s.writeError(w, http.StatusNotFound, "request not found")
	}
}

func (s *apiServer) describeRequest(w http.ResponseWriter, r *http.Request, id string) {
	request, err := s.daemon.store.GetRequest(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if request == nil {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	tasks, err := s.daemon.store.TasksForRequest(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RequestDetailResponse{
		Request: api.FromRequest(request),
		Tasks:   api.FromTasks(tasks),
	})
}

func (s *apiServer) requestProgress(w http.ResponseWriter, r *http.Request, id string) {
	request, err := s.daemon.store.GetRequest(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if request == nil {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	snap, err := s.daemon.tracker.Snapshot(r.Context(), request)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) requestAction(w http.ResponseWriter, r *http.Request, id string, action func(context.Context, string) (*store.Request, error)) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	request, err := action(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRequest(request))
}

func (s *apiServer) handleTaskItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action != "retry" {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	task, err := s.daemon.orch.RetryTask(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTask(task))
}

func (s *apiServer) handleEngineCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.engine == nil {
		s.writeError(w, http.StatusServiceUnavailable, "engine integration not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if !s.daemon.engine.VerifyCallback(body, r.Header.Get(engine.SignatureHeader)) {
		s.writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var cb engine.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid callback body")
		return
	}
	summary, err := s.daemon.orch.ResolveDispatch(r.Context(), cb)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSummary(summary))
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	message := services.Summary(err)
	switch services.CodeOf(err) {
	case services.CodeValidation, services.CodeUnsupportedAgent, services.CodeWorkflowNotFound:
		status := http.StatusBadRequest
		if strings.Contains(message, "does not exist") {
			status = http.StatusNotFound
		}
		s.writeError(w, status, message)
	default:
		s.writeError(w, http.StatusInternalServerError, message)
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Args(logging.Error(err))...)
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
