// Package server implements the daemon's local control surface: a
// small JSON-over-HTTP endpoint set the web frontend polls for status,
// configuration, event history, and proxied filesystem and shell
// actions. Permission violations map to 403, everything else to 500.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"mindvault/internal/agent"
	"mindvault/internal/config"
	"mindvault/internal/logging"
	"mindvault/internal/permissions"
	"mindvault/internal/sandbox"
	"mindvault/internal/shell"
	"mindvault/internal/store"
)

// EventSource reads back the durable event log. *store.Store satisfies
// it.
type EventSource interface {
	RecentEvents(limit int) ([]store.Event, error)
}

// Server is the control surface.
type Server struct {
	addr        string
	scheduler   *agent.Scheduler
	settings    *config.Settings
	events      EventSource
	fs          *sandbox.FS
	syncer      *sandbox.Syncer
	runner      *shell.Runner
	gate        *permissions.Gate
	log         *logging.EventLogger
	requestStop func()

	httpServer *http.Server
}

// Deps bundles the server's collaborators.
type Deps struct {
	Addr        string
	Scheduler   *agent.Scheduler
	Settings    *config.Settings
	Events      EventSource
	FS          *sandbox.FS
	Syncer      *sandbox.Syncer
	Runner      *shell.Runner
	Gate        *permissions.Gate
	Log         *logging.EventLogger
	RequestStop func()
}

// New builds the control surface.
func New(d Deps) *Server {
	s := &Server{
		addr:        d.Addr,
		scheduler:   d.Scheduler,
		settings:    d.Settings,
		events:      d.Events,
		fs:          d.FS,
		syncer:      d.Syncer,
		runner:      d.Runner,
		gate:        d.Gate,
		log:         d.Log,
		requestStop: d.RequestStop,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("POST /config", s.handleSetConfig)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /fs/read", s.handleFSRead)
	mux.HandleFunc("POST /fs/write", s.handleFSWrite)
	mux.HandleFunc("POST /fs/list", s.handleFSList)
	mux.HandleFunc("POST /fs/exists", s.handleFSExists)
	mux.HandleFunc("POST /fs/delete", s.handleFSDelete)
	mux.HandleFunc("POST /fs/sync-export", s.handleSyncExport)
	mux.HandleFunc("POST /fs/sync-import", s.handleSyncImport)
	mux.HandleFunc("POST /shell/exec", s.handleShellExec)
	mux.HandleFunc("GET /shell/allowed", s.handleShellAllowed)
	mux.HandleFunc("GET /permissions", s.handlePermissions)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Zap().Info("control surface listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// ---- JSON plumbing ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps denials to 403 and everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if permissions.Denied(err) {
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// ---- status / config / events / stop ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Duration(0)
	if started := s.scheduler.StartedAt(); !started.IsZero() {
		uptime = time.Since(started)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":       s.scheduler.Running(),
		"currentTask":   s.scheduler.CurrentTask(),
		"tasks":         s.scheduler.Snapshot(),
		"pid":           os.Getpid(),
		"uptimeSeconds": int64(uptime.Seconds()),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if !decodeBody(w, r, &values) {
		return
	}
	if err := s.settings.Merge(values); err != nil {
		writeError(w, err)
		return
	}
	s.log.Event(logging.EventConfigChange, "", map[string]any{"keys": len(values)})
	writeJSON(w, http.StatusOK, map[string]any{"applied": len(values)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositive(v); err == nil {
			limit = n
		}
	}
	events, err := s.events.RecentEvents(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stopping": true})
	// Acknowledge first; the shutdown follows shortly after the
	// response is flushed.
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.requestStop()
	}()
}

// ---- filesystem proxies ----

type fsRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Dir     string `json:"dir"`
}

func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	data, err := s.fs.ReadFile(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "content": string(data)})
}

func (s *Server) handleFSWrite(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.fs.WriteFile(req.Path, []byte(req.Content)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "bytes": len(req.Content)})
}

func (s *Server) handleFSList(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	entries, err := s.fs.ListDir(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "entries": entries})
}

func (s *Server) handleFSExists(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	exists, err := s.fs.Exists(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "exists": exists})
}

func (s *Server) handleFSDelete(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.fs.Delete(req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": req.Path, "deleted": true})
}

func (s *Server) handleSyncExport(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dir := req.Dir
	if dir == "" {
		dir = s.settings.GetString("sync.dir")
	}
	result, err := s.syncer.Export(dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncImport(w http.ResponseWriter, r *http.Request) {
	var req fsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dir := req.Dir
	if dir == "" {
		dir = s.settings.GetString("sync.dir")
	}
	result, err := s.syncer.Import(dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---- shell proxies ----

type shellRequest struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	Cwd       string   `json:"cwd"`
	TimeoutMs int      `json:"timeoutMs"`
}

func (s *Server) handleShellExec(w http.ResponseWriter, r *http.Request) {
	var req shellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.runner.Run(r.Context(), req.Command, req.Args, shell.Options{
		Cwd:     req.Cwd,
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleShellAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"allowed": shell.Allowlist})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"level":        s.gate.Level().String(),
		"baseDir":      s.gate.BaseDir(),
		"capabilities": s.gate.Capabilities(),
	})
}

func parsePositive(v string) (int, error) {
	var n int
	if err := json.Unmarshal([]byte(v), &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("not positive")
	}
	return n, nil
}
