package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"calmate/internal/chat"
	"calmate/internal/config"
	"calmate/internal/ics"
	appLog "calmate/internal/log"
	"calmate/internal/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Server exposes the chat, calendar and profile screens over HTTP.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	// mu serializes everything that touches the session; at most one
	// exchange is in flight.
	mu   sync.Mutex
	chat *chat.Chat

	now func() time.Time
}

// embeddedStatic holds the calendar page. It marks its root element with
// data-ready="true" once events are rendered so snapshots can wait for it.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server around an existing chat.
func NewServer(cfg *config.Config, c *chat.Chat) *Server {
	s := &Server{
		cfg:  cfg,
		mux:  http.NewServeMux(),
		chat: c,
		now:  time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Reload re-reads schedule and profile from disk under the session lock.
func (s *Server) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat.Session().Refresh()
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calmate", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("stopping HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/profile", s.handleProfile)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/calendar.ics", s.handleICS)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	// Everything else falls back to the embedded page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// eventDTO is a schedule entry together with its position, which is what
// remove_event addresses.
type eventDTO struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type eventsResponse struct {
	Events    []eventDTO `json:"events"`
	Today     string     `json:"today"`
	Timezone  string     `json:"timezone"`
	WeekStart string     `json:"week_start"`
}

// handleEvents lists the schedule.
//
// GET /api/events?date=YYYY-MM-DD
//   - date: optional exact-match filter
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	filter := r.URL.Query().Get("date")

	s.mu.Lock()
	sess := s.chat.Session()
	sess.Refresh()
	sched := sess.Schedule()
	today := sess.Today()
	s.mu.Unlock()

	resp := eventsResponse{
		Events:    []eventDTO{},
		Today:     today,
		Timezone:  s.cfg.Location().String(),
		WeekStart: s.cfg.WeekStart,
	}
	for i, ev := range sched.Events {
		if filter != "" && ev.Date != filter {
			continue
		}
		resp.Events = append(resp.Events, eventDTO{
			Index:       i,
			Description: ev.Description,
			Date:        ev.Date,
			Time:        ev.Time,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleProfile reads or replaces the whole profile.
//
// GET /api/profile
// PUT /api/profile  {"key": "value", ...}
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.chat.Session()

	if r.Method == http.MethodGet {
		sess.Refresh()
		writeJSON(w, http.StatusOK, sess.Profile())
		return
	}

	var raw map[string]any
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "profile must be a JSON object")
		return
	}
	if err := sess.ReplaceProfile(model.ProfileFromAny(raw)); err != nil {
		appLog.Error("api profile: save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, sess.Profile())
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	HTML  string `json:"html"`
}

// handleChat runs one exchange.
//
// POST /api/chat  {"message": "..."}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	reply, err := s.chat.Send(r.Context(), req.Message)
	s.mu.Unlock()
	if errors.Is(err, chat.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}
	if err != nil {
		appLog.Error("api chat: send failed", err)
		writeError(w, http.StatusInternalServerError, chat.Apology)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, HTML: renderMarkdown(reply)})
}

// renderMarkdown converts a model reply to HTML; on failure the reply is
// returned as escaped text.
func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		appLog.Warn("markdown render failed", "err", err)
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}

// handleICS exports the schedule as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	s.mu.Lock()
	sess := s.chat.Session()
	sess.Refresh()
	sched := sess.Schedule()
	s.mu.Unlock()

	body := ics.Export(sched, s.cfg.Location(), s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calmate.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// handlePreview serves the last rendered PNG snapshot from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	// http.ServeFile maps a missing file to 404.
	http.ServeFile(w, r, s.cfg.SnapshotPath())
}

// staticFileServer serves the embedded files under internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown API paths are 404s, never HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
