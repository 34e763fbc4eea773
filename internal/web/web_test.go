package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calmate/internal/chat"
	"calmate/internal/config"
	"calmate/internal/model"
	"calmate/internal/session"
	"calmate/internal/store"
)

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// cannedModel answers every request with the same reply.
type cannedModel struct {
	reply model.Reply
	calls int
}

func (m *cannedModel) Generate(context.Context, string, []model.Turn) (model.Reply, error) {
	m.calls++
	if m.calls > 1 {
		return model.Reply{Texts: []string{"Done."}}, nil
	}
	return m.reply, nil
}

type fixture struct {
	srv   *Server
	store *store.Store
	cfg   *config.Config
	model *cannedModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Timezone = "UTC"
	cfg.Normalize()

	st := store.FromConfig(cfg)
	opts := session.OptionsFromConfig(cfg)
	opts.Now = func() time.Time { return fixedNow }
	m := &cannedModel{reply: model.Reply{Texts: []string{"**Hi** there"}}}

	srv := NewServer(cfg, chat.New(session.New(st, opts), m))
	srv.now = func() time.Time { return fixedNow }
	return &fixture{srv: srv, store: st, cfg: cfg, model: m}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveSchedule(model.Schedule{Events: []model.Event{
		{Description: "A", Date: "2026-10-19", Time: "9am"},
		{Description: "B", Date: "2026-10-20", Time: "noon"},
		{Description: "C", Date: "2026-10-19", Time: "5pm"},
	}}))

	rec := f.do(t, http.MethodGet, "/api/events?date=2026-10-19", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-10-18", resp.Today)
	assert.Equal(t, "monday", resp.WeekStart)
	assert.Equal(t, []eventDTO{
		{Index: 0, Description: "A", Date: "2026-10-19", Time: "9am"},
		{Index: 2, Description: "C", Date: "2026-10-19", Time: "5pm"},
	}, resp.Events)
}

func TestEvents_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/events", "")
	assert.Contains(t, rec.Body.String(), `"events":[]`)
}

func TestEvents_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/events", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestProfile_PutReplaces(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveProfile(model.Profile{"name": "Ann", "job": "engineer"}))

	rec := f.do(t, http.MethodPut, "/api/profile", `{"name":"Bo","age":31}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Profile{"name": "Bo", "age": "31"}, f.store.LoadProfile())

	rec = f.do(t, http.MethodGet, "/api/profile", "")
	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]string{"name": "Bo", "age": "31"}, got)
}

func TestProfile_PutRejectsNonObject(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/profile", `["not","an","object"]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "**Hi** there", resp.Reply)
	assert.Contains(t, resp.HTML, "<strong>Hi</strong>")
}

func TestChat_ToolCallPersists(t *testing.T) {
	f := newFixture(t)
	f.model.reply = model.Reply{Calls: []model.FunctionCall{{Name: "add_event", Args: map[string]any{
		"description": "Yoga", "date": "2026-10-22", "time": "18:00",
	}}}}

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"yoga thursday 6pm"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Done.")
	assert.Equal(t, []model.Event{{Description: "Yoga", Date: "2026-10-22", Time: "18:00"}}, f.store.LoadSchedule().Events)
}

func TestChat_EmptyMessage(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.model.calls)
}

func TestCalendarICS(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveSchedule(model.Schedule{Events: []model.Event{
		{Description: "Gym", Date: "2026-10-19", Time: "07:00"},
	}}))

	rec := f.do(t, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Gym")
}

func TestPreview(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	png := []byte("\x89PNG\r\n\x1a\n")
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.DataDir, "preview.png"), png, 0o600))
	rec = f.do(t, http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())
}

func TestStaticAndUnknownAPI(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-ready`)

	rec = f.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t)
	f.cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/events", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveProfile(model.Profile{"city": "Oslo"}))

	f.srv.Reload()
	assert.Equal(t, "Oslo", f.srv.chat.Session().Profile()["city"])
}
