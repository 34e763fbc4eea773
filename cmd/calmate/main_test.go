package main

import (
	"bytes"
	"context"
	"fmt"
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
	"calmate/internal/store"
)

type echoModel struct{}

func (echoModel) Generate(_ context.Context, _ string, turns []model.Turn) (model.Reply, error) {
	last := turns[len(turns)-1]
	return model.Reply{Texts: []string{"echo: " + last.Parts[0].Text}}, nil
}

type testEnv struct {
	dir        string
	configPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("data_dir: %s\ntimezone: UTC\nlog_level: error\n", dir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return &testEnv{dir: dir, configPath: cfgPath}
}

func (e *testEnv) store() *store.Store {
	return store.New(filepath.Join(e.dir, "schedule.json"), filepath.Join(e.dir, "user_profile.json"))
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.newGenerator = func(context.Context, *config.Config) (chat.Generator, error) {
		return echoModel{}, nil
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "calmate "+version+"\n", out)
}

func TestEventsAndRemove(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "events")
	require.NoError(t, err)
	assert.Equal(t, "No events scheduled.\n", out)

	require.NoError(t, env.store().SaveSchedule(model.Schedule{Events: []model.Event{
		{Description: "A", Date: "2026-10-19", Time: "9am"},
		{Description: "B", Date: "2026-10-20", Time: "noon"},
	}}))

	out, err = env.run(t, "", "events")
	require.NoError(t, err)
	assert.Equal(t, "0. A on 2026-10-19 at 9am\n1. B on 2026-10-20 at noon\n", out)

	out, err = env.run(t, "", "events", "--date", "2026-10-20")
	require.NoError(t, err)
	assert.Equal(t, "1. B on 2026-10-20 at noon\n", out)

	out, err = env.run(t, "", "events", "--date", "2026-10-21")
	require.NoError(t, err)
	assert.Equal(t, "No events scheduled on 2026-10-21.\n", out)

	// The index shown under --date removes that same event.
	out, err = env.run(t, "", "events", "remove", "1")
	require.NoError(t, err)
	assert.Equal(t, "Removed event: B\n", out)
	assert.Equal(t, []model.Event{{Description: "A", Date: "2026-10-19", Time: "9am"}}, env.store().LoadSchedule().Events)

	out, err = env.run(t, "", "events", "remove", "7")
	require.NoError(t, err)
	assert.Equal(t, "Invalid index.\n", out)
}

func TestProfileSet(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "profile")
	require.NoError(t, err)
	assert.Equal(t, "No profile information available.\n", out)

	_, err = env.run(t, "", "profile", "set", "name=Ann", "goal=run a 10k")
	require.NoError(t, err)
	assert.Equal(t, model.Profile{"name": "Ann", "goal": "run a 10k"}, env.store().LoadProfile())

	_, err = env.run(t, "", "profile", "set", "oops")
	assert.Error(t, err)
}

func TestExportICS(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store().SaveSchedule(model.Schedule{Events: []model.Event{
		{Description: "Gym", Date: "2026-10-19", Time: "07:00"},
	}}))

	out, err := env.run(t, "", "export-ics")
	require.NoError(t, err)
	assert.Contains(t, out, "SUMMARY:Gym")

	target := filepath.Join(env.dir, "out.ics")
	_, err = env.run(t, "", "export-ics", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN:VCALENDAR")
}

func TestImportICS_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().UTC().AddDate(0, 0, 2).Truncate(time.Hour)
	feed := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:x-1\r\nDTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:" + start.Format("20060102T150405Z") + "\r\n" +
		"DTEND:" + start.Add(time.Hour).Format("20060102T150405Z") + "\r\n" +
		"SUMMARY:Team lunch\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	path := filepath.Join(env.dir, "feed.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	out, err := env.run(t, "", "import-ics", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 new events")

	out, err = env.run(t, "", "import-ics", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 new events")

	events := env.store().LoadSchedule().Events
	require.Len(t, events, 1)
	assert.Equal(t, model.Event{
		Description: "Team lunch",
		Date:        start.Format(time.DateOnly),
		Time:        start.Format("15:04"),
	}, events[0])
}

func TestChatSingleMessage(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "chat", "--plain", "-m", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", out)
}

func TestChatREPL(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "first\n\nsecond\nexit\nnever\n", "chat", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "echo: first")
	assert.Contains(t, out, "echo: second")
	assert.NotContains(t, out, "echo: never")
}

func TestMergeEvents(t *testing.T) {
	sched := model.Schedule{Events: []model.Event{{Description: "A", Date: "2026-10-19", Time: "9am"}}}
	added := mergeEvents(&sched, []model.Event{
		{Description: "A", Date: "2026-10-19", Time: "9am"},
		{Description: "B", Date: "2026-10-19", Time: "9am"},
		{Description: "B", Date: "2026-10-19", Time: "9am"},
	})
	assert.Equal(t, 1, added)
	assert.Len(t, sched.Events, 2)
}

func TestResolveSource(t *testing.T) {
	a := &app{cfg: &config.Config{ICS: []config.ICSConfig{
		{ID: "work", Name: "Work", URL: "https://example.com/work.ics"},
	}}}
	assert.Equal(t, "https://example.com/work.ics", a.resolveSource("work").URL)
	assert.Equal(t, "https://example.com/work.ics", a.resolveSource("Work").URL)
	assert.Equal(t, "/tmp/cal.ics", a.resolveSource("/tmp/cal.ics").URL)
}
