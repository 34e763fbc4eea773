package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calmate/internal/model"
	"calmate/internal/session"
	"calmate/internal/store"
)

// scripted replays canned replies and records what it was sent.
type scripted struct {
	replies []model.Reply
	errs    []error

	systems []string
	seen    [][]model.Turn
}

func (g *scripted) Generate(_ context.Context, system string, turns []model.Turn) (model.Reply, error) {
	i := len(g.seen)
	g.systems = append(g.systems, system)
	g.seen = append(g.seen, turns)
	if i < len(g.errs) && g.errs[i] != nil {
		return model.Reply{}, g.errs[i]
	}
	if i >= len(g.replies) {
		return model.Reply{}, errors.New("no more replies")
	}
	return g.replies[i], nil
}

func newChat(t *testing.T, gen Generator) (*Chat, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "schedule.json"), filepath.Join(dir, "user_profile.json"))
	s := session.New(st, session.Options{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) },
	})
	return New(s, gen), st
}

func roles(turns []model.Turn) []model.Role {
	out := make([]model.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

func TestSend_EmptyMessage(t *testing.T) {
	gen := &scripted{}
	c, _ := newChat(t, gen)

	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := c.Send(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Empty(t, gen.seen)
	assert.Empty(t, c.Session().Transcript())
}

func TestSend_PlainText(t *testing.T) {
	gen := &scripted{replies: []model.Reply{{Texts: []string{"Hello", " there"}}}}
	c, _ := newChat(t, gen)

	out, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	tr := c.Session().Transcript()
	assert.Equal(t, []model.Turn{
		model.TextTurn(model.RoleUser, "hi"),
		model.TextTurn(model.RoleModel, "Hello there"),
	}, tr)
	require.Len(t, gen.systems, 1)
	assert.Contains(t, gen.systems[0], "Current date: 2026-10-18.")
}

func TestSend_ToolRound(t *testing.T) {
	gen := &scripted{replies: []model.Reply{
		{Calls: []model.FunctionCall{{ID: "1", Name: "add_event", Args: map[string]any{
			"description": "Dentist", "date": "2026-10-21", "time": "10:00",
		}}}},
		{Texts: []string{"Booked your dentist visit."}},
	}}
	c, st := newChat(t, gen)

	out, err := c.Send(context.Background(), "dentist wednesday 10am")
	require.NoError(t, err)
	assert.Equal(t, "Booked your dentist visit.", out)

	tr := c.Session().Transcript()
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleModel, model.RoleUser, model.RoleModel}, roles(tr))
	require.NotNil(t, tr[1].Parts[0].FunctionCall)
	assert.Equal(t, "add_event", tr[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, tr[2].Parts[0].FunctionResponse)
	assert.Equal(t, "Added event: Dentist on 2026-10-21 at 10:00", tr[2].Parts[0].FunctionResponse.Result)

	assert.Len(t, st.LoadSchedule().Events, 1)

	require.Len(t, gen.seen, 2)
	assert.Len(t, gen.seen[1], 3, "follow-up sees the tool answer")
	assert.Contains(t, gen.systems[1], "Dentist", "follow-up context reflects the new event")
}

func TestSend_OnlyFirstCallRuns(t *testing.T) {
	gen := &scripted{replies: []model.Reply{
		{
			Texts: []string{"Sure. "},
			Calls: []model.FunctionCall{
				{Name: "update_user_profile", Args: map[string]any{"updates": map[string]any{"name": "Ann"}}},
				{Name: "update_user_profile", Args: map[string]any{"updates": map[string]any{"job": "pilot"}}},
			},
		},
		{
			Texts: []string{"Nice to meet you."},
			Calls: []model.FunctionCall{{Name: "get_user_profile"}},
		},
	}}
	c, st := newChat(t, gen)

	out, err := c.Send(context.Background(), "I'm Ann, a pilot")
	require.NoError(t, err)
	assert.Equal(t, "Sure. Nice to meet you.", out)
	assert.Equal(t, model.Profile{"name": "Ann"}, st.LoadProfile())
	assert.Len(t, gen.seen, 2, "no third model call")
}

func TestSend_UnknownToolSkipsFollowUp(t *testing.T) {
	gen := &scripted{replies: []model.Reply{
		{Texts: []string{"Hmm."}, Calls: []model.FunctionCall{{Name: "teleport"}}},
	}}
	c, _ := newChat(t, gen)

	out, err := c.Send(context.Background(), "beam me up")
	require.NoError(t, err)
	assert.Equal(t, "Hmm.", out)
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleModel}, roles(c.Session().Transcript()))
	assert.Len(t, gen.seen, 1)
}

func TestSend_UnknownFirstCallHidesLaterCalls(t *testing.T) {
	gen := &scripted{replies: []model.Reply{
		{Texts: []string{"Hmm."}, Calls: []model.FunctionCall{
			{Name: "teleport"},
			{Name: "add_event", Args: map[string]any{"description": "Gym", "date": "2026-10-19", "time": "7am"}},
		}},
	}}
	c, st := newChat(t, gen)

	out, err := c.Send(context.Background(), "gym tomorrow")
	require.NoError(t, err)
	assert.Equal(t, "Hmm.", out)
	assert.Empty(t, st.LoadSchedule().Events)
	assert.Len(t, gen.seen, 1)
}

func TestSend_ModelFailure(t *testing.T) {
	gen := &scripted{errs: []error{errors.New("quota exceeded")}}
	c, _ := newChat(t, gen)

	out, err := c.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, Apology, out)
	assert.Equal(t, []model.Role{model.RoleUser}, roles(c.Session().Transcript()))
}

func TestSend_FollowUpFailure(t *testing.T) {
	gen := &scripted{
		replies: []model.Reply{{Calls: []model.FunctionCall{{Name: "get_current_date"}}}},
		errs:    []error{nil, errors.New("timeout")},
	}
	c, _ := newChat(t, gen)

	out, err := c.Send(context.Background(), "what day is it")
	require.NoError(t, err)
	assert.Equal(t, Apology, out)

	tr := c.Session().Transcript()
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleModel, model.RoleUser}, roles(tr))
	assert.NotNil(t, tr[2].Parts[0].FunctionResponse, "no model text after the failed follow-up")
}

func TestSend_RefreshesFromStore(t *testing.T) {
	gen := &scripted{replies: []model.Reply{{Texts: []string{"ok"}}}}
	c, st := newChat(t, gen)

	require.NoError(t, st.SaveProfile(model.Profile{"name": "Zoe"}))

	_, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Contains(t, gen.systems[0], `"name":"Zoe"`)
}
