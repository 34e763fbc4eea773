// Package session owns one conversation: its transcript and the in-memory
// schedule and profile the model's tool calls act on.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"calmate/internal/config"
	appLog "calmate/internal/log"
	"calmate/internal/model"
	"calmate/internal/tools"
)

// Store is the persistence the session reads from and writes through to.
// *store.Store satisfies it.
type Store interface {
	LoadSchedule() model.Schedule
	SaveSchedule(model.Schedule) error
	LoadProfile() model.Profile
	SaveProfile(model.Profile) error
}

// Options tunes a Session. Zero values are replaced by defaults in New.
type Options struct {
	// Location decides what "today" means. Defaults to time.Local.
	Location *time.Location
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// DefaultCount is used when a recurring request names no count.
	DefaultCount int
	// MaxCount caps the entries added per weekday.
	MaxCount int
}

// OptionsFromConfig derives session options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Location:     cfg.Location(),
		DefaultCount: cfg.Recurring.DefaultCount,
		MaxCount:     cfg.Recurring.MaxCount,
	}
}

// Session is not safe for concurrent use; callers serialize access.
type Session struct {
	store Store
	opts  Options

	schedule   model.Schedule
	profile    model.Profile
	transcript []model.Turn
}

// New loads the schedule and profile from st and starts an empty
// transcript. There is nothing to release when a Session is dropped.
func New(st Store, opts Options) *Session {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultCount <= 0 {
		opts.DefaultCount = 4
	}
	if opts.MaxCount <= 0 {
		opts.MaxCount = 520
	}
	if opts.DefaultCount > opts.MaxCount {
		opts.DefaultCount = opts.MaxCount
	}

	s := &Session{store: st, opts: opts}
	s.Refresh()
	return s
}

// Refresh reloads schedule and profile from the store, picking up edits made
// elsewhere. The transcript is kept.
func (s *Session) Refresh() {
	s.schedule = s.store.LoadSchedule()
	if s.schedule.Events == nil {
		s.schedule.Events = []model.Event{}
	}
	s.profile = s.store.LoadProfile()
	if s.profile == nil {
		s.profile = model.Profile{}
	}
}

func (s *Session) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// Today returns the current date as YYYY-MM-DD in the session's timezone.
func (s *Session) Today() string {
	return s.now().Format(time.DateOnly)
}

// Schedule returns a copy of the in-memory schedule.
func (s *Session) Schedule() model.Schedule { return s.schedule.Clone() }

// Profile returns a copy of the in-memory profile.
func (s *Session) Profile() model.Profile { return s.profile.Clone() }

// ReplaceProfile swaps the whole profile and persists it.
func (s *Session) ReplaceProfile(p model.Profile) error {
	s.profile = p.Clone()
	return s.store.SaveProfile(s.profile)
}

// UpdateProfile merges updates into the profile and persists it.
func (s *Session) UpdateProfile(updates model.Profile) error {
	s.profile.Merge(updates)
	return s.store.SaveProfile(s.profile)
}

// Transcript returns a copy of the conversation so far. The instruction
// built by Context is never part of it.
func (s *Session) Transcript() []model.Turn {
	return slices.Clone(s.transcript)
}

// AddUserMessage appends a user text turn.
func (s *Session) AddUserMessage(text string) {
	s.transcript = append(s.transcript, model.TextTurn(model.RoleUser, text))
}

// AddModelText appends a model text turn.
func (s *Session) AddModelText(text string) {
	s.transcript = append(s.transcript, model.TextTurn(model.RoleModel, text))
}

// AddFunctionCall records the model's request so the response that follows
// has a matching call in the history.
func (s *Session) AddFunctionCall(call model.FunctionCall) {
	s.transcript = append(s.transcript, model.Turn{
		Role:  model.RoleModel,
		Parts: []model.Part{{FunctionCall: &call}},
	})
}

func (s *Session) addFunctionResponse(call model.FunctionCall, result string) {
	s.transcript = append(s.transcript, model.Turn{
		Role: model.RoleUser,
		Parts: []model.Part{{FunctionResponse: &model.FunctionResponse{
			ID:     call.ID,
			Name:   call.Name,
			Result: result,
		}}},
	})
}

// HandleFunctionCall runs one model-issued tool call and records its result
// as a function-response turn. Rejected arguments are ordinary results.
// Unknown tool names return "" and leave the transcript untouched. A non-nil
// error means the change was applied in memory but could not be persisted.
func (s *Session) HandleFunctionCall(fc model.FunctionCall) (string, error) {
	call, err := tools.Decode(fc.Name, fc.Args)
	if errors.Is(err, tools.ErrUnknownTool) {
		appLog.Warn("session: ignoring unknown tool", "name", fc.Name)
		return "", nil
	}

	var result string
	if err != nil {
		result = err.Error()
		err = nil
	} else {
		result, err = call.Dispatch(dispatcher{s: s})
	}

	appLog.Debug("session: tool handled", "name", fc.Name, "result", result)
	s.addFunctionResponse(fc, result)
	if err != nil {
		return result, fmt.Errorf("%s: %w", fc.Name, err)
	}
	return result, nil
}

// Context builds the instruction sent with every model call from the
// current date, schedule and profile.
func (s *Session) Context() string {
	sched, err := json.Marshal(s.schedule)
	if err != nil {
		sched = []byte(`{"events":[]}`)
	}
	return fmt.Sprintf(instruction, s.Today(), sched, s.profile.JSON())
}

const instruction = `You are a personal scheduling assistant. Manage the user's schedule using the available tools.
Current date: %s.
Current schedule: %s
User profile: %s

IMPORTANT: Never mention tool calls, function calls, or show tool outputs in your responses. Just respond naturally based on the results.

When the user asks you to decide or choose a time, analyze their current schedule and suggest available time slots that don't conflict with existing events.
Be proactive in suggesting times based on:
- Avoiding conflicts with existing events
- User preferences from their profile (morning_start, evening_end, preferred times)
- Common preferences (e.g., morning for exercise, afternoon for meetings)
- Gaps in their schedule
Always provide 2-3 time options when suggesting.

When the user mentions a problem, goal, or improvement area (like "I lack GK", "I need to exercise", "I want to learn coding"),
be helpful and proactive. Suggest adding relevant events or tasks to their schedule to help them achieve their goal.
For example:
- "I lack GK" → Suggest adding daily/weekly GK reading or quiz sessions
- "I need to exercise" → Suggest adding workout sessions
- "I want to learn X" → Suggest adding study/practice sessions

When the user shares personal information (name, job, preferences, goals, interests, habits, personality traits, etc.),
silently update their profile using update_user_profile without mentioning it in your response.
Use the user profile to personalize your responses and suggestions based on what you know about them.

Always relate their goals back to their schedule and offer to help them make time for improvement.`
