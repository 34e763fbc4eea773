package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Decode for names outside the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// ArgumentError reports arguments that could not be decoded for a known
// tool. Its message is meant for the model.
type ArgumentError struct {
	Tool Name
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("Invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Handler executes each tool. Adding a tool to the catalog adds a method
// here, so every dispatcher must implement it before the code compiles.
type Handler interface {
	AddEvent(AddEvent) (string, error)
	ListEvents(ListEvents) (string, error)
	RemoveEvent(RemoveEvent) (string, error)
	GetCurrentDate(GetCurrentDate) (string, error)
	UpdateUserProfile(UpdateUserProfile) (string, error)
	GetUserProfile(GetUserProfile) (string, error)
}

// Call is one decoded tool invocation. The set of implementations is closed
// to this package.
type Call interface {
	Name() Name
	Dispatch(h Handler) (string, error)
	sealed()
}

// Recurring describes a weekly series requested through add_event.
type Recurring struct {
	Frequency string   `json:"frequency,omitempty"`
	Days      []string `json:"days,omitempty"`
	// Count is the number of entries per day; 0 means the default.
	Count int `json:"count,omitempty"`
}

type AddEvent struct {
	Description string     `json:"description"`
	Date        string     `json:"date,omitempty"`
	Time        string     `json:"time"`
	Recurring   *Recurring `json:"recurring,omitempty"`
}

type ListEvents struct {
	Date string `json:"date,omitempty"`
}

// RemoveEvent.Index is nil when the model omitted it or sent something
// that is not an integer.
type RemoveEvent struct {
	Index *int `json:"index"`
}

type GetCurrentDate struct{}

type UpdateUserProfile struct {
	Updates map[string]any `json:"updates"`
}

type GetUserProfile struct{}

func (AddEvent) Name() Name          { return NameAddEvent }
func (ListEvents) Name() Name        { return NameListEvents }
func (RemoveEvent) Name() Name       { return NameRemoveEvent }
func (GetCurrentDate) Name() Name    { return NameGetCurrentDate }
func (UpdateUserProfile) Name() Name { return NameUpdateUserProfile }
func (GetUserProfile) Name() Name    { return NameGetUserProfile }

func (c AddEvent) Dispatch(h Handler) (string, error)          { return h.AddEvent(c) }
func (c ListEvents) Dispatch(h Handler) (string, error)        { return h.ListEvents(c) }
func (c RemoveEvent) Dispatch(h Handler) (string, error)       { return h.RemoveEvent(c) }
func (c GetCurrentDate) Dispatch(h Handler) (string, error)    { return h.GetCurrentDate(c) }
func (c UpdateUserProfile) Dispatch(h Handler) (string, error) { return h.UpdateUserProfile(c) }
func (c GetUserProfile) Dispatch(h Handler) (string, error)    { return h.GetUserProfile(c) }

func (AddEvent) sealed()          {}
func (ListEvents) sealed()        {}
func (RemoveEvent) sealed()       {}
func (GetCurrentDate) sealed()    {}
func (UpdateUserProfile) sealed() {}
func (GetUserProfile) sealed()    {}

var decoders = map[Name]func(args map[string]any) (Call, error){
	NameAddEvent:          decodeInto[AddEvent],
	NameListEvents:        decodeInto[ListEvents],
	NameRemoveEvent:       decodeRemoveEvent,
	NameGetCurrentDate:    func(map[string]any) (Call, error) { return GetCurrentDate{}, nil },
	NameUpdateUserProfile: decodeInto[UpdateUserProfile],
	NameGetUserProfile:    func(map[string]any) (Call, error) { return GetUserProfile{}, nil },
}

// Known reports whether name is in the catalog.
func Known(name string) bool {
	_, ok := decoders[Name(name)]
	return ok
}

// Decode turns a model-issued call into its typed variant. Unknown names
// yield ErrUnknownTool; malformed arguments yield an *ArgumentError.
func Decode(name string, args map[string]any) (Call, error) {
	dec, ok := decoders[Name(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return dec(args)
}

// decodeInto round-trips the loosely typed argument map through JSON into
// the call's struct.
func decodeInto[T Call](args map[string]any) (Call, error) {
	var out T
	if len(args) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, &ArgumentError{Tool: out.Name(), Err: err}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ArgumentError{Tool: out.Name(), Err: err}
	}
	return out, nil
}

// decodeRemoveEvent never fails: a bad index is reported by the handler as
// an invalid index.
func decodeRemoveEvent(args map[string]any) (Call, error) {
	c, err := decodeInto[RemoveEvent](args)
	if err != nil {
		return RemoveEvent{}, nil
	}
	return c, nil
}
