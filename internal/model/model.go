package model

import (
	"encoding/json"
	"maps"
)

// Event is a single schedule entry. Its identity is its position in the
// schedule; there is no stable identifier.
type Event struct {
	Description string `json:"description"`
	// Date is an ISO calendar date (YYYY-MM-DD) as supplied by the caller.
	Date string `json:"date"`
	// Time is free text ("10:00", "3pm", "morning").
	Time string `json:"time"`
}

// Schedule is the persisted list of events. Insertion order is display
// order.
type Schedule struct {
	Events []Event `json:"events"`
}

// Clone returns a copy that does not share the events slice.
func (s Schedule) Clone() Schedule {
	out := Schedule{Events: make([]Event, len(s.Events))}
	copy(out.Events, s.Events)
	return out
}

// Profile is a flat, schema-less map of facts about the user.
type Profile map[string]string

// Clone returns a shallow copy; a nil profile clones to an empty one.
func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	maps.Copy(out, p)
	return out
}

// Merge overwrites or adds every key of updates. Nothing is deleted.
func (p Profile) Merge(updates Profile) {
	maps.Copy(p, updates)
}

// JSON renders the profile as compact JSON with sorted keys.
func (p Profile) JSON() string {
	if p == nil {
		return "{}"
	}
	b, err := json.Marshal(map[string]string(p))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Role tags who produced a transcript turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// FunctionCall is a structured request emitted by the model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries a tool's textual result back to the model.
type FunctionResponse struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

// Part is one payload of a turn. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
}

// Turn is one entry of the conversation transcript.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// TextTurn builds a single-text turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// Reply is a provider-neutral model response: zero or more text fragments
// and zero or more function calls, in the order the model produced them.
type Reply struct {
	Texts []string
	Calls []FunctionCall
}

// ProfileFromAny converts arbitrary decoded JSON values to profile strings.
// Strings are kept as-is; numbers, booleans, arrays and objects are stored
// as their JSON text; null becomes the empty string.
func ProfileFromAny(in map[string]any) Profile {
	out := make(Profile, len(in))
	for k, v := range in {
		out[k] = formatValue(v)
	}
	return out
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
