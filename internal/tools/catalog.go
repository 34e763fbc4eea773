// Package tools declares the functions the model may call and decodes the
// model's calls into a closed set of typed variants.
package tools

import "google.golang.org/genai"

// Name identifies a declared tool.
type Name string

const (
	NameAddEvent          Name = "add_event"
	NameListEvents        Name = "list_events"
	NameRemoveEvent       Name = "remove_event"
	NameGetCurrentDate    Name = "get_current_date"
	NameUpdateUserProfile Name = "update_user_profile"
	NameGetUserProfile    Name = "get_user_profile"
)

// Names lists the declared tools in catalog order.
func Names() []Name {
	return []Name{
		NameAddEvent,
		NameListEvents,
		NameRemoveEvent,
		NameGetCurrentDate,
		NameUpdateUserProfile,
		NameGetUserProfile,
	}
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func integer(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger, Description: desc}
}

func object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

// Declarations returns the catalog handed to the model. A new slice is built
// on every call so callers cannot alter the catalog.
func Declarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        string(NameAddEvent),
			Description: "Add a new event to the schedule. For recurring events, specify the recurring details.",
			Parameters: object(map[string]*genai.Schema{
				"description": str("Description of the event"),
				"date":        str("Date of the event in YYYY-MM-DD format (for single events)"),
				"time":        str("Time of the event"),
				"recurring": {
					Type:        genai.TypeObject,
					Description: "Details for recurring events",
					Properties: map[string]*genai.Schema{
						"frequency": str("e.g., weekly"),
						"days": {
							Type:        genai.TypeArray,
							Items:       str("Day of the week, e.g. monday"),
							Description: "List of days, e.g., ['monday', 'tuesday']",
						},
						"count": integer("Number of occurrences per day (default 4)"),
					},
				},
			}, "description"),
		},
		{
			Name:        string(NameListEvents),
			Description: "List all events in the schedule, optionally filtered by date",
			Parameters: object(map[string]*genai.Schema{
				"date": str("Optional date filter in YYYY-MM-DD format"),
			}),
		},
		{
			Name:        string(NameRemoveEvent),
			Description: "Remove an event by index (0-based)",
			Parameters: object(map[string]*genai.Schema{
				"index": integer("Index of the event to remove"),
			}, "index"),
		},
		{
			Name:        string(NameGetCurrentDate),
			Description: "Get the current date in YYYY-MM-DD format",
		},
		{
			Name: string(NameUpdateUserProfile),
			Description: "Update user profile with any information about the user (name, job, preferences, goals, " +
				"interests, habits, personality, etc.). Provide updates as key-value pairs.",
			Parameters: object(map[string]*genai.Schema{
				"updates": {
					Type:        genai.TypeObject,
					Description: "Key-value pairs to merge into the profile",
				},
			}, "updates"),
		},
		{
			Name:        string(NameGetUserProfile),
			Description: "Get the current user profile information",
		},
	}
}
