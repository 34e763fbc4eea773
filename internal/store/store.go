// Package store persists the schedule and the user profile as two JSON
// documents. Reads never fail: a missing or malformed file yields an empty
// value. Writes replace the whole file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"calmate/internal/config"
	appLog "calmate/internal/log"
	"calmate/internal/model"
)

// legacyProfileKey marks the old free-text profile layout.
const legacyProfileKey = "profile_text"

// Store reads and writes schedule.json and user_profile.json.
type Store struct {
	schedulePath string
	profilePath  string
}

// New returns a Store for the two given file paths.
func New(schedulePath, profilePath string) *Store {
	return &Store{
		schedulePath: schedulePath,
		profilePath:  profilePath,
	}
}

// FromConfig returns a Store for the paths configured in cfg.
func FromConfig(cfg *config.Config) *Store {
	return New(cfg.SchedulePath(), cfg.ProfilePath())
}

// SchedulePath returns the schedule file location.
func (s *Store) SchedulePath() string { return s.schedulePath }

// ProfilePath returns the profile file location.
func (s *Store) ProfilePath() string { return s.profilePath }

// LoadSchedule reads the schedule. Any read or parse failure returns an
// empty schedule.
func (s *Store) LoadSchedule() model.Schedule {
	data, err := os.ReadFile(s.schedulePath)
	if err != nil {
		appLog.Debug("schedule not readable, using empty schedule", "path", s.schedulePath, "err", err)
		return model.Schedule{Events: []model.Event{}}
	}

	var sched model.Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		appLog.Debug("schedule malformed, using empty schedule", "path", s.schedulePath, "err", err)
		return model.Schedule{Events: []model.Event{}}
	}
	if sched.Events == nil {
		sched.Events = []model.Event{}
	}
	return sched
}

// SaveSchedule overwrites the schedule file.
func (s *Store) SaveSchedule(sched model.Schedule) error {
	if sched.Events == nil {
		sched.Events = []model.Event{}
	}
	if err := writeJSON(s.schedulePath, sched); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// LoadProfile reads the user profile, upgrading the legacy
// {"profile_text": "Key: value\n..."} layout. Any read or parse failure
// returns an empty profile.
func (s *Store) LoadProfile() model.Profile {
	data, err := os.ReadFile(s.profilePath)
	if err != nil {
		appLog.Debug("profile not readable, using empty profile", "path", s.profilePath, "err", err)
		return model.Profile{}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		appLog.Debug("profile malformed, using empty profile", "path", s.profilePath, "err", err)
		return model.Profile{}
	}

	if text, ok := raw[legacyProfileKey]; ok {
		str, _ := text.(string)
		appLog.Info("upgrading legacy profile", "path", s.profilePath)
		return ParseLegacyProfile(str)
	}

	return model.ProfileFromAny(raw)
}

// SaveProfile overwrites the profile file with a flat JSON object.
func (s *Store) SaveProfile(p model.Profile) error {
	if p == nil {
		p = model.Profile{}
	}
	if err := writeJSON(s.profilePath, map[string]string(p)); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// ParseLegacyProfile converts "Key: value" lines to a profile. Keys are
// trimmed and lower-cased, values trimmed. Lines without a colon are
// ignored; a value may itself contain colons.
func ParseLegacyProfile(text string) model.Profile {
	out := model.Profile{}
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return out
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(path, data, 0o600)
}
