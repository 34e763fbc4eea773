package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrEmptyPath is returned by Load and Save when no path is given.
var ErrEmptyPath = errors.New("config path is empty")

// Default model used when the config does not name one.
const DefaultModel = "gemini-2.0-flash"

// ICSConfig describes a single external calendar that can be imported.
type ICSConfig struct {
	// URL is the ICS endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// GeminiConfig selects the hosted model.
type GeminiConfig struct {
	// APIKey may reference the environment, e.g. "${GEMINI_API_KEY}". When
	// empty the GEMINI_API_KEY variable is consulted at client creation.
	APIKey string `yaml:"api_key" json:"-"`
	Model  string `yaml:"model" json:"model"`
	// RequestTimeout bounds a single generateContent call. Zero leaves the
	// SDK default in place.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RecurringConfig controls recurring event expansion.
type RecurringConfig struct {
	// DefaultCount is used when add_event omits recurring.count.
	DefaultCount int `yaml:"default_count" json:"default_count"`
	// MaxCount caps the occurrences materialized per weekday.
	MaxCount int `yaml:"max_count" json:"max_count"`
}

// SnapshotConfig controls the PNG rendering of the calendar page.
type SnapshotConfig struct {
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// DataDir holds schedule.json, user_profile.json and caches.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// ScheduleFile and ProfileFile are resolved relative to DataDir unless
	// absolute.
	ScheduleFile string `yaml:"schedule_file" json:"schedule_file"`
	ProfileFile  string `yaml:"profile_file" json:"profile_file"`

	// Timezone is the IANA timezone used to decide what "today" is.
	// Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls the first weekday of the calendar page:
	// "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Listen is the HTTP listen address for `calmate serve`.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for the serve-mode refresh job.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead ICS imports expand recurrences.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Gemini    GeminiConfig    `yaml:"gemini" json:"gemini"`
	Recurring RecurringConfig `yaml:"recurring" json:"recurring"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" json:"snapshot"`

	// ICS is the list of external calendars known to import-ics.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultDataDir returns ~/.local/share/calmate, or ./calmate-data when the
// home directory cannot be determined.
func DefaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "calmate")
	}
	return "./calmate-data"
}

// DefaultPath returns the config location used when --config is not given.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "calmate", "config.yaml")
	}
	return "config.yaml"
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      DefaultDataDir(),
		ScheduleFile: "schedule.json",
		ProfileFile:  "user_profile.json",
		WeekStart:    "monday",
		Listen:       "127.0.0.1:8080",
		RefreshCron:  "*/15 * * * *",
		HorizonDays:  30,
		LogLevel:     "info",
		Gemini: GeminiConfig{
			APIKey: "${GEMINI_API_KEY}",
			Model:  DefaultModel,
		},
		Recurring: RecurringConfig{
			DefaultCount: 4,
			MaxCount:     520,
		},
		Snapshot: SnapshotConfig{
			Output: "preview.png",
			Width:  984,
			Height: 1304,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.ScheduleFile == "" {
		c.ScheduleFile = def.ScheduleFile
	}
	if c.ProfileFile == "" {
		c.ProfileFile = def.ProfileFile
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = def.Gemini.Model
	}
	if c.Gemini.RequestTimeout < 0 {
		c.Gemini.RequestTimeout = 0
	}
	if c.Recurring.DefaultCount <= 0 {
		c.Recurring.DefaultCount = def.Recurring.DefaultCount
	}
	if c.Recurring.MaxCount <= 0 {
		c.Recurring.MaxCount = def.Recurring.MaxCount
	}
	if c.Snapshot.Output == "" {
		c.Snapshot.Output = def.Snapshot.Output
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = def.Snapshot.Width
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = def.Snapshot.Height
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// SchedulePath returns the absolute-or-relative path of schedule.json.
func (c *Config) SchedulePath() string {
	return c.resolve(c.ScheduleFile)
}

// ProfilePath returns the path of user_profile.json.
func (c *Config) ProfilePath() string {
	return c.resolve(c.ProfileFile)
}

// SnapshotPath returns where the calendar PNG is written.
func (c *Config) SnapshotPath() string {
	return c.resolve(c.Snapshot.Output)
}

// CacheDir is where fetched ICS feeds are cached.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "ics-cache")
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Location returns the configured timezone, or time.Local when it is empty
// or cannot be loaded.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms (creating parent dirs)
//   - return the default config
//   - If the file exists:
//   - expand ${VAR} references from the environment
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment references are expanded on the returned value only; the file
// on disk keeps the placeholders.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return expandEnv(cfg), err
			}
			return expandEnv(cfg), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

func expandEnv(cfg *Config) *Config {
	out := *cfg
	out.Gemini.APIKey = os.ExpandEnv(cfg.Gemini.APIKey)
	return &out
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// over path. Parent directories are created with 0700.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calmate-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
