// Package config loads pitfall's YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pitfall configuration.
type Config struct {
	Name string `yaml:"name"`

	// Rule base selection and hot reload
	Rules RulesConfig `yaml:"rules"`

	// Game server connection
	Game GameConfig `yaml:"game"`

	// Per-tick journal
	Journal JournalConfig `yaml:"journal"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// RulesConfig selects the rule base.
type RulesConfig struct {
	// Path to a rule base file. Empty means the embedded rule base.
	Path string `yaml:"path"`

	// Reset the engine when the file changes.
	Watch    bool   `yaml:"watch"`
	Debounce string `yaml:"debounce"`

	// Keep the rule base's print_cave output.
	PrintMap bool `yaml:"print_map"`
}

// GameConfig configures the game transport and the tick loop.
type GameConfig struct {
	ServerURL   string `yaml:"server_url"`
	AgentName   string `yaml:"agent_name"`
	DialTimeout string `yaml:"dial_timeout"`

	// Decide on a timer as well as on server ticks. Empty or "0" disables it.
	DecisionInterval string `yaml:"decision_interval"`

	// Tell the rule base which action was sent.
	ActFeedback bool `yaml:"act_feedback"`
}

// JournalConfig configures tick journaling.
type JournalConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Database string `yaml:"database"` // relative to Dir
	Compress bool   `yaml:"compress"` // write episode JSONL files with zstd
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "pitfall",

		Rules: RulesConfig{
			Debounce: "250ms",
			PrintMap: true,
		},

		Game: GameConfig{
			ServerURL:   "ws://localhost:8080/agent",
			AgentName:   "pitfall",
			DialTimeout: "10s",
		},

		Journal: JournalConfig{
			Enabled:  true,
			Dir:      "data/journal",
			Database: "journal.db",
			Compress: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PITFALL_RULES"); path != "" {
		c.Rules.Path = path
	}
	if u := os.Getenv("PITFALL_SERVER_URL"); u != "" {
		c.Game.ServerURL = u
	}
	if dir := os.Getenv("PITFALL_JOURNAL_DIR"); dir != "" {
		c.Journal.Dir = dir
	}
	if level := os.Getenv("PITFALL_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

// GetDialTimeout returns the websocket dial timeout.
func (c *Config) GetDialTimeout() time.Duration {
	d, err := time.ParseDuration(c.Game.DialTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetDecisionInterval returns the timer-driven decision period, or 0 when
// decisions are only made on server ticks.
func (c *Config) GetDecisionInterval() time.Duration {
	d, err := time.ParseDuration(c.Game.DecisionInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// GetReloadDebounce returns how long the rule watcher waits for writes to
// settle.
func (c *Config) GetReloadDebounce() time.Duration {
	d, err := time.ParseDuration(c.Rules.Debounce)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// JournalDatabasePath returns the SQLite path, resolved against Journal.Dir.
func (c *Config) JournalDatabasePath() string {
	if filepath.IsAbs(c.Journal.Database) {
		return c.Journal.Database
	}
	return filepath.Join(c.Journal.Dir, c.Journal.Database)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Game.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid game server URL %q: %w", c.Game.ServerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("game server URL must use ws or wss, got %q", c.Game.ServerURL)
	}
	if c.Game.AgentName == "" {
		return fmt.Errorf("game agent name not configured")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("journal enabled but journal.dir is empty")
	}
	if c.Rules.Watch && c.Rules.Path == "" {
		return fmt.Errorf("rules.watch needs rules.path (the embedded rule base cannot change)")
	}

	return nil
}
