package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Mandali configuration
type Config struct {
	Runtime      RuntimeConfig      `mapstructure:"runtime"`
	Supervision  SupervisionConfig  `mapstructure:"supervision"`
	Stall        StallConfig        `mapstructure:"stall"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	Verification VerificationConfig `mapstructure:"verification"`
	Team         TeamConfig         `mapstructure:"team"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// RuntimeConfig controls how agent sessions are created and which models they use
type RuntimeConfig struct {
	// Backend selects the session backend (currently only "claude")
	Backend string `mapstructure:"backend"`
	// Binary is the executable used by the claude backend (default: "claude")
	Binary string `mapstructure:"binary"`
	// WorkerModel is the model id used for team worker sessions
	WorkerModel string `mapstructure:"worker_model"`
	// AuditorModel is the model id used for verification sessions.
	// Empty means use WorkerModel.
	AuditorModel string `mapstructure:"auditor_model"`
	// ConnectAttempts is how many times to retry connecting a session before
	// giving up (each attempt waits attempt*5s)
	ConnectAttempts int `mapstructure:"connect_attempts"`
}

// SupervisionConfig controls the per-worker poll loop and launch sequencing
type SupervisionConfig struct {
	// PollIntervalSeconds is how often each worker checks the conversation for
	// new messages
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// LaunchStaggerSeconds is the delay between consecutive worker launches
	LaunchStaggerSeconds int `mapstructure:"launch_stagger_seconds"`
	// DisplayIntervalSeconds is how often the status display refreshes
	DisplayIntervalSeconds int `mapstructure:"display_interval_seconds"`
	// RecentMessages is how many trailing messages the status display shows
	RecentMessages int `mapstructure:"recent_messages"`
}

// StallConfig controls stall detection, nudging, and human escalation
type StallConfig struct {
	// TimeoutMinutes is the inactivity window before the team is nudged
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// MaxNudges is how many nudges are sent before escalating to the human
	MaxNudges int `mapstructure:"max_nudges"`
	// GraceMinutes is how long to wait for in-flight replies after announcing
	// an escalation before prompting the human
	GraceMinutes int `mapstructure:"grace_minutes"`
}

// ReconcileConfig controls proactive status reconciliation of quiet workers
type ReconcileConfig struct {
	// CooldownMinutes is the minimum spacing between reconciliation sweeps
	CooldownMinutes int `mapstructure:"cooldown_minutes"`
	// MinRuntimeMinutes is how long the team must have been running before
	// activity-based reconciliation triggers
	MinRuntimeMinutes int `mapstructure:"min_runtime_minutes"`
}

// VerificationConfig controls the bounded verification/relaunch loop
type VerificationConfig struct {
	// MaxRounds limits implementation rounds (0 disables verification entirely,
	// consensus alone ends the run)
	MaxRounds int `mapstructure:"max_rounds"`
	// TimeoutMinutes bounds a single verification session; on timeout the
	// round passes rather than blocking the team forever
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// TeamConfig controls roster assembly
type TeamConfig struct {
	// RosterFile is an optional YAML file overriding the built-in personas
	RosterFile string `mapstructure:"roster_file"`
	// PersonasDir is an optional directory of <id>.persona.md files that
	// override individual built-in persona prompts
	PersonasDir string `mapstructure:"personas_dir"`
	// MaxSynthesized caps how many workers a generated team may contain
	MaxSynthesized int `mapstructure:"max_synthesized"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether the run log is written (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
}

// PollInterval returns the worker poll interval as a time.Duration
func (c *SupervisionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LaunchStagger returns the delay between worker launches as a time.Duration
func (c *SupervisionConfig) LaunchStagger() time.Duration {
	return time.Duration(c.LaunchStaggerSeconds) * time.Second
}

// DisplayInterval returns the status display refresh cadence as a time.Duration
func (c *SupervisionConfig) DisplayInterval() time.Duration {
	return time.Duration(c.DisplayIntervalSeconds) * time.Second
}

// Timeout returns the stall inactivity window as a time.Duration
func (c *StallConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// Grace returns the escalation grace window as a time.Duration
func (c *StallConfig) Grace() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

// Cooldown returns the reconciliation cooldown as a time.Duration
func (c *ReconcileConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// MinRuntime returns the minimum team runtime before activity-based
// reconciliation as a time.Duration
func (c *ReconcileConfig) MinRuntime() time.Duration {
	return time.Duration(c.MinRuntimeMinutes) * time.Minute
}

// Timeout returns the verification session timeout as a time.Duration
func (c *VerificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// AuditorModelOrDefault returns the auditor model, falling back to the worker
// model when unset
func (c *RuntimeConfig) AuditorModelOrDefault() string {
	if c.AuditorModel != "" {
		return c.AuditorModel
	}
	return c.WorkerModel
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Backend:         "claude",
			Binary:          "claude",
			WorkerModel:     "claude-sonnet-4",
			AuditorModel:    "", // Empty means use worker_model
			ConnectAttempts: 3,
		},
		Supervision: SupervisionConfig{
			PollIntervalSeconds:    10,
			LaunchStaggerSeconds:   2,
			DisplayIntervalSeconds: 30,
			RecentMessages:         8,
		},
		Stall: StallConfig{
			TimeoutMinutes: 5,
			MaxNudges:      3,
			GraceMinutes:   2,
		},
		Reconcile: ReconcileConfig{
			CooldownMinutes:   5,
			MinRuntimeMinutes: 10,
		},
		Verification: VerificationConfig{
			MaxRounds:      5,
			TimeoutMinutes: 5,
		},
		Team: TeamConfig{
			RosterFile:     "", // Empty means use the built-in personas
			PersonasDir:    "",
			MaxSynthesized: 6,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Runtime defaults
	viper.SetDefault("runtime.backend", defaults.Runtime.Backend)
	viper.SetDefault("runtime.binary", defaults.Runtime.Binary)
	viper.SetDefault("runtime.worker_model", defaults.Runtime.WorkerModel)
	viper.SetDefault("runtime.auditor_model", defaults.Runtime.AuditorModel)
	viper.SetDefault("runtime.connect_attempts", defaults.Runtime.ConnectAttempts)

	// Supervision defaults
	viper.SetDefault("supervision.poll_interval_seconds", defaults.Supervision.PollIntervalSeconds)
	viper.SetDefault("supervision.launch_stagger_seconds", defaults.Supervision.LaunchStaggerSeconds)
	viper.SetDefault("supervision.display_interval_seconds", defaults.Supervision.DisplayIntervalSeconds)
	viper.SetDefault("supervision.recent_messages", defaults.Supervision.RecentMessages)

	// Stall defaults
	viper.SetDefault("stall.timeout_minutes", defaults.Stall.TimeoutMinutes)
	viper.SetDefault("stall.max_nudges", defaults.Stall.MaxNudges)
	viper.SetDefault("stall.grace_minutes", defaults.Stall.GraceMinutes)

	// Reconcile defaults
	viper.SetDefault("reconcile.cooldown_minutes", defaults.Reconcile.CooldownMinutes)
	viper.SetDefault("reconcile.min_runtime_minutes", defaults.Reconcile.MinRuntimeMinutes)

	// Verification defaults
	viper.SetDefault("verification.max_rounds", defaults.Verification.MaxRounds)
	viper.SetDefault("verification.timeout_minutes", defaults.Verification.TimeoutMinutes)

	// Team defaults
	viper.SetDefault("team.roster_file", defaults.Team.RosterFile)
	viper.SetDefault("team.personas_dir", defaults.Team.PersonasDir)
	viper.SetDefault("team.max_synthesized", defaults.Team.MaxSynthesized)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mandali")
	}
	// Fall back to ~/.config/mandali
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mandali"
	}
	return filepath.Join(home, ".config", "mandali")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid runtime backend values
func ValidBackends() []string {
	return []string{"claude"}
}

// IsValidBackend checks if the given backend is valid
func IsValidBackend(backend string) bool {
	for _, valid := range ValidBackends() {
		if backend == valid {
			return true
		}
	}
	return false
}
