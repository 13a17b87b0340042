package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "stall.timeout_minutes",
		Value:   0,
		Message: "must be at least 1 minute",
	}

	got := err.Error()
	if !strings.Contains(got, "stall.timeout_minutes") {
		t.Errorf("Error() = %q, should contain field name", got)
	}
	if !strings.Contains(got, "must be at least 1 minute") {
		t.Errorf("Error() = %q, should contain message", got)
	}
	if !strings.Contains(got, "0") {
		t.Errorf("Error() = %q, should contain the invalid value", got)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("empty ValidationErrors.Error() = %q, want empty", errs.Error())
		}
	})

	t.Run("single", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "stall.max_nudges", Value: -1, Message: "must be non-negative (0 escalates immediately)"},
		}
		got := errs.Error()
		if strings.Contains(got, "validation errors") {
			t.Errorf("single error should not use the multi-error header, got %q", got)
		}
		if !strings.Contains(got, "stall.max_nudges") {
			t.Errorf("Error() = %q, should contain field name", got)
		}
	})

	t.Run("multiple", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "stall.max_nudges", Value: -1, Message: "must be non-negative (0 escalates immediately)"},
			{Field: "logging.level", Value: "loud", Message: "must be one of: debug, info, warn, error"},
		}
		got := errs.Error()
		if !strings.Contains(got, "2 validation errors") {
			t.Errorf("Error() = %q, should contain error count", got)
		}
		if !strings.Contains(got, "stall.max_nudges") || !strings.Contains(got, "logging.level") {
			t.Errorf("Error() = %q, should contain both field names", got)
		}
	})
}

func TestValidate_Runtime(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid backend",
			mutate:  func(c *Config) { c.Runtime.Backend = "gemini" },
			wantErr: "runtime.backend",
		},
		{
			name:    "empty worker model",
			mutate:  func(c *Config) { c.Runtime.WorkerModel = "" },
			wantErr: "runtime.worker_model",
		},
		{
			name:    "zero connect attempts",
			mutate:  func(c *Config) { c.Runtime.ConnectAttempts = 0 },
			wantErr: "runtime.connect_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.wantErr) {
				t.Errorf("Validate() errors = %v, want error on field %q", errs, tt.wantErr)
			}
		})
	}
}

func TestValidate_Supervision(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "poll interval too small",
			mutate:  func(c *Config) { c.Supervision.PollIntervalSeconds = 0 },
			wantErr: "supervision.poll_interval_seconds",
		},
		{
			name:    "poll interval too large",
			mutate:  func(c *Config) { c.Supervision.PollIntervalSeconds = 301 },
			wantErr: "supervision.poll_interval_seconds",
		},
		{
			name:    "negative stagger",
			mutate:  func(c *Config) { c.Supervision.LaunchStaggerSeconds = -1 },
			wantErr: "supervision.launch_stagger_seconds",
		},
		{
			name:    "zero recent messages",
			mutate:  func(c *Config) { c.Supervision.RecentMessages = 0 },
			wantErr: "supervision.recent_messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.wantErr) {
				t.Errorf("Validate() errors = %v, want error on field %q", errs, tt.wantErr)
			}
		})
	}
}

func TestValidate_StallAndReconcile(t *testing.T) {
	t.Run("zero stall timeout rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Stall.TimeoutMinutes = 0
		if !hasFieldError(cfg.Validate(), "stall.timeout_minutes") {
			t.Error("expected error on stall.timeout_minutes")
		}
	})

	t.Run("zero nudges allowed", func(t *testing.T) {
		cfg := Default()
		cfg.Stall.MaxNudges = 0
		if hasFieldError(cfg.Validate(), "stall.max_nudges") {
			t.Error("zero nudges should be valid (escalate immediately)")
		}
	})

	t.Run("negative nudges rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Stall.MaxNudges = -1
		if !hasFieldError(cfg.Validate(), "stall.max_nudges") {
			t.Error("expected error on stall.max_nudges")
		}
	})

	t.Run("zero cooldown rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Reconcile.CooldownMinutes = 0
		if !hasFieldError(cfg.Validate(), "reconcile.cooldown_minutes") {
			t.Error("expected error on reconcile.cooldown_minutes")
		}
	})
}

func TestValidate_Verification(t *testing.T) {
	t.Run("zero rounds allowed", func(t *testing.T) {
		cfg := Default()
		cfg.Verification.MaxRounds = 0
		if hasFieldError(cfg.Validate(), "verification.max_rounds") {
			t.Error("zero rounds should be valid (verification disabled)")
		}
	})

	t.Run("negative rounds rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Verification.MaxRounds = -1
		if !hasFieldError(cfg.Validate(), "verification.max_rounds") {
			t.Error("expected error on verification.max_rounds")
		}
	})

	t.Run("excessive rounds rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Verification.MaxRounds = 51
		if !hasFieldError(cfg.Validate(), "verification.max_rounds") {
			t.Error("expected error on verification.max_rounds")
		}
	})
}

func TestValidate_Team(t *testing.T) {
	t.Run("zero cap rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Team.MaxSynthesized = 0
		if !hasFieldError(cfg.Validate(), "team.max_synthesized") {
			t.Error("expected error on team.max_synthesized")
		}
	})

	t.Run("oversized cap rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Team.MaxSynthesized = 13
		if !hasFieldError(cfg.Validate(), "team.max_synthesized") {
			t.Error("expected error on team.max_synthesized")
		}
	})

	t.Run("null byte in roster file rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Team.RosterFile = "bad\x00path.yaml"
		if !hasFieldError(cfg.Validate(), "team.roster_file") {
			t.Error("expected error on team.roster_file")
		}
	})
}

func TestValidate_Logging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "loud"
	if !hasFieldError(cfg.Validate(), "logging.level") {
		t.Error("expected error on logging.level")
	}
}

// hasFieldError reports whether any validation error targets the given field
func hasFieldError(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
