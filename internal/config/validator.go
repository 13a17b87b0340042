package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "stall.timeout_minutes")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Runtime config
	errors = append(errors, c.validateRuntime()...)

	// Validate Supervision config
	errors = append(errors, c.validateSupervision()...)

	// Validate Stall config
	errors = append(errors, c.validateStall()...)

	// Validate Reconcile config
	errors = append(errors, c.validateReconcile()...)

	// Validate Verification config
	errors = append(errors, c.validateVerification()...)

	// Validate Team config
	errors = append(errors, c.validateTeam()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateRuntime validates the RuntimeConfig
func (c *Config) validateRuntime() []ValidationError {
	var errors []ValidationError

	if c.Runtime.Backend != "" && !IsValidBackend(c.Runtime.Backend) {
		errors = append(errors, ValidationError{
			Field:   "runtime.backend",
			Value:   c.Runtime.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if c.Runtime.WorkerModel == "" {
		errors = append(errors, ValidationError{
			Field:   "runtime.worker_model",
			Value:   c.Runtime.WorkerModel,
			Message: "cannot be empty",
		})
	}

	if c.Runtime.ConnectAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "runtime.connect_attempts",
			Value:   c.Runtime.ConnectAttempts,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateSupervision validates the SupervisionConfig
func (c *Config) validateSupervision() []ValidationError {
	var errors []ValidationError

	// Poll interval bounds
	const minPollSeconds = 1
	const maxPollSeconds = 300

	if c.Supervision.PollIntervalSeconds < minPollSeconds {
		errors = append(errors, ValidationError{
			Field:   "supervision.poll_interval_seconds",
			Value:   c.Supervision.PollIntervalSeconds,
			Message: fmt.Sprintf("must be at least %d second(s)", minPollSeconds),
		})
	}
	if c.Supervision.PollIntervalSeconds > maxPollSeconds {
		errors = append(errors, ValidationError{
			Field:   "supervision.poll_interval_seconds",
			Value:   c.Supervision.PollIntervalSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxPollSeconds),
		})
	}

	// Stagger may be zero (launch all at once) but not negative
	if c.Supervision.LaunchStaggerSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "supervision.launch_stagger_seconds",
			Value:   c.Supervision.LaunchStaggerSeconds,
			Message: "must be non-negative",
		})
	}

	if c.Supervision.DisplayIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "supervision.display_interval_seconds",
			Value:   c.Supervision.DisplayIntervalSeconds,
			Message: "must be at least 1 second",
		})
	}

	if c.Supervision.RecentMessages < 1 {
		errors = append(errors, ValidationError{
			Field:   "supervision.recent_messages",
			Value:   c.Supervision.RecentMessages,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateStall validates the StallConfig
func (c *Config) validateStall() []ValidationError {
	var errors []ValidationError

	if c.Stall.TimeoutMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "stall.timeout_minutes",
			Value:   c.Stall.TimeoutMinutes,
			Message: "must be at least 1 minute",
		})
	}

	if c.Stall.MaxNudges < 0 {
		errors = append(errors, ValidationError{
			Field:   "stall.max_nudges",
			Value:   c.Stall.MaxNudges,
			Message: "must be non-negative (0 escalates immediately)",
		})
	}

	if c.Stall.GraceMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "stall.grace_minutes",
			Value:   c.Stall.GraceMinutes,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateReconcile validates the ReconcileConfig
func (c *Config) validateReconcile() []ValidationError {
	var errors []ValidationError

	if c.Reconcile.CooldownMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconcile.cooldown_minutes",
			Value:   c.Reconcile.CooldownMinutes,
			Message: "must be at least 1 minute",
		})
	}

	if c.Reconcile.MinRuntimeMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "reconcile.min_runtime_minutes",
			Value:   c.Reconcile.MinRuntimeMinutes,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateVerification validates the VerificationConfig
func (c *Config) validateVerification() []ValidationError {
	var errors []ValidationError

	// MaxRounds must be non-negative (0 disables verification)
	if c.Verification.MaxRounds < 0 {
		errors = append(errors, ValidationError{
			Field:   "verification.max_rounds",
			Value:   c.Verification.MaxRounds,
			Message: "must be non-negative (0 disables verification)",
		})
	}

	const maxRoundsLimit = 50
	if c.Verification.MaxRounds > maxRoundsLimit {
		errors = append(errors, ValidationError{
			Field:   "verification.max_rounds",
			Value:   c.Verification.MaxRounds,
			Message: fmt.Sprintf("exceeds maximum of %d", maxRoundsLimit),
		})
	}

	if c.Verification.TimeoutMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "verification.timeout_minutes",
			Value:   c.Verification.TimeoutMinutes,
			Message: "must be at least 1 minute",
		})
	}

	return errors
}

// validateTeam validates the TeamConfig
func (c *Config) validateTeam() []ValidationError {
	var errors []ValidationError

	if c.Team.MaxSynthesized < 1 {
		errors = append(errors, ValidationError{
			Field:   "team.max_synthesized",
			Value:   c.Team.MaxSynthesized,
			Message: "must be at least 1",
		})
	}

	const maxTeamSize = 12
	if c.Team.MaxSynthesized > maxTeamSize {
		errors = append(errors, ValidationError{
			Field:   "team.max_synthesized",
			Value:   c.Team.MaxSynthesized,
			Message: fmt.Sprintf("exceeds maximum of %d", maxTeamSize),
		})
	}

	// RosterFile validation: if set, check for invalid characters
	if c.Team.RosterFile != "" {
		if strings.ContainsRune(c.Team.RosterFile, '\x00') {
			errors = append(errors, ValidationError{
				Field:   "team.roster_file",
				Value:   c.Team.RosterFile,
				Message: "path contains invalid null character",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
