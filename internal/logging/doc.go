// Package logging provides structured logging for mandali runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs that land
// next to the other run artifacts, so a finished workspace carries its own
// diagnostic record. It is designed to help troubleshoot autonomous team
// runs by providing structured, filterable logs that can be analyzed after
// the fact.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (worker id, round, component)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//   - Log aggregation and filtering utilities
//   - Export to JSON, text, or CSV formats
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. The
// [RotatingWriter] type uses a mutex to protect file operations during
// rotation. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger for a workspace's artifacts directory:
//
//	logger, err := logging.NewLogger(ws.ArtifactsDir(), "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	// Log messages at various levels
//	logger.Debug("detailed info", "key", "value")
//	logger.Info("operation completed", "duration_ms", 150)
//	logger.Warn("potential issue", "threshold", 100)
//	logger.Error("operation failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	// Add worker context
//	workerLogger := logger.WithWorker("dev")
//
//	// Add round context
//	roundLogger := workerLogger.WithRound(2)
//
//	// Add component context
//	stallLogger := roundLogger.WithComponent("stall")
//
//	// All logs from stallLogger will include worker_id, round, and component
//	stallLogger.Info("nudge sent", "nudges", 1)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"nudge sent","worker_id":"dev","round":2,"component":"stall","nudges":1}
//
// # Log Rotation
//
// For long-running teams, use log rotation to prevent unbounded growth:
//
//	config := logging.RotationConfig{
//	    MaxSizeMB:  10,    // Rotate when file exceeds 10MB
//	    MaxBackups: 3,     // Keep 3 backup files
//	    Compress:   true,  // Gzip compress rotated files
//	}
//
//	logger, err := logging.NewLoggerWithRotation(ws.ArtifactsDir(), "INFO", config)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// Rotated files are named: mandali.log.1, mandali.log.2, etc., where .1 is
// the most recent backup. When compression is enabled, rotated files become
// mandali.log.1.gz, etc.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output:
//
//	func TestSomething(t *testing.T) {
//	    logger := logging.NopLogger()
//	    // Use logger in tests without creating files
//	}
//
// # Log Aggregation and Filtering
//
// Read and analyze logs after a run. Aggregation picks up rotated backups
// automatically:
//
//	// Load all logs from a run
//	entries, err := logging.AggregateLogs(ws.ArtifactsDir())
//	if err != nil {
//	    return err
//	}
//
//	// Filter logs by various criteria
//	filter := logging.LogFilter{
//	    Level:     "WARN",   // Minimum level
//	    WorkerID:  "dev",    // Specific worker
//	    Component: "stall",  // Specific component
//	    StartTime: time.Now().Add(-1 * time.Hour),  // Last hour
//	}
//	filtered := logging.FilterLogs(entries, filter)
//
//	// Export to various formats
//	logging.ExportLogEntries(filtered, "errors.json", "json")
//	logging.ExportLogEntries(filtered, "errors.txt", "text")
//	logging.ExportLogEntries(filtered, "errors.csv", "csv")
//
// # Log Levels
//
// The package defines four log levels:
//
//   - [LevelDebug]: Detailed information for debugging
//   - [LevelInfo]: General operational information (default)
//   - [LevelWarn]: Warning conditions that may need attention
//   - [LevelError]: Error conditions that affect functionality
//
// Use [ParseLevel] to normalize user-provided level strings.
package logging
