// Package logging provides structured logging for mandali runs.
// This file contains utilities for aggregating and exporting logs
// for post-run debugging and analysis.
package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LogEntry represents a parsed log entry with all structured fields.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Round     int            `json:"round,omitempty"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter defines criteria for filtering log entries.
type LogFilter struct {
	// Level filters to entries at or above this level (DEBUG < INFO < WARN < ERROR)
	// Empty string means no level filtering.
	Level string

	// StartTime filters to entries at or after this time.
	// Zero value means no start time filtering.
	StartTime time.Time

	// EndTime filters to entries at or before this time.
	// Zero value means no end time filtering.
	EndTime time.Time

	// WorkerID filters to entries from this specific worker.
	// Empty string means no worker filtering.
	WorkerID string

	// Round filters to entries from this specific round.
	// Zero means no round filtering (rounds are 1-based).
	Round int

	// Component filters to entries from this specific component.
	// Empty string means no component filtering.
	Component string

	// MessageContains filters to entries whose message contains this substring.
	// Empty string means no message filtering.
	MessageContains string
}

// levelOrder defines the ordering of log levels for filtering.
var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// AggregateLogs reads and parses all log entries from a run's artifacts
// directory. It reads the mandali.log file plus any rotated backups
// (mandali.log.1 and up, gzip compressed or not) and parses each line as a
// JSON log entry. Entries are returned sorted by timestamp in ascending order.
func AggregateLogs(artifactsDir string) ([]LogEntry, error) {
	logPath := filepath.Join(artifactsDir, LogFileName)

	paths := backupLogPaths(logPath)
	paths = append(paths, logPath)

	var entries []LogEntry
	found := false
	for _, path := range paths {
		fileEntries, err := readEntriesFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		found = true
		entries = append(entries, fileEntries...)
	}

	if !found {
		return nil, fmt.Errorf("no log file found in artifacts directory %s", artifactsDir)
	}

	// Sort entries by timestamp
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return entries, nil
}

// backupLogPaths lists rotated backups for logPath, oldest first. Backups
// are numbered .1 (newest) and up, with an optional .gz suffix.
func backupLogPaths(logPath string) []string {
	var paths []string
	for n := 1; ; n++ {
		numbered := fmt.Sprintf("%s.%d", logPath, n)
		if _, err := os.Stat(numbered); err == nil {
			paths = append(paths, numbered)
			continue
		}
		if _, err := os.Stat(numbered + ".gz"); err == nil {
			paths = append(paths, numbered+".gz")
			continue
		}
		break
	}
	// Oldest backup carries the highest number
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}

// readEntriesFile parses one log file, decompressing gzip backups
// transparently. Unparseable lines are skipped so a partially corrupted
// log still yields the entries around the corruption.
func readEntriesFile(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed log %s: %w", path, err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(reader)

	// Increase buffer size for potentially long log lines
	const maxScanTokenSize = 1024 * 1024 // 1MB
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := ParseEntry(line)
		if err != nil {
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file %s: %w", path, err)
	}

	return entries, nil
}

// ParseEntry parses a single JSON log line into a LogEntry.
func ParseEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{
		Attrs: make(map[string]any),
	}

	// Extract standard fields
	if timeStr, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, timeStr); err == nil {
			entry.Timestamp = t
		}
	}

	if level, ok := raw["level"].(string); ok {
		entry.Level = level
	}

	if msg, ok := raw["msg"].(string); ok {
		entry.Message = msg
	}

	if workerID, ok := raw["worker_id"].(string); ok {
		entry.WorkerID = workerID
	}

	if round, ok := raw["round"].(float64); ok {
		entry.Round = int(round)
	}

	if component, ok := raw["component"].(string); ok {
		entry.Component = component
	}

	// Collect remaining fields as attrs
	standardFields := map[string]bool{
		"time":      true,
		"level":     true,
		"msg":       true,
		"worker_id": true,
		"round":     true,
		"component": true,
	}

	for k, v := range raw {
		if !standardFields[k] {
			entry.Attrs[k] = v
		}
	}

	return entry, nil
}

// FilterLogs filters log entries based on the provided filter criteria.
// Multiple filter criteria are combined with AND logic.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if isEmptyFilter(filter) {
		return entries
	}

	var filtered []LogEntry
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			filtered = append(filtered, entry)
		}
	}

	return filtered
}

// Matches reports whether a single entry passes the filter.
func (f LogFilter) Matches(entry LogEntry) bool {
	return matchesFilter(entry, f)
}

// isEmptyFilter checks if no filter criteria are set.
func isEmptyFilter(f LogFilter) bool {
	return f.Level == "" &&
		f.StartTime.IsZero() &&
		f.EndTime.IsZero() &&
		f.WorkerID == "" &&
		f.Round == 0 &&
		f.Component == "" &&
		f.MessageContains == ""
}

// matchesFilter checks if an entry matches all filter criteria.
func matchesFilter(entry LogEntry, filter LogFilter) bool {
	// Level filter: entry level must be >= filter level
	if filter.Level != "" {
		filterLevelOrder, filterOk := levelOrder[strings.ToUpper(filter.Level)]
		entryLevelOrder, entryOk := levelOrder[entry.Level]
		if filterOk && entryOk && entryLevelOrder < filterLevelOrder {
			return false
		}
	}

	// Time range filters
	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}

	// Worker ID filter
	if filter.WorkerID != "" && entry.WorkerID != filter.WorkerID {
		return false
	}

	// Round filter
	if filter.Round > 0 && entry.Round != filter.Round {
		return false
	}

	// Component filter
	if filter.Component != "" && entry.Component != filter.Component {
		return false
	}

	// Message contains filter
	if filter.MessageContains != "" && !strings.Contains(entry.Message, filter.MessageContains) {
		return false
	}

	return true
}

// ExportLogs exports log entries to a file in the specified format.
// Supported formats: "json", "text", "csv".
func ExportLogs(artifactsDir, outputPath string, format string) error {
	entries, err := AggregateLogs(artifactsDir)
	if err != nil {
		return fmt.Errorf("failed to aggregate logs: %w", err)
	}

	return ExportLogEntries(entries, outputPath, format)
}

// ExportLogEntries exports the given log entries to a file in the specified format.
// This allows exporting filtered logs that have already been aggregated.
// Supported formats: "json", "text", "csv".
func ExportLogEntries(entries []LogEntry, outputPath string, format string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	switch strings.ToLower(format) {
	case "json":
		return exportJSON(file, entries)
	case "text":
		return exportText(file, entries)
	case "csv":
		return exportCSV(file, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

// exportJSON writes entries as a JSON array.
func exportJSON(file *os.File, entries []LogEntry) error {
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

// exportText writes entries in a human-readable text format.
func exportText(file *os.File, entries []LogEntry) error {
	for _, entry := range entries {
		// Format: [TIMESTAMP] LEVEL - MESSAGE (context) {attrs}
		var parts []string

		// Add timestamp
		ts := entry.Timestamp.Format("2006-01-02 15:04:05.000")
		parts = append(parts, fmt.Sprintf("[%s]", ts))

		// Add level
		parts = append(parts, entry.Level)

		// Add message
		parts = append(parts, "-", entry.Message)

		// Add context fields if present
		var context []string
		if entry.WorkerID != "" {
			context = append(context, fmt.Sprintf("worker=%s", entry.WorkerID))
		}
		if entry.Round > 0 {
			context = append(context, fmt.Sprintf("round=%d", entry.Round))
		}
		if entry.Component != "" {
			context = append(context, fmt.Sprintf("component=%s", entry.Component))
		}
		if len(context) > 0 {
			parts = append(parts, fmt.Sprintf("(%s)", strings.Join(context, ", ")))
		}

		// Add extra attrs if present
		if len(entry.Attrs) > 0 {
			attrsJSON, _ := json.Marshal(entry.Attrs)
			parts = append(parts, string(attrsJSON))
		}

		line := strings.Join(parts, " ") + "\n"
		if _, err := file.WriteString(line); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}

	return nil
}

// exportCSV writes entries as CSV with headers.
func exportCSV(file *os.File, entries []LogEntry) error {
	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	headers := []string{"timestamp", "level", "message", "worker_id", "round", "component", "attrs"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	// Write entries
	for _, entry := range entries {
		attrsJSON := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrsJSON = string(b)
			}
		}

		round := ""
		if entry.Round > 0 {
			round = strconv.Itoa(entry.Round)
		}

		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.WorkerID,
			round,
			entry.Component,
			attrsJSON,
		}

		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	return nil
}
