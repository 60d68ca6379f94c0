package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a [LogEntry].
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// AllLevels contains every valid [Level], from least to most severe.
var AllLevels = []Level{LevelDebug, LevelInfo, LevelSuccess, LevelWarning, LevelError}

// ParseLevel parses a level name, case-insensitively. "warn" is accepted as
// an alias for [LevelWarning].
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l == "warn" {
		return LevelWarning, nil
	}
	if !slices.Contains(AllLevels, l) {
		return "", fmt.Errorf("unknown level %q", s)
	}

	return l, nil
}

// Upper returns the level name in upper case, as used in text exports.
func (l Level) Upper() string {
	return strings.ToUpper(string(l))
}

// Slog maps the level onto a [slog.Level]. Success maps to info.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is a single message produced during a run.
type LogEntry struct {
	Timestamp  time.Time
	Level      Level
	Message    string
	RuleName   string
	FilePath   string
	ActionName string
}

//nolint:govet // Field order is the output order.
type jsonEntry struct {
	Timestamp  string  `json:"timestamp"`
	Level      Level   `json:"level"`
	Message    string  `json:"message"`
	RuleName   *string `json:"rule_name"`
	FilePath   *string `json:"file_path"`
	ActionName *string `json:"action_name"`
}

// MarshalJSON encodes the entry with an ISO-8601 timestamp. Missing context
// fields are encoded as null.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(jsonEntry{
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		Level:      e.Level,
		Message:    e.Message,
		RuleName:   optional(e.RuleName),
		FilePath:   optional(e.FilePath),
		ActionName: optional(e.ActionName),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal log entry: %w", err)
	}

	return b, nil
}

// UnmarshalJSON decodes an entry written by [LogEntry.MarshalJSON].
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var je jsonEntry

	err := json.Unmarshal(data, &je)
	if err != nil {
		return fmt.Errorf("unmarshal log entry: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, je.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}

	*e = LogEntry{
		Timestamp:  ts,
		Level:      je.Level,
		Message:    je.Message,
		RuleName:   deref(je.RuleName),
		FilePath:   deref(je.FilePath),
		ActionName: deref(je.ActionName),
	}

	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// Result aggregates a single run.
//
// Counters are a running tally while the run is active. Once the run ends,
// EndTime is set, Logs holds a frozen copy of every entry, and the result no
// longer changes.
type Result struct {
	StartTime    time.Time
	EndTime      time.Time
	Logs         []LogEntry
	SuccessCount int
	ErrorCount   int
	SkippedCount int
	RunID        uuid.UUID
}

// Duration returns the time between StartTime and EndTime, or zero if the run
// has not finished.
func (r Result) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}

	return r.EndTime.Sub(r.StartTime)
}

// TotalProcessed returns the sum of all counters.
func (r Result) TotalProcessed() int {
	return r.SuccessCount + r.ErrorCount + r.SkippedCount
}

// Finished reports whether the result has been finalized.
func (r Result) Finished() bool {
	return !r.EndTime.IsZero()
}

func (r Result) clone() Result {
	r.Logs = slices.Clone(r.Logs)

	return r
}
