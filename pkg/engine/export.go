package engine

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format is a log export format.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"

	textTimeFormat = "2006-01-02 15:04:05"
)

var (
	// ErrUnknownFormat is returned for an unsupported export format.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrExport wraps failures while writing an export.
	ErrExport = errors.New("export logs")

	// AllFormats contains every supported [Format].
	AllFormats = []Format{FormatText, FormatJSON, FormatCSV}

	csvHeader = []string{"Timestamp", "Level", "Message", "Rule", "File", "Action"}
)

// ParseFormat parses a format name. "text" is accepted for [FormatText].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath infers the format from the file extension, falling back to
// [FormatText].
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatText
	}

	return f
}

// ExportLogs writes the current entries to path in the given format.
func (e *Engine) ExportLogs(path string, format Format) error {
	var buf bytes.Buffer

	err := WriteLogs(&buf, e.Logs(), format)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, buf.Bytes(), 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	return nil
}

// WriteLogs encodes entries to w.
//
//   - Text: one "[YYYY-MM-DD HH:MM:SS] [LEVEL] message" line per entry.
//   - JSON: an array of entry objects, indented by two spaces.
//   - CSV: a header row, then one row per entry.
func WriteLogs(w io.Writer, entries []LogEntry, format Format) error {
	var err error

	switch format {
	case FormatText:
		err = writeText(w, entries)
	case FormatJSON:
		err = writeJSON(w, entries)
	case FormatCSV:
		err = writeCSV(w, entries)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExport, format, err)
	}

	return nil
}

// textEscaper keeps each text entry on one line.
var textEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`)

func writeText(w io.Writer, entries []LogEntry) error {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] [%s] %s",
			e.Timestamp.Format(textTimeFormat), e.Level.Upper(), textEscaper.Replace(e.Message)))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func writeJSON(w io.Writer, entries []LogEntry) error {
	if entries == nil {
		entries = []LogEntry{}
	}

	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	_, err = w.Write(b)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)

	err := cw.Write(csvHeader)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range entries {
		err = cw.Write([]string{
			e.Timestamp.Format(time.RFC3339Nano),
			string(e.Level),
			e.Message,
			e.RuleName,
			e.FilePath,
			e.ActionName,
		})
		if err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()

	err = cw.Error()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}
