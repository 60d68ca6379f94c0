package engine_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/orgz/pkg/engine"
	"github.com/macropower/orgz/pkg/ruleset"
)

var testTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func testEntries() []engine.LogEntry {
	return []engine.LogEntry{
		{Timestamp: testTime, Level: engine.LevelInfo, Message: "Simulating organize rules..."},
		{
			Timestamp:  testTime.Add(time.Second),
			Level:      engine.LevelSuccess,
			Message:    "Moved to /dst, with comma",
			RuleName:   "R1",
			FilePath:   "/src/a.pdf",
			ActionName: "move",
		},
	}
}

func TestWriteLogs(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		format engine.Format
		want   string
	}{
		"text": {
			format: engine.FormatText,
			want: "[2024-05-06 07:08:09] [INFO] Simulating organize rules...\n" +
				"[2024-05-06 07:08:10] [SUCCESS] Moved to /dst, with comma",
		},
		"csv": {
			format: engine.FormatCSV,
			want: "Timestamp,Level,Message,Rule,File,Action\n" +
				"2024-05-06T07:08:09Z,info,Simulating organize rules...,,,\n" +
				"2024-05-06T07:08:10Z,success,\"Moved to /dst, with comma\",R1,/src/a.pdf,move\n",
		},
		"json": {
			format: engine.FormatJSON,
			want: `[
  {
    "timestamp": "2024-05-06T07:08:09Z",
    "level": "info",
    "message": "Simulating organize rules...",
    "rule_name": null,
    "file_path": null,
    "action_name": null
  },
  {
    "timestamp": "2024-05-06T07:08:10Z",
    "level": "success",
    "message": "Moved to /dst, with comma",
    "rule_name": "R1",
    "file_path": "/src/a.pdf",
    "action_name": "move"
  }
]`,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, engine.WriteLogs(&buf, testEntries(), tc.format))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestWriteLogsEmpty(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		format engine.Format
		want   string
	}{
		"text": {format: engine.FormatText, want: ""},
		"json": {format: engine.FormatJSON, want: "[]"},
		"csv":  {format: engine.FormatCSV, want: "Timestamp,Level,Message,Rule,File,Action\n"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, engine.WriteLogs(&buf, nil, tc.format))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestWriteLogsUnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := engine.WriteLogs(&buf, testEntries(), engine.Format("xml"))
	require.ErrorIs(t, err, engine.ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    engine.Format
		wantErr bool
	}{
		"txt":     {input: "txt", want: engine.FormatText},
		"text":    {input: "Text", want: engine.FormatText},
		"json":    {input: "JSON", want: engine.FormatJSON},
		"csv":     {input: " csv ", want: engine.FormatCSV},
		"unknown": {input: "xml", wantErr: true},
		"empty":   {input: "", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := engine.ParseFormat(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, engine.ErrUnknownFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, engine.FormatJSON, engine.FormatFromPath("/tmp/run.json"))
	assert.Equal(t, engine.FormatCSV, engine.FormatFromPath("run.CSV"))
	assert.Equal(t, engine.FormatText, engine.FormatFromPath("run.log"))
	assert.Equal(t, engine.FormatText, engine.FormatFromPath("run"))
}

func TestExportLogs(t *testing.T) {
	t.Parallel()

	interp := engine.InterpreterFunc(func(_ context.Context, _ *ruleset.Ruleset, _ engine.Options, sink engine.Sink) error {
		sink.Emit(engine.Message{Level: engine.LevelInfo, Text: "one"})
		sink.Emit(engine.Message{Level: engine.LevelWarning, Text: "two"})

		return nil
	})

	e := engine.New(interp, engine.WithClock(func() time.Time { return testTime }))
	require.NoError(t, e.Run(t.Context(), testRuleset(), engine.Options{}))
	wait(t, e)

	dir := t.TempDir()

	path := filepath.Join(dir, "run.txt")
	require.NoError(t, e.ExportLogs(path, engine.FormatText))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-06 07:08:09] [INFO] one\n[2024-05-06 07:08:09] [WARNING] two", string(data))

	err = e.ExportLogs(filepath.Join(dir, "missing", "run.txt"), engine.FormatText)
	require.ErrorIs(t, err, engine.ErrExport)
}

func TestLogEntryJSON(t *testing.T) {
	t.Parallel()

	for _, entry := range testEntries() {
		b, err := json.Marshal(entry)
		require.NoError(t, err)

		var got engine.LogEntry
		require.NoError(t, json.Unmarshal(b, &got))
		assert.True(t, entry.Timestamp.Equal(got.Timestamp))

		got.Timestamp = entry.Timestamp
		assert.Equal(t, entry, got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		want    engine.Level
		wantErr bool
	}{
		"debug":   {input: "debug", want: engine.LevelDebug},
		"success": {input: "SUCCESS", want: engine.LevelSuccess},
		"warn":    {input: "warn", want: engine.LevelWarning},
		"unknown": {input: "fatal", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := engine.ParseLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWriteTextMultiline(t *testing.T) {
	t.Parallel()

	entries := []engine.LogEntry{
		{Timestamp: testTime, Level: engine.LevelInfo, Message: "file1\nfile2\r\nfile3"},
		{Timestamp: testTime, Level: engine.LevelError, Message: `C:\tmp\new`},
		{Timestamp: testTime, Level: engine.LevelSuccess, Message: "ok"},
	}

	var buf bytes.Buffer
	require.NoError(t, engine.WriteLogs(&buf, entries, engine.FormatText))

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, len(entries))
	assert.Equal(t, `[2024-05-06 07:08:09] [INFO] file1\nfile2\r\nfile3`, lines[0])
	assert.Equal(t, `[2024-05-06 07:08:09] [ERROR] C:\\tmp\\new`, lines[1])
	assert.Equal(t, "[2024-05-06 07:08:09] [SUCCESS] ok", lines[2])
}

// textPieces are joined by genText. They cover line breaks and the
// characters CSV and JSON escape.
var textPieces = []string{"a", " ", "\n", "\r\n", "\r", ",", `"`, `\`, "\t", "é", "日本"}

func genText() gopter.Gen {
	return gen.OneGenOf(
		gen.AnyString(),
		gen.SliceOf(gen.IntRange(0, len(textPieces)-1)).Map(func(idx []int) string {
			var b strings.Builder
			for _, i := range idx {
				b.WriteString(textPieces[i])
			}

			return b.String()
		}),
	)
}

func genEntry() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(engine.AllLevels[0], engine.AllLevels[1], engine.AllLevels[2], engine.AllLevels[3], engine.AllLevels[4]),
		genText(),
		genText(),
		gen.Int64Range(0, 1<<40),
	).Map(func(v []any) engine.LogEntry {
		return engine.LogEntry{
			Timestamp: time.Unix(v[3].(int64), 0).UTC(),
			Level:     v[0].(engine.Level),
			Message:   v[1].(string),
			RuleName:  v[2].(string),
		}
	})
}

func TestExportEntryCountProperty(t *testing.T) {
	t.Parallel()

	properties := gopter.NewProperties(nil)

	properties.Property("every format exports one record per entry", prop.ForAll(
		func(entries []engine.LogEntry) bool {
			var txt, js, cv bytes.Buffer

			if engine.WriteLogs(&txt, entries, engine.FormatText) != nil ||
				engine.WriteLogs(&js, entries, engine.FormatJSON) != nil ||
				engine.WriteLogs(&cv, entries, engine.FormatCSV) != nil {
				return false
			}

			lines := 0
			if txt.Len() > 0 {
				lines = len(strings.Split(txt.String(), "\n"))
			}

			var decoded []engine.LogEntry
			if json.Unmarshal(js.Bytes(), &decoded) != nil {
				return false
			}

			records, err := csv.NewReader(&cv).ReadAll()
			if err != nil {
				return false
			}

			return lines == len(entries) &&
				len(decoded) == len(entries) &&
				len(records) == len(entries)+1
		},
		gen.SliceOf(genEntry()),
	))

	properties.TestingRun(t)
}
