package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/orgz/api"
	"github.com/macropower/orgz/pkg/log"
	"github.com/macropower/orgz/pkg/ruleset"
)

const (
	// UntitledName is the display name of a store without a backing file.
	UntitledName = "Untitled"

	// CopySuffix is appended to the name of a duplicated rule.
	CopySuffix = " (copy)"
)

var (
	// ErrNoPath is returned when an operation needs a path and none is known.
	ErrNoPath = errors.New("no path specified")
	// ErrNotFound is returned when the ruleset file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrIO wraps filesystem failures.
	ErrIO = errors.New("i/o error")
	// ErrIndexOutOfRange is returned for rule indices outside the list.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Codec converts between ruleset text and structured rules.
// It is satisfied by [*ruleset.Codec].
type Codec interface {
	Parse(text string) (*ruleset.Ruleset, error)
	Marshal(rs *ruleset.Ruleset) (string, error)
}

// Store keeps a ruleset's canonical text and its structured rule list in sync.
//
// The text is the source of truth for persistence. Structured edits
// re-serialize the text, and text edits re-parse the rules. When edited text
// fails validation, the last valid rules are retained and the error is
// reported through [Store.LastError].
//
// A Store assumes a single writer and does no locking.
type Store struct {
	tracer  trace.Tracer
	codec   Codec
	now     func() time.Time
	rules   *ruleset.Ruleset
	lastErr error
	path    string
	content string
	valid   bool
	dirty   bool
}

// Opt configures a [Store].
type Opt func(*Store)

// WithCodec sets the codec used to parse and serialize rules.
func WithCodec(c Codec) Opt {
	return func(s *Store) {
		s.codec = c
	}
}

// WithClock sets the clock used for backup file names.
func WithClock(now func() time.Time) Opt {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty [Store] with no backing file.
func New(opts ...Opt) *Store {
	s := &Store{
		tracer: otel.Tracer("store"),
		codec:  ruleset.DefaultCodec,
		now:    time.Now,
		rules:  ruleset.New(),
		valid:  true,
	}
	for _, opt := range opts {
		opt(s)
	}

	content, err := s.codec.Marshal(s.rules)
	if err == nil {
		s.content = content
	}

	return s
}

// Load reads, parses and validates the ruleset file at path.
// On failure the previous state is kept.
func (s *Store) Load(ctx context.Context, path string) error {
	ctx, span := s.tracer.Start(ctx, "load", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	if path == "" {
		return s.fail(ErrNoPath)
	}

	data, err := api.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.fail(fmt.Errorf("%w: %s", ErrNotFound, path))
	}
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrIO, err))
	}

	text := string(data)

	rs, err := s.codec.Parse(text)
	if err != nil {
		span.RecordError(err)

		return s.fail(err)
	}

	s.content = text
	s.rules = rs
	s.path = path
	s.valid = true
	s.dirty = false
	s.lastErr = nil

	log.WithContext(ctx).DebugContext(ctx, "loaded ruleset",
		slog.String("path", path),
		slog.Int("rules", rs.Len()),
	)

	return nil
}

// LoadFromText parses and validates text as if it were loaded from path.
// The content did not come from disk, so the store is marked dirty.
// An empty path keeps the current one.
func (s *Store) LoadFromText(text, path string) error {
	rs, err := s.codec.Parse(text)
	if err != nil {
		return s.fail(err)
	}

	s.content = text
	s.rules = rs
	s.valid = true
	s.dirty = true
	s.lastErr = nil

	if path != "" {
		s.path = path
	}

	return nil
}

// Reset replaces the state with the example ruleset and no backing file.
func (s *Store) Reset() {
	err := s.LoadFromText(ruleset.Example(), "")
	if err != nil {
		// The example is embedded and covered by tests.
		panic(fmt.Errorf("load example ruleset: %w", err))
	}

	s.path = ""
}

// Save writes the current text to path, or to the current path when empty.
// The file is written to a temporary sibling and renamed into place, so a
// failed write never leaves a truncated file behind.
func (s *Store) Save(ctx context.Context, path string) error {
	if path == "" {
		path = s.path
	}

	ctx, span := s.tracer.Start(ctx, "save", trace.WithAttributes(
		attribute.String("path", path),
	))
	defer span.End()

	if path == "" {
		return s.fail(ErrNoPath)
	}

	err := writeFileAtomic(path, []byte(s.content))
	if err != nil {
		span.RecordError(err)

		return s.fail(fmt.Errorf("%w: save %s: %w", ErrIO, path, err))
	}

	s.path = path
	s.dirty = false
	s.lastErr = nil

	log.WithContext(ctx).DebugContext(ctx, "saved ruleset",
		slog.String("path", path),
		slog.Int("bytes", len(s.content)),
	)

	return nil
}

// SetContent replaces the text and re-validates it. When the text is invalid
// the previous rules are retained and the error is returned.
// Any change marks the store dirty until the next load or save, even if the
// text is later reverted.
func (s *Store) SetContent(text string) error {
	if text != s.content {
		s.dirty = true
	}

	s.content = text

	rs, err := s.codec.Parse(text)
	if err != nil {
		s.valid = false

		return s.fail(err)
	}

	s.rules = rs
	s.valid = true
	s.lastErr = nil

	return nil
}

// Validate checks text without changing the store.
func (s *Store) Validate(text string) error {
	_, err := s.codec.Parse(text)

	return err //nolint:wrapcheck // Return the codec error as-is.
}

// ValidateCurrent checks the current text without changing the store.
func (s *Store) ValidateCurrent() error {
	return s.Validate(s.content)
}

// CreateBackup copies the backing file to a timestamped sibling
// (<stem>_backup_<YYYYmmdd_HHMMSS><ext>) and returns its path.
// It returns an empty path and no error when there is no backing file.
func (s *Store) CreateBackup() (string, error) {
	if s.path == "" {
		return "", nil
	}

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", s.fail(fmt.Errorf("%w: %w", ErrIO, err))
	}

	backupPath, err := api.BackupPath(s.path, s.now())
	if err != nil {
		return "", s.fail(fmt.Errorf("%w: %w", ErrIO, err))
	}

	err = copyFile(s.path, backupPath, info)
	if err != nil {
		return "", s.fail(fmt.Errorf("%w: create backup: %w", ErrIO, err))
	}

	slog.Debug("created ruleset backup",
		slog.String("path", s.path),
		slog.String("backup", backupPath),
	)

	return backupPath, nil
}

// Content returns the current text.
func (s *Store) Content() string {
	return s.content
}

// Path returns the backing file path, if any.
func (s *Store) Path() string {
	return s.path
}

// Filename returns the base name of the backing file, or [UntitledName].
func (s *Store) Filename() string {
	if s.path == "" {
		return UntitledName
	}

	return filepath.Base(s.path)
}

// Dirty reports whether the content changed since the last load or save.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Valid reports whether the current text parsed successfully.
func (s *Store) Valid() bool {
	return s.valid
}

// LastError returns the error from the most recent failed operation, or nil
// if the most recent operation succeeded.
func (s *Store) LastError() error {
	return s.lastErr
}

// LastErrorMessage returns the message of [Store.LastError], or "".
func (s *Store) LastErrorMessage() string {
	if s.lastErr == nil {
		return ""
	}

	return s.lastErr.Error()
}

// Ruleset returns a copy of the last valid ruleset.
func (s *Store) Ruleset() *ruleset.Ruleset {
	return s.rules.Clone()
}

// Rules returns a copy of the last valid rule list.
func (s *Store) Rules() []*ruleset.Rule {
	return s.rules.Clone().Rules
}

// Len returns the number of rules.
func (s *Store) Len() int {
	return s.rules.Len()
}

func (s *Store) fail(err error) error {
	s.lastErr = err

	return err
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	mode := fs.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		if info.IsDir() {
			return fmt.Errorf("%s: path is a directory", path)
		}

		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	err = os.Chmod(tmpPath, mode)
	if err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	committed = true

	return nil
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src) //nolint:gosec // G304: Path is the store's own backing file.
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close() //nolint:errcheck // Read-only.

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}

	_, err = io.Copy(out, in)

	closeErr := out.Close()
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close backup file: %w", closeErr)
	}

	err = os.Chtimes(dst, info.ModTime(), info.ModTime())
	if err != nil {
		return fmt.Errorf("preserve modification time: %w", err)
	}

	return nil
}
