package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultPairWindow is how long a rename waits for its matching create.
	DefaultPairWindow = 50 * time.Millisecond
	// DefaultStopTimeout bounds how long [Service.Stop] waits for the
	// dispatcher.
	DefaultStopTimeout = 5 * time.Second
)

// ErrNotDirectory is returned when a registered path is missing or is not a
// directory.
var ErrNotDirectory = errors.New("not a directory")

// Service watches registered directories and reports classified events.
type Service struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	regs    map[string]Registration
	// Live watches: directory -> set of owning registration paths.
	dirs        map[string]map[string]struct{}
	listeners   []chan<- Event
	pairWindow  time.Duration
	stopTimeout time.Duration
	mu          sync.Mutex
}

// Opt configures a [Service].
type Opt func(*Service)

// WithPairWindow sets how long a rename waits for the create that completes
// a move. An unpaired rename is reported as a deletion.
func WithPairWindow(d time.Duration) Opt {
	return func(s *Service) {
		if d > 0 {
			s.pairWindow = d
		}
	}
}

// WithStopTimeout bounds how long [Service.Stop] waits for the dispatcher to
// exit.
func WithStopTimeout(d time.Duration) Opt {
	return func(s *Service) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// NewService creates a stopped [Service] with no registrations.
func NewService(opts ...Opt) *Service {
	s := &Service{
		regs:        make(map[string]Registration),
		dirs:        make(map[string]map[string]struct{}),
		pairWindow:  DefaultPairWindow,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Subscribe registers ch to receive every subsequent [Event]. Sends block, so
// subscribers must keep reading while the service runs.
func (s *Service) Subscribe(ch chan<- Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, ch)
}

// Unsubscribe removes ch from the subscribers.
func (s *Service) Unsubscribe(ch chan<- Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = slices.DeleteFunc(s.listeners, func(l chan<- Event) bool {
		return l == ch
	})
}

// AddPath registers a directory. See [Service.Add].
func (s *Service) AddPath(path string, recursive bool, include, exclude []string, ignoreDirs bool) error {
	return s.Add(Registration{
		Path:       path,
		Recursive:  recursive,
		Include:    include,
		Exclude:    exclude,
		IgnoreDirs: ignoreDirs,
	})
}

// Add registers a directory, replacing any registration for the same path.
// The directory must exist. If the service is running the watch is
// established immediately. If that fails, the registration is kept, so a
// later Start retries it, and the error is returned.
func (s *Service) Add(reg Registration) error {
	path, err := resolveDir(reg.Path)
	if err != nil {
		return err
	}

	err = reg.validate()
	if err != nil {
		return fmt.Errorf("register %s: %w", path, err)
	}

	reg = reg.clone()
	reg.Path = path

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regs[path]; ok && s.watcher != nil {
		s.release(path)
	}

	s.regs[path] = reg

	slog.Debug("added watch path",
		slog.String("path", path),
		slog.Bool("recursive", reg.Recursive),
		slog.Bool("running", s.watcher != nil),
	)

	if s.watcher == nil {
		return nil
	}

	return s.establish(reg)
}

// RemovePath deregisters a directory. It returns false if the path was never
// added.
func (s *Service) RemovePath(path string) bool {
	key := normalize(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regs[key]; !ok {
		return false
	}

	delete(s.regs, key)

	if s.watcher != nil {
		s.release(key)
	}

	slog.Debug("removed watch path", slog.String("path", key))

	return true
}

// Clear removes every registration.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.regs {
		if s.watcher != nil {
			s.release(key)
		}

		delete(s.regs, key)
	}
}

// Paths returns the registered directories, sorted.
func (s *Service) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.regs))
}

// Registrations returns copies of all registrations, sorted by path.
func (s *Service) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Registration, 0, len(s.regs))
	for _, key := range slices.Sorted(maps.Keys(s.regs)) {
		out = append(out, s.regs[key].clone())
	}

	return out
}

// Running reports whether the service is started.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watcher != nil
}

// Start establishes a watch for every registration and starts the dispatcher.
// It does nothing if already running. Registrations that cannot be watched
// are reported in the returned error. The service runs regardless.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	s.watcher = w
	s.done = make(chan struct{})

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(s.regs)) {
		errs = append(errs, s.establish(s.regs[key]))
	}

	go s.dispatch(w, s.done)

	slog.Debug("started watch service", slog.Int("paths", len(s.regs)))

	return errors.Join(errs...)
}

// Stop closes every live watch and waits, up to the stop timeout, for the
// dispatcher to exit. Registrations are kept. Stop does nothing if the
// service is not running.
func (s *Service) Stop() {
	s.mu.Lock()
	w, done := s.watcher, s.done
	s.watcher, s.done = nil, nil
	clear(s.dirs)
	s.mu.Unlock()

	if w == nil {
		return
	}

	err := w.Close()
	if err != nil {
		slog.Error("close fsnotify watcher", slog.Any("error", err))
	}

	select {
	case <-done:
		slog.Debug("stopped watch service")
	case <-time.After(s.stopTimeout):
		slog.Warn("timed out waiting for watch dispatcher",
			slog.Duration("timeout", s.stopTimeout),
		)
	}
}

// establish adds fsnotify watches for reg. Callers hold mu.
func (s *Service) establish(reg Registration) error {
	err := s.watchDir(reg.Path, reg.Path)
	if err != nil {
		return err
	}

	if !reg.Recursive {
		return nil
	}

	var errs []error
	for _, dir := range subdirs(reg.Path) {
		errs = append(errs, s.watchDir(dir, reg.Path))
	}

	return errors.Join(errs...)
}

// watchDir adds a watch for dir owned by the registration at owner.
// Callers hold mu.
func (s *Service) watchDir(dir, owner string) error {
	owners, ok := s.dirs[dir]
	if !ok {
		err := s.watcher.Add(dir)
		if err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}

		owners = make(map[string]struct{})
		s.dirs[dir] = owners
	}

	owners[owner] = struct{}{}

	return nil
}

// release drops every live watch owned only by the registration at owner.
// Callers hold mu.
func (s *Service) release(owner string) {
	for dir, owners := range s.dirs {
		if _, ok := owners[owner]; !ok {
			continue
		}

		delete(owners, owner)

		if len(owners) > 0 {
			continue
		}

		delete(s.dirs, dir)

		err := s.watcher.Remove(dir)
		if err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			slog.Debug("remove fsnotify watch",
				slog.String("path", dir),
				slog.Any("error", err),
			)
		}
	}
}

// forget drops the live watches for dir and everything below it, after it
// was deleted or moved away. Callers hold mu.
func (s *Service) forget(dir string) {
	prefix := dir + string(filepath.Separator)
	for d := range s.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(s.dirs, d)
		}
	}
}

// owners returns the registrations responsible for path. Callers hold mu.
func (s *Service) owners(path string) []Registration {
	keys, ok := s.dirs[filepath.Dir(path)]
	if !ok {
		keys = s.dirs[path]
	}

	regs := make([]Registration, 0, len(keys))
	for key := range keys {
		if reg, ok := s.regs[key]; ok {
			regs = append(regs, reg)
		}
	}

	return regs
}

// dispatch reads raw notifications from w until it is closed. A rename is
// held for the pair window so the create that follows it can complete a move.
func (s *Service) dispatch(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var pending *fsnotify.Event

	timer := time.NewTimer(s.pairWindow)
	timer.Stop()

	flush := func() {
		if pending == nil {
			return
		}

		src := pending.Name
		pending = nil

		s.handle(w, FileEvent{Type: EventDeleted, Path: src})
	}

	for {
		select {
		case evt, ok := <-w.Events:
			if !ok {
				return
			}

			switch {
			case evt.Has(fsnotify.Create):
				if pending != nil {
					timer.Stop()

					src := pending.Name
					pending = nil

					s.handle(w, FileEvent{Type: EventMoved, Path: src, DestPath: evt.Name})

					continue
				}

				s.handle(w, FileEvent{Type: EventCreated, Path: evt.Name})

			case evt.Has(fsnotify.Write):
				s.handle(w, FileEvent{Type: EventModified, Path: evt.Name})

			case evt.Has(fsnotify.Remove):
				s.handle(w, FileEvent{Type: EventDeleted, Path: evt.Name})

			case evt.Has(fsnotify.Rename):
				flush()

				e := evt
				pending = &e

				timer.Reset(s.pairWindow)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}

			s.publish(w, nil, ErrorEvent{Err: err})

		case <-timer.C:
			flush()
		}
	}
}

// handle updates live watches for directory changes, filters fe, and
// delivers it.
func (s *Service) handle(w *fsnotify.Watcher, fe FileEvent) {
	s.mu.Lock()

	if s.watcher != w {
		s.mu.Unlock()

		return
	}

	var errs []error

	switch fe.Type {
	case EventCreated, EventModified:
		fe.IsDir = isDir(fe.Path)
	case EventDeleted:
		_, fe.IsDir = s.dirs[fe.Path]
	case EventMoved:
		fe.IsDir = isDir(fe.DestPath)
	}

	owners := s.owners(fe.Path)
	if fe.Type == EventMoved {
		owners = append(owners, s.owners(fe.DestPath)...)
	}

	if fe.IsDir {
		switch fe.Type {
		case EventCreated:
			errs = s.watchNew(fe.Path, owners)
		case EventMoved:
			s.forget(fe.Path)
			errs = s.watchNew(fe.DestPath, owners)
		case EventDeleted:
			s.forget(fe.Path)
		}
	}

	accepted := slices.ContainsFunc(owners, func(reg Registration) bool {
		return reg.Accepts(fe)
	})

	s.mu.Unlock()

	for _, err := range errs {
		s.publish(w, nil, ErrorEvent{Err: err, Path: fe.Path})
	}

	if accepted {
		s.publish(w, nil, fe)
	}
}

// watchNew watches a new directory tree for every recursive owner.
// Callers hold mu.
func (s *Service) watchNew(dir string, owners []Registration) []error {
	var errs []error

	for _, reg := range owners {
		if !reg.Recursive {
			continue
		}

		for _, d := range append([]string{dir}, subdirs(dir)...) {
			err := s.watchDir(d, reg.Path)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errs
}

// publish delivers evt to every subscriber, or only to listeners when it is
// non-nil. A subscriber that panics (for example, a closed channel) is
// reported to the others as an [ErrorEvent].
func (s *Service) publish(w *fsnotify.Watcher, listeners []chan<- Event, evt Event) {
	if listeners == nil {
		s.mu.Lock()
		if s.watcher != w {
			s.mu.Unlock()

			return
		}

		listeners = slices.Clone(s.listeners)
		s.mu.Unlock()
	}

	var failed []error

	for _, ch := range listeners {
		err := deliver(ch, evt)
		if err != nil {
			failed = append(failed, err)
		}
	}

	if _, isErr := evt.(ErrorEvent); isErr {
		for _, err := range failed {
			slog.Error("deliver watch error event", slog.Any("error", err))
		}

		return
	}

	for _, err := range failed {
		s.publish(w, listeners, ErrorEvent{Err: err})
	}
}

func deliver(ch chan<- Event, evt Event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("deliver %T: %v", evt, v)
		}
	}()

	ch <- evt

	return nil
}

func resolveDir(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotDirectory)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotDirectory, path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotDirectory, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}

	return resolved, nil
}

// normalize maps path onto a registration key. Paths that no longer exist
// fall back to their cleaned absolute form.
func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}

	return resolved
}

func isDir(path string) bool {
	info, err := os.Lstat(path)

	return err == nil && info.IsDir()
}

func subdirs(root string) []string {
	var dirs []string

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped.
			return nil //nolint:nilerr // Walk as much of the tree as possible.
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}

		return nil
	})

	return dirs
}
