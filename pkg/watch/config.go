package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
)

// ConfigChangedEvent reports that the tracked file was written or replaced.
type ConfigChangedEvent struct {
	Path string
}

// ConfigWatcher tracks a single file. It watches the file's parent
// directory, non-recursively and filtered to the file's extension, and
// reports created or modified events on the file itself, as well as moves
// onto it (atomic saves).
//
// The watcher runs its own [Service], so its registration never replaces or
// removes one made elsewhere for the same directory.
type ConfigWatcher struct {
	svc       *Service
	events    chan Event
	done      chan struct{}
	listeners []chan<- ConfigChangedEvent
	path      string
	dir       string
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewConfigWatcher creates and starts a [ConfigWatcher]. Options configure
// its service, e.g. [WithPairWindow]. Call [ConfigWatcher.Close] to release
// it.
func NewConfigWatcher(opts ...Opt) (*ConfigWatcher, error) {
	svc := NewService(opts...)

	cw := &ConfigWatcher{
		svc:    svc,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}

	svc.Subscribe(cw.events)

	err := svc.Start()
	if err != nil {
		return nil, fmt.Errorf("start config watcher: %w", err)
	}

	go cw.forward()

	return cw, nil
}

// Subscribe registers ch to receive every subsequent [ConfigChangedEvent].
func (cw *ConfigWatcher) Subscribe(ch chan<- ConfigChangedEvent) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.listeners = append(cw.listeners, ch)
}

// WatchFile starts tracking path, replacing any previously tracked file.
// The file itself may not exist yet, but its directory must.
func (cw *ConfigWatcher) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	dir, err := resolveDir(filepath.Dir(abs))
	if err != nil {
		return err
	}

	cw.Unwatch()

	var include []string
	if ext := filepath.Ext(abs); ext != "" {
		include = []string{"*" + ext}
	}

	cw.mu.Lock()
	cw.path = filepath.Join(dir, filepath.Base(abs))
	cw.dir = dir
	cw.mu.Unlock()

	err = cw.svc.Add(Registration{
		Path:       dir,
		Include:    include,
		IgnoreDirs: true,
	})
	if err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}

	slog.Debug("watching config file", slog.String("path", cw.path))

	return nil
}

// Unwatch stops tracking the current file, if any.
func (cw *ConfigWatcher) Unwatch() {
	cw.mu.Lock()
	dir := cw.dir
	cw.path, cw.dir = "", ""
	cw.mu.Unlock()

	if dir != "" {
		cw.svc.RemovePath(dir)
	}
}

// Path returns the tracked file, or "" if none.
func (cw *ConfigWatcher) Path() string {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	return cw.path
}

// Close stops tracking and shuts down the watcher's service.
func (cw *ConfigWatcher) Close() {
	cw.closeOnce.Do(func() {
		cw.Unwatch()
		cw.svc.Unsubscribe(cw.events)
		close(cw.done)
		cw.svc.Stop()
	})
}

func (cw *ConfigWatcher) forward() {
	for {
		select {
		case evt := <-cw.events:
			fe, ok := evt.(FileEvent)
			if !ok {
				continue
			}

			cw.mu.Lock()
			path := cw.path
			listeners := append([]chan<- ConfigChangedEvent(nil), cw.listeners...)
			cw.mu.Unlock()

			if !changed(fe, path) {
				continue
			}

			for _, ch := range listeners {
				ch <- ConfigChangedEvent{Path: path}
			}

		case <-cw.done:
			return
		}
	}
}

func changed(fe FileEvent, path string) bool {
	if path == "" {
		return false
	}

	switch fe.Type {
	case EventCreated, EventModified:
		return fe.Path == path
	case EventMoved:
		return fe.DestPath == path
	default:
		return false
	}
}
