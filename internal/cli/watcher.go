package cli

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const watchDebounce = 200 * time.Millisecond

// FileEvent is the settled state of a watched file after a burst of writes.
type FileEvent struct {
	Op   fsnotify.Op
	Path string
}

// Gone reports whether the file was removed or moved away.
func (e FileEvent) Gone() bool {
	return e.Op.Has(fsnotify.Remove) || e.Op.Has(fsnotify.Rename)
}

type WatchHandler func(FileEvent)

type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must stay quiet before its handlers run.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// Watcher calls handlers for individual files. fsnotify watches the parent
// directories, so a file replaced by an editor's rename keeps reporting.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	handlers map[string][]WatchHandler
	timers   map[string]*time.Timer
	ops      map[string]fsnotify.Op
	stopped  bool

	loop     sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:       fsw,
		debounce: 100 * time.Millisecond,
		handlers: map[string][]WatchHandler{},
		timers:   map[string]*time.Timer{},
		ops:      map[string]fsnotify.Op{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch registers handler for path.
func (w *Watcher) Watch(path string, handler WatchHandler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(abs)
	known := false
	for p := range w.handlers {
		if filepath.Dir(p) == dir {
			known = true
			break
		}
	}
	if !known {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
	}
	w.handlers[abs] = append(w.handlers[abs], handler)
	return nil
}

// Start consumes fsnotify events until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.loop.Add(1)
	go func() {
		defer w.loop.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case ev, ok := <-w.fs.Events:
				if !ok {
					return
				}
				w.schedule(ev)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("File watcher error")
			}
		}
	}()
}

// schedule restarts the quiet period for a watched file, accumulating ops.
func (w *Watcher) schedule(ev fsnotify.Event) {
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || len(w.handlers[path]) == 0 || ev.Op == fsnotify.Chmod {
		return
	}
	w.ops[path] |= ev.Op
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	event := FileEvent{Op: w.ops[path], Path: path}
	handlers := append([]WatchHandler(nil), w.handlers[path]...)
	delete(w.ops, path)
	delete(w.timers, path)
	w.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Stop halts the watcher and cancels pending callbacks. Safe to call twice.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.loop.Wait()

		w.mu.Lock()
		w.stopped = true
		for _, t := range w.timers {
			t.Stop()
		}
		w.mu.Unlock()

		w.stopErr = w.fs.Close()
	})
	return w.stopErr
}

// ConfigWatcher invokes onChange each time the config file settles after a
// write. Deletions are ignored; the running config stays in effect.
type ConfigWatcher struct {
	*Watcher
}

func NewConfigWatcher(path string, onChange func(path string)) (*ConfigWatcher, error) {
	w, err := NewWatcher(WithDebounce(watchDebounce))
	if err != nil {
		return nil, err
	}

	err = w.Watch(path, func(ev FileEvent) {
		if ev.Gone() && !ev.Op.Has(fsnotify.Create) {
			return
		}
		log.Debug().Str("op", ev.Op.String()).Str("path", ev.Path).Msg("Config file changed")
		if onChange != nil {
			onChange(ev.Path)
		}
	})
	if err != nil {
		_ = w.Stop()
		return nil, err
	}
	return &ConfigWatcher{Watcher: w}, nil
}
