package hotreload

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// fsWatcher wraps fsnotify with a dynamic path set and a single update
// callback, adapted from the shape of a context-cancellable watch loop
// driven by fsnotify.Events/Errors channels.
type fsWatcher struct {
	notify     *fsnotify.Watcher
	logger     *logrus.Logger
	onUpdateFn func(*logrus.Logger, fsnotify.Event)

	mu     sync.Mutex
	paths  map[string]bool
	cancel context.CancelFunc
}

func newFsWatcher(logger *logrus.Logger, onUpdateFn func(*logrus.Logger, fsnotify.Event)) (*fsWatcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsWatcher{
		notify:     notify,
		logger:     logger,
		onUpdateFn: onUpdateFn,
		paths:      make(map[string]bool),
	}, nil
}

func (w *fsWatcher) add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paths[path] {
		return nil
	}
	if err := w.notify.Add(path); err != nil {
		return err
	}
	w.paths[path] = true
	w.logger.Debugf("hotreload: monitoring path %q", path)
	return nil
}

func (w *fsWatcher) remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.paths[path] {
		return
	}
	_ = w.notify.Remove(path)
	delete(w.paths, path)
}

// run starts the watch loop in its own goroutine and keeps its cancel
// function for stop. Non-blocking, idempotent at the caller's discretion
// (callers are expected to call run at most once per fsWatcher).
func (w *fsWatcher) run() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.notify.Close()
				w.logger.Debug("hotreload: terminating watcher")
				return
			case event, ok := <-w.notify.Events:
				if !ok {
					return
				}
				w.logger.Debugf("hotreload: watcher got event: %v", event)
				if w.onUpdateFn != nil {
					w.onUpdateFn(w.logger, event)
				}
			case err, ok := <-w.notify.Errors:
				if !ok {
					return
				}
				w.logger.Warnf("hotreload: watcher got error: %v", err)
			}
		}
	}()
}

func (w *fsWatcher) stop() {
	if w.cancel != nil {
		w.cancel()
	}
}
