// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
// Only events for the configured base names are emitted.
type FSNotifyWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]struct{}
}

// NewFSNotifyWatcher creates a watcher for the given file names.
// With no names every file in the directory is reported.
func NewFSNotifyWatcher(names ...string) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[filepath.Base(n)] = struct{}{}
	}
	return &FSNotifyWatcher{watcher: w, names: set}, nil
}

// Watch starts monitoring dir and emits events until ctx is done or Stop is called.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	events := make(chan ports.FileEvent, 16)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatched(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Has(fsnotify.Create):
					op = ports.FileCreated
				case event.Has(fsnotify.Write):
					op = ports.FileModified
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					// a rename moves the file away, so it is gone from dir
					op = ports.FileDeleted
				default:
					continue
				}

				select {
				case events <- ports.FileEvent{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("file watcher: %v", err)
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) isWatched(path string) bool {
	if len(w.names) == 0 {
		return true
	}
	_, ok := w.names[filepath.Base(path)]
	return ok
}
