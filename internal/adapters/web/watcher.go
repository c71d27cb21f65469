package web

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/sidefx/internal/core/ports"
)

// reloadWindow coalesces the write, create and rename events of one atomic save.
const reloadWindow = 100 * time.Millisecond

// watcher calls onChange after report files under a directory change.
type watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    ports.Logger
	// target restricts events to one file name; empty accepts every .json file.
	target   string
	onChange func()
	window   time.Duration

	wg sync.WaitGroup
}

func newWatcher(logger ports.Logger, dir, target string, onChange func()) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &watcher{
		fsWatcher: fsw,
		logger:    logger,
		target:    target,
		onChange:  onChange,
		window:    reloadWindow,
	}, nil
}

// Start begins processing events until ctx is done or Stop is called.
func (w *watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.processEvents(ctx)
}

// Stop closes the underlying watcher and waits for the event loop to exit.
func (w *watcher) Stop() error {
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Base(event.Name)
	if w.target != "" {
		return name == w.target
	}
	return filepath.Ext(name) == ".json"
}

func (w *watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("report change: " + event.String())
			fire = time.After(w.window)
		case <-fire:
			fire = nil
			w.onChange()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher: file system error: " + err.Error())
		}
	}
}
