package watchdog

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Factory struct {
	logger *zap.Logger
}

// FilterFunc decides whether a created file is forwarded. Returning false
// drops the event.
type FilterFunc func(path string) bool

// WatchDog forwards file-creation events from watched directories to a
// notification channel. It owns the channel and closes it when the watch
// context is done.
type WatchDog struct {
	watchCtx   context.Context
	notifyChan chan<- string
	filter     FilterFunc
	logger     *zap.Logger

	watcher *fsnotify.Watcher
}

func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{logger: logger}
}

// New starts a WatchDog. Directories are added later with AddDir; a nil
// filter forwards every created file.
func (f *Factory) New(watchCtx context.Context, notifyChan chan<- string, filter FilterFunc) *WatchDog {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Fatal("failed to create fsnotify watcher", zap.Error(err))
	}

	w := &WatchDog{
		watchCtx:   watchCtx,
		notifyChan: notifyChan,
		filter:     filter,
		logger:     f.logger,
		watcher:    watcher,
	}

	go w.watch()

	return w
}

// AddDir adds an existing directory to the watch list.
func (w *WatchDog) AddDir(dir string) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		w.logger.Error("failed to resolve watch dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	if _, err := os.Stat(absDir); err != nil {
		w.logger.Error("watch dir not accessible", zap.String("dir", absDir), zap.Error(err))
		return
	}
	if err := w.watcher.Add(absDir); err != nil {
		w.logger.Error("failed to watch dir", zap.String("dir", absDir), zap.Error(err))
		return
	}
	w.logger.Debug("watching dir", zap.String("dir", absDir))
}

func (w *WatchDog) watch() {
	defer w.watcher.Close()
	defer close(w.notifyChan)
	for {
		select {
		case <-w.watchCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if w.filter != nil && !w.filter(event.Name) {
				w.logger.Debug("file ignored by filter", zap.String("file", event.Name))
				continue
			}
			select {
			case w.notifyChan <- event.Name:
			case <-w.watchCtx.Done():
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
