package am

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/logger"
)

// ReloadCallback receives the configuration after a successful reload.
type ReloadCallback func(*Config)

// ConfigWatcher reloads configuration when a config file changes. Only
// settings read at use time take effect; the engine itself is wired once
// at startup.
type ConfigWatcher struct {
	paths          map[string]bool
	load           func() (*Config, error)
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
}

// NewConfigWatcher watches the given files. load produces the new Config;
// a reload whose load fails is logged and the previous config stays.
//
// Directories are watched rather than the files, since editors usually
// save by writing a temp file and renaming it over the original.
func NewConfigWatcher(paths []string, load func() (*Config, error)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	cw := &ConfigWatcher{
		paths:          make(map[string]bool, len(paths)),
		load:           load,
		watcher:        w,
		debouncePeriod: 500 * time.Millisecond,
	}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "failed to resolve %s", p)
		}
		cw.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "failed to watch %s", dir)
		}
	}
	return cw, nil
}

// OnReload registers a callback
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Start begins watching in the background until Stop.
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || !cw.paths[abs] {
				continue
			}
			logger.Debugw("Config file changed", "file", event.Name, "op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload coalesces bursts of events into one reload.
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	cfg, err := cw.load()
	if err != nil {
		logger.Errorw("Config reload failed, keeping previous config", logger.FieldError, err)
		return
	}
	logger.Infow("Config reloaded")

	cw.mu.Lock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Stop stops watching for config changes
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()
	return cw.watcher.Close()
}
