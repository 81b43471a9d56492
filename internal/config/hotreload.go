package config

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// overrides is the subset of Config that can change without a restart.
type overrides struct {
	WorkingDir        string `yaml:"working_dir"`
	AllowAnyWorkspace bool   `yaml:"allow_any_workspace"`
}

// Watcher re-reads an overrides YAML file whenever it changes on disk,
// atomically publishing the latest values for readers to pick up.
type Watcher struct {
	path    string
	current atomic.Pointer[overrides]
	mu      sync.Mutex
}

// NewWatcher starts watching path (if it exists) for changes. A missing
// file is not an error — hot-reload is an opt-in feature.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path}
	w.current.Store(&overrides{})
	w.reload()

	if _, err := os.Stat(path); err != nil {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	go w.watch(fw)
	return w, nil
}

func (w *Watcher) watch(fw *fsnotify.Watcher) {
	defer fw.Close()
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return
	}
	var o overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		slog.Error("config: failed to parse overrides file, keeping previous values", "path", w.path, "error", err)
		return
	}
	w.current.Store(&o)
	slog.Info("config: reloaded overrides", "path", w.path)
}

// WorkingDir returns the current (possibly hot-reloaded) working directory
// override, or fallback if none has been set.
func (w *Watcher) WorkingDir(fallback string) string {
	o := w.current.Load()
	if o.WorkingDir == "" {
		return fallback
	}
	return o.WorkingDir
}

// AllowAnyWorkspace returns the current hot-reloaded override value.
func (w *Watcher) AllowAnyWorkspace(fallback bool) bool {
	return w.current.Load().AllowAnyWorkspace
}
