package config

import (
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher records changes to a config file. The running process never reloads from it;
// changes are reported to the configuration drift detector instead.
type Watcher struct {
	mu      sync.Mutex
	changed map[string]struct{}
}

// Watch starts watching path with Viper's fsnotify-backed watcher. When path does not exist
// the returned Watcher never reports changes.
func Watch(path string) *Watcher {
	w := &Watcher{changed: make(map[string]struct{})}
	if _, err := os.Stat(path); err != nil {
		log.Printf("config: not watching %s: %v", path, err)
		return w
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		log.Printf("config: not watching %s: %v", path, err)
		return w
	}
	v.OnConfigChange(w.onChange)
	v.WatchConfig()
	return w
}

func (w *Watcher) onChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	log.Printf("config: %s changed (%s)", e.Name, e.Op)
	w.mu.Lock()
	w.changed[e.Name] = struct{}{}
	w.mu.Unlock()
}

// TakeChanges returns the files changed since the previous call and resets the set.
func (w *Watcher) TakeChanges() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.changed) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.changed))
	for name := range w.changed {
		out = append(out, name)
	}
	w.changed = make(map[string]struct{})
	return out
}
