// Package watcher watches the configuration file and triggers hot reloads.
// Only operator-owned fields (posting times, prompt template, log level) are
// applied live; token fields are owned by the token store and rewritten by
// the agent itself, so those writes must not bounce back as reload events.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/postwing/postwing/internal/config"
	log "github.com/sirupsen/logrus"
)

// configReloadDebounce coalesces the event bursts editors and atomic
// renames produce into a single reload.
const configReloadDebounce = 150 * time.Millisecond

// Watcher watches the config file and invokes a callback on real changes.
type Watcher struct {
	configPath     string
	reloadCallback func(*config.Config)

	mu             sync.Mutex
	watcher        *fsnotify.Watcher
	reloadTimer    *time.Timer
	lastConfigHash string
	cancel         context.CancelFunc
	done           chan struct{}
}

// New creates a watcher for the given config file. callback runs on every
// observed content change, with the freshly parsed configuration.
func New(configPath string, callback func(*config.Config)) *Watcher {
	return &Watcher{
		configPath:     configPath,
		reloadCallback: callback,
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic replaces (rename over) keep being observed.
func (w *Watcher) Start() error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.configPath)
	if err = fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.watcher = fsWatcher
	w.cancel = cancel
	w.done = make(chan struct{})
	w.lastConfigHash = hashFile(w.configPath)
	w.mu.Unlock()

	go w.run(ctx, fsWatcher)
	log.Infof("watching %s for configuration changes", w.configPath)
	return nil
}

// Stop halts watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	fsWatcher := w.watcher
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	_ = fsWatcher.Close()
	<-done
}

func (w *Watcher) run(ctx context.Context, fsWatcher *fsnotify.Watcher) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			log.Errorf("config watcher error: %v", err)
		}
	}
}

// handleEvent filters for the config file and debounces the reload.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
	}
	w.reloadTimer = time.AfterFunc(configReloadDebounce, w.reload)
}

// reload re-reads the file, skips no-op writes by content hash, and hands
// the parsed configuration to the callback.
func (w *Watcher) reload() {
	hash := hashFile(w.configPath)

	w.mu.Lock()
	if hash == "" || hash == w.lastConfigHash {
		w.mu.Unlock()
		return
	}
	w.lastConfigHash = hash
	w.mu.Unlock()

	cfg, err := config.LoadConfig(w.configPath)
	if err != nil {
		log.Errorf("config reload skipped, file does not parse: %v", err)
		return
	}

	log.Info("configuration file changed, reloading")
	w.reloadCallback(cfg)
}

func hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
