// Package watcher hot-reloads the on-disk config file, notifying a callback
// whenever its content actually changes. Grounded on // internal/watcher/watcher.go, trimmed to this module's single config file
// (no per-credential auth directory scan).
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/llmproxy-dev/llmproxy/internal/config"
)

// Watcher watches the config file and invokes a callback with the reloaded
// config whenever its content hash changes.
type Watcher struct {
	configPath string
	onReload   func(*config.Config)

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	lastHash string
}

// New creates a Watcher for configPath. Call Start to begin watching.
func New(configPath string, onReload func(*config.Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{configPath: configPath, onReload: onReload, fsw: fsw}, nil
}

// Start adds the config file to the underlying fsnotify watcher and begins
// the event loop. It returns once the watch is registered; the loop itself
// runs in a goroutine until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.configPath); err != nil {
		return err
	}
	log.Debugf("watcher: watching config file %s", w.configPath)
	go w.loop(ctx)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Name != w.configPath {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	data, err := os.ReadFile(w.configPath)
	if err != nil {
		log.Errorf("watcher: failed to read config for hash check: %v", err)
		return
	}
	if len(data) == 0 {
		log.Debugf("watcher: ignoring empty config write event")
		return
	}
	sum := sha256.Sum256(data)
	newHash := hex.EncodeToString(sum[:])

	w.mu.Lock()
	unchanged := w.lastHash != "" && w.lastHash == newHash
	w.mu.Unlock()
	if unchanged {
		log.Debugf("watcher: config content unchanged, skipping reload")
		return
	}

	cfg, err := config.Load(w.configPath)
	if err != nil {
		log.Errorf("watcher: failed to reload config: %v", err)
		return
	}

	w.mu.Lock()
	w.lastHash = newHash
	w.mu.Unlock()

	log.Infof("watcher: config reloaded from %s", w.configPath)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
