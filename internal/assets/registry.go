// Package assets maps animation and pose asset ids to concrete asset
// handles, loaded from a YAML manifest with optional hot reload.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk asset catalog.
type Manifest struct {
	Assets map[string]string `yaml:"assets"`
}

// Registry resolves asset ids to handles. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	assets  map[string]string
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewStatic creates a Registry over a fixed id-to-handle map.
func NewStatic(assets map[string]string, logger zerolog.Logger) *Registry {
	if assets == nil {
		assets = map[string]string{}
	}
	return &Registry{
		assets: assets,
		logger: logger.With().Str("component", "assets").Logger(),
	}
}

// Load creates a Registry from a YAML manifest file.
func Load(path string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		path:   path,
		logger: logger.With().Str("component", "assets").Logger(),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch reloads the manifest whenever the file changes. Call Close to
// stop watching.
func (r *Registry) Watch() error {
	if r.path == "" {
		return fmt.Errorf("registry has no manifest file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: editors replace the file on save, which drops
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					r.logger.Error().Err(err).Msg("Manifest reload failed, keeping previous catalog")
					continue
				}
				r.logger.Info().Str("path", r.path).Msg("Manifest reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Error().Err(err).Msg("Watcher error")
			}
		}
	}()
	return nil
}

// Close stops the manifest watcher if one is running.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Resolve returns the handle for an asset id, or ok=false when unknown.
func (r *Registry) Resolve(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.assets[id]
	return h, ok
}

// Len reports the number of catalogued assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Assets == nil {
		m.Assets = map[string]string{}
	}

	r.mu.Lock()
	r.assets = m.Assets
	r.mu.Unlock()
	return nil
}
