package lua

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zot/modbind/internal/config"
)

// HotLoader watches module directories and drops changed modules from the
// runtime's cache, so the next binding transition loads the new code.
type HotLoader struct {
	config   *config.Config
	root     string // directory the runtime's file system is rooted at
	runtime  *Runtime
	watcher  *fsnotify.Watcher
	onReload func(path string)

	// Debouncing
	pendingReloads map[string]time.Time
	debounceMu     sync.Mutex
	debounceDelay  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewHotLoader creates a hot loader for modules below root. onReload (optional)
// is called with the module path after it has been unloaded.
func NewHotLoader(cfg *config.Config, root string, rt *Runtime, onReload func(path string)) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &HotLoader{
		config:         cfg,
		root:           root,
		runtime:        rt,
		watcher:        watcher,
		onReload:       onReload,
		pendingReloads: make(map[string]time.Time),
		debounceDelay:  cfg.Template.Debounce.Duration(),
		done:           make(chan struct{}),
	}, nil
}

// Start begins watching dir, relative to root, and every directory below it.
func (h *HotLoader) Start(dir string) error {
	full := filepath.Join(h.root, filepath.FromSlash(dir))
	if err := h.watchTree(full); err != nil {
		return err
	}

	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "LuaHotLoader: watching %s for changes", full)
	return nil
}

// Stop stops the hot loader.
func (h *HotLoader) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.done)
		err = h.watcher.Close()
	})
	return err
}

// eventLoop processes file system events.
func (h *HotLoader) eventLoop() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.handleEvent(event)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.config.Log(1, "LuaHotLoader: watcher error: %v", err)
		}
	}
}

// watchTree watches dir and its subdirectories, so nested module paths reload too.
func (h *HotLoader) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := h.watcher.Add(path); err != nil {
			return err
		}
		h.config.Log(2, "LuaHotLoader: added watch for %s", path)
		return nil
	})
}

func (h *HotLoader) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := h.watchTree(event.Name); err != nil {
				h.config.Log(1, "LuaHotLoader: cannot watch %s: %v", event.Name, err)
			}
			return
		}
	}
	if !strings.HasSuffix(event.Name, ".lua") {
		return
	}

	h.config.Log(3, "LuaHotLoader: event %s on %s", event.Op, event.Name)

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
		h.debounceMu.Lock()
		h.pendingReloads[event.Name] = time.Now()
		h.debounceMu.Unlock()
	}
}

// debounceLoop processes pending reloads after the debounce delay.
func (h *HotLoader) debounceLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.processPendingReloads()
		}
	}
}

func (h *HotLoader) processPendingReloads() {
	h.debounceMu.Lock()
	now := time.Now()
	var toReload []string
	for path, queuedAt := range h.pendingReloads {
		if now.Sub(queuedAt) >= h.debounceDelay {
			toReload = append(toReload, path)
			delete(h.pendingReloads, path)
		}
	}
	h.debounceMu.Unlock()

	for _, path := range toReload {
		h.unload(path)
	}
}

func (h *HotLoader) unload(file string) {
	key, ok := ModulePath(h.root, file)
	if !ok {
		return
	}
	if !h.runtime.IsLoaded(key) {
		h.config.Log(2, "LuaHotLoader: skipping %s (not loaded)", key)
		return
	}
	h.runtime.Unload(key)
	h.config.Log(1, "LuaHotLoader: unloaded %s", key)
	if h.onReload != nil {
		h.onReload(key)
	}
}

// ModulePath converts a file below root to the module path used by Load.
func ModulePath(root, file string) (string, bool) {
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), ".lua"), true
}
