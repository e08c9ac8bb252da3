package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zot/modbind/internal/config"
	"github.com/zot/modbind/internal/loader"
)

// HotLoader watches the template directory and republishes changed files into
// the sources already cached for them. Sources are never recreated, so every
// binding showing a template re-renders with the new text.
type HotLoader struct {
	config      *config.Config
	engine      *Engine
	templateDir string
	watcher     *fsnotify.Watcher
	post        loader.Post

	// Symlink tracking
	symlinkTargets map[string]string // template file path -> resolved target dir
	watchedDirs    map[string]int    // dir path -> reference count
	mu             sync.Mutex

	// Debouncing
	pendingReloads map[string]time.Time
	debounceMu     sync.Mutex
	debounceDelay  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewHotLoader creates a hot loader for the engine's templates below root.
// post delivers updates to the goroutine that owns the engine.
func NewHotLoader(cfg *config.Config, e *Engine, root string, post loader.Post) (*HotLoader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &HotLoader{
		config:         cfg,
		engine:         e,
		templateDir:    filepath.Join(root, filepath.FromSlash(e.DefaultPath)),
		watcher:        watcher,
		post:           post,
		symlinkTargets: make(map[string]string),
		watchedDirs:    make(map[string]int),
		pendingReloads: make(map[string]time.Time),
		debounceDelay:  cfg.Template.Debounce.Duration(),
		done:           make(chan struct{}),
	}, nil
}

// Start begins watching the template directory and every directory below it.
func (h *HotLoader) Start() error {
	if err := h.watchTree(h.templateDir); err != nil {
		return err
	}

	if err := h.scanSymlinks(); err != nil {
		h.config.Log(1, "TemplateHotLoader: error scanning symlinks: %v", err)
	}

	go h.eventLoop()
	go h.debounceLoop()

	h.config.Log(1, "TemplateHotLoader: watching %s for changes", h.templateDir)
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
			h.config.Log(1, "TemplateHotLoader: watcher error: %v", err)
		}
	}
}

// watchTree watches dir and its subdirectories, so keys with subpaths reload too.
func (h *HotLoader) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return h.addWatch(path)
	})
}

// inTree reports whether path lies in the template directory tree.
func (h *HotLoader) inTree(path string) bool {
	rel, err := filepath.Rel(h.templateDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// handleEvent processes a single file system event.
func (h *HotLoader) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 && h.inTree(event.Name) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := h.watchTree(event.Name); err != nil {
				h.config.Log(1, "TemplateHotLoader: cannot watch %s: %v", event.Name, err)
			}
			return
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && h.inTree(event.Name) {
		h.forgetDir(event.Name)
	}
	if !strings.HasSuffix(event.Name, h.engine.DefaultSuffix) {
		return
	}

	h.config.Log(3, "TemplateHotLoader: event %s on %s", event.Op, event.Name)

	// Handle symlink changes in the template tree
	if h.inTree(event.Name) {
		switch {
		case event.Op&fsnotify.Create != 0:
			h.updateSymlinkWatch(event.Name)
		case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
			h.removeSymlinkWatch(event.Name)
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
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

// processPendingReloads reloads files that have been pending for longer than debounceDelay.
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
		h.reloadFile(path)
	}
}

// reloadFile reads a changed template and publishes it to its cached source.
// Templates nobody has requested yet are skipped; they load fresh on first use.
func (h *HotLoader) reloadFile(filePath string) {
	reloadPath := h.resolveReloadPath(filePath)
	if reloadPath == "" {
		return
	}

	content, err := os.ReadFile(reloadPath)
	if err != nil {
		h.config.Log(1, "TemplateHotLoader: error reading %s: %v", reloadPath, err)
		return
	}

	key, ok := h.templateKey(reloadPath)
	if !ok {
		return
	}
	text := string(content)

	h.post(func() {
		src, ok := h.engine.Lookup(key)
		if !ok || !src.Requested() {
			h.config.Log(2, "TemplateHotLoader: skipping %s (not requested)", key)
			return
		}
		h.config.Log(1, "TemplateHotLoader: reloading %s", key)
		src.Publish(text)
	})
}

func (h *HotLoader) templateKey(path string) (string, bool) {
	rel, err := filepath.Rel(h.templateDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), h.engine.DefaultSuffix), true
}

// scanSymlinks scans the template tree for symlinks and watches their target directories.
func (h *HotLoader) scanSymlinks() error {
	return filepath.WalkDir(h.templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), h.engine.DefaultSuffix) {
			h.updateSymlinkWatch(path)
		}
		return nil
	})
}

// updateSymlinkWatch checks if a file is a symlink and updates watches accordingly.
func (h *HotLoader) updateSymlinkWatch(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	info, err := os.Lstat(filePath)
	if err != nil {
		return
	}

	if oldTarget, ok := h.symlinkTargets[filePath]; ok {
		h.removeWatchLocked(oldTarget)
		delete(h.symlinkTargets, filePath)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(filePath)
		if err != nil {
			h.config.Log(2, "TemplateHotLoader: cannot resolve symlink %s: %v", filePath, err)
			return
		}

		targetDir := filepath.Dir(target)
		h.symlinkTargets[filePath] = targetDir
		h.addWatchLocked(targetDir)
		h.config.Log(2, "TemplateHotLoader: watching symlink target dir %s for %s", targetDir, filePath)
	}
}

// removeSymlinkWatch removes the watch for a symlink's target directory.
func (h *HotLoader) removeSymlinkWatch(filePath string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if targetDir, ok := h.symlinkTargets[filePath]; ok {
		h.removeWatchLocked(targetDir)
		delete(h.symlinkTargets, filePath)
	}
}

func (h *HotLoader) addWatch(dir string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addWatchLocked(dir)
}

func (h *HotLoader) addWatchLocked(dir string) error {
	h.watchedDirs[dir]++
	if h.watchedDirs[dir] == 1 {
		if err := h.watcher.Add(dir); err != nil {
			h.watchedDirs[dir]--
			return err
		}
		h.config.Log(2, "TemplateHotLoader: added watch for %s", dir)
	}
	return nil
}

// forgetDir drops a removed directory of the template tree. The watcher has
// already dropped its watch, and a directory created later under the same
// name must be watched again.
func (h *HotLoader) forgetDir(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchedDirs[dir]; ok {
		delete(h.watchedDirs, dir)
		h.config.Log(2, "TemplateHotLoader: forgot removed dir %s", dir)
	}
}

func (h *HotLoader) removeWatchLocked(dir string) {
	h.watchedDirs[dir]--
	if h.watchedDirs[dir] <= 0 {
		h.watcher.Remove(dir)
		delete(h.watchedDirs, dir)
		h.config.Log(2, "TemplateHotLoader: removed watch for %s", dir)
	}
}

// resolveReloadPath determines which file to reload based on the changed path.
func (h *HotLoader) resolveReloadPath(changedPath string) string {
	if h.inTree(changedPath) {
		if _, err := os.Stat(changedPath); err != nil {
			return ""
		}
		return changedPath
	}

	// A change in a symlink target directory: find the template linking to it
	h.mu.Lock()
	defer h.mu.Unlock()

	changedDir := filepath.Dir(changedPath)
	changedBase := filepath.Base(changedPath)

	for templatePath, targetDir := range h.symlinkTargets {
		if targetDir == changedDir {
			target, err := filepath.EvalSymlinks(templatePath)
			if err == nil && filepath.Base(target) == changedBase {
				return templatePath
			}
		}
	}

	return ""
}
