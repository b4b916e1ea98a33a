package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/madeindigio/codesearch/internal/lang"
)

// excludeDirs mirrors internal/pipeline's defaultExcludeDirs: directory
// names fsnotify never descends into, whether present at watch-start time
// or created later.
var excludeDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "vendor": true, "dist": true, "build": true, "out": true, "bin": true,
	".venv": true, "venv": true, "__pycache__": true, ".tox": true, ".mypy_cache": true, ".pytest_cache": true,
	"target": true, ".terraform": true, ".idea": true, ".vscode": true,
}

func isExcludedDir(name string) bool {
	return excludeDirs[name] || (strings.HasPrefix(name, ".") && name != ".")
}

// Handler is notified once a repository's debounced, batched changes are
// ready to be applied.
type Handler interface {
	// HandleChanges reindexes changedPaths (relative to rootPath) for
	// repositoryID, and HandleDeletes removes deleted paths from the store.
	HandleChanges(ctx context.Context, repositoryID, rootPath, collectionID string, changedPaths []string) error
	HandleDeletes(ctx context.Context, repositoryID, collectionID string, deletedPaths []string) error
}

// Repository is one directory tree a Watcher tracks.
type Repository struct {
	ID           string
	RootPath     string
	CollectionID string
}

// Config tunes the debounce window and batch shape (§4.9, §6 watcher.*).
type Config struct {
	DebounceWindow time.Duration
	BatchSize      int
	BatchTimeout   time.Duration
}

// DefaultConfig matches the teacher's 500ms-class debounce tuned down to
// the spec's stated window, with a modest batch shape.
func DefaultConfig() Config {
	return Config{DebounceWindow: 300 * time.Millisecond, BatchSize: 50, BatchTimeout: 2 * time.Second}
}

// Watcher is an fsnotify-based watcher generalized from the teacher's
// single-project CodeWatcher to N repositories, each with its own
// debouncer and batcher draining into Handler.
type Watcher struct {
	registry *lang.Registry
	handler  Handler
	cfg      Config

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	repos map[string]*Repository // rootPath -> repository

	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// New builds a Watcher. Call Watch to begin tracking a repository and Run
// to start its event loop.
func New(registry *lang.Registry, handler Handler, cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		registry: registry,
		handler:  handler,
		cfg:      cfg,
		fsw:      fsw,
		repos:    make(map[string]*Repository),
	}, nil
}

// Watch adds repo's root directory and all its non-excluded subdirectories
// to the fsnotify watch set (fsnotify is not recursive).
func (w *Watcher) Watch(repo Repository) error {
	info, err := os.Stat(repo.RootPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrNotExist
	}

	if err := w.fsw.Add(repo.RootPath); err != nil {
		return err
	}
	err = filepath.WalkDir(repo.RootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != repo.RootPath {
			if isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				slog.Warn("watch: failed to add subdirectory", "path", path, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.repos[filepath.Clean(repo.RootPath)] = &repo
	w.mu.Unlock()
	return nil
}

// repoFor finds the registered repository whose root contains path.
func (w *Watcher) repoFor(path string) *Repository {
	w.mu.Lock()
	defer w.mu.Unlock()
	var best *Repository
	for root, r := range w.repos {
		if strings.HasPrefix(path, root+string(filepath.Separator)) || path == root {
			if best == nil || len(root) > len(best.RootPath) {
				best = r
			}
		}
	}
	return best
}

// Run starts the fsnotify event loop. It blocks until ctx is cancelled or
// Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	batchers := make(map[string]*Batcher[string]) // repositoryID -> batcher
	var batchersMu sync.Mutex

	flush := func(repo *Repository, b *Batcher[string]) {
		batch, ok := b.Flush()
		if !ok {
			return
		}
		if err := w.handler.HandleChanges(ctx, repo.ID, repo.RootPath, repo.CollectionID, batch); err != nil {
			slog.Warn("watch: failed to handle batch", "repository", repo.ID, "error", err)
		}
	}

	debouncer := NewDebouncer(w.cfg.DebounceWindow, func(evt Event) {
		repo := w.repoFor(evt.Path)
		if repo == nil {
			return
		}
		rel, err := filepath.Rel(repo.RootPath, evt.Path)
		if err != nil {
			rel = filepath.Base(evt.Path)
		}
		rel = filepath.ToSlash(rel)

		if evt.Kind == EventDelete {
			if err := w.handler.HandleDeletes(ctx, repo.ID, repo.CollectionID, []string{rel}); err != nil {
				slog.Warn("watch: failed to handle delete", "repository", repo.ID, "path", rel, "error", err)
			}
			return
		}

		batchersMu.Lock()
		b, ok := batchers[repo.ID]
		if !ok {
			b = NewBatcher[string](w.cfg.BatchSize)
			batchers[repo.ID] = b
		}
		batchersMu.Unlock()

		if batch, full := b.Push(rel); full {
			if err := w.handler.HandleChanges(ctx, repo.ID, repo.RootPath, repo.CollectionID, batch); err != nil {
				slog.Warn("watch: failed to handle batch", "repository", repo.ID, "error", err)
			}
		}
	})
	defer debouncer.Stop()

	ticker := time.NewTicker(w.cfg.BatchTimeout)
	defer ticker.Stop()

	w.wg.Add(1)
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSNotifyEvent(evt, debouncer)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch: fsnotify error", "error", err)
		case <-ticker.C:
			batchersMu.Lock()
			for id, b := range batchers {
				w.mu.Lock()
				var repo *Repository
				for _, r := range w.repos {
					if r.ID == id {
						repo = r
						break
					}
				}
				w.mu.Unlock()
				if repo != nil {
					flush(repo, b)
				}
			}
			batchersMu.Unlock()
		}
	}
}

func (w *Watcher) handleFSNotifyEvent(evt fsnotify.Event, d *Debouncer) {
	if evt.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if !isExcludedDir(filepath.Base(evt.Name)) {
				if err := w.fsw.Add(evt.Name); err != nil {
					slog.Warn("watch: failed to add new directory", "dir", evt.Name, "error", err)
				}
			}
			return
		}
	}

	if !w.isCodeFile(evt.Name) {
		return
	}

	switch {
	case evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		d.Push(Event{Path: evt.Name, Kind: EventDelete})
	case evt.Op&fsnotify.Create == fsnotify.Create:
		d.Push(Event{Path: evt.Name, Kind: EventCreate})
	case evt.Op&fsnotify.Write == fsnotify.Write:
		d.Push(Event{Path: evt.Name, Kind: EventModify})
	}
}

func (w *Watcher) isCodeFile(path string) bool {
	ext := filepath.Ext(path)
	if ext == "" {
		return false
	}
	_, ok := w.registry.ForExtension(ext)
	return ok
}

// Stop cancels the event loop and closes the underlying fsnotify watcher
// (idempotent).
func (w *Watcher) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		_ = w.fsw.Close()
		w.wg.Wait()
	})
}
