// Package watcher notifies subscribers of file changes under a directory tree.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/edgard/nlud/internal/logger"
)

// Handler receives the changed path relative to the watched root, in slash
// form with a leading "/", e.g. "/intents/greet.json".
type Handler func(path string)

// Subscription is an active registration of a Handler.
type Subscription interface {
	// Remove stops the subscription. It returns once no handler of the
	// subscription is running and none will be started.
	Remove() error
}

// Notifier watches a directory tree.
type Notifier struct {
	root   string
	logger *slog.Logger
}

// New returns a Notifier for the tree rooted at root.
func New(root string, log *slog.Logger) *Notifier {
	if log == nil {
		log = logger.Discard()
	}
	return &Notifier{
		root:   filepath.Clean(root),
		logger: log.With("component", "watcher", "root", root),
	}
}

// Root returns the watched directory.
func (n *Notifier) Root() string {
	return n.root
}

// OnFileChanged watches the tree recursively and calls handler, each time in
// a new goroutine, for every created, written, removed or renamed path.
// The root directory is created if it does not exist.
func (n *Notifier) OnFileChanged(handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("watcher: nil handler")
	}
	if err := os.MkdirAll(n.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create watched directory %s: %w", n.root, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if _, err := n.addTree(w, n.root); err != nil {
		_ = w.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		watcher: w,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go n.loop(ctx, sub, handler)

	n.logger.Debug("Watching directory tree")
	return sub, nil
}

func (n *Notifier) loop(ctx context.Context, sub *subscription, handler Handler) {
	defer close(sub.done)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-sub.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			paths := []string{event.Name}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// files may have landed before the directory was watched
					files, err := n.addTree(sub.watcher, event.Name)
					if err != nil {
						n.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
					paths = append(paths, files...)
				}
			}

			for _, p := range paths {
				rel, err := n.relative(p)
				if err != nil {
					n.logger.Debug("Ignoring path outside of watched root", "path", p)
					continue
				}
				sub.dispatch(ctx, handler, rel)
			}

		case err, ok := <-sub.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("File watcher error", "error", err)
		}
	}
}

// addTree watches dir and its subdirectories and returns the regular files found.
func (n *Notifier) addTree(w *fsnotify.Watcher, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if path != dir {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (n *Notifier) relative(path string) (string, error) {
	rel, err := filepath.Rel(n.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside of %s", path, n.root)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

type subscription struct {
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	removed  bool
	handlers sync.WaitGroup
	once     sync.Once
	closeErr error
}

func (s *subscription) dispatch(ctx context.Context, handler Handler, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || ctx.Err() != nil {
		return
	}
	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		handler(path)
	}()
}

func (s *subscription) Remove() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.removed = true
		s.mu.Unlock()

		s.cancel()
		s.closeErr = s.watcher.Close()
		<-s.done
		s.handlers.Wait()
	})
	return s.closeErr
}
