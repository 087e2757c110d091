// Package watch splits CSV files dropped into a directory.
//
// The watcher reacts to create and write events for *.csv files directly
// inside the directory. Events for one file are debounced so a file still
// being copied is split once, after writes have stopped. Hidden files,
// directories and anything inside a split output directory are ignored.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/csvsplit/internal/core"
	"github.com/JonMunkholm/csvsplit/internal/logging"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Splitter runs one split to completion. *core.Service satisfies it.
type Splitter interface {
	SplitNow(ctx context.Context, req core.SplitRequest, onProgress core.ProgressFunc) (*core.SplitResult, error)
}

// Options configures a Watcher.
type Options struct {
	Dir      string
	Rows     int // Rows per output file; 0 lets the service choose
	Debounce time.Duration

	// OnResult, if set, is called after every split attempt.
	OnResult func(path string, res *core.SplitResult, err error)
}

// Watcher splits files that appear in a directory.
type Watcher struct {
	dir      string
	rows     int
	debounce time.Duration
	splitter Splitter
	onResult func(string, *core.SplitResult, error)

	mu      sync.Mutex
	pending map[string]*time.Timer
	queue   chan string
}

// New returns a Watcher for opts.Dir. It does not start watching.
func New(splitter Splitter, opts Options) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      filepath.Clean(opts.Dir),
		rows:     opts.Rows,
		debounce: debounce,
		splitter: splitter,
		onResult: opts.OnResult,
		pending:  make(map[string]*time.Timer),
		queue:    make(chan string, 64),
	}
}

// Run watches until ctx is cancelled. Splits run one at a time on a
// separate goroutine, so a long split never drops events.
//
// Cancelling ctx stops new splits. A split already running is not
// cancelled with it; Run returns once that split ends. Stop it early
// through the Splitter (core.Service.CancelAll).
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	slog.Info("watching for csv files", "dir", w.dir, "rows", w.rows, "debounce", w.debounce)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx)
	}()
	defer func() {
		w.stopTimers()
		wg.Wait()
		slog.Info("watcher stopped", "dir", w.dir)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleFsEvent(event); ok {
				w.schedule(ctx, path)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("watch event overflow; some files may be missed", "dir", w.dir)
				continue
			}
			slog.Error("watch error", "dir", w.dir, "error", err)
		}
	}
}

// handleFsEvent returns the path to split for event, if any.
func (w *Watcher) handleFsEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}

	path := filepath.Clean(event.Name)
	if filepath.Dir(path) != w.dir {
		return "", false
	}

	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !core.IsCSV(name) {
		return "", false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.queue <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			if ctx.Err() != nil {
				return
			}
			w.split(ctx, path)
		}
	}
}

func (w *Watcher) split(ctx context.Context, path string) {
	logger := logging.WithFields(ctx, "file", path)
	logger.Info("split triggered by watch")

	res, err := w.splitter.SplitNow(context.WithoutCancel(ctx), core.SplitRequest{
		Path:      path,
		ChunkSize: w.rows,
		Source:    "watch",
	}, nil)

	switch {
	case err != nil && res != nil && res.Chunks > 0:
		logger.Warn("watch split saved with failures", "dir", res.OutputDir, "failed", len(res.Failed), "error", err)
	case err != nil:
		logger.Error("watch split failed", "error", err, "code", core.MapError(err).Code)
	default:
		logger.Info("watch split complete", "dir", res.OutputDir, "chunks", res.Chunks, "encoding", res.Encoding)
	}

	if w.onResult != nil {
		w.onResult(path, res, err)
	}
}
