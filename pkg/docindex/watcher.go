package docindex

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher re-runs the indexer when files in the documents directory change.
type Watcher struct {
	indexer  *Indexer
	debounce time.Duration
	onReport func(*Report)
}

type WatcherOption func(*Watcher)

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithReportHook is called after every run triggered by a change
func WithReportHook(fn func(*Report)) WatcherOption {
	return func(w *Watcher) {
		w.onReport = fn
	}
}

func NewWatcher(indexer *Indexer, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		indexer:  indexer,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is canceled. Bursts of events within the debounce
// window trigger a single Process run.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.From(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create file watcher")
	}
	defer fw.Close()

	if err := fw.Add(w.indexer.docDir); err != nil {
		return goerr.Wrap(err, "failed to watch documents directory", goerr.V("dir", w.indexer.docDir))
	}
	logger.Info("watching documents", "dir", w.indexer.docDir)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ignoreEvent(ev) {
				continue
			}
			logger.Debug("document changed", "path", ev.Name, "op", ev.Op.String())
			if !pending {
				timer.Reset(w.debounce)
				pending = true
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("document watcher error", "error", err)

		case <-timer.C:
			pending = false
			report, err := w.indexer.Process(ctx)
			if err != nil {
				logger.Error("failed to reindex documents", "error", err)
				continue
			}
			if w.onReport != nil {
				w.onReport(report)
			}
		}
	}
}

func ignoreEvent(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return true
	}
	return !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename)
}
