// Package ingest feeds the finding log from a drop directory. Analyzer
// lenses run out of process and publish finding documents as JSON files;
// the watcher picks them up, normalizes them, and appends them to the
// store. Appends are idempotent on the finding id, so re-delivered or
// re-written files are harmless.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/inquestlabs/inquest/domain/finding"
	"github.com/inquestlabs/inquest/infrastructure/logging"
	"github.com/inquestlabs/inquest/infrastructure/telemetry"
)

// ErrNotDirectory is returned when the configured drop path is not a
// directory.
var ErrNotDirectory = errors.New("findings path is not a directory")

// Sink receives normalized findings. *finding.Store satisfies it.
type Sink interface {
	Append(f finding.Finding) (finding.Finding, error)
}

// Watcher tails a findings drop directory.
type Watcher struct {
	dir     string
	sink    Sink
	watcher *fsnotify.Watcher
	log     *bolt.Logger
	metrics *telemetry.MetricsProvider

	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithMetrics instruments ingestion. Nil disables instrumentation.
func WithMetrics(mp *telemetry.MetricsProvider) Option {
	return func(w *Watcher) {
		w.metrics = mp
	}
}

// NewWatcher creates a watcher for the given drop directory. The directory
// must exist; creating it is the deployment's job, not the engine's.
func NewWatcher(dir string, sink Sink, log *bolt.Logger, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid findings directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("findings directory: %w", err)
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	}

	if log == nil {
		log = logging.Get()
	}
	w := &Watcher{
		dir:     abs,
		sink:    sink,
		watcher: fsw,
		log:     log,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run sweeps the directory once for documents already present, then follows
// create and write events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	if err := w.sweep(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.ingestFile(ctx, ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.NewEvent(w.log.Warn()).
				Add(logging.Component("ingest")).
				Add(logging.ErrorField(err)).
				Msg("watch error")
		}
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}

// Done is closed when Run has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// sweep ingests documents that landed before the watch started.
func (w *Watcher) sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("sweeping findings directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// ingestFile parses one document and appends its findings. Failures are
// logged, never fatal: a half-written file fires another write event when
// the analyzer finishes, and the idempotent append absorbs the replay.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	if !eligible(path) {
		return
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the watched drop directory
	if err != nil {
		logging.NewEvent(w.log.Warn()).
			Add(logging.Component("ingest")).
			Add(logging.Str("file", path)).
			Add(logging.ErrorField(err)).
			Msg("unreadable finding document")
		return
	}

	findings, err := parseDocument(data)
	if err != nil {
		logging.NewEvent(w.log.Warn()).
			Add(logging.Component("ingest")).
			Add(logging.Str("file", path)).
			Add(logging.ErrorField(err)).
			Msg("malformed finding document")
		return
	}

	for _, f := range findings {
		stored, err := w.sink.Append(f)
		if err != nil {
			logging.NewEvent(w.log.Warn()).
				Add(logging.Component("ingest")).
				Add(logging.Str("file", path)).
				Add(logging.FindingID(f.ID)).
				Add(logging.ErrorField(err)).
				Msg("finding rejected")
			continue
		}
		w.metrics.RecordFindingIngested(ctx, stored.LensID)
		logging.NewEvent(w.log.Debug()).
			Add(logging.Component("ingest")).
			Add(logging.FindingID(stored.ID)).
			Add(logging.Lens(stored.LensID)).
			Msg("finding ingested")
	}
}

// eligible filters out non-JSON files and editor/analyzer scratch files.
func eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".json")
}

// parseDocument accepts either a single finding object or an array of them.
func parseDocument(data []byte) ([]finding.Finding, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	if trimmed[0] == '[' {
		var many []finding.Finding
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, err
		}
		return many, nil
	}

	var one finding.Finding
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []finding.Finding{one}, nil
}
