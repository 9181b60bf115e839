package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehub/carehub/internal/domain/records"
)

// Source produces the snapshot to persist. *records.Store satisfies it.
type Source interface {
	Snapshot() *records.Snapshot
}

// SaveObserver is told about every save attempt.
type SaveObserver interface {
	SnapshotSaved(backend string, d time.Duration, err error)
}

// Writer persists the store asynchronously. It implements records.Sink:
// Changed never blocks, and bursts of changes collapse into one save of the
// latest state once the debounce window has passed.
type Writer struct {
	adapter  records.Adapter
	backend  string
	log      zerolog.Logger
	debounce time.Duration
	observer SaveObserver

	signal chan struct{}
	dirty  atomic.Bool

	mu     sync.Mutex // serializes saves
	source Source
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithLogger(l zerolog.Logger) WriterOption {
	return func(w *Writer) { w.log = l }
}

// WithDebounce sets how long the writer waits after a change before saving.
func WithDebounce(d time.Duration) WriterOption {
	return func(w *Writer) { w.debounce = d }
}

func WithObserver(o SaveObserver) WriterOption {
	return func(w *Writer) { w.observer = o }
}

// WithBackend names the backend in logs and metrics.
func WithBackend(name string) WriterOption {
	return func(w *Writer) { w.backend = name }
}

func NewWriter(adapter records.Adapter, opts ...WriterOption) *Writer {
	w := &Writer{
		adapter: adapter,
		backend: "unknown",
		log:     zerolog.Nop(),
		signal:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Bind sets the source the writer snapshots. It must be called before Run
// or Flush.
func (w *Writer) Bind(src Source) {
	w.mu.Lock()
	w.source = src
	w.mu.Unlock()
}

// Changed marks the state dirty and wakes the run loop.
func (w *Writer) Changed() {
	w.dirty.Store(true)
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Pending reports whether a change has not been saved yet.
func (w *Writer) Pending() bool {
	return w.dirty.Load()
}

// Run saves pending changes until ctx is cancelled. Save failures are
// logged and retried on the next change or Flush; Run itself only returns
// when ctx is done.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.signal:
		}

		if w.debounce > 0 {
			timer := time.NewTimer(w.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
		_ = w.save(ctx)
	}
}

// Flush saves any pending change immediately.
func (w *Writer) Flush(ctx context.Context) error {
	return w.save(ctx)
}

func (w *Writer) save(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.source == nil || !w.dirty.Swap(false) {
		return nil
	}

	start := time.Now()
	snap := w.source.Snapshot()
	err := w.adapter.Save(ctx, snap)
	elapsed := time.Since(start)
	if w.observer != nil {
		w.observer.SnapshotSaved(w.backend, elapsed, err)
	}
	if err != nil {
		w.dirty.Store(true)
		w.log.Error().Err(err).
			Str("backend", w.backend).
			Dur("elapsed", elapsed).
			Msg("snapshot save failed")
		return err
	}

	w.log.Debug().
		Str("backend", w.backend).
		Dur("elapsed", elapsed).
		Time("saved_at", snap.SavedAt).
		Msg("snapshot saved")
	return nil
}
