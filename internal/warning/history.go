package warning

import (
	"context"
	"sync"

	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
)

// HistoryRepo is the optional durable store for fired warnings.
type HistoryRepo interface {
	Insert(ctx context.Context, w model.Warning) error
	List(ctx context.Context, limit int) ([]model.Warning, error)
}

// History keeps an ops-facing trail of fired warnings: a bounded in-memory
// ring always, Postgres additionally when configured. Writes go through a
// buffered channel so a slow database never blocks evaluation.
type History struct {
	events chan model.Warning
	buffer *historyBuffer
	repo   HistoryRepo
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewHistory(repo HistoryRepo) *History {
	h := &History{
		events: make(chan model.Warning, 256),
		buffer: newHistoryBuffer(256),
		repo:   repo,
		done:   make(chan struct{}),
	}
	go h.processEvents()
	return h
}

// Record implements Sink. After Close the durable write is dropped; the
// ring buffer still takes the event, so a warning fired during shutdown is
// never a panic, only a lost row.
func (h *History) Record(ctx context.Context, w model.Warning) error {
	h.buffer.Add(w)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		logger.Warn("Warning history closed, dropping event", "key", w.Key)
		return nil
	}
	select {
	case h.events <- w:
	default:
		// channel full: drop the durable write to protect the hot path
		logger.Warn("Warning history buffer full, dropping event", "key", w.Key)
	}
	return nil
}

// List returns recent warnings, newest first, preferring the durable store.
func (h *History) List(ctx context.Context, limit int) ([]model.Warning, error) {
	if h.repo != nil {
		records, err := h.repo.List(ctx, limit)
		if err == nil {
			return records, nil
		}
		logger.Error("Warning history query failed, serving ring buffer", "error", err)
	}
	return h.buffer.List(limit), nil
}

func (h *History) processEvents() {
	defer close(h.done)
	for w := range h.events {
		if h.repo == nil {
			continue
		}
		if err := h.repo.Insert(context.Background(), w); err != nil {
			logger.Error("Failed to persist warning event", "key", w.Key, "error", err)
		}
	}
}

// Close is idempotent and drains pending durable writes before returning.
func (h *History) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.events)
	h.mu.Unlock()
	<-h.done
}

type historyBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []model.Warning
	nextIndex int
}

func newHistoryBuffer(maxSize int) *historyBuffer {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &historyBuffer{
		maxSize: maxSize,
		records: make([]model.Warning, 0, maxSize),
	}
}

func (b *historyBuffer) Add(w model.Warning) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, w)
		return
	}
	b.records[b.nextIndex] = w
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

func (b *historyBuffer) List(limit int) []model.Warning {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	total := len(b.records)
	results := make([]model.Warning, 0, limit)
	for i := 0; i < total && len(results) < limit; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		results = append(results, b.records[idx])
	}
	return results
}
