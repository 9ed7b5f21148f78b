package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/room"
)

// ResultRecorder persists finished match outcomes.
//
// Postcondition: Returns nil on success or a non-nil error on failure.
type ResultRecorder interface {
	RecordResult(ctx context.Context, res room.Result) error
}

// HistoryWriter records finished matches off the mutation path.
// It satisfies server.Service.
type HistoryWriter struct {
	recorder ResultRecorder
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	closed  bool
	started bool
	results chan room.Result
	done    chan struct{}
}

// NewHistoryWriter creates a HistoryWriter with a queue of bufferSize results.
//
// Precondition: recorder and logger must be non-nil.
func NewHistoryWriter(recorder ResultRecorder, bufferSize int, logger *zap.Logger) *HistoryWriter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &HistoryWriter{
		recorder: recorder,
		timeout:  5 * time.Second,
		logger:   logger,
		results:  make(chan room.Result, bufferSize),
		done:     make(chan struct{}),
	}
}

// Record enqueues res without blocking.
//
// Postcondition: Returns false when the queue is full or the writer is stopped.
func (h *HistoryWriter) Record(res room.Result) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.results <- res:
		return true
	default:
		h.logger.Warn("match history queue full, dropping result", zap.String("room_id", res.RoomID))
		return false
	}
}

// Start drains the queue until Stop is called. It blocks.
// Start returns immediately when Stop has already run.
func (h *HistoryWriter) Start() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	defer close(h.done)
	for res := range h.results {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.recorder.RecordResult(ctx, res)
		cancel()
		if err != nil {
			h.logger.Warn("recording match result",
				zap.String("room_id", res.RoomID),
				zap.Error(err),
			)
			continue
		}
		h.logger.Debug("match result recorded",
			zap.String("room_id", res.RoomID),
			zap.String("winner", res.Winner),
		)
	}
	return nil
}

// Stop closes the queue and waits for queued results to be written. When
// Start never ran, queued results are dropped and Stop returns at once.
func (h *HistoryWriter) Stop() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.results)
	}
	started := h.started
	h.mu.Unlock()

	if !started {
		if n := len(h.results); n > 0 {
			h.logger.Warn("match history stopped before start, dropping results", zap.Int("count", n))
		}
		return
	}
	<-h.done
}
