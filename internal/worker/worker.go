// Package worker drains the work queue and regenerates threshold warnings.
package worker

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"classattend/internal/attendance"
	"classattend/internal/metrics"
	"classattend/internal/queue"
)

// WarningGenerator is the engine operation the worker drives.
type WarningGenerator interface {
	GenerateWarningsForClass(ctx context.Context, classID string, rng attendance.DateRange) (int, error)
}

// Worker consumes warnings.recompute messages.
type Worker struct {
	q   queue.Queue
	gen WarningGenerator
	log zerolog.Logger
}

// New creates a worker.
func New(q queue.Queue, gen WarningGenerator, log zerolog.Logger) *Worker {
	return &Worker{q: q, gen: gen, log: log.With().Str("component", "worker").Logger()}
}

// Run processes messages until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info().Msg("worker started, waiting for messages")
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	w.log.Info().Msg("worker stopped")
	return nil
}

// Handle processes one message and reports how many warnings it created.
// Failures are logged; a later message for the same class retries the work.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) int {
	if msg.Type != queue.TypeWarningsRecompute {
		w.log.Debug().Str("type", msg.Type).Msg("ignoring message")
		return 0
	}
	classID := strings.TrimSpace(string(msg.Body))
	if classID == "" {
		w.log.Warn().Msg("recompute message without class id")
		return 0
	}
	created, err := w.gen.GenerateWarningsForClass(ctx, classID, attendance.DateRange{})
	if err != nil {
		w.log.Error().Err(err).Str("class_id", classID).Msg("warning generation failed")
		return 0
	}
	metrics.WarningsCreated.Add(float64(created))
	w.log.Debug().Str("class_id", classID).Int("created", created).Msg("warnings recomputed")
	return created
}
