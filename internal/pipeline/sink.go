package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// load sends rows to every loader in batches of BatchSize. Sinks are visited
// in name order.
func (p *Pipeline) load(ctx context.Context, rows []domain.Row, logger *slog.Logger) error {
	if len(p.stages.Loaders) == 0 || len(rows) == 0 {
		return nil
	}
	size := p.cfg.BatchSize
	if size <= 0 {
		size = len(rows)
	}
	names := make([]string, 0, len(p.stages.Loaders))
	for name := range p.stages.Loaders {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		loader := p.stages.Loaders[name]
		for batch := range slices.Chunk(rows, size) {
			if err := p.loadWithRetry(ctx, name, loader, batch, logger); err != nil {
				return fmt.Errorf("%s sink: %w", name, err)
			}
		}
		logger.Info("rows loaded", "sink", name, "rows", len(rows))
	}
	return nil
}

// loadWithRetry retries one batch with exponential backoff until it
// succeeds, maxAttempts is reached, or ctx ends.
func (p *Pipeline) loadWithRetry(ctx context.Context, name string, loader BatchLoader, batch []domain.Row, logger *slog.Logger) error {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err = loader.LoadBatch(ctx, batch); err == nil {
			p.metrics.SinkWrites.WithLabelValues(name, "success").Inc()
			return nil
		}
		p.metrics.SinkWrites.WithLabelValues(name, "error").Inc()
		logger.Error("load batch failed", "sink", name, "error", err,
			"batch_size", len(batch), "attempt", attempt)
		if attempt == p.maxAttempts || !p.backoffOrStop(ctx, &backoff) {
			break
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the caller should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, p.maxBackoff)
	return true
}
