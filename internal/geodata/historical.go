package geodata

import (
	"context"
	"fmt"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/couchcryptid/disaster-report-server/internal/observability"
)

// Summarizer produces the whole-layer summary for one window.
// *Aggregator implements it.
type Summarizer interface {
	Summary(ctx context.Context, q domain.CountQuery) ([]domain.Row, error)
}

// HistoricalBuilder assembles hourly summaries into a series.
type HistoricalBuilder struct {
	summarizer Summarizer
	metrics    *observability.Metrics
}

// NewHistoricalBuilder creates a builder over s.
func NewHistoricalBuilder(s Summarizer, metrics *observability.Metrics) *HistoricalBuilder {
	return &HistoricalBuilder{summarizer: s, metrics: metrics}
}

// HistoricalCountByArea summarises q.Blocks consecutive hourly windows starting
// at q.StartTime. Blocks are queried one at a time in order; the next query is
// issued only after the previous one completes. Any failure discards the
// blocks gathered so far and returns a nil series.
//
// Both window bounds are inclusive, so a report created exactly on a block
// boundary is counted in both adjacent blocks.
func (b *HistoricalBuilder) HistoricalCountByArea(ctx context.Context, q domain.HistoricalQuery) (*domain.HistoricalSeries, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	series := &domain.HistoricalSeries{Blocks: make([]domain.HistoricalBlock, 0, q.Blocks)}
	cq := q.CountQuery()

	for i := range q.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("historical block %d: %w", i, err)
		}

		rows, err := b.summarizer.Summary(ctx, cq)
		if err != nil {
			return nil, fmt.Errorf("historical block %d: %w", i, err)
		}

		fields := domain.Row{}
		if len(rows) > 0 {
			fields = rows[0]
		}
		series.Blocks = append(series.Blocks, domain.NewHistoricalBlock(fields, cq.Window))
		if b.metrics != nil {
			b.metrics.HistoricalBlocks.Inc()
		}

		cq.Window = cq.Window.Shift(domain.BlockSeconds)
	}
	return series, nil
}
