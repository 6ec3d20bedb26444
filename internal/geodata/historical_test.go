package geodata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/couchcryptid/disaster-report-server/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historicalQuery(start int64, blocks int) domain.HistoricalQuery {
	return domain.HistoricalQuery{
		StartTime:        start,
		Blocks:           blocks,
		PolygonLayer:     "rw",
		ConfirmedLayer:   "all_reports",
		UnconfirmedLayer: "tweet_reports_unconfirmed",
	}
}

func TestHistoricalCountByArea_ThreeBlocks(t *testing.T) {
	s := &mockSummarizer{rows: [][]domain.Row{
		{{"plant": "grevillea"}},
		{{"plant": "banksia"}},
		{{"plant": "lillypilly"}},
	}}
	m := observability.NewMetricsForTesting()
	b := NewHistoricalBuilder(s, m)

	series, err := b.HistoricalCountByArea(context.Background(), historicalQuery(441860645, 3))
	require.NoError(t, err)
	require.Len(t, series.Blocks, 3)

	assert.Equal(t, "1984-01-02T03:04:05.000Z", series.Blocks[0].StartTime)
	assert.Equal(t, "1984-01-02T04:04:05.000Z", series.Blocks[0].EndTime)
	assert.Equal(t, series.Blocks[0].EndTime, series.Blocks[1].StartTime)
	assert.Equal(t, "lillypilly", series.Blocks[2].Fields["plant"])
	assert.InDelta(t, 3, testutil.ToFloat64(m.HistoricalBlocks), 0)

	data, err := json.Marshal(series)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blocks":[
		{"plant":"grevillea","start_time":"1984-01-02T03:04:05.000Z","end_time":"1984-01-02T04:04:05.000Z"},
		{"plant":"banksia","start_time":"1984-01-02T04:04:05.000Z","end_time":"1984-01-02T05:04:05.000Z"},
		{"plant":"lillypilly","start_time":"1984-01-02T05:04:05.000Z","end_time":"1984-01-02T06:04:05.000Z"}
	]}`, string(data))

	for _, q := range s.queries {
		assert.Equal(t, domain.LayerRef("rw"), q.PolygonLayer)
		assert.Equal(t, domain.LayerRef("all_reports"), q.ConfirmedLayer)
		assert.Equal(t, domain.LayerRef("tweet_reports_unconfirmed"), q.UnconfirmedLayer)
	}
}

func TestHistoricalCountByArea_BlocksAreOrderedAndContiguous(t *testing.T) {
	for blocks := 1; blocks <= domain.MaxBlocks; blocks++ {
		s := &mockSummarizer{}
		series, err := NewHistoricalBuilder(s, nil).HistoricalCountByArea(context.Background(), historicalQuery(1487581200, blocks))
		require.NoError(t, err)
		require.Len(t, series.Blocks, blocks)
		require.Len(t, s.queries, blocks)

		for i, blk := range series.Blocks {
			start, err := time.Parse(time.RFC3339, blk.StartTime)
			require.NoError(t, err)
			end, err := time.Parse(time.RFC3339, blk.EndTime)
			require.NoError(t, err)
			assert.Equal(t, time.Hour, end.Sub(start))
			if i > 0 {
				assert.Equal(t, series.Blocks[i-1].EndTime, blk.StartTime)
			}
		}
	}
}

// Bounds are inclusive at both ends, so consecutive blocks share their
// boundary second. This test pins that behaviour.
func TestHistoricalCountByArea_BoundarySecondIsSharedByAdjacentBlocks(t *testing.T) {
	exec := &mockExecutor{}
	b := NewHistoricalBuilder(NewAggregator(exec), nil)

	_, err := b.HistoricalCountByArea(context.Background(), domain.HistoricalQuery{
		StartTime:        1000,
		Blocks:           2,
		PolygonLayer:     "jkt_rw_boundary",
		ConfirmedLayer:   "all_reports",
		UnconfirmedLayer: "tweet_reports_unconfirmed",
	})
	require.NoError(t, err)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, []any{int64(1000), int64(4600)}, exec.calls[0].args)
	assert.Equal(t, []any{int64(4600), int64(8200)}, exec.calls[1].args)
	assert.Contains(t, exec.calls[0].query, ">= to_timestamp($1)")
	assert.Contains(t, exec.calls[0].query, "<= to_timestamp($2)")
	assert.False(t, strings.Contains(exec.calls[0].query, "< to_timestamp($2)"))
}

func TestHistoricalCountByArea_FailureDiscardsSeries(t *testing.T) {
	dbErr := &domain.DatabaseError{Kind: domain.QueryFailed, Err: errors.New("relation does not exist")}
	s := &mockSummarizer{errAt: 2, err: dbErr}

	series, err := NewHistoricalBuilder(s, nil).HistoricalCountByArea(context.Background(), historicalQuery(0, 5))

	assert.Nil(t, series)
	require.ErrorIs(t, err, dbErr)
	assert.Equal(t, domain.QueryFailed, domain.DatabaseErrorKind(err))
	assert.Len(t, s.queries, 2, "no block is queried after a failure")
}

func TestHistoricalCountByArea_InvalidQueryIssuesNothing(t *testing.T) {
	tests := []struct {
		name  string
		q     domain.HistoricalQuery
		field string
	}{
		{"zero blocks", historicalQuery(0, 0), "blocks"},
		{"too many blocks", historicalQuery(0, 25), "blocks"},
		{"negative start", historicalQuery(-1, 1), "start_time"},
		{"missing layer", domain.HistoricalQuery{Blocks: 1, ConfirmedLayer: "a", UnconfirmedLayer: "b"}, "polygon_layer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSummarizer{}
			series, err := NewHistoricalBuilder(s, nil).HistoricalCountByArea(context.Background(), tt.q)

			assert.Nil(t, series)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, s.queries)
		})
	}
}

func TestHistoricalCountByArea_EmptySummaryKeepsTimes(t *testing.T) {
	s := &mockSummarizer{rows: [][]domain.Row{nil}}

	series, err := NewHistoricalBuilder(s, nil).HistoricalCountByArea(context.Background(), historicalQuery(0, 1))
	require.NoError(t, err)

	data, err := json.Marshal(series.Blocks[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_time":"1970-01-01T00:00:00.000Z","end_time":"1970-01-01T01:00:00.000Z"}`, string(data))
}

func TestHistoricalCountByArea_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &mockSummarizer{}

	series, err := NewHistoricalBuilder(s, nil).HistoricalCountByArea(ctx, historicalQuery(0, 3))

	assert.Nil(t, series)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.queries)
}
