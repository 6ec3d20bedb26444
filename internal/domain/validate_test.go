package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuery() CountQuery {
	return CountQuery{
		Window:           TimeWindow{Start: 100, End: 200},
		PolygonLayer:     "jkt_rw_boundary",
		ConfirmedLayer:   "all_reports",
		UnconfirmedLayer: "tweet_reports_unconfirmed",
	}
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %T", err)
	assert.Equal(t, field, ve.Field)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "integer", raw: "441860645", want: 441860645},
		{name: "fraction truncated", raw: "100.9", want: 100},
		{name: "whitespace", raw: " 42 ", want: 42},
		{name: "empty", raw: "", wantErr: true},
		{name: "not a number", raw: "yesterday", wantErr: true},
		{name: "NaN", raw: "NaN", wantErr: true},
		{name: "infinity", raw: "+Inf", wantErr: true},
		{name: "negative", raw: "-5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp("window.start", tt.raw)
			if tt.wantErr {
				requireValidationField(t, err, "window.start")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTimeWindow_RejectsNaN(t *testing.T) {
	_, err := NewTimeWindow(math.NaN(), 10)
	requireValidationField(t, err, "window.start")

	_, err = NewTimeWindow(10, math.NaN())
	requireValidationField(t, err, "window.end")
}

func TestNewTimeWindow_RejectsReversedBounds(t *testing.T) {
	_, err := NewTimeWindow(200, 100)
	requireValidationField(t, err, "window.end")
}

func TestNewTimeWindow_AllowsEmptyWindow(t *testing.T) {
	w, err := NewTimeWindow(100, 100)
	require.NoError(t, err)
	assert.Equal(t, TimeWindow{Start: 100, End: 100}, w)
}

func TestCountQuery_Validate(t *testing.T) {
	require.NoError(t, validQuery().Validate())

	q := validQuery()
	q.PolygonLayer = ""
	requireValidationField(t, q.Validate(), "polygon_layer")

	q = validQuery()
	q.ConfirmedLayer = "  "
	requireValidationField(t, q.Validate(), "confirmed_layer")

	q = validQuery()
	q.UnconfirmedLayer = "reports; DROP TABLE reports"
	requireValidationField(t, q.Validate(), "unconfirmed_layer")

	q = validQuery()
	q.Window = TimeWindow{Start: -1, End: 10}
	requireValidationField(t, q.Validate(), "window.start")
}

func TestValidateLayer_SchemaQualified(t *testing.T) {
	assert.NoError(t, ValidateLayer("polygon_layer", "public.jkt_rw_boundary"))
	assert.Error(t, ValidateLayer("polygon_layer", "public."))
}

func TestHistoricalQuery_Validate(t *testing.T) {
	base := HistoricalQuery{
		StartTime:        441860645,
		Blocks:           3,
		PolygonLayer:     "rw",
		ConfirmedLayer:   "all_reports",
		UnconfirmedLayer: "tweet_reports_unconfirmed",
	}
	require.NoError(t, base.Validate())

	for _, blocks := range []int{0, -1, 25} {
		q := base
		q.Blocks = blocks
		requireValidationField(t, q.Validate(), "blocks")
	}
	for _, blocks := range []int{1, 24} {
		q := base
		q.Blocks = blocks
		assert.NoError(t, q.Validate())
	}

	q := base
	q.StartTime = -1
	requireValidationField(t, q.Validate(), "start_time")
}
