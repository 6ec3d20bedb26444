package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatISO(t *testing.T) {
	assert.Equal(t, "1984-01-02T03:04:05.000Z", FormatISO(441860645))
	assert.Equal(t, "1970-01-01T00:00:00.000Z", FormatISO(0))
}

func TestHistoricalBlock_MarshalFlattensFields(t *testing.T) {
	b := NewHistoricalBlock(Row{"type": "FeatureCollection", "features": nil}, TimeWindow{Start: 441860645, End: 441864245})

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "FeatureCollection",
		"features": null,
		"start_time": "1984-01-02T03:04:05.000Z",
		"end_time": "1984-01-02T04:04:05.000Z"
	}`, string(data))
}

func TestHistoricalBlock_TimesOverrideSummaryFields(t *testing.T) {
	b := NewHistoricalBlock(Row{"start_time": "stale"}, TimeWindow{Start: 0, End: BlockSeconds})

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_time":"1970-01-01T00:00:00.000Z","end_time":"1970-01-01T01:00:00.000Z"}`, string(data))
}

func TestHistoricalSeries_Marshal(t *testing.T) {
	s := HistoricalSeries{Blocks: []HistoricalBlock{
		NewHistoricalBlock(Row{"plant": "grevillea"}, TimeWindow{Start: 0, End: 3600}),
	}}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blocks":[{"plant":"grevillea","start_time":"1970-01-01T00:00:00.000Z","end_time":"1970-01-01T01:00:00.000Z"}]}`, string(data))
}

func TestLastHours_UsesPackageClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Unix(100000, 0)))
	defer SetClock(nil)

	w := LastHours(3)
	assert.Equal(t, TimeWindow{Start: 100000 - 3*3600, End: 100000}, w)
}

func TestTimeWindow_Shift(t *testing.T) {
	w := TimeWindow{Start: 10, End: 20}.Shift(BlockSeconds)
	assert.Equal(t, TimeWindow{Start: 3610, End: 3620}, w)
}

func TestDatabaseError_KindAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("count by area: %w", &DatabaseError{Kind: ConnectionFailed, Err: cause})

	assert.Equal(t, ConnectionFailed, DatabaseErrorKind(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "count by area: database connection error", err.Error())
	assert.Equal(t, DBErrorKind(0), DatabaseErrorKind(cause))
	assert.Equal(t, "timeout", Timeout.String())
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", &ValidationError{Field: "blocks", Reason: "x"})))
	assert.False(t, IsValidation(errors.New("other")))
}
