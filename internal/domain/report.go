package domain

import (
	"encoding/json"
	"time"
)

// BlockSeconds is the length of one historical aggregation block.
const BlockSeconds = 3600

// MaxBlocks bounds the number of sequential queries one historical request may issue.
const MaxBlocks = 24

// isoLayout matches the millisecond UTC form used by JavaScript clients.
const isoLayout = "2006-01-02T15:04:05.000Z"

// LayerRef names a table holding either points or polygons.
type LayerRef string

// TimeWindow bounds report creation time in unix seconds, both ends inclusive.
type TimeWindow struct {
	Start int64
	End   int64
}

// LastHours returns the window ending now and starting the given number of hours earlier.
func LastHours(hours int) TimeWindow {
	end := Now()
	return TimeWindow{Start: end - int64(hours)*BlockSeconds, End: end}
}

// Shift moves both bounds by the given number of seconds.
func (w TimeWindow) Shift(seconds int64) TimeWindow {
	return TimeWindow{Start: w.Start + seconds, End: w.End + seconds}
}

// Row is one row object returned by the query executor, keyed by column name.
type Row map[string]any

// AreaCount is the number of reports inside one polygon during a window,
// summed over the confirmed and unconfirmed layers.
type AreaCount struct {
	PKey     int64           `json:"pkey"`
	AreaName string          `json:"area_name"`
	Geometry json.RawMessage `json:"geometry"`
	Count    int64           `json:"count"`
}

// CountQuery selects the layers and window for an area count.
type CountQuery struct {
	Window           TimeWindow
	PolygonLayer     LayerRef
	ConfirmedLayer   LayerRef
	UnconfirmedLayer LayerRef
}

// HistoricalQuery selects consecutive hourly blocks starting at StartTime.
type HistoricalQuery struct {
	StartTime        int64
	Blocks           int
	PolygonLayer     LayerRef
	ConfirmedLayer   LayerRef
	UnconfirmedLayer LayerRef
}

// CountQuery returns the area count query for the first block of the series.
func (q HistoricalQuery) CountQuery() CountQuery {
	return CountQuery{
		Window:           TimeWindow{Start: q.StartTime, End: q.StartTime + BlockSeconds},
		PolygonLayer:     q.PolygonLayer,
		ConfirmedLayer:   q.ConfirmedLayer,
		UnconfirmedLayer: q.UnconfirmedLayer,
	}
}

// HistoricalBlock is one block summary stamped with the window it was computed over.
// It serializes as the summary's fields plus start_time and end_time.
type HistoricalBlock struct {
	Fields    Row
	StartTime string
	EndTime   string
}

// NewHistoricalBlock stamps a summary row with the window bounds.
func NewHistoricalBlock(fields Row, w TimeWindow) HistoricalBlock {
	return HistoricalBlock{
		Fields:    fields,
		StartTime: FormatISO(w.Start),
		EndTime:   FormatISO(w.End),
	}
}

func (b HistoricalBlock) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Fields)+2)
	for k, v := range b.Fields {
		out[k] = v
	}
	out["start_time"] = b.StartTime
	out["end_time"] = b.EndTime
	return json.Marshal(out)
}

// HistoricalSeries holds one block per requested hour in ascending time order.
type HistoricalSeries struct {
	Blocks []HistoricalBlock `json:"blocks"`
}

// FormatISO renders unix seconds as an ISO8601 UTC string with milliseconds.
func FormatISO(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(isoLayout)
}
