package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// tableNameRe accepts plain and schema-qualified SQL identifiers.
var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ParseTimestamp parses a unix-seconds parameter, rejecting non-numeric,
// NaN, infinite and negative values. Fractional seconds are truncated.
func ParseTimestamp(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(field, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalid(field, "must be a number")
	}
	return TimestampFromFloat(field, v)
}

// TimestampFromFloat converts a numeric timestamp to unix seconds.
func TimestampFromFloat(field string, v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(field, "must be a finite number")
	}
	if v < 0 {
		return 0, invalid(field, "must not be negative")
	}
	return int64(math.Floor(v)), nil
}

// NewTimeWindow builds a validated window from numeric bounds.
func NewTimeWindow(start, end float64) (TimeWindow, error) {
	s, err := TimestampFromFloat("window.start", start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := TimestampFromFloat("window.end", end)
	if err != nil {
		return TimeWindow{}, err
	}
	w := TimeWindow{Start: s, End: e}
	return w, w.Validate()
}

// Validate checks that both bounds are non-negative and ordered.
func (w TimeWindow) Validate() error {
	if w.Start < 0 {
		return invalid("window.start", "must not be negative")
	}
	if w.End < 0 {
		return invalid("window.end", "must not be negative")
	}
	if w.Start > w.End {
		return invalid("window.end", "must not be before window.start")
	}
	return nil
}

// Validate checks the window and that every layer reference is present.
func (q CountQuery) Validate() error {
	if err := q.Window.Validate(); err != nil {
		return err
	}
	return validateLayers(q.PolygonLayer, q.ConfirmedLayer, q.UnconfirmedLayer)
}

// Validate checks the start time, block count and layer references.
func (q HistoricalQuery) Validate() error {
	if q.StartTime < 0 {
		return invalid("start_time", "must not be negative")
	}
	if q.Blocks < 1 || q.Blocks > MaxBlocks {
		return invalid("blocks", "must be between 1 and 24")
	}
	return validateLayers(q.PolygonLayer, q.ConfirmedLayer, q.UnconfirmedLayer)
}

func validateLayers(polygon, confirmed, unconfirmed LayerRef) error {
	if err := ValidateLayer("polygon_layer", polygon); err != nil {
		return err
	}
	if err := ValidateLayer("confirmed_layer", confirmed); err != nil {
		return err
	}
	return ValidateLayer("unconfirmed_layer", unconfirmed)
}

// ValidateLayer checks that a layer reference is a usable table name.
func ValidateLayer(field string, l LayerRef) error {
	if strings.TrimSpace(string(l)) == "" {
		return invalid(field, "is required")
	}
	if !tableNameRe.MatchString(string(l)) {
		return invalid(field, "must be a table name")
	}
	return nil
}
