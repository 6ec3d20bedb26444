// Package geodata runs the spatial and temporal queries behind the data API:
// per-area report counts, hourly historical series, report layers and
// infrastructure layers.
package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// Executor runs a parameterised query. Failures are *domain.DatabaseError.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) ([]domain.Row, error)
}

// Aggregator counts reports per polygon of an aggregation layer.
type Aggregator struct {
	exec Executor
}

// NewAggregator creates an Aggregator backed by exec.
func NewAggregator(exec Executor) *Aggregator {
	return &Aggregator{exec: exec}
}

// CountByArea returns one AreaCount per polygon in q.PolygonLayer, ordered by
// pkey, with the confirmed and unconfirmed reports created inside q.Window
// summed. Polygons without reports are included with a zero count.
func (a *Aggregator) CountByArea(ctx context.Context, q domain.CountQuery) ([]domain.AreaCount, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx = domain.WithQueryName(ctx, "count_by_area")
	rows, err := a.exec.Query(ctx, countByAreaSQL(q.PolygonLayer, q.ConfirmedLayer, q.UnconfirmedLayer),
		q.Window.Start, q.Window.End)
	if err != nil {
		return nil, fmt.Errorf("count by area: %w", err)
	}

	out := make([]domain.AreaCount, 0, len(rows))
	for _, r := range rows {
		ac, err := areaCountFromRow(r)
		if err != nil {
			return nil, &domain.DatabaseError{Kind: domain.QueryFailed, Err: err}
		}
		out = append(out, ac)
	}
	return out, nil
}

// Summary returns the whole-layer result as a single row: a GeoJSON
// FeatureCollection whose features carry pkey, level_name and count.
func (a *Aggregator) Summary(ctx context.Context, q domain.CountQuery) ([]domain.Row, error) {
	counts, err := a.CountByArea(ctx, q)
	if err != nil {
		return nil, err
	}
	row, err := FeatureCollectionRow(counts)
	if err != nil {
		return nil, err
	}
	return []domain.Row{row}, nil
}

// areaFeature is a GeoJSON Feature whose geometry is passed through as
// returned by PostGIS. A nil Geometry encodes as null.
type areaFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// FeatureCollectionRow renders counts as a FeatureCollection row. An empty
// slice yields null features, matching array_agg over zero rows. Areas
// without a geometry still appear, with a null geometry.
func FeatureCollectionRow(counts []domain.AreaCount) (domain.Row, error) {
	var features []areaFeature
	for _, c := range counts {
		f := areaFeature{Type: "Feature", Properties: map[string]any{
			"pkey":       c.PKey,
			"level_name": c.AreaName,
			"count":      c.Count,
		}}
		if len(c.Geometry) > 0 && string(c.Geometry) != "null" {
			if _, err := geojson.UnmarshalGeometry(c.Geometry); err != nil {
				return nil, &domain.DatabaseError{Kind: domain.QueryFailed, Err: fmt.Errorf("decode geometry of area %d: %w", c.PKey, err)}
			}
			f.Geometry = c.Geometry
		}
		features = append(features, f)
	}
	return domain.Row{"type": "FeatureCollection", "features": features}, nil
}

func areaCountFromRow(r domain.Row) (domain.AreaCount, error) {
	pkey, err := int64Column(r, "pkey")
	if err != nil {
		return domain.AreaCount{}, err
	}
	count, err := int64Column(r, "count")
	if err != nil {
		return domain.AreaCount{}, err
	}
	if count < 0 {
		return domain.AreaCount{}, fmt.Errorf("area %d: negative count %d", pkey, count)
	}
	name, _ := r["area_name"].(string)
	return domain.AreaCount{
		PKey:     pkey,
		AreaName: name,
		Geometry: jsonColumn(r["geometry"]),
		Count:    count,
	}, nil
}

func int64Column(r domain.Row, col string) (int64, error) {
	switch v := r[col].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", col, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("column %s is null", col)
	default:
		return 0, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

// jsonColumn returns a json or text column as raw JSON; NULL becomes nil.
func jsonColumn(v any) json.RawMessage {
	switch v := v.(type) {
	case string:
		return json.RawMessage(v)
	case []byte:
		return json.RawMessage(v)
	case json.RawMessage:
		return v
	default:
		return nil
	}
}
