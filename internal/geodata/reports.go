package geodata

import (
	"context"
	"fmt"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
)

// ReportLayers names the point tables and their row limits. A limit of 0
// returns every matching row.
type ReportLayers struct {
	Confirmed        domain.LayerRef
	Unconfirmed      domain.LayerRef
	ConfirmedLimit   int
	UnconfirmedLimit int
}

// Reports queries the report point layers and infrastructure layers.
type Reports struct {
	exec   Executor
	layers ReportLayers
}

// NewReports creates a Reports backed by exec.
func NewReports(exec Executor, layers ReportLayers) *Reports {
	return &Reports{exec: exec, layers: layers}
}

// Confirmed returns confirmed reports created inside w, newest first, as a
// single FeatureCollection row.
func (r *Reports) Confirmed(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error) {
	if err := r.check(w, "confirmed_layer", r.layers.Confirmed); err != nil {
		return nil, err
	}
	ctx = domain.WithQueryName(ctx, "confirmed_reports")
	rows, err := r.exec.Query(ctx, confirmedReportsSQL(r.layers.Confirmed), w.Start, w.End, limitArg(r.layers.ConfirmedLimit))
	if err != nil {
		return nil, fmt.Errorf("confirmed reports: %w", err)
	}
	return decodeFeatureCollections(rows), nil
}

// Unconfirmed returns unconfirmed reports created inside w as a single
// FeatureCollection row.
func (r *Reports) Unconfirmed(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error) {
	if err := r.check(w, "unconfirmed_layer", r.layers.Unconfirmed); err != nil {
		return nil, err
	}
	ctx = domain.WithQueryName(ctx, "unconfirmed_reports")
	rows, err := r.exec.Query(ctx, unconfirmedReportsSQL(r.layers.Unconfirmed), w.Start, w.End, limitArg(r.layers.UnconfirmedLimit))
	if err != nil {
		return nil, fmt.Errorf("unconfirmed reports: %w", err)
	}
	return decodeFeatureCollections(rows), nil
}

// Count returns one row with uc_count and c_count for reports inside w.
func (r *Reports) Count(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error) {
	if err := r.checkBoth(w); err != nil {
		return nil, err
	}
	ctx = domain.WithQueryName(ctx, "reports_count")
	rows, err := r.exec.Query(ctx, reportsCountSQL(r.layers.Confirmed, r.layers.Unconfirmed), w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("reports count: %w", err)
	}
	return rows, nil
}

// TimeSeries returns one row per hour between the hours containing w.Start
// and w.End, each with stamp (HH24:MI, ICT), c_count and uc_count.
func (r *Reports) TimeSeries(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error) {
	if err := r.checkBoth(w); err != nil {
		return nil, err
	}
	ctx = domain.WithQueryName(ctx, "reports_timeseries")
	rows, err := r.exec.Query(ctx, timeSeriesSQL(r.layers.Confirmed, r.layers.Unconfirmed), w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("reports time series: %w", err)
	}
	return rows, nil
}

// Infrastructure returns every feature of an infrastructure table as a single
// FeatureCollection row.
func (r *Reports) Infrastructure(ctx context.Context, table domain.LayerRef) ([]domain.Row, error) {
	if err := domain.ValidateLayer("infrastructure_layer", table); err != nil {
		return nil, err
	}
	ctx = domain.WithQueryName(ctx, "infrastructure")
	rows, err := r.exec.Query(ctx, infrastructureSQL(table))
	if err != nil {
		return nil, fmt.Errorf("infrastructure %s: %w", table, err)
	}
	return decodeFeatureCollections(rows), nil
}

func (r *Reports) check(w domain.TimeWindow, field string, layer domain.LayerRef) error {
	if err := w.Validate(); err != nil {
		return err
	}
	return domain.ValidateLayer(field, layer)
}

func (r *Reports) checkBoth(w domain.TimeWindow) error {
	if err := r.check(w, "confirmed_layer", r.layers.Confirmed); err != nil {
		return err
	}
	return domain.ValidateLayer("unconfirmed_layer", r.layers.Unconfirmed)
}

// limitArg binds 0 as NULL, which Postgres treats as no limit.
func limitArg(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}

// decodeFeatureCollections turns the json features column into raw JSON so it
// is embedded rather than re-quoted when the row is encoded.
func decodeFeatureCollections(rows []domain.Row) []domain.Row {
	for _, row := range rows {
		if f, ok := row["features"]; ok {
			row["features"] = jsonColumn(f)
		}
	}
	return rows
}
