package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/cache"
	"github.com/couchcryptid/disaster-report-server/internal/config"
	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/couchcryptid/disaster-report-server/internal/geodata"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AreaCounter counts reports per polygon. *geodata.Aggregator implements it.
type AreaCounter interface {
	CountByArea(ctx context.Context, q domain.CountQuery) ([]domain.AreaCount, error)
}

// HistoricalSource builds hourly series. *geodata.HistoricalBuilder implements it.
type HistoricalSource interface {
	HistoricalCountByArea(ctx context.Context, q domain.HistoricalQuery) (*domain.HistoricalSeries, error)
}

// ReportSource queries report and infrastructure layers. *geodata.Reports implements it.
type ReportSource interface {
	Confirmed(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error)
	Unconfirmed(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error)
	Count(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error)
	TimeSeries(ctx context.Context, w domain.TimeWindow) ([]domain.Row, error)
	Infrastructure(ctx context.Context, table domain.LayerRef) ([]domain.Row, error)
}

// AggregatePublisher forwards freshly computed live aggregates.
type AggregatePublisher interface {
	PublishAggregates(ctx context.Context, level string, w domain.TimeWindow, counts []domain.AreaCount) error
}

// Deps are the collaborators of the data API. Publisher and Shared may be nil.
type Deps struct {
	Counts    AreaCounter
	History   HistoricalSource
	Reports   ReportSource
	Publisher AggregatePublisher
	Cache     *cache.Cache[Response]
	Shared    SharedStore
}

const (
	defaultArchiveBlocks = 6
	publishTimeout       = 5 * time.Second
)

// API serves the /data/api/v1 routes.
type API struct {
	cfg       *config.Config
	counts    AreaCounter
	history   HistoricalSource
	reports   ReportSource
	publisher AggregatePublisher
	cache     *responseCache
	logger    *slog.Logger
}

// NewAPI creates the data API.
func NewAPI(cfg *config.Config, deps Deps, logger *slog.Logger) *API {
	return &API{
		cfg:       cfg,
		counts:    deps.Counts,
		history:   deps.History,
		reports:   deps.Reports,
		publisher: deps.Publisher,
		cache:     &responseCache{local: deps.Cache, shared: deps.Shared, logger: logger},
		logger:    logger,
	}
}

// BasePath is the mount point of the data routes.
func (a *API) BasePath() string {
	return a.cfg.URLPrefix + "/data/api/v1"
}

// Routes registers the data routes enabled by configuration on r.
func (a *API) Routes(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"X-Requested-With"},
	}))
	if a.cfg.CompressionEnabled {
		r.Use(chimiddleware.Compress(5, "application/json"))
	}

	if !a.cfg.DataEnabled {
		return
	}
	r.Get("/reports/confirmed", a.handleConfirmed)
	r.Get("/reports/unconfirmed", a.handleUnconfirmed)
	r.Get("/reports/count", a.handleCount)
	r.Get("/reports/timeseries", a.handleTimeSeries)
	r.Get("/infrastructure/{name}", a.handleInfrastructure)

	if a.cfg.AggregatesEnabled {
		r.Get("/aggregates/live", a.handleLive)
		r.Get("/aggregates/archive", a.handleArchive)
	}
}

func (a *API) handleConfirmed(w http.ResponseWriter, r *http.Request) {
	key := cache.Key{Route: "reports/confirmed", Window: "1h", Format: formatParam(r)}
	a.serveCached(w, r, key, a.temporary(), func(ctx context.Context) (any, error) {
		rows, err := a.reports.Confirmed(ctx, domain.LastHours(1))
		return first(rows), err
	})
}

func (a *API) handleUnconfirmed(w http.ResponseWriter, r *http.Request) {
	key := cache.Key{Route: "reports/unconfirmed", Window: "1h", Format: formatParam(r)}
	a.serveCached(w, r, key, a.temporary(), func(ctx context.Context) (any, error) {
		rows, err := a.reports.Unconfirmed(ctx, domain.LastHours(1))
		return first(rows), err
	})
}

func (a *API) handleCount(w http.ResponseWriter, r *http.Request) {
	key := cache.Key{Route: "reports/count", Window: "1h"}
	a.serveCached(w, r, key, a.temporary(), func(ctx context.Context) (any, error) {
		rows, err := a.reports.Count(ctx, domain.LastHours(1))
		return first(rows), err
	})
}

// handleTimeSeries covers the 24 hours up to one hour ago.
func (a *API) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	key := cache.Key{Route: "reports/timeseries", Window: "24h"}
	a.serveCached(w, r, key, a.temporary(), func(ctx context.Context) (any, error) {
		window := domain.LastHours(23).Shift(-domain.BlockSeconds)
		rows, err := a.reports.TimeSeries(ctx, window)
		if err != nil {
			return nil, err
		}
		return domain.Row{"data": rows}, nil
	})
}

func (a *API) handleInfrastructure(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	table, ok := a.cfg.Layers.InfrastructureTable(name)
	if !ok {
		a.writeError(w, r, fmt.Errorf("infrastructure %q: %w", name, domain.ErrNotFound))
		return
	}

	key := cache.Key{Route: "infrastructure", Extra: name, Format: formatParam(r)}
	a.serveCached(w, r, key, cache.Forever(), func(ctx context.Context) (any, error) {
		rows, err := a.reports.Infrastructure(ctx, domain.LayerRef(table))
		return first(rows), err
	})
}

// handleLive serves the per-area counts for the last 1, 3 or 6 hours. Any
// other hours value means 1; an unknown level means the first level.
func (a *API) handleLive(w http.ResponseWriter, r *http.Request) {
	level := a.cfg.Layers.LevelOrDefault(r.URL.Query().Get("level"))
	hours := 1
	switch r.URL.Query().Get("hours") {
	case "3":
		hours = 3
	case "6":
		hours = 6
	}

	key := cache.Key{
		Route:  "aggregates/live",
		Level:  level.Name,
		Window: fmt.Sprintf("%dh@%d", hours, domain.Now()/60),
		Format: formatParam(r),
	}
	a.serveCached(w, r, key, a.temporary(), func(ctx context.Context) (any, error) {
		q := domain.CountQuery{
			Window:           domain.LastHours(hours),
			PolygonLayer:     domain.LayerRef(level.Table),
			ConfirmedLayer:   domain.LayerRef(a.cfg.TableReports),
			UnconfirmedLayer: domain.LayerRef(a.cfg.TableReportsUnconfirmed),
		}
		counts, err := a.counts.CountByArea(ctx, q)
		if err != nil {
			return nil, err
		}
		a.publish(ctx, level.Name, q.Window, counts)
		return geodata.FeatureCollectionRow(counts)
	})
}

// handleArchive serves hourly blocks on the archive level. It is not cached.
func (a *API) handleArchive(w http.ResponseWriter, r *http.Request) {
	now := domain.Now()

	start := now - defaultArchiveBlocks*domain.BlockSeconds
	if raw := r.URL.Query().Get("start_time"); raw != "" {
		var err error
		if start, err = parseStartTime(raw, now); err != nil {
			a.writeError(w, r, err)
			return
		}
	}

	blocks := defaultArchiveBlocks
	if raw := r.URL.Query().Get("blocks"); raw != "" {
		var err error
		if blocks, err = parseBlocks(raw); err != nil {
			a.writeError(w, r, err)
			return
		}
	}

	level, _ := a.cfg.Layers.Level(a.cfg.ArchiveLevel)
	series, err := a.history.HistoricalCountByArea(r.Context(), domain.HistoricalQuery{
		StartTime:        start,
		Blocks:           blocks,
		PolygonLayer:     domain.LayerRef(level.Table),
		ConfirmedLayer:   domain.LayerRef(a.cfg.TableReports),
		UnconfirmedLayer: domain.LayerRef(a.cfg.TableReportsUnconfirmed),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	resp, err := FormatResponse(series, formatParam(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp.Write(w)
}

func (a *API) serveCached(w http.ResponseWriter, r *http.Request, key cache.Key, exp cache.Expiry, load func(context.Context) (any, error)) {
	resp, err := a.cache.getOrLoad(r.Context(), key, exp, func(ctx context.Context) (Response, error) {
		data, err := load(ctx)
		if err != nil {
			return Response{}, err
		}
		return FormatResponse(data, key.Format)
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp.Write(w)
}

func (a *API) publish(ctx context.Context, level string, window domain.TimeWindow, counts []domain.AreaCount) {
	if a.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.publisher.PublishAggregates(ctx, level, window, counts); err != nil {
		a.logger.Warn("aggregate publish failed", "level", level, "error", err)
	}
}

func (a *API) temporary() cache.Expiry {
	return cache.For(a.cfg.CacheTimeout)
}

// writeError maps err to a status. Backend failures become 204 in legacy
// mode, which older clients expect.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		a.logger.Info("invalid request", "path", r.URL.Path, "field", vErr.Field, "reason", vErr.Reason)
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
		return
	case errors.Is(err, domain.ErrNotFound):
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	kind := domain.DatabaseErrorKind(err)
	a.logger.Error("request failed", "path", r.URL.Path, "kind", kind.String(), "error", err)

	if a.cfg.LegacyError204 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	status := http.StatusInternalServerError
	if kind == domain.ConnectionFailed || kind == domain.Timeout {
		status = http.StatusServiceUnavailable
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// formatParam normalises the format parameter so keys differ only when the
// rendered output does.
func formatParam(r *http.Request) string {
	if r.URL.Query().Get("format") == FormatTopoJSON {
		return FormatTopoJSON
	}
	return ""
}

func first(rows []domain.Row) domain.Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseStartTime accepts an ISO8601 time between the epoch and now. Times
// without an offset are UTC.
func parseStartTime(raw string, now int64) (int64, error) {
	const reason = "must be an ISO8601 string for a time between 1970 and now"
	for _, layout := range startTimeLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if u := t.Unix(); u >= 0 && u <= now {
			return u, nil
		}
		break
	}
	return 0, &domain.ValidationError{Field: "start_time", Reason: reason}
}

func parseBlocks(raw string) (int, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &domain.ValidationError{Field: "blocks", Reason: "must be a number between 1 and 24"}
	}
	n := math.Floor(v)
	if n < 1 || n > domain.MaxBlocks {
		return 0, &domain.ValidationError{Field: "blocks", Reason: "must be a number between 1 and 24"}
	}
	return int(n), nil
}
