package geodata

import (
	"fmt"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
)

// Layer names are validated table identifiers from configuration and are the
// only values interpolated into query text. Everything else is bound as $n.

func countByAreaSQL(polygon, confirmed, unconfirmed domain.LayerRef) string {
	return fmt.Sprintf(`SELECT c1.pkey, c1.area_name, ST_AsGeoJSON(c1.the_geom) AS geometry,
	c1.count + c2.count AS count
FROM (
	SELECT p1.pkey, p1.area_name, p1.the_geom, COALESCE(uc.count, 0) AS count
	FROM %[1]s AS p1
	LEFT OUTER JOIN (
		SELECT b.pkey, count(a.pkey) AS count
		FROM %[3]s a, %[1]s b
		WHERE ST_Within(a.the_geom, b.the_geom)
			AND a.created_at >= to_timestamp($1)
			AND a.created_at <= to_timestamp($2)
		GROUP BY b.pkey
	) AS uc ON p1.pkey = uc.pkey
) AS c1
JOIN (
	SELECT p1.pkey, COALESCE(c.count, 0) AS count
	FROM %[1]s AS p1
	LEFT OUTER JOIN (
		SELECT b.pkey, count(a.pkey) AS count
		FROM %[2]s a, %[1]s b
		WHERE ST_Within(a.the_geom, b.the_geom)
			AND a.created_at >= to_timestamp($1)
			AND a.created_at <= to_timestamp($2)
		GROUP BY b.pkey
	) AS c ON p1.pkey = c.pkey
) AS c2 ON c1.pkey = c2.pkey
ORDER BY c1.pkey`, polygon, confirmed, unconfirmed)
}

func confirmedReportsSQL(layer domain.LayerRef) string {
	return fmt.Sprintf(`SELECT 'FeatureCollection' AS type, array_to_json(array_agg(f)) AS features
FROM (
	SELECT 'Feature' AS type, ST_AsGeoJSON(lg.the_geom)::json AS geometry,
		row_to_json((SELECT l FROM (SELECT pkey, created_at AT TIME ZONE 'ICT' AS created_at, text) AS l)) AS properties
	FROM %s AS lg
	WHERE created_at >= to_timestamp($1) AND created_at <= to_timestamp($2)
	ORDER BY created_at DESC
	LIMIT $3
) AS f`, layer)
}

func unconfirmedReportsSQL(layer domain.LayerRef) string {
	return fmt.Sprintf(`SELECT 'FeatureCollection' AS type, array_to_json(array_agg(f)) AS features
FROM (
	SELECT 'Feature' AS type, ST_AsGeoJSON(lg.the_geom)::json AS geometry,
		row_to_json((SELECT l FROM (SELECT pkey) AS l)) AS properties
	FROM %s AS lg
	WHERE created_at >= to_timestamp($1) AND created_at <= to_timestamp($2)
	ORDER BY created_at DESC
	LIMIT $3
) AS f`, layer)
}

func reportsCountSQL(confirmed, unconfirmed domain.LayerRef) string {
	return fmt.Sprintf(`SELECT
	(SELECT count(pkey) FROM %[2]s WHERE created_at >= to_timestamp($1) AND created_at <= to_timestamp($2)) AS uc_count,
	(SELECT count(pkey) FROM %[1]s WHERE created_at >= to_timestamp($1) AND created_at <= to_timestamp($2)) AS c_count`,
		confirmed, unconfirmed)
}

func timeSeriesSQL(confirmed, unconfirmed domain.LayerRef) string {
	return fmt.Sprintf(`SELECT to_char(c.stamp::time, 'HH24:MI') AS stamp, c.count AS c_count, uc.count AS uc_count
FROM (
	SELECT t.stamp, COALESCE(n.count, 0) AS count
	FROM (SELECT generate_series(date_trunc('hour', to_timestamp($1)), date_trunc('hour', to_timestamp($2)), '1 hours') AT TIME ZONE 'ICT' AS stamp) AS t
	LEFT OUTER JOIN (
		SELECT count(pkey), date_trunc('hour', created_at) AT TIME ZONE 'ICT' AS bucket
		FROM %[2]s GROUP BY date_trunc('hour', created_at)
	) AS n ON n.bucket = t.stamp
) AS uc
JOIN (
	SELECT t.stamp, COALESCE(n.count, 0) AS count
	FROM (SELECT generate_series(date_trunc('hour', to_timestamp($1)), date_trunc('hour', to_timestamp($2)), '1 hours') AT TIME ZONE 'ICT' AS stamp) AS t
	LEFT OUTER JOIN (
		SELECT count(pkey), date_trunc('hour', created_at) AT TIME ZONE 'ICT' AS bucket
		FROM %[1]s GROUP BY date_trunc('hour', created_at)
	) AS n ON n.bucket = t.stamp
) AS c ON c.stamp = uc.stamp
ORDER BY c.stamp ASC`, confirmed, unconfirmed)
}

func infrastructureSQL(layer domain.LayerRef) string {
	return fmt.Sprintf(`SELECT 'FeatureCollection' AS type, array_to_json(array_agg(f)) AS features
FROM (
	SELECT 'Feature' AS type, ST_AsGeoJSON(lg.the_geom)::json AS geometry,
		row_to_json((SELECT l FROM (SELECT name) AS l)) AS properties
	FROM %s AS lg
) AS f`, layer)
}
