// Package domain models geotagged disaster reports and the spatial layers
// they are aggregated into.
//
// # Layers
//
// Reports live in two point layers: confirmed reports (verified by an
// operator or a trusted source) and unconfirmed reports (raw citizen or social
// media reports). Each point row carries a creation timestamp and a geometry.
//
// Polygon layers are administrative boundaries (city, subdistrict, village,
// RW ward) used as aggregation buckets. Every polygon has a unique key
// ("pkey"), a display name ("area_name") and a geometry.
//
// Layer references are table names taken from the server configuration and
// are never built from request input, which is why they may be interpolated
// into SQL while every time bound and limit is bound positionally.
//
// # Windows
//
// A [TimeWindow] bounds reports by creation time in unix seconds. Both bounds
// are inclusive. Historical series advance the window by [BlockSeconds], so the
// end of one block equals the start of the next and a report created exactly
// on that second is counted in both blocks.
//
// # Errors
//
// Malformed input is reported as [*ValidationError] before any query is
// issued. Backend failures are reported as [*DatabaseError] with a [DBErrorKind]
// distinguishing connection failures, query failures and timeouts. An empty
// result is never an error.
package domain
