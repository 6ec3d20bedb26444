package http_test

import (
	"encoding/json"
	"testing"

	httpadapter "github.com/couchcryptid/disaster-report-server/internal/adapter/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeTopology(t *testing.T, fc string) map[string]any {
	t.Helper()
	out, err := httpadapter.EncodeTopology([]byte(fc))
	require.NoError(t, err)

	var topo map[string]any
	require.NoError(t, json.Unmarshal(out, &topo))
	return topo
}

func geometries(topo map[string]any) []any {
	return topo["objects"].(map[string]any)["collection"].(map[string]any)["geometries"].([]any)
}

func TestEncodeTopology_SharesIdenticalRings(t *testing.T) {
	topo := decodeTopology(t, `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"pkey":1},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"type":"Feature","properties":{"pkey":2},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"type":"Feature","properties":{"pkey":3},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,1],[1,0],[0,0]]]}}
	]}`)

	assert.Equal(t, "Topology", topo["type"])
	require.Len(t, topo["arcs"], 1)

	geoms := geometries(topo)
	require.Len(t, geoms, 3)
	assert.Equal(t, []any{[]any{float64(0)}}, geoms[0].(map[string]any)["arcs"])
	assert.Equal(t, []any{[]any{float64(0)}}, geoms[1].(map[string]any)["arcs"])
	assert.Equal(t, []any{[]any{float64(-1)}}, geoms[2].(map[string]any)["arcs"], "reversed ring references ~0")
	assert.Equal(t, map[string]any{"pkey": float64(3)}, geoms[2].(map[string]any)["properties"])
}

func TestEncodeTopology_LinesAndMultiPolygons(t *testing.T) {
	topo := decodeTopology(t, `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"name":"Ciliwung"},"geometry":{"type":"LineString","coordinates":[[0,0],[2,2]]}},
		{"type":"Feature","properties":{"name":"Banjir Kanal"},"geometry":{"type":"MultiLineString","coordinates":[[[0,0],[2,2]],[[3,3],[4,4]]]}},
		{"type":"Feature","properties":{"name":"islands"},"geometry":{"type":"MultiPolygon","coordinates":[[[[5,5],[6,5],[6,6],[5,5]]]]}}
	]}`)

	assert.Len(t, topo["arcs"], 3)
	geoms := geometries(topo)
	assert.Equal(t, "LineString", geoms[0].(map[string]any)["type"])
	assert.Equal(t, []any{float64(0)}, geoms[0].(map[string]any)["arcs"])
	assert.Equal(t, []any{[]any{float64(0)}, []any{float64(1)}}, geoms[1].(map[string]any)["arcs"])
	assert.Equal(t, []any{[]any{[]any{float64(2)}}}, geoms[2].(map[string]any)["arcs"])
	assert.Equal(t, "Banjir Kanal", geoms[1].(map[string]any)["properties"].(map[string]any)["name"])
}

func TestEncodeTopology_EmptyCollection(t *testing.T) {
	topo := decodeTopology(t, `{"type":"FeatureCollection","features":[]}`)

	assert.Equal(t, []any{}, topo["arcs"])
	assert.Equal(t, []any{}, geometries(topo))
}

func TestEncodeTopology_RejectsNonCollection(t *testing.T) {
	_, err := httpadapter.EncodeTopology([]byte(`{"blocks":[]}`))
	require.Error(t, err)
}

func TestEncodeTopology_NullGeometryKeepsFeature(t *testing.T) {
	topo := decodeTopology(t, `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":null,"properties":{"pkey":4,"count":0}}
	]}`)

	geoms := geometries(topo)
	require.Len(t, geoms, 1)
	obj := geoms[0].(map[string]any)
	assert.Nil(t, obj["type"])
	assert.Equal(t, map[string]any{"pkey": float64(4), "count": float64(0)}, obj["properties"])
	assert.Equal(t, []any{}, topo["arcs"])
}
