package http

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// topologyObjectName is the name of the single object a FeatureCollection is
// encoded into.
const topologyObjectName = "collection"

// Topology is a TopoJSON document without quantization.
type Topology struct {
	Type    string                    `json:"type"`
	Objects map[string]topoCollection `json:"objects"`
	Arcs    []orb.LineString          `json:"arcs"`
}

type topoCollection struct {
	Type       string       `json:"type"`
	Geometries []topoObject `json:"geometries"`
}

type topoObject struct {
	Type        *string        `json:"type"`
	ID          any            `json:"id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Coordinates any            `json:"coordinates,omitempty"`
	Arcs        any            `json:"arcs,omitempty"`
	Geometries  []topoObject   `json:"geometries,omitempty"`
}

// EncodeTopology converts a GeoJSON FeatureCollection into a Topology with a
// single object named "collection". Feature properties are kept. Lines and
// rings with identical coordinates, in either direction, share one arc.
func EncodeTopology(featureCollection []byte) ([]byte, error) {
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         any             `json:"id"`
			Properties map[string]any  `json:"properties"`
			Geometry   json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(featureCollection, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode feature collection: type is %q", fc.Type)
	}

	b := &topologyBuilder{index: make(map[string]int)}
	geoms := make([]topoObject, 0, len(fc.Features))
	for i, f := range fc.Features {
		var g orb.Geometry
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			decoded, err := geojson.UnmarshalGeometry(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("decode geometry of feature %d: %w", i, err)
			}
			g = decoded.Geometry()
		}
		obj := b.object(g)
		obj.ID = f.ID
		obj.Properties = f.Properties
		geoms = append(geoms, obj)
	}

	t := Topology{
		Type: "Topology",
		Objects: map[string]topoCollection{
			topologyObjectName: {Type: "GeometryCollection", Geometries: geoms},
		},
		Arcs: b.arcs,
	}
	if t.Arcs == nil {
		t.Arcs = []orb.LineString{}
	}
	return json.Marshal(t)
}

type topologyBuilder struct {
	arcs  []orb.LineString
	index map[string]int
}

func (b *topologyBuilder) object(g orb.Geometry) topoObject {
	if g == nil {
		return topoObject{}
	}
	typ := g.GeoJSONType()
	obj := topoObject{Type: &typ}

	switch g := g.(type) {
	case orb.Point, orb.MultiPoint:
		obj.Coordinates = g
	case orb.LineString:
		obj.Arcs = []int{b.arc(g)}
	case orb.MultiLineString:
		arcs := make([][]int, len(g))
		for i, ls := range g {
			arcs[i] = []int{b.arc(ls)}
		}
		obj.Arcs = arcs
	case orb.Ring:
		obj.Arcs = [][]int{{b.arc(orb.LineString(g))}}
	case orb.Polygon:
		obj.Arcs = b.polygon(g)
	case orb.MultiPolygon:
		arcs := make([][][]int, len(g))
		for i, p := range g {
			arcs[i] = b.polygon(p)
		}
		obj.Arcs = arcs
	case orb.Collection:
		obj.Geometries = make([]topoObject, 0, len(g))
		for _, sub := range g {
			obj.Geometries = append(obj.Geometries, b.object(sub))
		}
	case orb.Bound:
		return b.object(g.ToPolygon())
	}
	return obj
}

func (b *topologyBuilder) polygon(p orb.Polygon) [][]int {
	rings := make([][]int, len(p))
	for i, r := range p {
		rings[i] = []int{b.arc(orb.LineString(r))}
	}
	return rings
}

// arc returns the index of ls in the arc table, adding it if new. A reversed
// match is returned as its one's complement, per TopoJSON.
func (b *topologyBuilder) arc(ls orb.LineString) int {
	key := lineKey(ls)
	if i, ok := b.index[key]; ok {
		return i
	}
	rev := ls.Clone()
	rev.Reverse()
	if i, ok := b.index[lineKey(rev)]; ok {
		return ^i
	}

	i := len(b.arcs)
	b.arcs = append(b.arcs, ls)
	b.index[key] = i
	return i
}

func lineKey(ls orb.LineString) string {
	var sb strings.Builder
	for _, p := range ls {
		sb.WriteString(strconv.FormatFloat(p[0], 'g', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p[1], 'g', -1, 64))
		sb.WriteByte(';')
	}
	return sb.String()
}
