package http

import (
	"net/http"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
	json "github.com/goccy/go-json"
)

// FormatTopoJSON is the format parameter value that requests TopoJSON output.
const FormatTopoJSON = "topojson"

// Response is a fully rendered reply. It is what the result cache stores.
type Response struct {
	Code   int               `json:"code"`
	Header map[string]string `json:"header,omitempty"`
	Body   []byte            `json:"body,omitempty"`
}

// FormatResponse renders data as JSON, or as TopoJSON when format is
// "topojson" and data carries a features member. Absent data is 204 with no body.
func FormatResponse(data any, format string) (Response, error) {
	if isAbsent(data) {
		return Response{Code: http.StatusNoContent, Header: map[string]string{}}, nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return Response{}, err
	}

	if format == FormatTopoJSON && hasFeatures(body) {
		topo, err := EncodeTopology(body)
		if err != nil {
			return Response{}, err
		}
		body = topo
	}

	return Response{
		Code:   http.StatusOK,
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   body,
	}, nil
}

// Write sends r to w.
func (r Response) Write(w http.ResponseWriter) {
	for k, v := range r.Header {
		w.Header().Set(k, v)
	}
	w.WriteHeader(r.Code)
	if len(r.Body) > 0 {
		w.Write(r.Body) //nolint:errcheck // client disconnects are not actionable
	}
}

func isAbsent(data any) bool {
	switch v := data.(type) {
	case nil:
		return true
	case domain.Row:
		return v == nil
	case *domain.HistoricalSeries:
		return v == nil
	default:
		return false
	}
}

// hasFeatures reports whether body is an object with a non-null features member.
func hasFeatures(body []byte) bool {
	var doc struct {
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	return len(doc.Features) > 0 && string(doc.Features) != "null"
}
