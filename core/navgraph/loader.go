package navgraph

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/robofleet/core/model"
)

// Format selects the encoding of a graph document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses the document format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a graph document from disk.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	g, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", path, err)
	}
	return g, nil
}

// Parse decodes a graph document. Two layouts are accepted:
//
//	{"vertices": [[x, y, {"name": "a", "is_charger": true}], ...],
//	 "lanes":    [[0, 1, {"speed_limit": 1.0}], ...]}
//
// and the building map layout {"levels": {"L1": {"vertices": ..., "lanes": ...}}}
// where the first level by name is used.
func Parse(data []byte, format Format) (*Graph, error) {
	var doc map[string]any
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON, "":
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrMalformedGraph, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGraph, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedGraph)
	}
	if levels, ok := doc["levels"]; ok {
		if doc, err = firstLevel(levels); err != nil {
			return nil, err
		}
	}
	vertices, err := decodeVertices(doc["vertices"])
	if err != nil {
		return nil, err
	}
	lanes, err := decodeLanes(doc["lanes"])
	if err != nil {
		return nil, err
	}
	return New(vertices, lanes)
}

func firstLevel(raw any) (map[string]any, error) {
	levels, ok := raw.(map[string]any)
	if !ok || len(levels) == 0 {
		return nil, fmt.Errorf("%w: levels must be a non-empty mapping", ErrMalformedGraph)
	}
	names := make([]string, 0, len(levels))
	for name := range levels {
		names = append(names, name)
	}
	sort.Strings(names)
	level, ok := levels[names[0]].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: level %q is not a mapping", ErrMalformedGraph, names[0])
	}
	return level, nil
}

func decodeVertices(raw any) ([]Vertex, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("%w: no vertices", ErrMalformedGraph)
	}
	out := make([]Vertex, len(items))
	for i, item := range items {
		fields, ok := item.([]any)
		if !ok || len(fields) < 2 {
			return nil, fmt.Errorf("%w: vertex %d: expected [x, y, attrs]", ErrMalformedGraph, i)
		}
		x, okX := toFloat(fields[0])
		y, okY := toFloat(fields[1])
		if !okX || !okY {
			return nil, fmt.Errorf("%w: vertex %d: non numeric coordinates", ErrMalformedGraph, i)
		}
		if !finite(x) || !finite(y) {
			return nil, fmt.Errorf("%w: vertex %d: coordinates (%v, %v) are not finite", ErrMalformedGraph, i, x, y)
		}
		out[i].Pos.X, out[i].Pos.Y = x, y
		if len(fields) > 2 {
			if attrs, ok := fields[2].(map[string]any); ok {
				out[i].Name, _ = attrs["name"].(string)
				out[i].Charger, _ = attrs["is_charger"].(bool)
			}
		}
	}
	return out, nil
}

func decodeLanes(raw any) ([]Lane, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: lanes must be a list", ErrMalformedGraph)
	}
	out := make([]Lane, 0, len(items))
	for i, item := range items {
		fields, ok := item.([]any)
		if !ok || len(fields) < 2 {
			return nil, fmt.Errorf("%w: lane %d: expected [from, to, attrs]", ErrMalformedGraph, i)
		}
		from, okF := toIndex(fields[0])
		to, okT := toIndex(fields[1])
		if !okF || !okT {
			return nil, fmt.Errorf("%w: lane %d: endpoints must be vertex indices", ErrMalformedGraph, i)
		}
		l := Lane{From: from, To: to}
		if len(fields) > 2 {
			if attrs, ok := fields[2].(map[string]any); ok {
				l.SpeedLimit, _ = toFloat(attrs["speed_limit"])
				if !finite(l.SpeedLimit) || l.SpeedLimit < 0 {
					return nil, fmt.Errorf("%w: lane %d: bad speed limit %v", ErrMalformedGraph, i, l.SpeedLimit)
				}
			}
		}
		out = append(out, l)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func toIndex(v any) (model.VertexID, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return model.VertexID(f), true
}
