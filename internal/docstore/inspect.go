package docstore

import (
	"context"
	"encoding/json"
	"sort"
)

// JSON value kinds reported by the schema inspector.
const (
	KindString = "string"
	KindNumber = "number"
	KindBool   = "boolean"
	KindArray  = "array"
	KindObject = "object"
	KindNull   = "null"
)

// FieldReport describes one top-level field across sampled documents.
type FieldReport struct {
	Name    string   `json:"name"`
	Kinds   []string `json:"kinds"`
	Present int      `json:"present"`
}

// SchemaReport summarises the shape of a collection.
type SchemaReport struct {
	Collection string        `json:"collection"`
	Sampled    int           `json:"sampled"`
	Fields     []FieldReport `json:"fields"`
}

// InspectSchema samples up to sample documents (all when sample <= 0) and
// reports which top-level fields they carry and with which JSON kinds.
func (s *Store) InspectSchema(ctx context.Context, collection string, sample int) (*SchemaReport, error) {
	docs, err := s.List(ctx, collection, ListOptions{Limit: sample})
	if err != nil {
		return nil, err
	}

	type acc struct {
		kinds   map[string]struct{}
		present int
	}
	fields := make(map[string]*acc)
	for _, d := range docs {
		var obj map[string]any
		if err := json.Unmarshal(d.Data, &obj); err != nil {
			continue
		}
		for name, v := range obj {
			a, ok := fields[name]
			if !ok {
				a = &acc{kinds: make(map[string]struct{})}
				fields[name] = a
			}
			a.present++
			a.kinds[kindOf(v)] = struct{}{}
		}
	}

	report := &SchemaReport{Collection: collection, Sampled: len(docs), Fields: []FieldReport{}}
	for name, a := range fields {
		kinds := make([]string, 0, len(a.kinds))
		for k := range a.kinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		report.Fields = append(report.Fields, FieldReport{Name: name, Kinds: kinds, Present: a.present})
	}
	sort.Slice(report.Fields, func(i, j int) bool { return report.Fields[i].Name < report.Fields[j].Name })
	return report, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return KindString
	case float64:
		return KindNumber
	case bool:
		return KindBool
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	default:
		return KindNull
	}
}
