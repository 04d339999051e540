// Package parser turns seed files (YAML or JSON) into canonical JSON document bodies.
package parser

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]*$`)

// Extensions lists the seed file suffixes the parser understands.
var Extensions = []string{".yaml", ".yml", ".json"}

// Result holds the output of parsing a seed file.
type Result struct {
	Collection string
	ID         string
	Body       []byte // compact JSON object
}

// IsSeedFile reports whether name carries a supported seed extension.
func IsSeedFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SplitPath derives (collection, id) from a slash-separated relative path of
// the form "<collection>/<id>.<ext>".
func SplitPath(rel string) (string, string, error) {
	rel = strings.TrimPrefix(path.Clean(strings.ReplaceAll(rel, "\\", "/")), "/")
	parts := strings.Split(rel, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("parser: %q: want <collection>/<id>.<ext>", rel)
	}
	if !IsSeedFile(parts[1]) {
		return "", "", fmt.Errorf("parser: %q: unsupported extension", rel)
	}
	coll := parts[0]
	id := strings.TrimSuffix(parts[1], path.Ext(parts[1]))
	if !keyRe.MatchString(coll) || !keyRe.MatchString(id) {
		return "", "", fmt.Errorf("parser: %q: invalid collection or id", rel)
	}
	return coll, id, nil
}

// Parse decodes a seed file. YAML is a superset of JSON, so both go through
// the YAML decoder. The top level must be a mapping.
func Parse(rel string, data []byte) (*Result, error) {
	coll, id, err := SplitPath(rel)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parser: %s: %w", rel, err)
	}
	if raw == nil {
		// An empty file is an empty document.
		raw = map[string]any{}
	}
	obj, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parser: %s: top level is not a mapping", rel)
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: encode: %w", rel, err)
	}
	return &Result{Collection: coll, ID: id, Body: body}, nil
}

// normalize converts yaml.v3 maps with non-string keys into JSON-compatible
// map[string]any values, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
