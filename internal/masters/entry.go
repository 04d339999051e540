// Package masters projects the master vocabularies (types, lines, processes)
// into live, filtered and sorted views for forms and item naming.
package masters

import (
	"cmp"
	"encoding/json"
	"errors"
	"slices"
)

// Collection is the document collection that holds the vocabularies.
const Collection = "masters"

// UnorderedSentinel is the sort priority of entries without an order.
const UnorderedSentinel = 999999

// Vocabulary names one master document.
type Vocabulary string

const (
	Types     Vocabulary = "types"
	Lines     Vocabulary = "lines"
	Processes Vocabulary = "processes"
)

// Vocabularies lists every vocabulary a projection subscribes to.
var Vocabularies = []Vocabulary{Types, Lines, Processes}

// Entry is one selectable option of a vocabulary. Tag is only meaningful for
// the processes vocabulary, where it feeds item identifiers.
type Entry struct {
	Code    string   `json:"code"`
	Label   string   `json:"label,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
	Order   *float64 `json:"order,omitempty"`
	Tag     string   `json:"tag,omitempty"`
}

// ProcessEntry is an Entry of the processes vocabulary.
type ProcessEntry = Entry

// IsEnabled reports whether the entry is active; a missing flag means active.
func (e Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// SortOrder returns the entry's order, or UnorderedSentinel when unset.
func (e Entry) SortOrder() float64 {
	if e.Order == nil {
		return UnorderedSentinel
	}
	return *e.Order
}

var errMalformed = errors.New("masters: malformed vocabulary document")

// ParseList decodes a vocabulary document of shape {"list": [...]}.
// A document that is not an object, or whose list is not an array, is
// malformed and yields an error with no entries. A missing list is empty.
// Individual entries that do not decode or carry no code are skipped and
// counted.
func ParseList(data []byte) (entries []Entry, skipped int, err error) {
	var doc struct {
		List json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, errMalformed
	}
	if len(doc.List) == 0 || string(doc.List) == "null" {
		return []Entry{}, 0, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(doc.List, &raw); err != nil {
		return nil, 0, errMalformed
	}

	entries = make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal(r, &e); err != nil || e.Code == "" {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

// Compare orders entries by order ascending (missing order sorts as
// UnorderedSentinel), then by code byte-wise ascending.
func Compare(a, b Entry) int {
	if c := cmp.Compare(a.SortOrder(), b.SortOrder()); c != 0 {
		return c
	}
	return cmp.Compare(a.Code, b.Code)
}

// Normalize drops disabled entries and sorts the rest with Compare. When a
// code appears more than once only its first entry in sorted order is kept.
// The input is not modified.
func Normalize(entries []Entry) []Entry {
	enabled := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsEnabled() {
			enabled = append(enabled, e)
		}
	}
	slices.SortStableFunc(enabled, Compare)

	seen := make(map[string]struct{}, len(enabled))
	out := enabled[:0]
	for _, e := range enabled {
		if _, dup := seen[e.Code]; dup {
			continue
		}
		seen[e.Code] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Codes projects entries to their codes, keeping order.
func Codes(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

// TagMap maps each entry's code to its tag; a missing tag maps to "".
func TagMap(entries []Entry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Code] = e.Tag
	}
	return out
}
