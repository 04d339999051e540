package masters

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func ptr[T any](v T) *T { return &v }

func TestParseList(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantCodes   []string
		wantSkipped int
		wantErr     bool
	}{
		{"basic", `{"list":[{"code":"LIQ"},{"code":"VAP","order":2}]}`, []string{"LIQ", "VAP"}, 0, false},
		{"missing list", `{}`, []string{}, 0, false},
		{"null list", `{"list":null}`, []string{}, 0, false},
		{"list not array", `{"list":"LIQ"}`, nil, 0, true},
		{"not an object", `[1,2,3]`, nil, 0, true},
		{"garbage", `{{{`, nil, 0, true},
		{"entry without code", `{"list":[{"label":"x"},{"code":"A"}]}`, []string{"A"}, 1, false},
		{"entry wrong type", `{"list":[{"code":5},"x",{"code":"B"}]}`, []string{"B"}, 2, false},
		{"fractional order", `{"list":[{"code":"A","order":1.5}]}`, []string{"A"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, skipped, err := ParseList([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if entries != nil {
					t.Errorf("entries = %v, want nil on error", entries)
				}
				return
			}
			if diff := cmp.Diff(tt.wantCodes, Codes(entries)); diff != "" {
				t.Errorf("codes mismatch (-want +got):\n%s", diff)
			}
			if skipped != tt.wantSkipped {
				t.Errorf("skipped = %d, want %d", skipped, tt.wantSkipped)
			}
		})
	}
}

func TestNormalize_FilterAndSort(t *testing.T) {
	in := []Entry{
		{Code: "c"},
		{Code: "b", Order: ptr(2.0)},
		{Code: "x", Enabled: ptr(false), Order: ptr(0.0)},
		{Code: "a", Order: ptr(2.0)},
		{Code: "B"},
		{Code: "z", Enabled: ptr(true), Order: ptr(1.0)},
	}
	got := Codes(Normalize(in))
	want := []string{"z", "a", "b", "B", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
	if in[0].Code != "c" {
		t.Error("Normalize modified its input")
	}
}

func TestNormalize_ExplicitSentinelTiesWithUnordered(t *testing.T) {
	in := []Entry{{Code: "b"}, {Code: "a", Order: ptr(float64(UnorderedSentinel))}}
	got := Codes(Normalize(in))
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("codes = %v, want [a b]", got)
	}
}

func TestNormalize_DuplicateCodesKeepFirst(t *testing.T) {
	tests := []struct {
		name     string
		in       []Entry
		wantTag  string
		wantCode []string
	}{
		{
			name:     "equal order keeps input order",
			in:       []Entry{{Code: "P", Tag: "first"}, {Code: "P", Tag: "second"}},
			wantTag:  "first",
			wantCode: []string{"P"},
		},
		{
			name:     "lower order wins",
			in:       []Entry{{Code: "P", Order: ptr(5.0), Tag: "late"}, {Code: "P", Order: ptr(1.0), Tag: "early"}},
			wantTag:  "early",
			wantCode: []string{"P"},
		},
		{
			name: "survivor keeps its sort position",
			in: []Entry{
				{Code: "P", Order: ptr(9.0), Tag: "late"},
				{Code: "Q", Order: ptr(2.0), Tag: "q"},
				{Code: "P", Order: ptr(1.0), Tag: "early"},
			},
			wantTag:  "early",
			wantCode: []string{"P", "Q"},
		},
		{
			name:     "disabled duplicate does not shadow",
			in:       []Entry{{Code: "P", Order: ptr(1.0), Tag: "off", Enabled: ptr(false)}, {Code: "P", Order: ptr(3.0), Tag: "on"}},
			wantTag:  "on",
			wantCode: []string{"P"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if diff := cmp.Diff(tt.wantCode, Codes(got)); diff != "" {
				t.Errorf("codes mismatch (-want +got):\n%s", diff)
			}
			if tag := TagMap(got)["P"]; tag != tt.wantTag {
				t.Errorf("TagMap[P] = %q, want %q", tag, tt.wantTag)
			}
		})
	}
}

func TestTagMap_MissingTagIsEmpty(t *testing.T) {
	m := TagMap([]Entry{{Code: "cut", Tag: "cw"}, {Code: "foam"}})
	if len(m) != 2 {
		t.Fatalf("len = %d, want 2", len(m))
	}
	if m["cut"] != "cw" {
		t.Errorf("cut = %q", m["cut"])
	}
	if v, ok := m["foam"]; !ok || v != "" {
		t.Errorf("foam = %q, %v; want empty present", v, ok)
	}
}

func entryGen() *rapid.Generator[Entry] {
	return rapid.Custom(func(t *rapid.T) Entry {
		e := Entry{
			Code: rapid.StringMatching(`[A-Za-z0-9]{1,3}`).Draw(t, "code"),
			Tag:  rapid.StringMatching(`[a-z]{0,2}`).Draw(t, "tag"),
		}
		if rapid.Bool().Draw(t, "hasOrder") {
			e.Order = ptr(float64(rapid.IntRange(-3, 5).Draw(t, "order")))
		}
		if rapid.Bool().Draw(t, "hasEnabled") {
			e.Enabled = ptr(rapid.Bool().Draw(t, "enabled"))
		}
		return e
	})
}

func TestNormalize_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(entryGen()).Draw(t, "entries")
		out := Normalize(in)

		for _, e := range out {
			if !e.IsEnabled() {
				t.Fatalf("disabled entry %q in view", e.Code)
			}
		}

		// Every enabled code survives exactly once.
		want := map[string]bool{}
		for _, e := range in {
			if e.IsEnabled() {
				want[e.Code] = true
			}
		}
		got := map[string]int{}
		for _, e := range out {
			got[e.Code]++
		}
		if len(got) != len(want) {
			t.Fatalf("surviving codes = %v, want %v", got, want)
		}
		for code, n := range got {
			if n != 1 || !want[code] {
				t.Fatalf("code %q appears %d times", code, n)
			}
		}

		for i := 1; i < len(out); i++ {
			a, b := out[i-1], out[i]
			if a.SortOrder() > b.SortOrder() {
				t.Fatalf("order not ascending at %d: %v > %v", i, a.SortOrder(), b.SortOrder())
			}
			if a.SortOrder() == b.SortOrder() && a.Code >= b.Code {
				t.Fatalf("tie not broken by code at %d: %q >= %q", i, a.Code, b.Code)
			}
		}

		// The survivor of a duplicated code is its lowest-ordered entry.
		for _, kept := range out {
			for _, e := range in {
				if e.IsEnabled() && e.Code == kept.Code && e.SortOrder() < kept.SortOrder() {
					t.Fatalf("code %q kept order %v, lower %v exists", kept.Code, kept.SortOrder(), e.SortOrder())
				}
			}
		}

		if m := TagMap(out); len(m) != len(out) {
			t.Fatalf("tag map has %d entries for %d processes", len(m), len(out))
		}
	})
}

func TestNormalize_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(entryGen()).Draw(t, "entries")
		once := Codes(Normalize(in))
		twice := Codes(Normalize(Normalize(in)))
		if len(once) != len(twice) {
			t.Fatalf("%v != %v", once, twice)
		}
		for i := range once {
			if once[i] != twice[i] {
				t.Fatalf("%v != %v", once, twice)
			}
		}
	})
}
