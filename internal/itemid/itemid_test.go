package itemid

import (
	"encoding/json"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		in   Attrs
		want string
	}{
		{"fractional inch", Attrs{Type: "LIQ", Line: "30T", Inch: 0.5, Tag: "cw", LengthMm: 1000}, "LIQ_30T_0.5_cw_L1000"},
		{"whole inch", Attrs{Type: "VAP", Line: "40T", Inch: 2, Tag: "fo", LengthMm: 6000}, "VAP_40T_2_fo_L6000"},
		{"quarter inch", Attrs{Type: "BOG", Line: "30T", Inch: 1.25, Tag: "pl", LengthMm: 500}, "BOG_30T_1.25_pl_L500"},
		{"length with zero fraction", Attrs{Type: "LIQ", Line: "30T", Inch: 1, Tag: "cw", LengthMm: 1000.0}, "LIQ_30T_1_cw_L1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Build(tt.in); got != tt.want {
				t.Errorf("Build = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{0.5, "0.5"},
		{1.25, "1.25"},
		{1000, "1000"},
		{-3, "-3"},
		{0.1 + 0.2, "0.30000000000000004"},
		{1e21, "1e+21"},
		{1.5e-7, "1.5e-7"},
		{123456789012, "123456789012"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Attrs{Type: "LIQ", Line: "30T", Inch: 0.5, Tag: "cw", LengthMm: 1000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid attrs rejected: %v", err)
	}

	bad := map[string]func(a *Attrs){
		"missing type":      func(a *Attrs) { a.Type = "" },
		"separator in line": func(a *Attrs) { a.Line = "30_T" },
		"missing tag":       func(a *Attrs) { a.Tag = "" },
		"zero inch":         func(a *Attrs) { a.Inch = 0 },
		"negative inch":     func(a *Attrs) { a.Inch = -1 },
		"fractional length": func(a *Attrs) { a.LengthMm = 1000.5 },
		"negative length":   func(a *Attrs) { a.LengthMm = -10 },
		"missing length":    func(a *Attrs) { a.LengthMm = 0 },
		"separator in tag":  func(a *Attrs) { a.Tag = "c_w" },
	}
	for name, mutate := range bad {
		a := valid
		mutate(&a)
		if err := a.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	var body struct {
		Inch   Number `json:"inch"`
		Length Number `json:"length"`
	}
	if err := json.Unmarshal([]byte(`{"inch":"0.5","length":1000}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Inch != 0.5 || body.Length != 1000 {
		t.Errorf("got %v, %v", body.Inch, body.Length)
	}
	if err := json.Unmarshal([]byte(`{"inch":"half"}`), &body); err == nil {
		t.Error("expected error for non-numeric string")
	}
	if err := json.Unmarshal([]byte(`{"inch":true}`), &body); err == nil {
		t.Error("expected error for boolean")
	}
}

func TestBuild_Properties(t *testing.T) {
	code := rapid.StringMatching(`[A-Za-z0-9]{1,6}`)
	rapid.Check(t, func(t *rapid.T) {
		a := Attrs{
			Type:     code.Draw(t, "type"),
			Line:     code.Draw(t, "line"),
			Inch:     float64(rapid.IntRange(1, 4000).Draw(t, "quarterInches")) / 4,
			Tag:      code.Draw(t, "tag"),
			LengthMm: float64(rapid.IntRange(1, 100000).Draw(t, "length")),
		}
		if err := a.Validate(); err != nil {
			t.Fatalf("generated attrs invalid: %v", err)
		}

		id := Build(a)
		if id != Build(a) {
			t.Fatalf("Build not deterministic for %+v", a)
		}

		parts := strings.Split(id, Separator)
		if len(parts) != 5 {
			t.Fatalf("%q has %d segments, want 5", id, len(parts))
		}
		last := parts[4]
		if !strings.HasPrefix(last, "L") || strings.ContainsAny(last[1:], ".eE") || last[1:] == "" {
			t.Fatalf("length segment %q malformed", last)
		}
		if parts[3] != a.Tag {
			t.Fatalf("tag segment = %q, want %q", parts[3], a.Tag)
		}
	})
}
