// Package itemid builds the canonical item identifier
// "{type}_{line}_{inch}_{tag}_L{lengthMm}".
package itemid

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Separator joins identifier segments.
const Separator = "_"

// Attrs are the item attributes an identifier is built from. Tag is the
// resolved process tag, never the process code.
type Attrs struct {
	Type     string  `json:"type"`
	Line     string  `json:"line"`
	Inch     float64 `json:"inch"`
	Tag      string  `json:"tag"`
	LengthMm float64 `json:"lengthMm"`
}

// Build returns the identifier for a. It is pure and never fails; callers
// validate with Attrs.Validate first. The nominal size keeps its default
// numeric rendering, so 0.5 stays "0.5".
func Build(a Attrs) string {
	return strings.Join([]string{
		a.Type,
		a.Line,
		FormatNumber(a.Inch),
		a.Tag,
		"L" + FormatNumber(a.LengthMm),
	}, Separator)
}

// Validate checks the preconditions that keep Build's output well formed:
// five segments, a positive size and a whole-millimetre length.
func (a Attrs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Type, validation.Required, validation.By(noSeparator)),
		validation.Field(&a.Line, validation.Required, validation.By(noSeparator)),
		validation.Field(&a.Inch, validation.Required, validation.By(finite), validation.Min(0.0).Exclusive()),
		validation.Field(&a.Tag, validation.Required, validation.By(noSeparator)),
		validation.Field(&a.LengthMm, validation.Required, validation.By(wholeMillimetres)),
	)
}

func noSeparator(v any) error {
	s, _ := v.(string)
	if strings.Contains(s, Separator) {
		return fmt.Errorf("must not contain %q", Separator)
	}
	return nil
}

func finite(v any) error {
	f, _ := v.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("must be a finite number")
	}
	return nil
}

func wholeMillimetres(v any) error {
	f, _ := v.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f != math.Trunc(f) || f > 1e15 {
		return fmt.Errorf("must be a positive whole number of millimetres")
	}
	return nil
}

// FormatNumber renders v the way a JavaScript Number converts to a string:
// shortest round-trip digits, plain notation between 1e-6 and 1e21 and
// exponent notation outside it.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}
	abs := math.Abs(v)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}

// Number is a JSON number that also accepts a numeric string, for request
// bodies where forms send sizes as text.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("itemid: number or numeric string expected")
	}
	f, err := ParseNumber(s)
	if err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// ParseNumber converts a trimmed decimal string to a float64.
func ParseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("itemid: %q is not a number", s)
	}
	return f, nil
}

// ItemDoc is the persisted shape of a catalog item. CreatedAt is assigned by
// the store.
type ItemDoc struct {
	ItemID     string    `json:"itemId"`
	Type       string    `json:"type"`
	Line       string    `json:"line"`
	Inch       float64   `json:"inch"`
	Process    string    `json:"process"`
	ProcessTag string    `json:"process_tag"`
	LengthMm   float64   `json:"length_mm"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}
