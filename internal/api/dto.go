package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/daewon/plantops/internal/itemid"
	"github.com/daewon/plantops/internal/masters"
)

// MastersResponse is the current master view (aliased from the domain layer).
type MastersResponse = masters.Snapshot

// VocabularyRequest replaces one master vocabulary document. Disabled
// entries are stored as given and filtered by the projection.
type VocabularyRequest struct {
	List []masters.Entry `json:"list"`
}

var noSeparator = validation.NewStringRule(func(s string) bool {
	return !strings.Contains(s, "_")
}, "must not contain '_'")

// Validate requires unique codes; codes and tags may not contain the item
// identifier separator.
func (r VocabularyRequest) Validate() error {
	errs := validation.Errors{}
	seen := make(map[string]bool, len(r.List))
	for i, e := range r.List {
		key := strconv.Itoa(i)
		if err := validation.ValidateStruct(&e,
			validation.Field(&e.Code, validation.Required, noSeparator),
			validation.Field(&e.Tag, noSeparator),
		); err != nil {
			errs[key] = err
			continue
		}
		if seen[e.Code] {
			errs[key] = fmt.Errorf("duplicate code %q", e.Code)
			continue
		}
		seen[e.Code] = true
	}
	return errs.Filter()
}

// VocabularyResponse reports the outcome of a vocabulary write.
type VocabularyResponse struct {
	Vocabulary string `json:"vocabulary" example:"processes"`
	Changed    bool   `json:"changed"`
}

// ProcessTagResponse is returned by the process tag lookup.
type ProcessTagResponse struct {
	Code string `json:"code" example:"FOAM" validate:"required"`
	Tag  string `json:"tag" example:"F"`
}

// ItemIDRequest asks for an identifier preview. When Process is set the tag
// is resolved from the master view; otherwise Tag is used as given.
type ItemIDRequest struct {
	Type     string        `json:"type" example:"PIPE"`
	Line     string        `json:"line" example:"L1"`
	Inch     itemid.Number `json:"inch" example:"10"`
	Process  string        `json:"process,omitempty" example:"FOAM"`
	Tag      string        `json:"tag,omitempty" example:"F"`
	LengthMm itemid.Number `json:"lengthMm" example:"6000"`
}

// ItemIDResponse is an identifier with the attributes it was built from.
type ItemIDResponse struct {
	ItemID string       `json:"itemId" example:"PIPE_L1_10_F_L6000" validate:"required"`
	Attrs  itemid.Attrs `json:"attrs" validate:"required"`
}

// ItemDetail is a stored item (aliased from the domain layer).
type ItemDetail = itemid.ItemDoc

// ItemListResponse wraps item listings.
type ItemListResponse struct {
	Items []ItemDetail `json:"items" validate:"required"`
}

// LoginRequest is the JSON body of POST /login.
type LoginRequest struct {
	Identifier string `json:"identifier" example:"jdoe" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
	Redirect   string `json:"redirect,omitempty" example:"/inventory"`
}

// LoginResponse is returned to JSON clients after signing in.
type LoginResponse struct {
	Token     string    `json:"token" validate:"required"`
	Email     string    `json:"email" example:"jdoe@daewon.local" validate:"required"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
	Redirect  string    `json:"redirect" example:"/inventory" validate:"required"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	AuthEnabled bool       `json:"auth_enabled"`
	Email       string     `json:"email,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
