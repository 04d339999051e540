// Package catalog creates and lists items whose identifiers are built from
// the master vocabularies.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/daewon/plantops/internal/apperr"
	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/itemid"
	"github.com/daewon/plantops/internal/metrics"
)

// Collection holds one document per item, keyed by item id.
const Collection = "items"

// MaxBulk caps the number of combinations one bulk request may generate.
const MaxBulk = 5000

// Vocabulary is the read side of the master projection.
type Vocabulary interface {
	TypeCodes() []string
	LineCodes() []string
	ProcessCodes() []string
	GetProcessTag(code string) string
}

// Publisher receives item events.
type Publisher interface {
	PublishItemCreated(itemID string)
}

// Service implements item creation and lookup.
type Service struct {
	store   docstore.DocumentStore
	masters Vocabulary
	events  Publisher
	logger  *slog.Logger
}

// NewService creates a catalog service. events may be nil.
func NewService(store docstore.DocumentStore, masters Vocabulary, events Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, masters: masters, events: events, logger: logger}
}

// ItemRequest names an item by vocabulary codes.
type ItemRequest struct {
	Type     string        `json:"type"`
	Line     string        `json:"line"`
	Inch     itemid.Number `json:"inch"`
	Process  string        `json:"process"`
	LengthMm itemid.Number `json:"lengthMm"`
}

// Validate checks that every field is present.
func (r ItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required),
		validation.Field(&r.Line, validation.Required),
		validation.Field(&r.Inch, validation.Required),
		validation.Field(&r.Process, validation.Required),
		validation.Field(&r.LengthMm, validation.Required),
	)
}

// Resolved is an item request with its tag looked up and identifier built.
type Resolved struct {
	Process string       `json:"process"`
	Attrs   itemid.Attrs `json:"attrs"`
	ItemID  string       `json:"itemId"`
}

// Resolve checks r against the current vocabularies, resolves the process
// tag and builds the identifier. Unknown codes and processes without a tag
// yield apperr.ErrInvalid.
func (s *Service) Resolve(r ItemRequest) (*Resolved, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w: %v", apperr.ErrInvalid, err)
	}
	if err := (validation.Errors{
		"type":    member(r.Type, s.masters.TypeCodes()),
		"line":    member(r.Line, s.masters.LineCodes()),
		"process": member(r.Process, s.masters.ProcessCodes()),
	}).Filter(); err != nil {
		return nil, fmt.Errorf("catalog: %w: %v", apperr.ErrInvalid, err)
	}

	tag := s.masters.GetProcessTag(r.Process)
	if tag == "" {
		return nil, fmt.Errorf("catalog: %w: process %q has no tag", apperr.ErrInvalid, r.Process)
	}
	attrs := itemid.Attrs{
		Type:     r.Type,
		Line:     r.Line,
		Inch:     float64(r.Inch),
		Tag:      tag,
		LengthMm: float64(r.LengthMm),
	}
	if err := attrs.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w: %v", apperr.ErrInvalid, err)
	}
	return &Resolved{Process: r.Process, Attrs: attrs, ItemID: itemid.Build(attrs)}, nil
}

func member(code string, codes []string) error {
	if !slices.Contains(codes, code) {
		return fmt.Errorf("unknown code %q", code)
	}
	return nil
}

// Create stores one item. An existing item with the same identifier yields
// apperr.ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, r ItemRequest) (*itemid.ItemDoc, error) {
	res, err := s.Resolve(r)
	if err != nil {
		return nil, err
	}
	doc, err := s.insert(ctx, res)
	if err != nil {
		return nil, err
	}
	metrics.ItemsCreated.WithLabelValues("single").Inc()
	return doc, nil
}

func (s *Service) insert(ctx context.Context, res *Resolved) (*itemid.ItemDoc, error) {
	item := itemid.ItemDoc{
		ItemID:     res.ItemID,
		Type:       res.Attrs.Type,
		Line:       res.Attrs.Line,
		Inch:       res.Attrs.Inch,
		Process:    res.Process,
		ProcessTag: res.Attrs.Tag,
		LengthMm:   res.Attrs.LengthMm,
	}
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode item: %w", err)
	}
	stored, err := s.store.Create(ctx, Collection, item.ItemID, body)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, fmt.Errorf("catalog: item %s: %w", item.ItemID, err)
		}
		return nil, fmt.Errorf("catalog: create item: %w", err)
	}
	item.CreatedAt = stored.CreatedAt
	if s.events != nil {
		s.events.PublishItemCreated(item.ItemID)
	}
	return &item, nil
}

// BulkRequest selects the axes of a cartesian product of items.
type BulkRequest struct {
	Types     []string        `json:"types"`
	Lines     []string        `json:"lines"`
	Inches    []itemid.Number `json:"inches"`
	Processes []string        `json:"processes"`
	LengthsMm []itemid.Number `json:"lengthsMm"`
}

// Combinations is the number of items r would generate. The count saturates
// at MaxBulk+1 so that large axes cannot overflow the product.
func (r BulkRequest) Combinations() int {
	n := 1
	for _, axis := range []int{len(r.Types), len(r.Lines), len(r.Inches), len(r.Processes), len(r.LengthsMm)} {
		if axis == 0 {
			return 0
		}
		if axis > MaxBulk || n > MaxBulk/axis {
			return MaxBulk + 1
		}
		n *= axis
	}
	return n
}

// Validate checks that every axis is non-empty and the product is bounded.
func (r BulkRequest) Validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Types, validation.Required),
		validation.Field(&r.Lines, validation.Required),
		validation.Field(&r.Inches, validation.Required),
		validation.Field(&r.Processes, validation.Required),
		validation.Field(&r.LengthsMm, validation.Required),
	); err != nil {
		return err
	}
	if r.Combinations() > MaxBulk {
		return fmt.Errorf("request expands to more than %d items", MaxBulk)
	}
	return nil
}

// BulkResult lists what a bulk request did, in generation order.
type BulkResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// Expand resolves every combination of r without storing anything.
// Combinations that produce the same identifier appear once.
func (s *Service) Expand(r BulkRequest) ([]*Resolved, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w: %v", apperr.ErrInvalid, err)
	}
	out := make([]*Resolved, 0, r.Combinations())
	seen := make(map[string]struct{}, r.Combinations())
	for _, typ := range r.Types {
		for _, line := range r.Lines {
			for _, inch := range r.Inches {
				for _, proc := range r.Processes {
					for _, length := range r.LengthsMm {
						res, err := s.Resolve(ItemRequest{Type: typ, Line: line, Inch: inch, Process: proc, LengthMm: length})
						if err != nil {
							return nil, err
						}
						if _, dup := seen[res.ItemID]; dup {
							continue
						}
						seen[res.ItemID] = struct{}{}
						out = append(out, res)
					}
				}
			}
		}
	}
	return out, nil
}

// CreateBulk stores every combination of r. Items that already exist are
// skipped. Any invalid combination rejects the whole request before anything
// is stored.
func (s *Service) CreateBulk(ctx context.Context, r BulkRequest) (*BulkResult, error) {
	resolved, err := s.Expand(r)
	if err != nil {
		return nil, err
	}
	result := &BulkResult{Created: []string{}, Skipped: []string{}}
	for _, res := range resolved {
		if _, err := s.insert(ctx, res); err != nil {
			if errors.Is(err, apperr.ErrAlreadyExists) {
				result.Skipped = append(result.Skipped, res.ItemID)
				continue
			}
			return result, err
		}
		result.Created = append(result.Created, res.ItemID)
	}
	metrics.ItemsCreated.WithLabelValues("bulk").Add(float64(len(result.Created)))
	s.logger.Info("catalog: bulk create",
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// Get returns one item or apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*itemid.ItemDoc, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, err
	}
	return decodeItem(doc)
}

// ListOptions narrows List.
type ListOptions struct {
	Prefix string
	Limit  int
	Offset int
}

// List returns items ordered by identifier. Prefix filters on the
// identifier, so "A_L1_" lists every item of type A on line L1.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]itemid.ItemDoc, error) {
	docs, err := s.store.List(ctx, Collection, docstore.ListOptions{
		Prefix: opts.Prefix,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]itemid.ItemDoc, 0, len(docs))
	for i := range docs {
		item, err := decodeItem(&docs[i])
		if err != nil {
			s.logger.Warn("catalog: skipping undecodable item", slog.String("id", docs[i].ID), slog.String("error", err.Error()))
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

func decodeItem(doc *docstore.Document) (*itemid.ItemDoc, error) {
	var item itemid.ItemDoc
	if err := json.Unmarshal(doc.Data, &item); err != nil {
		return nil, fmt.Errorf("catalog: decode item %s: %w", doc.ID, err)
	}
	if item.ItemID == "" {
		item.ItemID = doc.ID
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = doc.CreatedAt
	}
	return &item, nil
}
