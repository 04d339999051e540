package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/daewon/plantops/internal/apperr"
	"github.com/daewon/plantops/internal/catalog"
	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/itemid"
	"github.com/daewon/plantops/internal/masters"
)

const defaultSchemaSample = 200

// Handler holds API route handlers.
type Handler struct {
	store       docstore.DocumentStore
	masters     *masters.Projection
	catalog     *catalog.Service
	authEnabled bool
	logger      *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		store:       deps.Store,
		masters:     deps.Masters,
		catalog:     deps.Catalog,
		authEnabled: deps.Auth != nil,
		logger:      deps.logger(),
	}
}

// GetMasters handles GET /api/masters.
//
//	@Summary		Current master vocabularies and derived lookups
//	@Tags			masters
//	@Produce		json
//	@Success		200	{object}	MastersResponse
//	@Security		SessionAuth
//	@Router			/masters [get]
func (h *Handler) GetMasters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.masters.Snapshot())
}

// GetVocabulary handles GET /api/masters/{vocabulary}.
//
//	@Summary		Enabled entries of one vocabulary in view order
//	@Tags			masters
//	@Produce		json
//	@Param			vocabulary	path		string	true	"types, lines or processes"
//	@Success		200			{array}		masters.Entry
//	@Failure		404			{object}	errResponse
//	@Security		SessionAuth
//	@Router			/masters/{vocabulary} [get]
func (h *Handler) GetVocabulary(w http.ResponseWriter, r *http.Request) {
	v := masters.Vocabulary(chi.URLParam(r, "vocabulary"))
	if !slices.Contains(masters.Vocabularies, v) {
		writeError(w, h.logger, "get vocabulary", fmt.Errorf("vocabulary %q: %w", v, apperr.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, h.masters.Entries(v))
}

// PutVocabulary handles PUT /api/masters/{vocabulary}. The write reaches the
// projections through the document feed like any other change.
//
//	@Summary		Replace one master vocabulary
//	@Tags			masters
//	@Accept			json
//	@Produce		json
//	@Param			vocabulary	path		string				true	"types, lines or processes"
//	@Param			body		body		VocabularyRequest	true	"Full entry list"
//	@Success		200			{object}	VocabularyResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		SessionAuth
//	@Router			/masters/{vocabulary} [put]
func (h *Handler) PutVocabulary(w http.ResponseWriter, r *http.Request) {
	v := masters.Vocabulary(chi.URLParam(r, "vocabulary"))
	if !slices.Contains(masters.Vocabularies, v) {
		writeError(w, h.logger, "put vocabulary", fmt.Errorf("vocabulary %q: %w", v, apperr.ErrNotFound))
		return
	}

	var req VocabularyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, "put vocabulary", fmt.Errorf("%w: %v", apperr.ErrInvalid, err))
		return
	}
	if req.List == nil {
		req.List = []masters.Entry{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		writeError(w, h.logger, "put vocabulary", err)
		return
	}
	changed, err := h.store.Set(r.Context(), masters.Collection, string(v), body)
	if err != nil {
		writeError(w, h.logger, "put vocabulary", err)
		return
	}
	h.logger.Info("masters: vocabulary replaced",
		slog.String("vocabulary", string(v)),
		slog.Int("entries", len(req.List)),
		slog.Bool("changed", changed))
	writeJSON(w, http.StatusOK, VocabularyResponse{Vocabulary: string(v), Changed: changed})
}

// GetProcessTag handles GET /api/masters/process-tag/{code}.
// Unknown codes resolve to an empty tag.
//
//	@Summary		Tag of a process code
//	@Tags			masters
//	@Produce		json
//	@Param			code	path		string	true	"Process code"
//	@Success		200		{object}	ProcessTagResponse
//	@Security		SessionAuth
//	@Router			/masters/process-tag/{code} [get]
func (h *Handler) GetProcessTag(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	writeJSON(w, http.StatusOK, ProcessTagResponse{Code: code, Tag: h.masters.GetProcessTag(code)})
}

// BuildItemID handles POST /api/item-id.
//
//	@Summary		Preview an item identifier
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ItemIDRequest	true	"Item attributes"
//	@Success		200		{object}	ItemIDResponse
//	@Failure		400		{object}	errResponse
//	@Security		SessionAuth
//	@Router			/item-id [post]
func (h *Handler) BuildItemID(w http.ResponseWriter, r *http.Request) {
	var req ItemIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Process != "" {
		res, err := h.catalog.Resolve(catalog.ItemRequest{
			Type:     req.Type,
			Line:     req.Line,
			Inch:     req.Inch,
			Process:  req.Process,
			LengthMm: req.LengthMm,
		})
		if err != nil {
			writeError(w, h.logger, "build item id", err)
			return
		}
		writeJSON(w, http.StatusOK, ItemIDResponse{ItemID: res.ItemID, Attrs: res.Attrs})
		return
	}

	attrs := itemid.Attrs{
		Type:     req.Type,
		Line:     req.Line,
		Inch:     float64(req.Inch),
		Tag:      req.Tag,
		LengthMm: float64(req.LengthMm),
	}
	if err := attrs.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ItemIDResponse{ItemID: itemid.Build(attrs), Attrs: attrs})
}

// ListItems handles GET /api/items.
//
//	@Summary		List items ordered by identifier
//	@Tags			items
//	@Produce		json
//	@Param			prefix	query		string	false	"Identifier prefix"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	ItemListResponse
//	@Security		SessionAuth
//	@Router			/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, err := h.catalog.List(r.Context(), catalog.ListOptions{
		Prefix: q.Get("prefix"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.logger, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items})
}

// GetItem handles GET /api/items/{id}.
//
//	@Summary		Get one item
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item identifier"
//	@Success		200	{object}	ItemDetail
//	@Failure		404	{object}	errResponse
//	@Security		SessionAuth
//	@Router			/items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create one item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		catalog.ItemRequest	true	"Item to create"
//	@Success		201		{object}	ItemDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		SessionAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req catalog.ItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// CreateItemsBulk handles POST /api/items/bulk.
//
//	@Summary		Create the cartesian product of the chosen attributes
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		catalog.BulkRequest	true	"Attribute axes"
//	@Success		200		{object}	catalog.BulkResult
//	@Failure		400		{object}	errResponse
//	@Security		SessionAuth
//	@Router			/items/bulk [post]
func (h *Handler) CreateItemsBulk(w http.ResponseWriter, r *http.Request) {
	var req catalog.BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.catalog.CreateBulk(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "bulk create items", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InspectSchema handles GET /api/schema/{collection}.
//
//	@Summary		Field kinds observed in a collection
//	@Tags			schema
//	@Produce		json
//	@Param			collection	path		string	true	"Collection name"
//	@Param			sample		query		int		false	"Documents to sample"
//	@Success		200			{object}	docstore.SchemaReport
//	@Security		SessionAuth
//	@Router			/schema/{collection} [get]
func (h *Handler) InspectSchema(w http.ResponseWriter, r *http.Request) {
	sample, _ := strconv.Atoi(r.URL.Query().Get("sample"))
	if sample <= 0 {
		sample = defaultSchemaSample
	}
	report, err := h.store.InspectSchema(r.Context(), chi.URLParam(r, "collection"), sample)
	if err != nil {
		writeError(w, h.logger, "inspect schema", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetSession handles GET /api/session.
//
//	@Summary		The caller's session
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Router			/session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if !h.authEnabled {
		writeJSON(w, http.StatusOK, SessionResponse{AuthEnabled: false})
		return
	}
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, "get session", apperr.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{AuthEnabled: true, Email: sess.Email, ExpiresAt: &sess.ExpiresAt})
}
