// Package schemaapi exposes schema documents and schema draft editing over
// HTTP. It is separated from the schema and draft packages because it
// depends on the server, auth and audit packages.
package schemaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fmteixeira/mesh-ui/internal/audit"
	"github.com/fmteixeira/mesh-ui/internal/auth"
	"github.com/fmteixeira/mesh-ui/internal/draft"
	"github.com/fmteixeira/mesh-ui/internal/schema"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

// SchemaStore persists schema documents. *schema.Store satisfies it.
type SchemaStore interface {
	List(ctx context.Context) ([]schema.Schema, error)
	Get(ctx context.Context, name string) (*schema.Schema, error)
	Save(ctx context.Context, s schema.Schema, force bool) ([]schema.Change, error)
	Delete(ctx context.Context, name string) error
}

// Handler provides the schema and schema draft endpoints.
type Handler struct {
	store    SchemaStore
	sessions *Sessions
	audit    audit.Logger
}

// NewHandler creates a new schema Handler. A nil logger discards audit events.
func NewHandler(store SchemaStore, sessions *Sessions, logger audit.Logger) *Handler {
	if logger == nil {
		logger = audit.Discard
	}
	return &Handler{store: store, sessions: sessions, audit: logger}
}

// Mount registers the routes on an authenticated admin router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/field-types", h.FieldTypes)
	r.Get("/schemas", h.ListSchemas)
	r.Get("/schemas/{name}", h.GetSchema)
	r.Delete("/schemas/{name}", h.DeleteSchema)

	r.Post("/schema-drafts", h.OpenDraft)
	r.Route("/schema-drafts/{id}", func(r chi.Router) {
		r.Use(h.loadSession)
		r.Get("/", h.GetDraft)
		r.Put("/", h.ApplyChange)
		r.Delete("/", h.CloseDraft)
		r.Post("/commands", h.Dispatch)
		r.Post("/save", h.Save)

		r.Post("/fields", h.AddField)
		r.Delete("/fields/last", h.RemoveLastField)
		r.Route("/fields/{index}", func(r chi.Router) {
			r.Delete("/", h.RemoveField)
			r.Get("/check-duplicate", h.CheckDuplicate)
			r.Put("/allow", h.SetAllowed)
			r.Post("/allow", h.AddAllowed)
			r.Delete("/allow", h.ClearAllowed)
			r.Put("/allow/raw", h.RawAllowInput)
			r.Delete("/allow/last", h.RemoveLastAllowed)
			r.Get("/allow/values/{value}", h.AllowedContains)
			r.Delete("/allow/values/{value}", h.RemoveAllowed)
		})
	})
}

// FieldTypes handles GET /admin/api/field-types.
func (h *Handler) FieldTypes(w http.ResponseWriter, r *http.Request) {
	server.JSON(w, http.StatusOK, map[string]any{
		"types":     schema.FieldTypes(),
		"listTypes": schema.ListTypes(),
	})
}

// ListSchemas handles GET /admin/api/schemas.
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.store.List(r.Context())
	if err != nil {
		server.InternalError(w, "failed to list schemas", err)
		return
	}
	server.JSON(w, http.StatusOK, schemas)
}

// GetSchema handles GET /admin/api/schemas/{name}.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	sc, err := h.store.Get(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, schema.ErrNotFound) {
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "schema not found", nil)
		return
	}
	if err != nil {
		server.InternalError(w, "failed to load schema", err)
		return
	}
	server.JSON(w, http.StatusOK, sc)
}

// DeleteSchema handles DELETE /admin/api/schemas/{name}.
func (h *Handler) DeleteSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.store.Delete(r.Context(), name)
	switch {
	case errors.Is(err, schema.ErrNotFound):
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "schema not found", nil)
		return
	case errors.Is(err, schema.ErrInUse):
		server.Error(w, http.StatusConflict, "SCHEMA_IN_USE", "schema is used by existing nodes", nil)
		return
	case err != nil:
		server.InternalError(w, "failed to delete schema", err)
		return
	}

	h.audit.Log(r.Context(), audit.Event{
		Action:     audit.ActionSchemaDelete,
		ActorID:    auth.EditorIDFromContext(r.Context()),
		Resource:   "schema",
		ResourceID: name,
	})
	w.WriteHeader(http.StatusNoContent)
}

type openDraftRequest struct {
	From string `json:"from"`
}

type draftResponse struct {
	ID    string      `json:"id"`
	State draft.State `json:"state"`
}

// OpenDraft handles POST /admin/api/schema-drafts. With {"from": name} the
// draft is hydrated from the stored schema, otherwise it starts empty.
func (h *Handler) OpenDraft(w http.ResponseWriter, r *http.Request) {
	var req openDraftRequest
	if r.ContentLength != 0 && !server.DecodeJSON(w, r, &req) {
		return
	}

	var doc *schema.Schema
	if req.From != "" {
		sc, err := h.store.Get(r.Context(), req.From)
		if errors.Is(err, schema.ErrNotFound) {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "schema not found", nil)
			return
		}
		if err != nil {
			server.InternalError(w, "failed to load schema", err)
			return
		}
		doc = sc
	}

	sess := h.sessions.Open(doc)
	server.JSON(w, http.StatusCreated, draftResponse{ID: sess.ID(), State: sess.Controller().State()})
}

type sessionKey struct{}

// loadSession resolves {id} to an open session or responds 404.
func (h *Handler) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			server.Error(w, http.StatusNotFound, "NOT_FOUND", "schema draft not found", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *Session {
	return r.Context().Value(sessionKey{}).(*Session)
}

func writeState(w http.ResponseWriter, st draft.State) {
	server.JSON(w, http.StatusOK, st)
}

// GetDraft handles GET /admin/api/schema-drafts/{id}.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	writeState(w, sessionFrom(r).Controller().State())
}

// ApplyChange handles PUT /admin/api/schema-drafts/{id} with a form snapshot.
func (h *Handler) ApplyChange(w http.ResponseWriter, r *http.Request) {
	var snap draft.Snapshot
	if !server.DecodeJSON(w, r, &snap) {
		return
	}
	writeState(w, sessionFrom(r).Controller().ApplyChange(snap))
}

// CloseDraft handles DELETE /admin/api/schema-drafts/{id}.
func (h *Handler) CloseDraft(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(sessionFrom(r).ID())
	w.WriteHeader(http.StatusNoContent)
}

// Dispatch handles POST /admin/api/schema-drafts/{id}/commands.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !server.DecodeJSON(w, r, &raw) {
		return
	}
	cmd, err := draft.DecodeCommand(raw)
	if err != nil {
		server.Error(w, http.StatusBadRequest, "INVALID_COMMAND", err.Error(), nil)
		return
	}
	st, err := sessionFrom(r).Controller().Dispatch(cmd)
	if errors.Is(err, draft.ErrFieldNotFound) || errors.Is(err, draft.ErrIndexOutOfRange) {
		server.Error(w, http.StatusUnprocessableEntity, "COMMAND_REJECTED", err.Error(), nil)
		return
	}
	if err != nil {
		server.InternalError(w, "command failed", err)
		return
	}
	writeState(w, st)
}

// AddField handles POST /admin/api/schema-drafts/{id}/fields.
func (h *Handler) AddField(w http.ResponseWriter, r *http.Request) {
	writeState(w, sessionFrom(r).Controller().AddField())
}

// RemoveLastField handles DELETE /admin/api/schema-drafts/{id}/fields/last.
func (h *Handler) RemoveLastField(w http.ResponseWriter, r *http.Request) {
	writeState(w, sessionFrom(r).Controller().RemoveLastField())
}

// fieldIndex parses {index}. On failure it writes a 400 response.
func fieldIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		server.Error(w, http.StatusBadRequest, "INVALID_INDEX", "field index must be a non-negative integer", nil)
		return 0, false
	}
	return index, true
}

// RemoveField handles DELETE /admin/api/schema-drafts/{id}/fields/{index}.
func (h *Handler) RemoveField(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	writeState(w, sessionFrom(r).Controller().RemoveField(index))
}

// CheckDuplicate handles GET .../fields/{index}/check-duplicate?attr=name|label.
func (h *Handler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	attr := draft.Attribute(r.URL.Query().Get("attr"))
	if attr != draft.AttrName && attr != draft.AttrLabel {
		server.Error(w, http.StatusBadRequest, "INVALID_ATTRIBUTE", "attr must be name or label", nil)
		return
	}
	dup := sessionFrom(r).Controller().CheckDuplicate(index, attr)
	server.JSON(w, http.StatusOK, map[string]bool{"duplicate": dup})
}

type allowValuesRequest struct {
	Values []string `json:"values"`
}

// SetAllowed handles PUT .../fields/{index}/allow.
func (h *Handler) SetAllowed(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	var req allowValuesRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	writeState(w, sessionFrom(r).Controller().SetAllowed(index, req.Values))
}

type allowValueRequest struct {
	Value string `json:"value"`
}

// AddAllowed handles POST .../fields/{index}/allow.
func (h *Handler) AddAllowed(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	var req allowValueRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	writeState(w, sessionFrom(r).Controller().AddAllowed(index, req.Value))
}

// ClearAllowed handles DELETE .../fields/{index}/allow.
func (h *Handler) ClearAllowed(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	writeState(w, sessionFrom(r).Controller().ClearAllowed(index))
}

type rawAllowRequest struct {
	Raw string `json:"raw"`
}

// RawAllowInput handles PUT .../fields/{index}/allow/raw with the text typed
// into the allow input.
func (h *Handler) RawAllowInput(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	var req rawAllowRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	writeState(w, sessionFrom(r).Controller().OnRawAllowInput(index, req.Raw))
}

// RemoveLastAllowed handles DELETE .../fields/{index}/allow/last.
func (h *Handler) RemoveLastAllowed(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	writeState(w, sessionFrom(r).Controller().RemoveLastAllowed(index))
}

// AllowedContains handles GET .../fields/{index}/allow/values/{value}.
func (h *Handler) AllowedContains(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	contains := sessionFrom(r).Controller().AllowedContains(index, chi.URLParam(r, "value"))
	server.JSON(w, http.StatusOK, map[string]bool{"contains": contains})
}

// RemoveAllowed handles DELETE .../fields/{index}/allow/values/{value}.
func (h *Handler) RemoveAllowed(w http.ResponseWriter, r *http.Request) {
	index, ok := fieldIndex(w, r)
	if !ok {
		return
	}
	writeState(w, sessionFrom(r).Controller().RemoveAllowed(index, chi.URLParam(r, "value")))
}

type saveResponse struct {
	Schema  schema.Schema   `json:"schema"`
	Changes []schema.Change `json:"changes"`
	Dirty   bool            `json:"dirty"`
}

// Save handles POST /admin/api/schema-drafts/{id}/save[?force=true]. Invalid
// drafts are refused with 422 and breaking changes with 409 unless forced.
// A draft bound to a stored schema cannot be saved under another name.
// The draft is left untouched when the store fails and marked clean on
// success.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	ctrl := sess.Controller()
	st := ctrl.State()
	if !st.Valid {
		server.Error(w, http.StatusUnprocessableEntity, "INVALID_DRAFT",
			"schema draft has validation errors", issueDetails(st.Issues))
		return
	}

	doc := st.Schema
	if base := sess.Base(); base != "" && base != doc.Name {
		server.Error(w, http.StatusConflict, "SCHEMA_RENAMED",
			fmt.Sprintf("draft belongs to schema %q and cannot be saved as %q", base, doc.Name),
			[]server.FieldError{{Field: "name", Message: "renaming a stored schema is not supported"}})
		return
	}

	force := r.URL.Query().Get("force") == "true"
	changes, err := h.store.Save(r.Context(), doc, force)
	if err != nil {
		var breaking *schema.BreakingChangesError
		var invalid *schema.ValidationError
		switch {
		case errors.As(err, &breaking):
			details := make([]server.FieldError, 0, len(breaking.Changes))
			for _, c := range breaking.Changes {
				details = append(details, server.FieldError{Field: c.Field, Message: c.Detail})
			}
			server.Error(w, http.StatusConflict, "BREAKING_CHANGES",
				"schema save blocked by breaking changes; retry with force=true", details)
		case errors.As(err, &invalid):
			details := make([]server.FieldError, 0, len(invalid.Problems))
			for _, msg := range invalid.Problems {
				details = append(details, server.FieldError{Field: doc.Name, Message: msg})
			}
			server.Error(w, http.StatusUnprocessableEntity, "INVALID_SCHEMA", "schema document is invalid", details)
		default:
			server.InternalError(w, "failed to save schema", err)
		}
		return
	}

	sess.bind(doc.Name)
	dirty := !ctrl.MarkSaved(doc)

	h.audit.Log(r.Context(), audit.Event{
		Action:     audit.ActionSchemaSave,
		ActorID:    auth.EditorIDFromContext(r.Context()),
		Resource:   "schema",
		ResourceID: doc.Name,
		Payload:    map[string]any{"changes": len(changes), "forced": force},
	})

	if changes == nil {
		changes = []schema.Change{}
	}
	server.JSON(w, http.StatusOK, saveResponse{Schema: doc, Changes: changes, Dirty: dirty})
}

// issueDetails renders draft issues as field errors: "name" for schema-level
// attributes and "fields[i].attr" for field attributes.
func issueDetails(issues []draft.Issue) []server.FieldError {
	details := make([]server.FieldError, 0, len(issues))
	for _, is := range issues {
		field := string(is.Attribute)
		if is.Index != draft.SchemaLevel {
			field = fmt.Sprintf("fields[%d].%s", is.Index, is.Attribute)
		}
		details = append(details, server.FieldError{Field: field, Message: string(is.Kind)})
	}
	return details
}
