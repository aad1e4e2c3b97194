package node

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fmteixeira/mesh-ui/internal/auth"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

// Handler provides HTTP handlers for projects and nodes.
type Handler struct {
	service *Service
}

// NewHandler creates a new node Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the node routes on an authenticated admin router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/projects", h.ListProjects)
	r.Post("/projects", h.CreateProject)
	r.Get("/projects/{project}/search", h.Search)
	r.Post("/projects/{project}/nodes", h.Create)
	r.Get("/projects/{project}/nodes/{uuid}", h.Get)
	r.Put("/projects/{project}/nodes/{uuid}", h.Update)
	r.Delete("/projects/{project}/nodes/{uuid}", h.Delete)
	r.Get("/projects/{project}/nodes/{uuid}/children", h.ListChildren)
	r.Post("/projects/{project}/nodes/{uuid}/publish", h.Publish)
}

// ListProjects handles GET /admin/api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context())
	if err != nil {
		server.InternalError(w, "failed to list projects", err)
		return
	}
	server.JSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// CreateProject handles POST /admin/api/projects.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	p, err := h.service.CreateProject(r.Context(), req.Name, req.Schema, auth.EditorIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	server.JSON(w, http.StatusCreated, p)
}

// Get handles GET /admin/api/projects/{project}/nodes/{uuid}?lang=.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Get(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "uuid"), r.URL.Query().Get("lang"))
	if err != nil {
		writeError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, n)
}

// ListChildren handles GET /admin/api/projects/{project}/nodes/{uuid}/children.
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	page, perPage := server.ParsePagination(r)
	nodes, total, err := h.service.ListChildren(r.Context(),
		chi.URLParam(r, "project"), chi.URLParam(r, "uuid"), r.URL.Query().Get("lang"), page, perPage)
	if err != nil {
		writeError(w, err)
		return
	}
	server.Paginated(w, nodes, page, perPage, total)
}

// Search handles GET /admin/api/projects/{project}/search. Either q (keyword)
// or tags (comma separated) must be given.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, perPage := server.ParsePagination(r)
	project := chi.URLParam(r, "project")
	lang := query.Get("lang")

	var (
		nodes []*Node
		total int
		err   error
	)
	switch {
	case query.Get("q") != "":
		nodes, total, err = h.service.SearchByKeyword(r.Context(), project, query.Get("q"), lang, page, perPage)
	case query.Get("tags") != "":
		nodes, total, err = h.service.SearchByTags(r.Context(), project, strings.Split(query.Get("tags"), ","), lang, page, perPage)
	default:
		server.Error(w, http.StatusBadRequest, "BAD_REQUEST", "either q or tags is required", nil)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	server.Paginated(w, nodes, page, perPage, total)
}

// Create handles POST /admin/api/projects/{project}/nodes.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	n, err := h.service.Create(r.Context(), chi.URLParam(r, "project"), req, auth.EditorIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	server.JSON(w, http.StatusCreated, n)
}

// Update handles PUT /admin/api/projects/{project}/nodes/{uuid}?lang=.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	n, err := h.service.Update(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "uuid"),
		r.URL.Query().Get("lang"), req, auth.EditorIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, n)
}

// Publish handles POST /admin/api/projects/{project}/nodes/{uuid}/publish.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.Publish(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "uuid"),
		auth.EditorIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	server.JSON(w, http.StatusOK, map[string]any{"availableLanguages": versions})
}

// Delete handles DELETE /admin/api/projects/{project}/nodes/{uuid}?recursive=true.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	recursive := r.URL.Query().Get("recursive") == "true"
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "uuid"),
		recursive, auth.EditorIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps service errors to HTTP responses.
func writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var cerr *ConflictError
	switch {
	case errors.As(err, &verr):
		server.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "validation failed", verr.Fields)
	case errors.As(err, &cerr):
		server.Error(w, http.StatusConflict, "CONFLICT", cerr.Error(), []server.FieldError{
			{Field: "version", Message: "current version is " + cerr.Current.String()},
		})
	case errors.Is(err, ErrNotFound):
		server.Error(w, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
	case errors.Is(err, ErrProjectExists):
		server.Error(w, http.StatusConflict, "PROJECT_EXISTS", "project already exists", nil)
	case errors.Is(err, ErrHasChildren):
		server.Error(w, http.StatusConflict, "HAS_CHILDREN", "node has children; delete recursively", nil)
	case errors.Is(err, ErrParentNotContainer):
		server.Error(w, http.StatusBadRequest, "PARENT_NOT_CONTAINER", "parent node cannot hold children", nil)
	default:
		server.InternalError(w, "node operation failed", err)
	}
}
