package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fmteixeira/mesh-ui/internal/server"
)

// Handler serves the audit log API.
type Handler struct {
	service *Service
}

// NewHandler creates a new audit Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Mount registers GET /audit-log.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/audit-log", h.List)
}

// List returns a page of entries filtered by action, resource and actor.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := Filters{
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
		ActorID:  q.Get("actor"),
	}
	page, perPage := server.ParsePagination(r)

	entries, total, err := h.service.List(r.Context(), filters, page, perPage)
	if err != nil {
		server.InternalError(w, "audit log list failed", err)
		return
	}
	server.Paginated(w, entries, page, perPage, total)
}
