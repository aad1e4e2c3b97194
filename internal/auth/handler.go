package auth

import (
	"errors"
	"net/http"

	"github.com/fmteixeira/mesh-ui/internal/audit"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

// Handler serves the authentication endpoints.
type Handler struct {
	service *Service
	audit   audit.Logger
}

// NewHandler creates a Handler. A nil logger discards audit events.
func NewHandler(service *Service, logger audit.Logger) *Handler {
	if logger == nil {
		logger = audit.Discard
	}
	return &Handler{service: service, audit: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /admin/api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !server.DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		server.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", nil)
		return
	}

	editor, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		h.audit.Log(r.Context(), audit.Event{
			Action:   audit.ActionLoginFailure,
			Resource: "editor",
			Payload:  map[string]any{"email": req.Email},
		})
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid email or password", nil)
		return
	}
	if err != nil {
		server.InternalError(w, "login failed", err)
		return
	}

	h.audit.Log(r.Context(), audit.Event{
		Action:     audit.ActionLoginSuccess,
		ActorID:    editor.ID,
		Resource:   "editor",
		ResourceID: editor.ID,
	})
	server.JSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// Me handles GET /admin/api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := EditorIDFromContext(r.Context())
	if id == "" {
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated", nil)
		return
	}

	editor, err := h.service.Editor(r.Context(), id)
	if errors.Is(err, ErrEditorNotFound) {
		server.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "editor no longer exists", nil)
		return
	}
	if err != nil {
		server.InternalError(w, "loading editor failed", err)
		return
	}
	server.JSON(w, http.StatusOK, editor)
}
