package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

type fakeDB struct{ err error }

func (f fakeDB) Health(context.Context) error { return f.err }

type pingRoutes struct{}

func (pingRoutes) Mount(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, "pong")
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if !DecodeJSON(w, r, &v) {
			return
		}
		JSON(w, http.StatusOK, v)
	})
}

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "no", nil)
	})
}

func serve(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		db   HealthChecker
		want int
	}{
		{"healthy", fakeDB{}, http.StatusOK},
		{"unhealthy", fakeDB{err: errors.New("down")}, http.StatusServiceUnavailable},
		{"no database", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(Dependencies{DB: tt.db})
			if rr := serve(t, r, http.MethodGet, "/health", "", ""); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAdminRoutesAreAuthenticated(t *testing.T) {
	r := NewRouter(Dependencies{AuthMiddleware: denyAll, Admin: []Mounter{pingRoutes{}}})
	if rr := serve(t, r, http.MethodGet, "/admin/api/ping", "", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}

	r = NewRouter(Dependencies{Admin: []Mounter{pingRoutes{}}})
	if rr := serve(t, r, http.MethodGet, "/admin/api/ping", "", ""); rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestPublicRoutesAreMountedAtRoot(t *testing.T) {
	r := NewRouter(Dependencies{AuthMiddleware: denyAll, Public: []Mounter{pingRoutes{}}})
	if rr := serve(t, r, http.MethodGet, "/ping", "", ""); rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestRequireJSON(t *testing.T) {
	r := NewRouter(Dependencies{Admin: []Mounter{pingRoutes{}}})

	rr := serve(t, r, http.MethodPost, "/admin/api/echo", "text/plain", "hi")
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rr.Code)
	}
	if code := errorCode(t, rr); code != "UNSUPPORTED_MEDIA_TYPE" {
		t.Errorf("code = %q", code)
	}

	rr = serve(t, r, http.MethodPost, "/admin/api/echo", "application/json", "{")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	rr = serve(t, r, http.MethodPost, "/admin/api/echo", "application/json; charset=utf-8", `{"a":1}`)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	r := NewRouter(Dependencies{})
	rr := serve(t, r, http.MethodGet, "/nope", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if code := errorCode(t, rr); code != "NOT_FOUND" {
		t.Errorf("code = %q", code)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "", 1, 20},
		{"custom page", "page=3", 3, 20},
		{"both", "page=2&per_page=10", 2, 10},
		{"invalid page", "page=-1", 1, 20},
		{"invalid per_page", "per_page=abc", 1, 20},
		{"per_page capped", "per_page=200", 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			page, perPage := ParsePagination(r)
			if page != tt.wantPage || perPage != tt.wantPerPage {
				t.Errorf("got (%d, %d), want (%d, %d)", page, perPage, tt.wantPage, tt.wantPerPage)
			}
		})
	}
}

func TestPaginatedTotalPages(t *testing.T) {
	rr := httptest.NewRecorder()
	Paginated(rr, []int{1}, 1, 20, 41)

	var body paginatedResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Meta.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", body.Meta.TotalPages)
	}
}
