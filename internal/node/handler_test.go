package node

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(f.svc).Mount(r)
	return f, r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp.Error.Code
}

func TestHandler_CreateGetUpdate(t *testing.T) {
	f, h := newTestRouter(t)

	rr := do(t, h, http.MethodPost, "/projects/demo/nodes",
		`{"schema":"article","parentUuid":"`+f.root+`","fields":{"title":"Hello"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body)
	}
	var created struct {
		Data Node `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Data.Version != initialVersion {
		t.Errorf("version = %v", created.Data.Version)
	}

	rr = do(t, h, http.MethodGet, "/projects/demo/nodes/"+created.Data.UUID+"?lang=de", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	target := "/projects/demo/nodes/" + created.Data.UUID + "?lang=en"
	if rr := do(t, h, http.MethodPut, target, `{"version":"0.1","fields":{"title":"Again"}}`); rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body)
	}
	rr = do(t, h, http.MethodPut, target, `{"version":"0.1","fields":{"title":"Stale"}}`)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "CONFLICT" {
		t.Errorf("stale update status = %d", rr.Code)
	}

	rr = do(t, h, http.MethodPost, "/projects/demo/nodes/"+created.Data.UUID+"/publish", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"en":"1.0"`) {
		t.Errorf("publish = %d %s", rr.Code, rr.Body)
	}
}

func TestHandler_Errors(t *testing.T) {
	f, h := newTestRouter(t)
	parent := f.article(t, f.root, "Leaf")

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"unknown node", http.MethodGet, "/projects/demo/nodes/not-a-uuid", "", http.StatusNotFound, "NOT_FOUND"},
		{"validation", http.MethodPost, "/projects/demo/nodes", `{"schema":"article","parentUuid":"` + f.root + `","fields":{}}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"parent not container", http.MethodPost, "/projects/demo/nodes", `{"schema":"article","parentUuid":"` + parent.UUID + `","fields":{"title":"x"}}`, http.StatusBadRequest, "PARENT_NOT_CONTAINER"},
		{"root has children", http.MethodDelete, "/projects/demo/nodes/" + f.root, "", http.StatusConflict, "HAS_CHILDREN"},
		{"search without query", http.MethodGet, "/projects/demo/search", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"duplicate project", http.MethodPost, "/projects", `{"name":"demo","schema":"folder"}`, http.StatusConflict, "PROJECT_EXISTS"},
		{"bad json", http.MethodPost, "/projects", `{`, http.StatusBadRequest, "INVALID_JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.target, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body)
			}
			if code := errorCode(t, rr); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestHandler_ListAndSearch(t *testing.T) {
	f, h := newTestRouter(t)
	f.article(t, f.root, "Apple")
	f.article(t, f.root, "Banana")

	rr := do(t, h, http.MethodGet, "/projects/demo/nodes/"+f.root+"/children?per_page=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("children status = %d", rr.Code)
	}
	var list struct {
		Data []Node `json:"data"`
		Meta struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 1 || list.Meta.Total != 2 || list.Meta.TotalPages != 2 {
		t.Errorf("children page = %+v", list)
	}

	rr = do(t, h, http.MethodGet, "/projects/demo/search?tags=news", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Banana") {
		t.Errorf("tag search = %d %s", rr.Code, rr.Body)
	}

	rr = do(t, h, http.MethodGet, "/projects", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"name":"demo"`) {
		t.Errorf("projects = %d %s", rr.Code, rr.Body)
	}
}
