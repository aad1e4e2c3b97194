package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/fmteixeira/mesh-ui/internal/audit"
)

var fastParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type memEditors struct {
	mu      sync.Mutex
	editors map[string]*Editor
}

func newMemEditors() *memEditors {
	return &memEditors{editors: make(map[string]*Editor)}
}

func (m *memEditors) EditorByEmail(_ context.Context, email string) (*Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.editors {
		if strings.EqualFold(e.Email, email) {
			return e, nil
		}
	}
	return nil, ErrEditorNotFound
}

func (m *memEditors) EditorByID(_ context.Context, id string) (*Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.editors[id]; ok {
		return e, nil
	}
	return nil, ErrEditorNotFound
}

func (m *memEditors) CreateEditor(ctx context.Context, email, hash string) (*Editor, error) {
	if e, err := m.EditorByEmail(ctx, email); err == nil {
		return e, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &Editor{ID: "ed-1", Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.editors[e.ID] = e
	return e, nil
}

type recordingLogger struct {
	events []audit.Event
}

func (l *recordingLogger) Log(_ context.Context, e audit.Event) { l.events = append(l.events, e) }

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(newMemEditors(), testSecret)
	s.params = fastParams
	if err := s.EnsureEditor(context.Background(), "editor@example.com", "correct-horse"); err != nil {
		t.Fatalf("EnsureEditor: %v", err)
	}
	return s
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"8 ascii", "12345678", nil},
		{"too short", "1234567", ErrPasswordTooShort},
		{"empty", "", ErrPasswordTooShort},
		{"8 multibyte runes", strings.Repeat("é", 8), nil},
		{"64 multibyte runes", strings.Repeat("é", 64), nil},
		{"65 runes", strings.Repeat("a", 65), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validatePassword(tt.password); !errors.Is(err, tt.wantErr) {
				t.Errorf("validatePassword = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureEditor_RejectsWeakPassword(t *testing.T) {
	s := NewService(newMemEditors(), testSecret)
	if err := s.EnsureEditor(context.Background(), "a@b.c", "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("err = %v, want ErrPasswordTooShort", err)
	}
}

func TestLogin(t *testing.T) {
	s := newTestService(t)

	editor, token, err := s.Login(context.Background(), "EDITOR@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := ValidateAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.EditorID() != editor.ID {
		t.Errorf("token subject = %q, want %q", claims.EditorID(), editor.ID)
	}

	for _, creds := range [][2]string{
		{"editor@example.com", "wrong-password"},
		{"nobody@example.com", "correct-horse"},
	} {
		if _, _, err := s.Login(context.Background(), creds[0], creds[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q) err = %v, want ErrInvalidCredentials", creds[0], err)
		}
	}
}

func TestHandler_Login(t *testing.T) {
	logger := &recordingLogger{}
	h := NewHandler(newTestService(t), logger)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantAction string
	}{
		{"success", `{"email":"editor@example.com","password":"correct-horse"}`, http.StatusOK, audit.ActionLoginSuccess},
		{"wrong password", `{"email":"editor@example.com","password":"nope-nope"}`, http.StatusUnauthorized, audit.ActionLoginFailure},
		{"missing fields", `{"email":""}`, http.StatusBadRequest, ""},
		{"bad json", `{`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger.events = nil
			rr := httptest.NewRecorder()
			h.Login(rr, httptest.NewRequest(http.MethodPost, "/admin/api/auth/login", strings.NewReader(tt.body)))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body)
			}
			if tt.wantAction == "" {
				if len(logger.events) != 0 {
					t.Errorf("unexpected audit events: %+v", logger.events)
				}
				return
			}
			if len(logger.events) != 1 || logger.events[0].Action != tt.wantAction {
				t.Errorf("audit events = %+v, want one %s", logger.events, tt.wantAction)
			}
		})
	}
}

func TestHandler_Me(t *testing.T) {
	h := NewHandler(newTestService(t), nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/api/auth/me", nil)
	h.Me(rr, req.WithContext(WithEditor(req.Context(), "ed-1", "editor@example.com")))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Data["email"] != "editor@example.com" {
		t.Errorf("email = %v", body.Data["email"])
	}
	if _, leaked := body.Data["PasswordHash"]; leaked {
		t.Error("password hash must not be serialized")
	}

	rr = httptest.NewRecorder()
	h.Me(rr, httptest.NewRequest(http.MethodGet, "/admin/api/auth/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rr.Code)
	}
}
