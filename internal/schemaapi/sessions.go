package schemaapi

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fmteixeira/mesh-ui/internal/draft"
	"github.com/fmteixeira/mesh-ui/internal/schema"
)

// Session is one editor's schema draft.
type Session struct {
	id     string
	ctrl   *draft.Controller
	cancel func()

	mu   sync.Mutex
	base string // stored schema the draft was opened from or last saved as
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Base returns the name of the stored schema the draft is bound to, or "" for
// a draft that has never been saved.
func (s *Session) Base() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// bind records name as the stored schema the draft is saved to.
func (s *Session) bind(name string) {
	s.mu.Lock()
	s.base = name
	s.mu.Unlock()
}

// Controller returns the draft controller of the session.
func (s *Session) Controller() *draft.Controller { return s.ctrl }

// Sessions is the in-memory registry of open schema drafts.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

// Open registers a new draft, hydrated from doc when it is non-nil.
func (s *Sessions) Open(doc *schema.Schema) *Session {
	sess := &Session{
		id:   uuid.NewString(),
		ctrl: draft.NewController(doc),
	}
	if doc != nil {
		sess.base = doc.Name
	}
	sess.cancel = sess.ctrl.Subscribe(func(st draft.State) {
		slog.Debug("schema draft changed",
			"session", sess.id, "schema", st.Schema.Name,
			"valid", st.Valid, "dirty", st.Dirty, "issues", len(st.Issues))
	})

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session with the given id.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Close removes a session. It reports whether the session existed.
func (s *Sessions) Close(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.cancel()
	}
	return ok
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
