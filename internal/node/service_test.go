package node

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/fmteixeira/mesh-ui/internal/audit"
	"github.com/fmteixeira/mesh-ui/internal/schema"
	"github.com/fmteixeira/mesh-ui/internal/search"
)

type nodeRecord struct {
	project  string
	schema   string
	parent   string
	contents map[string]*Node
}

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	projects map[string]Project
	nodes    map[string]*nodeRecord
}

func newMemStore() *memStore {
	return &memStore{projects: map[string]Project{}, nodes: map[string]*nodeRecord{}}
}

func cloneNode(n *Node) *Node {
	c := *n
	c.Fields = maps.Clone(n.Fields)
	c.Tags = slices.Clone(n.Tags)
	return &c
}

func (m *memStore) ListProjects(context.Context) ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Collect(maps.Values(m.projects))
	slices.SortFunc(out, func(a, b Project) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *memStore) CreateProject(_ context.Context, p *Project, root *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.Name]; ok {
		return ErrProjectExists
	}
	m.projects[p.Name] = *p
	m.nodes[root.UUID] = &nodeRecord{project: p.Name, schema: root.Schema, contents: map[string]*Node{root.Language: cloneNode(root)}}
	return nil
}

func (m *memStore) NodeSchema(_ context.Context, project, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.nodes[id]
	if !ok || rec.project != project {
		return "", ErrNotFound
	}
	return rec.schema, nil
}

func (m *memStore) lookup(project, id string, languages []string) *Node {
	rec, ok := m.nodes[id]
	if !ok || rec.project != project {
		return nil
	}
	for _, l := range languages {
		if c, ok := rec.contents[l]; ok {
			return cloneNode(c)
		}
	}
	return nil
}

func (m *memStore) Get(_ context.Context, project, id string, languages []string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.lookup(project, id, languages); n != nil {
		return n, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) collect(project string, languages []string, match func(*nodeRecord, *Node) bool) []*Node {
	var out []*Node
	for id, rec := range m.nodes {
		if n := m.lookup(project, id, languages); n != nil && match(rec, n) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *Node) int { return strings.Compare(a.DisplayName, b.DisplayName) })
	return out
}

func page(nodes []*Node, p, perPage int) []*Node {
	start := min((p-1)*perPage, len(nodes))
	return nodes[start:min(start+perPage, len(nodes))]
}

func (m *memStore) ListChildren(_ context.Context, project, parent string, languages []string, p, perPage int) ([]*Node, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.collect(project, languages, func(rec *nodeRecord, _ *Node) bool { return rec.parent == parent })
	return page(all, p, perPage), len(all), nil
}

func (m *memStore) Search(_ context.Context, project string, languages []string, clause search.Clause, p, perPage int) ([]*Node, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.collect(project, languages, func(_ *nodeRecord, n *Node) bool {
		switch arg := clause.Args[0].(type) {
		case string:
			return strings.Contains(strings.ToLower(n.DisplayName), strings.ToLower(arg))
		case []string:
			return slices.ContainsFunc(arg, func(t string) bool { return slices.Contains(n.Tags, t) })
		}
		return false
	})
	return page(all, p, perPage), len(all), nil
}

func (m *memStore) Create(_ context.Context, n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.UUID] = &nodeRecord{project: n.Project, schema: n.Schema, parent: n.ParentUUID, contents: map[string]*Node{n.Language: cloneNode(n)}}
	return nil
}

func (m *memStore) AddLanguage(_ context.Context, n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.nodes[n.UUID]
	if c, ok := rec.contents[n.Language]; ok {
		return &ConflictError{Current: c.Version}
	}
	rec.contents[n.Language] = cloneNode(n)
	return nil
}

func (m *memStore) UpdateContent(_ context.Context, n *Node, expected Version) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.nodes[n.UUID].contents[n.Language]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Version != expected {
		return nil, &ConflictError{Requested: expected, Current: c.Version}
	}
	next := cloneNode(n)
	next.Version = expected.NextDraft()
	m.nodes[n.UUID].contents[n.Language] = next
	return cloneNode(next), nil
}

func (m *memStore) Publish(_ context.Context, project, id string) (map[string]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.nodes[id]
	if !ok || rec.project != project {
		return nil, ErrNotFound
	}
	out := map[string]Version{}
	for lang, c := range rec.contents {
		c.Version = c.Version.Published()
		out[lang] = c.Version
	}
	return out, nil
}

func (m *memStore) HasChildren(_ context.Context, project, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.nodes {
		if rec.project == project && rec.parent == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Delete(_ context.Context, project, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.nodes[id]; !ok || rec.project != project {
		return ErrNotFound
	}
	doomed := []string{id}
	for i := 0; i < len(doomed); i++ {
		for child, rec := range m.nodes {
			if rec.parent == doomed[i] {
				doomed = append(doomed, child)
			}
		}
	}
	for _, d := range doomed {
		delete(m.nodes, d)
	}
	return nil
}

type fakeSchemas map[string]*schema.Schema

func (f fakeSchemas) Get(_ context.Context, name string) (*schema.Schema, error) {
	if s, ok := f[name]; ok {
		return s, nil
	}
	return nil, schema.ErrNotFound
}

type recordingLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *recordingLogger) Log(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingLogger) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		out = append(out, e.Action)
	}
	return out
}

var testSchemas = fakeSchemas{
	"folder": {Name: "folder", Container: true, DisplayField: "name", Fields: []schema.Field{
		{Name: "name", Type: schema.FieldTypeString},
	}},
	"article": {Name: "article", DisplayField: "title", Fields: []schema.Field{
		{Name: "title", Type: schema.FieldTypeString, Required: true},
		{Name: "teaser", Type: schema.FieldTypeString},
		{Name: "image", Type: schema.FieldTypeBinary},
	}},
}

type fixture struct {
	svc    *Service
	store  *memStore
	logger *recordingLogger
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	logger := &recordingLogger{}
	svc := NewService(store, testSchemas, []string{"en", "de"}, logger)
	p, err := svc.CreateProject(context.Background(), "demo", "folder", "ed-1")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return &fixture{svc: svc, store: store, logger: logger, root: p.RootNodeUUID}
}

func (f *fixture) article(t *testing.T, parent, title string) *Node {
	t.Helper()
	n, err := f.svc.Create(context.Background(), "demo", CreateRequest{
		Schema:     "article",
		ParentUUID: parent,
		Fields:     map[string]any{"title": title},
		Tags:       []string{"news"},
	}, "ed-1")
	if err != nil {
		t.Fatalf("Create(%q): %v", title, err)
	}
	return n
}

func TestService_CreateProject(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.CreateProject(context.Background(), "demo", "folder", ""); !errors.Is(err, ErrProjectExists) {
		t.Errorf("duplicate project err = %v", err)
	}
	var verr *ValidationError
	if _, err := f.svc.CreateProject(context.Background(), "other", "article", ""); !errors.As(err, &verr) {
		t.Errorf("non-container root err = %v, want *ValidationError", err)
	}

	projects, _ := f.svc.ListProjects(context.Background())
	if len(projects) != 1 || projects[0].RootNodeUUID != f.root {
		t.Errorf("projects = %+v", projects)
	}
}

func TestService_Create(t *testing.T) {
	f := newFixture(t)
	n := f.article(t, f.root, "Hello")

	if n.Version != (Version{0, 1}) || !n.Version.Draft() {
		t.Errorf("new node version = %v, want 0.1", n.Version)
	}
	if n.Language != "en" || n.DisplayName != "Hello" {
		t.Errorf("node = %+v", n)
	}
	if got := f.logger.actions(); !slices.Equal(got, []string{audit.ActionNodeCreate}) {
		t.Errorf("audit actions = %v", got)
	}
}

func TestService_CreateRejects(t *testing.T) {
	f := newFixture(t)
	leaf := f.article(t, f.root, "Leaf")

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{"missing required", CreateRequest{Schema: "article", ParentUUID: f.root, Fields: map[string]any{}}, &ValidationError{}},
		{"unknown schema", CreateRequest{Schema: "nope", ParentUUID: f.root}, &ValidationError{}},
		{"unknown language", CreateRequest{Schema: "article", ParentUUID: f.root, Language: "fr"}, &ValidationError{}},
		{"bad parent uuid", CreateRequest{Schema: "article", ParentUUID: "root"}, &ValidationError{}},
		{"missing parent", CreateRequest{Schema: "article", ParentUUID: "550e8400-e29b-41d4-a716-446655440000", Fields: map[string]any{"title": "x"}}, ErrNotFound},
		{"parent not container", CreateRequest{Schema: "article", ParentUUID: leaf.UUID, Fields: map[string]any{"title": "x"}}, ErrParentNotContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), "demo", tt.req, "ed-1")
			if verr, ok := tt.wantErr.(*ValidationError); ok {
				if !errors.As(err, &verr) {
					t.Errorf("err = %v, want *ValidationError", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_GetFallsBack(t *testing.T) {
	f := newFixture(t)
	n := f.article(t, f.root, "Hello")

	got, err := f.svc.Get(context.Background(), "demo", n.UUID, "de")
	if err != nil {
		t.Fatal(err)
	}
	if got.Language != "en" {
		t.Errorf("language = %q, want fallback en", got.Language)
	}

	if _, err := f.svc.Get(context.Background(), "demo", "not-a-uuid", "en"); !errors.Is(err, ErrNotFound) {
		t.Errorf("invalid uuid err = %v, want ErrNotFound", err)
	}
}

func TestService_UpdateVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.article(t, f.root, "Hello")

	updated, err := f.svc.Update(ctx, "demo", n.UUID, "en", UpdateRequest{
		Version: n.Version,
		Fields:  map[string]any{"title": "Hello again", "teaser": "short"},
	}, "ed-2")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != (Version{0, 2}) || updated.DisplayName != "Hello again" || updated.EditorID != "ed-2" {
		t.Errorf("updated = %+v", updated)
	}
	if !slices.Equal(updated.Tags, []string{"news"}) {
		t.Errorf("nil tags should keep stored tags, got %v", updated.Tags)
	}

	// Stale version.
	_, err = f.svc.Update(ctx, "demo", n.UUID, "en", UpdateRequest{Version: n.Version, Fields: map[string]any{"teaser": "x"}}, "ed-1")
	var cerr *ConflictError
	if !errors.As(err, &cerr) || cerr.Current != (Version{0, 2}) {
		t.Fatalf("stale update err = %v, want conflict at 0.2", err)
	}

	// Clearing an optional field.
	cleared, err := f.svc.Update(ctx, "demo", n.UUID, "en", UpdateRequest{Version: updated.Version, Fields: map[string]any{"teaser": nil}}, "ed-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cleared.Fields["teaser"]; ok {
		t.Error("teaser should have been cleared")
	}

	// Clearing a required field.
	var verr *ValidationError
	if _, err := f.svc.Update(ctx, "demo", n.UUID, "en", UpdateRequest{Version: cleared.Version, Fields: map[string]any{"title": nil}}, "ed-1"); !errors.As(err, &verr) {
		t.Errorf("clearing required err = %v", err)
	}
}

func TestService_UpdateAddsLanguage(t *testing.T) {
	f := newFixture(t)
	n := f.article(t, f.root, "Hello")

	de, err := f.svc.Update(context.Background(), "demo", n.UUID, "de", UpdateRequest{Fields: map[string]any{"title": "Hallo"}}, "ed-1")
	if err != nil {
		t.Fatalf("Update(de): %v", err)
	}
	if de.Language != "de" || de.Version != initialVersion || de.DisplayName != "Hallo" {
		t.Errorf("de content = %+v", de)
	}

	if _, err := f.svc.Update(context.Background(), "demo", n.UUID, "fr", UpdateRequest{}, "ed-1"); err == nil {
		t.Error("unconfigured language should be rejected")
	}
}

func TestService_Publish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.article(t, f.root, "Hello")
	if _, err := f.svc.Update(ctx, "demo", n.UUID, "de", UpdateRequest{Fields: map[string]any{"title": "Hallo"}}, ""); err != nil {
		t.Fatal(err)
	}

	versions, err := f.svc.Publish(ctx, "demo", n.UUID, "ed-1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	want := map[string]Version{"en": {1, 0}, "de": {1, 0}}
	if !maps.Equal(versions, want) {
		t.Errorf("versions = %v, want %v", versions, want)
	}

	// Editing a published content starts a new draft on top of it.
	got, err := f.svc.Update(ctx, "demo", n.UUID, "en", UpdateRequest{Version: Version{1, 0}, Fields: map[string]any{"teaser": "t"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != (Version{1, 1}) {
		t.Errorf("version after edit = %v, want 1.1", got.Version)
	}
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	folder, err := f.svc.Create(ctx, "demo", CreateRequest{Schema: "folder", ParentUUID: f.root, Fields: map[string]any{"name": "News"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	child := f.article(t, folder.UUID, "Inside")

	if err := f.svc.Delete(ctx, "demo", folder.UUID, false, ""); !errors.Is(err, ErrHasChildren) {
		t.Fatalf("non-recursive delete err = %v, want ErrHasChildren", err)
	}
	if err := f.svc.Delete(ctx, "demo", folder.UUID, true, ""); err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, "demo", child.UUID, "en"); !errors.Is(err, ErrNotFound) {
		t.Errorf("child still present after recursive delete: %v", err)
	}
	if err := f.svc.Delete(ctx, "demo", folder.UUID, false, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestService_ListAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.article(t, f.root, "Banana")
	f.article(t, f.root, "Apple")
	tagged, err := f.svc.Create(ctx, "demo", CreateRequest{Schema: "article", ParentUUID: f.root, Fields: map[string]any{"title": "Cherry"}, Tags: []string{"fruit"}}, "")
	if err != nil {
		t.Fatal(err)
	}

	children, total, err := f.svc.ListChildren(ctx, "demo", f.root, "de", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(children) != 2 || children[0].DisplayName != "Apple" {
		t.Errorf("children = %d/%d, first %q", len(children), total, children[0].DisplayName)
	}

	found, total, err := f.svc.SearchByKeyword(ctx, "demo", "apple", "en", 1, 20)
	if err != nil || total != 1 || found[0].DisplayName != "Apple" {
		t.Errorf("keyword search = %v (%d), %v", found, total, err)
	}

	found, total, err = f.svc.SearchByTags(ctx, "demo", []string{" fruit ", ""}, "en", 1, 20)
	if err != nil || total != 1 || found[0].UUID != tagged.UUID {
		t.Errorf("tag search = %v (%d), %v", found, total, err)
	}

	found, total, err = f.svc.SearchByKeyword(ctx, "demo", "   ", "en", 1, 20)
	if err != nil || total != 0 || found == nil {
		t.Errorf("blank keyword search = %v (%d), %v", found, total, err)
	}
}

func TestService_AttachBinary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.article(t, f.root, "Hello")
	bin := Binary{FileName: "a.png", MimeType: "image/png", Size: 10}

	got, err := f.svc.AttachBinary(ctx, "demo", n.UUID, "en", "image", bin, "ed-1")
	if err != nil {
		t.Fatalf("AttachBinary: %v", err)
	}
	if got.Fields["image"] != bin || got.Version != (Version{0, 2}) {
		t.Errorf("node after attach = %+v", got)
	}

	var verr *ValidationError
	if _, err := f.svc.AttachBinary(ctx, "demo", n.UUID, "en", "title", bin, "ed-1"); !errors.As(err, &verr) {
		t.Errorf("attach to string field err = %v", err)
	}

	actions := f.logger.actions()
	if actions[len(actions)-1] != audit.ActionBinaryUpload {
		t.Errorf("last audit action = %v", actions)
	}
}
