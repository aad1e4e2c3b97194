package node

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/fmteixeira/mesh-ui/internal/audit"
	"github.com/fmteixeira/mesh-ui/internal/schema"
	"github.com/fmteixeira/mesh-ui/internal/search"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

// Store persists nodes. *Repository is the PostgreSQL implementation.
type Store interface {
	ListProjects(ctx context.Context) ([]Project, error)
	CreateProject(ctx context.Context, p *Project, root *Node) error
	NodeSchema(ctx context.Context, project, nodeUUID string) (string, error)
	Get(ctx context.Context, project, nodeUUID string, languages []string) (*Node, error)
	ListChildren(ctx context.Context, project, parentUUID string, languages []string, page, perPage int) ([]*Node, int, error)
	Search(ctx context.Context, project string, languages []string, clause search.Clause, page, perPage int) ([]*Node, int, error)
	Create(ctx context.Context, n *Node) error
	AddLanguage(ctx context.Context, n *Node) error
	UpdateContent(ctx context.Context, n *Node, expected Version) (*Node, error)
	Publish(ctx context.Context, project, nodeUUID string) (map[string]Version, error)
	HasChildren(ctx context.Context, project, nodeUUID string) (bool, error)
	Delete(ctx context.Context, project, nodeUUID string) error
}

// SchemaSource resolves schema documents by name. *schema.Store satisfies it.
type SchemaSource interface {
	Get(ctx context.Context, name string) (*schema.Schema, error)
}

// Service implements node business logic.
type Service struct {
	store     Store
	schemas   SchemaSource
	languages []string
	audit     audit.Logger
}

// NewService creates a node Service. languages is the configured content
// language order; the first entry is the default language for new nodes. A
// nil logger discards audit events.
func NewService(store Store, schemas SchemaSource, languages []string, logger audit.Logger) *Service {
	if logger == nil {
		logger = audit.Discard
	}
	return &Service{
		store:     store,
		schemas:   schemas,
		languages: languages,
		audit:     logger,
	}
}

// CreateRequest describes a new node.
type CreateRequest struct {
	Schema     string         `json:"schema"`
	ParentUUID string         `json:"parentUuid"`
	Language   string         `json:"language"`
	Fields     map[string]any `json:"fields"`
	Tags       []string       `json:"tags"`
}

// UpdateRequest describes an edit of one language content. Version must be
// the version the edit is based on. Nil Tags keep the stored tags.
type UpdateRequest struct {
	Version Version        `json:"version"`
	Fields  map[string]any `json:"fields"`
	Tags    []string       `json:"tags"`
}

// ListProjects returns all projects.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.store.ListProjects(ctx)
}

// CreateProject creates a project whose root node uses the given container schema.
func (s *Service) CreateProject(ctx context.Context, name, schemaName, editorID string) (*Project, error) {
	if name == "" {
		return nil, &ValidationError{Fields: []server.FieldError{{Field: "name", Message: "is required"}}}
	}
	sc, err := s.schema(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if !sc.Container {
		return nil, &ValidationError{Fields: []server.FieldError{{Field: "schema", Message: "must be a container schema"}}}
	}

	root := &Node{
		UUID:     uuid.NewString(),
		Project:  name,
		Schema:   sc.Name,
		Language: s.defaultLanguage(),
		Version:  initialVersion,
		Fields:   map[string]any{},
		Tags:     []string{},
		EditorID: editorID,
	}
	root.DisplayName = displayName(*sc, root.Fields, root.UUID)

	p := &Project{Name: name, RootNodeUUID: root.UUID}
	if err := s.store.CreateProject(ctx, p, root); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a node in lang, falling back to the configured languages.
func (s *Service) Get(ctx context.Context, project, nodeUUID, lang string) (*Node, error) {
	if !validUUID(nodeUUID) {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, project, nodeUUID, WithFallbacks(lang, s.languages))
}

// ListChildren returns a page of the children of a node, each in lang or
// its first available fallback language.
func (s *Service) ListChildren(ctx context.Context, project, parentUUID, lang string, page, perPage int) ([]*Node, int, error) {
	if !validUUID(parentUUID) {
		return nil, 0, ErrNotFound
	}
	return s.store.ListChildren(ctx, project, parentUUID, WithFallbacks(lang, s.languages), page, perPage)
}

// SearchByKeyword runs a full-text search over a project's node contents.
func (s *Service) SearchByKeyword(ctx context.Context, project, query, lang string, page, perPage int) ([]*Node, int, error) {
	clause := search.Keyword(query, 3)
	if clause.Empty() {
		return []*Node{}, 0, nil
	}
	return s.store.Search(ctx, project, WithFallbacks(lang, s.languages), clause, page, perPage)
}

// SearchByTags returns a project's nodes carrying any of the given tags.
func (s *Service) SearchByTags(ctx context.Context, project string, tags []string, lang string, page, perPage int) ([]*Node, int, error) {
	clause := search.Tags(tags, 3)
	if clause.Empty() {
		return []*Node{}, 0, nil
	}
	return s.store.Search(ctx, project, WithFallbacks(lang, s.languages), clause, page, perPage)
}

// Create validates and stores a new draft node below a container parent.
func (s *Service) Create(ctx context.Context, project string, req CreateRequest, editorID string) (*Node, error) {
	if req.Language == "" {
		req.Language = s.defaultLanguage()
	}
	var errs []server.FieldError
	if !slices.Contains(s.languages, req.Language) {
		errs = append(errs, server.FieldError{Field: "language", Message: "is not a configured content language"})
	}
	if !validUUID(req.ParentUUID) {
		errs = append(errs, server.FieldError{Field: "parentUuid", Message: "must be a valid uuid"})
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	parentSchemaName, err := s.store.NodeSchema(ctx, project, req.ParentUUID)
	if err != nil {
		return nil, err
	}
	parentSchema, err := s.schema(ctx, parentSchemaName)
	if err != nil {
		return nil, err
	}
	if !parentSchema.Container {
		return nil, ErrParentNotContainer
	}

	sc, err := s.schema(ctx, req.Schema)
	if err != nil {
		return nil, err
	}
	if req.Fields == nil {
		req.Fields = map[string]any{}
	}
	if errs := ValidateFields(*sc, req.Fields, false); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	n := &Node{
		UUID:       uuid.NewString(),
		Project:    project,
		Schema:     sc.Name,
		ParentUUID: req.ParentUUID,
		Language:   req.Language,
		Version:    initialVersion,
		Fields:     req.Fields,
		Tags:       search.NormalizeTags(req.Tags),
		EditorID:   editorID,
	}
	n.DisplayName = displayName(*sc, n.Fields, n.UUID)

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("creating node: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionNodeCreate,
		ActorID:    editorID,
		Resource:   "node",
		ResourceID: n.UUID,
		Payload:    map[string]any{"project": project, "schema": n.Schema, "language": n.Language},
	})
	return n, nil
}

// Update applies an edit to the content of a node in lang. Provided fields are
// merged into the stored ones, null values clear a field. If the stored
// content moved past req.Version a *ConflictError is returned. Editing a
// language the node has no content in yet creates that content.
func (s *Service) Update(ctx context.Context, project, nodeUUID, lang string, req UpdateRequest, editorID string) (*Node, error) {
	if !validUUID(nodeUUID) {
		return nil, ErrNotFound
	}
	if !slices.Contains(s.languages, lang) {
		return nil, &ValidationError{Fields: []server.FieldError{{Field: "language", Message: "is not a configured content language"}}}
	}

	schemaName, err := s.store.NodeSchema(ctx, project, nodeUUID)
	if err != nil {
		return nil, err
	}
	sc, err := s.schema(ctx, schemaName)
	if err != nil {
		return nil, err
	}

	current, err := s.store.Get(ctx, project, nodeUUID, []string{lang})
	if errors.Is(err, ErrNotFound) {
		return s.addLanguage(ctx, sc, project, nodeUUID, lang, req, editorID)
	}
	if err != nil {
		return nil, err
	}
	if current.Version != req.Version {
		return nil, &ConflictError{Requested: req.Version, Current: current.Version}
	}

	if errs := ValidateFields(*sc, req.Fields, true); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	next := *current
	next.Fields = mergeFields(current.Fields, req.Fields)
	if req.Tags != nil {
		next.Tags = search.NormalizeTags(req.Tags)
	}
	next.DisplayName = displayName(*sc, next.Fields, nodeUUID)
	next.EditorID = editorID

	updated, err := s.store.UpdateContent(ctx, &next, req.Version)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionNodeUpdate,
		ActorID:    editorID,
		Resource:   "node",
		ResourceID: nodeUUID,
		Payload:    map[string]any{"project": project, "language": lang, "version": updated.Version.String()},
	})
	return updated, nil
}

func (s *Service) addLanguage(ctx context.Context, sc *schema.Schema, project, nodeUUID, lang string, req UpdateRequest, editorID string) (*Node, error) {
	fields := mergeFields(nil, req.Fields)
	if errs := ValidateFields(*sc, fields, false); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	n := &Node{
		UUID:     nodeUUID,
		Project:  project,
		Schema:   sc.Name,
		Language: lang,
		Version:  initialVersion,
		Fields:   fields,
		Tags:     search.NormalizeTags(req.Tags),
		EditorID: editorID,
	}
	n.DisplayName = displayName(*sc, fields, nodeUUID)
	if err := s.store.AddLanguage(ctx, n); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionNodeUpdate,
		ActorID:    editorID,
		Resource:   "node",
		ResourceID: nodeUUID,
		Payload:    map[string]any{"project": project, "language": lang, "version": n.Version.String()},
	})
	return s.store.Get(ctx, project, nodeUUID, []string{lang})
}

// Publish publishes every draft language content of a node and returns the
// resulting version per language.
func (s *Service) Publish(ctx context.Context, project, nodeUUID, editorID string) (map[string]Version, error) {
	if !validUUID(nodeUUID) {
		return nil, ErrNotFound
	}
	versions, err := s.store.Publish(ctx, project, nodeUUID)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"project": project}
	for lang, v := range versions {
		payload[lang] = v.String()
	}
	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionNodePublish,
		ActorID:    editorID,
		Resource:   "node",
		ResourceID: nodeUUID,
		Payload:    payload,
	})
	return versions, nil
}

// Delete removes a node. Nodes with children are only removed, together with
// their subtree, when recursive is set; otherwise ErrHasChildren is returned.
func (s *Service) Delete(ctx context.Context, project, nodeUUID string, recursive bool, editorID string) error {
	if !validUUID(nodeUUID) {
		return ErrNotFound
	}
	if !recursive {
		has, err := s.store.HasChildren(ctx, project, nodeUUID)
		if err != nil {
			return err
		}
		if has {
			return ErrHasChildren
		}
	}
	if err := s.store.Delete(ctx, project, nodeUUID); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionNodeDelete,
		ActorID:    editorID,
		Resource:   "node",
		ResourceID: nodeUUID,
		Payload:    map[string]any{"project": project, "recursive": recursive},
	})
	return nil
}

// AttachBinary stores file metadata in a binary field of a node content,
// producing a new draft version. The field must be of type binary.
func (s *Service) AttachBinary(ctx context.Context, project, nodeUUID, lang, field string, bin Binary, editorID string) (*Node, error) {
	if !validUUID(nodeUUID) {
		return nil, ErrNotFound
	}
	schemaName, err := s.store.NodeSchema(ctx, project, nodeUUID)
	if err != nil {
		return nil, err
	}
	sc, err := s.schema(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if f, ok := sc.FieldByName(field); !ok || f.Type != schema.FieldTypeBinary {
		return nil, &ValidationError{Fields: []server.FieldError{{Field: field, Message: "is not a binary field"}}}
	}

	current, err := s.store.Get(ctx, project, nodeUUID, []string{lang})
	if err != nil {
		return nil, err
	}

	next := *current
	next.Fields = mergeFields(current.Fields, map[string]any{field: bin})
	next.EditorID = editorID

	updated, err := s.store.UpdateContent(ctx, &next, current.Version)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Action:     audit.ActionBinaryUpload,
		ActorID:    editorID,
		Resource:   "node",
		ResourceID: nodeUUID,
		Payload:    map[string]any{"field": field, "fileName": bin.FileName, "size": bin.Size},
	})
	return updated, nil
}

// schema resolves a schema document, mapping a missing schema to a
// validation error.
func (s *Service) schema(ctx context.Context, name string) (*schema.Schema, error) {
	sc, err := s.schemas.Get(ctx, name)
	if errors.Is(err, schema.ErrNotFound) {
		return nil, &ValidationError{Fields: []server.FieldError{{Field: "schema", Message: fmt.Sprintf("unknown schema %q", name)}}}
	}
	if err != nil {
		return nil, fmt.Errorf("loading schema %q: %w", name, err)
	}
	return sc, nil
}

func (s *Service) defaultLanguage() string {
	if len(s.languages) == 0 {
		return ""
	}
	return s.languages[0]
}

// mergeFields returns a copy of base with patch applied. Nil patch values
// remove the field.
func mergeFields(base, patch map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
