package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fmteixeira/mesh-ui/internal/database"
	"github.com/fmteixeira/mesh-ui/internal/search"
)

// nodeColumns selects a Node from nodes n joined with node_contents c.
const nodeColumns = `n.uuid::text AS uuid, n.project, n.schema_name,
	COALESCE(n.parent_uuid::text, '') AS parent_uuid, c.language,
	c.version_major, c.version_minor, c.fields, c.tags, c.display_name,
	COALESCE(c.editor_id::text, '') AS editor_id, c.edited_at`

// outerColumns re-selects nodeColumns from a derived table.
const outerColumns = `uuid, project, schema_name, parent_uuid, language,
	version_major, version_minor, fields, tags, display_name, editor_id, edited_at`

// Repository stores nodes and their per-language contents in PostgreSQL.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new node Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

func scanNode(row pgx.Row, extra ...any) (*Node, error) {
	var n Node
	dest := []any{
		&n.UUID, &n.Project, &n.Schema, &n.ParentUUID, &n.Language,
		&n.Version.Major, &n.Version.Minor, &n.Fields, &n.Tags, &n.DisplayName,
		&n.EditorID, &n.Edited,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if n.Fields == nil {
		n.Fields = map[string]any{}
	}
	return &n, nil
}

// ListProjects returns all projects sorted by name.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT name, COALESCE(root_node_uuid::text, ''), created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Project, error) {
		var p Project
		err := row.Scan(&p.Name, &p.RootNodeUUID, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning projects: %w", err)
	}
	return projects, nil
}

// CreateProject inserts a project together with its root node content.
func (r *Repository) CreateProject(ctx context.Context, p *Project, root *Node) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO projects (name, root_node_uuid) VALUES ($1, $2) RETURNING created_at`,
			p.Name, p.RootNodeUUID,
		).Scan(&p.CreatedAt); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrProjectExists
			}
			return fmt.Errorf("inserting project %q: %w", p.Name, err)
		}
		if err := insertNode(ctx, tx, root); err != nil {
			return err
		}
		return insertContent(ctx, tx, root)
	})
}

// NodeSchema returns the schema name of a node, or ErrNotFound.
func (r *Repository) NodeSchema(ctx context.Context, project, nodeUUID string) (string, error) {
	var name string
	err := r.db.Pool().QueryRow(ctx,
		`SELECT schema_name FROM nodes WHERE project = $1 AND uuid = $2`, project, nodeUUID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying node schema: %w", err)
	}
	return name, nil
}

// Get returns the content of a node in the first of languages it exists in.
func (r *Repository) Get(ctx context.Context, project, nodeUUID string, languages []string) (*Node, error) {
	row := r.db.Pool().QueryRow(ctx, `SELECT `+nodeColumns+`
		FROM nodes n JOIN node_contents c ON c.node_uuid = n.uuid
		WHERE n.project = $1 AND n.uuid = $2 AND c.language = ANY($3::text[])
		ORDER BY array_position($3::text[], c.language)
		LIMIT 1`, project, nodeUUID, languages)

	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}
	return n, nil
}

// ListChildren returns a page of the children of parentUUID, each in the first
// of languages it exists in, ordered by display name.
func (r *Repository) ListChildren(ctx context.Context, project, parentUUID string, languages []string, page, perPage int) ([]*Node, int, error) {
	var total int
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(DISTINCT n.uuid)
		FROM nodes n JOIN node_contents c ON c.node_uuid = n.uuid
		WHERE n.project = $1 AND n.parent_uuid = $2 AND c.language = ANY($3::text[])`,
		project, parentUUID, languages,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting children: %w", err)
	}

	rows, err := r.db.Pool().Query(ctx, `SELECT `+outerColumns+` FROM (
			SELECT DISTINCT ON (n.uuid) `+nodeColumns+`
			FROM nodes n JOIN node_contents c ON c.node_uuid = n.uuid
			WHERE n.project = $1 AND n.parent_uuid = $2 AND c.language = ANY($3::text[])
			ORDER BY n.uuid, array_position($3::text[], c.language)
		) t
		ORDER BY display_name, uuid
		LIMIT $4 OFFSET $5`,
		project, parentUUID, languages, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("querying children: %w", err)
	}
	defer rows.Close()

	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Node, error) {
		return scanNode(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning children: %w", err)
	}
	return nodes, total, nil
}

// Search returns a page of nodes of a project whose content matches the
// clause, each in the first of languages a match exists in. The clause's
// placeholder must be $3.
func (r *Repository) Search(ctx context.Context, project string, languages []string, clause search.Clause, page, perPage int) ([]*Node, int, error) {
	args := append([]any{project, languages}, clause.Args...)

	var total int
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(DISTINCT n.uuid)
		FROM nodes n JOIN node_contents c ON c.node_uuid = n.uuid
		WHERE n.project = $1 AND c.language = ANY($2::text[]) AND `+clause.Where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting search results: %w", err)
	}

	headline := `'' AS headline`
	if clause.Headline != "" {
		headline = clause.Headline
	}
	order := "display_name, uuid"
	if clause.Order != "" {
		order = clause.Order + ", " + order
	}

	limitIdx := len(args) + 1
	rows, err := r.db.Pool().Query(ctx, fmt.Sprintf(`SELECT %s, headline FROM (
			SELECT DISTINCT ON (n.uuid) %s, c.search_vector, %s
			FROM nodes n JOIN node_contents c ON c.node_uuid = n.uuid
			WHERE n.project = $1 AND c.language = ANY($2::text[]) AND %s
			ORDER BY n.uuid, array_position($2::text[], c.language)
		) t
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		outerColumns, nodeColumns, headline, clause.Where, order, limitIdx, limitIdx+1),
		append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("searching nodes: %w", err)
	}
	defer rows.Close()

	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Node, error) {
		var headline string
		n, err := scanNode(row, &headline)
		if err != nil {
			return nil, err
		}
		n.Headline = headline
		return n, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning search results: %w", err)
	}
	return nodes, total, nil
}

// Create inserts a new node with its first content.
func (r *Repository) Create(ctx context.Context, n *Node) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := insertNode(ctx, tx, n); err != nil {
			return err
		}
		return insertContent(ctx, tx, n)
	})
}

// AddLanguage inserts the content of an existing node in a new language.
// It returns a *ConflictError if the language was added concurrently.
func (r *Repository) AddLanguage(ctx context.Context, n *Node) error {
	err := insertContent(ctx, r.db.Pool(), n)
	if database.IsUniqueViolation(err) {
		current, verr := r.currentVersion(ctx, n.UUID, n.Language)
		if verr != nil {
			return verr
		}
		return &ConflictError{Requested: Version{}, Current: current}
	}
	return err
}

// UpdateContent writes n's fields, tags and display name if the stored
// version still equals expected, bumping the minor version. It returns a
// *ConflictError when the stored version moved on.
func (r *Repository) UpdateContent(ctx context.Context, n *Node, expected Version) (*Node, error) {
	next := expected.NextDraft()
	tag, err := r.db.Pool().Exec(ctx, `UPDATE node_contents
		SET fields = $3, tags = $4, display_name = $5, editor_id = $6,
			version_major = $7, version_minor = $8, edited_at = now()
		WHERE node_uuid = $1 AND language = $2 AND version_major = $9 AND version_minor = $10`,
		n.UUID, n.Language, n.Fields, n.Tags, n.DisplayName, nullIfEmpty(n.EditorID),
		next.Major, next.Minor, expected.Major, expected.Minor)
	if err != nil {
		return nil, fmt.Errorf("updating node content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.currentVersion(ctx, n.UUID, n.Language)
		if err != nil {
			return nil, err
		}
		return nil, &ConflictError{Requested: expected, Current: current}
	}
	return r.Get(ctx, n.Project, n.UUID, []string{n.Language})
}

func (r *Repository) currentVersion(ctx context.Context, nodeUUID, language string) (Version, error) {
	var v Version
	err := r.db.Pool().QueryRow(ctx,
		`SELECT version_major, version_minor FROM node_contents WHERE node_uuid = $1 AND language = $2`,
		nodeUUID, language,
	).Scan(&v.Major, &v.Minor)
	if errors.Is(err, pgx.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("querying content version: %w", err)
	}
	return v, nil
}

// Publish moves every draft content of a node to the next major version and
// returns the resulting version per language.
func (r *Repository) Publish(ctx context.Context, project, nodeUUID string) (map[string]Version, error) {
	rows, err := r.db.Pool().Query(ctx, `WITH published AS (
			UPDATE node_contents c
			SET version_major = c.version_major + 1, version_minor = 0, edited_at = now()
			FROM nodes n
			WHERE n.uuid = c.node_uuid AND n.project = $1 AND c.node_uuid = $2 AND c.version_minor <> 0
			RETURNING c.language, c.version_major, c.version_minor
		)
		SELECT language, version_major, version_minor FROM published
		UNION ALL
		SELECT c.language, c.version_major, c.version_minor
		FROM node_contents c JOIN nodes n ON n.uuid = c.node_uuid
		WHERE n.project = $1 AND c.node_uuid = $2 AND c.version_minor = 0`,
		project, nodeUUID)
	if err != nil {
		return nil, fmt.Errorf("publishing node: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]Version)
	for rows.Next() {
		var lang string
		var v Version
		if err := rows.Scan(&lang, &v.Major, &v.Minor); err != nil {
			return nil, fmt.Errorf("scanning published version: %w", err)
		}
		versions[lang] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating published versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// HasChildren reports whether any node has nodeUUID as parent.
func (r *Repository) HasChildren(ctx context.Context, project, nodeUUID string) (bool, error) {
	var exists bool
	if err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM nodes WHERE project = $1 AND parent_uuid = $2)`,
		project, nodeUUID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking children: %w", err)
	}
	return exists, nil
}

// Delete removes a node and its whole subtree.
func (r *Repository) Delete(ctx context.Context, project, nodeUUID string) error {
	tag, err := r.db.Pool().Exec(ctx, `WITH RECURSIVE subtree AS (
			SELECT uuid FROM nodes WHERE project = $1 AND uuid = $2
			UNION ALL
			SELECT n.uuid FROM nodes n JOIN subtree s ON n.parent_uuid = s.uuid
		)
		DELETE FROM nodes WHERE uuid IN (SELECT uuid FROM subtree)`,
		project, nodeUUID)
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", nodeUUID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertNode(ctx context.Context, q execer, n *Node) error {
	var discard string
	if err := q.QueryRow(ctx,
		`INSERT INTO nodes (uuid, project, schema_name, parent_uuid) VALUES ($1, $2, $3, $4) RETURNING uuid::text`,
		n.UUID, n.Project, n.Schema, nullIfEmpty(n.ParentUUID),
	).Scan(&discard); err != nil {
		return fmt.Errorf("inserting node: %w", err)
	}
	return nil
}

func insertContent(ctx context.Context, q execer, n *Node) error {
	if err := q.QueryRow(ctx, `INSERT INTO node_contents
		(node_uuid, language, version_major, version_minor, fields, display_name, tags, editor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING edited_at`,
		n.UUID, n.Language, n.Version.Major, n.Version.Minor, n.Fields, n.DisplayName,
		n.Tags, nullIfEmpty(n.EditorID),
	).Scan(&n.Edited); err != nil {
		return fmt.Errorf("inserting node content: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
