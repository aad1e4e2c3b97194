// Package auth authenticates editors of the admin API with Argon2id
// password hashes and short-lived JWT access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fmteixeira/mesh-ui/internal/database"
)

// ErrEditorNotFound is returned when no editor matches a lookup.
var ErrEditorNotFound = errors.New("editor not found")

// Editor is a row of the editors table.
type Editor struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// EditorStore looks up and creates editors.
type EditorStore interface {
	EditorByEmail(ctx context.Context, email string) (*Editor, error)
	EditorByID(ctx context.Context, id string) (*Editor, error)
	CreateEditor(ctx context.Context, email, passwordHash string) (*Editor, error)
}

// Repository is the PostgreSQL EditorStore.
type Repository struct {
	db *database.DB
}

// NewRepository creates a new auth Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const editorColumns = `id, email, password_hash, created_at`

func scanEditor(row pgx.Row) (*Editor, error) {
	var e Editor
	if err := row.Scan(&e.ID, &e.Email, &e.PasswordHash, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEditorNotFound
		}
		return nil, err
	}
	return &e, nil
}

// EditorByEmail returns the editor with the given email or ErrEditorNotFound.
func (r *Repository) EditorByEmail(ctx context.Context, email string) (*Editor, error) {
	e, err := scanEditor(r.db.Pool().QueryRow(ctx,
		`SELECT `+editorColumns+` FROM editors WHERE lower(email) = lower($1)`, email))
	if err != nil && !errors.Is(err, ErrEditorNotFound) {
		return nil, fmt.Errorf("querying editor by email: %w", err)
	}
	return e, err
}

// EditorByID returns the editor with the given ID or ErrEditorNotFound.
func (r *Repository) EditorByID(ctx context.Context, id string) (*Editor, error) {
	e, err := scanEditor(r.db.Pool().QueryRow(ctx,
		`SELECT `+editorColumns+` FROM editors WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrEditorNotFound) {
		return nil, fmt.Errorf("querying editor by id: %w", err)
	}
	return e, err
}

// CreateEditor inserts an editor. An existing editor with the same email is
// returned unchanged.
func (r *Repository) CreateEditor(ctx context.Context, email, passwordHash string) (*Editor, error) {
	e, err := scanEditor(r.db.Pool().QueryRow(ctx,
		`INSERT INTO editors (email, password_hash) VALUES ($1, $2)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING `+editorColumns,
		email, passwordHash))
	if errors.Is(err, ErrEditorNotFound) {
		return r.EditorByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("creating editor: %w", err)
	}
	return e, nil
}
