package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fmteixeira/mesh-ui/internal/database"
)

// Sentinel errors returned by the Store.
var (
	ErrNotFound = errors.New("schema not found")
	ErrInUse    = errors.New("schema is used by existing nodes")
)

// Store persists schema documents in the schemas table. Breaking changes are
// refused unless forced (or the store runs in dev mode for startup seeding).
type Store struct {
	db      *database.DB
	devMode bool
}

// NewStore creates a new schema store.
func NewStore(db *database.DB, devMode bool) *Store {
	return &Store{
		db:      db,
		devMode: devMode,
	}
}

// List returns all stored schemas sorted by name.
func (s *Store) List(ctx context.Context) ([]Schema, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT document, schema_hash FROM schemas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying schemas: %w", err)
	}
	defer rows.Close()

	schemas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Schema, error) {
		return scanSchema(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning schemas: %w", err)
	}
	return schemas, nil
}

// Get returns a single stored schema by name, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*Schema, error) {
	return s.get(ctx, s.db.Pool(), name, false)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) get(ctx context.Context, q querier, name string, forUpdate bool) (*Schema, error) {
	query := `SELECT document, schema_hash FROM schemas WHERE name = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	sc, err := scanSchema(q.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying schema %q: %w", name, err)
	}
	return &sc, nil
}

// scanSchema decodes a (document, schema_hash) row.
func scanSchema(row pgx.Row) (Schema, error) {
	var doc []byte
	var sc Schema
	if err := row.Scan(&doc, &sc.Hash); err != nil {
		return Schema{}, err
	}
	if err := json.Unmarshal(doc, &sc); err != nil {
		return Schema{}, fmt.Errorf("unmarshaling schema document: %w", err)
	}
	return sc, nil
}

// Save validates and stores a schema document, creating it or replacing the
// stored version. The diff against the stored version is returned. Breaking
// changes are refused with a *BreakingChangesError unless force is set; in
// that case nothing is written.
func (s *Store) Save(ctx context.Context, sc Schema, force bool) ([]Change, error) {
	if err := Validate(sc); err != nil {
		return nil, err
	}
	sc.Hash = ComputeHash(sc)

	var changes []Change
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		existing, err := s.get(ctx, tx, sc.Name, true)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil && existing.Hash == sc.Hash {
			slog.Debug("schema unchanged, skipping", "schema", sc.Name)
			return nil
		}

		changes = DiffSchema(sc, existing)
		if breaking := BreakingChanges(changes); len(breaking) > 0 && !force {
			return &BreakingChangesError{Changes: breaking}
		}
		return upsert(ctx, tx, sc)
	})
	if err != nil {
		return nil, err
	}
	if changes == nil {
		return nil, nil
	}

	slog.Info("schema saved", "schema", sc.Name, "changes", len(changes), "forced", force)
	return changes, nil
}

// Delete removes a stored schema. Schemas still referenced by nodes cannot
// be deleted.
func (s *Store) Delete(ctx context.Context, name string) error {
	var inUse bool
	if err := s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM nodes WHERE schema_name = $1)`, name,
	).Scan(&inUse); err != nil {
		return fmt.Errorf("checking schema usage: %w", err)
	}
	if inUse {
		return ErrInUse
	}

	tag, err := s.db.Pool().Exec(ctx, `DELETE FROM schemas WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting schema %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Apply seeds the store from schema documents loaded at startup. Unchanged
// schemas (same hash) are skipped. If any schema carries breaking changes and
// the store is not in dev mode nothing is written and a *BreakingChangesError
// lists all of them. Otherwise every changed schema is written in a single
// transaction.
func (s *Store) Apply(ctx context.Context, schemas []Schema) error {
	existing, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("loading existing schemas: %w", err)
	}

	existingMap := make(map[string]Schema, len(existing))
	for _, sc := range existing {
		existingMap[sc.Name] = sc
	}

	var allChanges []Change
	var changed []Schema

	for _, loaded := range schemas {
		ex, found := existingMap[loaded.Name]
		if found && ex.Hash == loaded.Hash {
			slog.Debug("schema unchanged, skipping", "schema", loaded.Name)
			continue
		}

		var exPtr *Schema
		if found {
			exPtr = &ex
		}
		allChanges = append(allChanges, DiffSchema(loaded, exPtr)...)
		changed = append(changed, loaded)
	}

	if len(changed) == 0 {
		slog.Info("all schemas up to date, no changes to apply")
		return nil
	}

	breaking := BreakingChanges(allChanges)
	if len(breaking) > 0 && !s.devMode {
		return &BreakingChangesError{Changes: breaking}
	}

	err = s.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, sc := range changed {
			if err := upsert(ctx, tx, sc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("schema changes applied",
		"changes", len(allChanges),
		"breaking", len(breaking),
		"schemas_updated", len(changed),
	)
	return nil
}

// upsert writes one schema row inside the given transaction.
func upsert(ctx context.Context, tx pgx.Tx, sc Schema) error {
	doc, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshaling schema %q: %w", sc.Name, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO schemas (name, schema_hash, document)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET
		   schema_hash = EXCLUDED.schema_hash,
		   document = EXCLUDED.document,
		   updated_at = now()`,
		sc.Name, sc.Hash, doc,
	)
	if err != nil {
		return fmt.Errorf("upserting schema %q: %w", sc.Name, err)
	}
	return nil
}

// BreakingChangesError is returned when a save or startup apply detects
// breaking schema changes that were not forced.
type BreakingChangesError struct {
	Changes []Change
}

// Error returns a human-readable summary of all breaking changes.
func (e *BreakingChangesError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("schema change blocked: %d breaking change(s) detected (force to apply):\n", len(e.Changes)))
	for _, c := range e.Changes {
		b.WriteString(fmt.Sprintf("  - %s\n", c.Detail))
	}
	return b.String()
}
