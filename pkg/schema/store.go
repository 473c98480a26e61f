package schema

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists schema objects and their embeddings in Postgres so table
// selection can move to similarity search without re-embedding on every
// start.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies all pending store migrations. Idempotent.
func Migrate(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_store_migrations",
	})
	if err != nil {
		return fmt.Errorf("creating postgres driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("getting migration version: %w", err)
	}
	if dirty {
		slog.Warn("schema store migration state is dirty", "version", version)
	} else {
		slog.Info("schema store migrations complete", "version", version)
	}
	return nil
}

// Upsert stores one object and its embedding, keyed by qualified name.
func (s *Store) Upsert(ctx context.Context, obj Object, embedding []float64) error {
	metadata, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding object metadata: %w", err)
	}

	query, args, err := sq.Insert("schema_embeddings").
		Columns("object_name", "object_type", "columns", "embedding", "metadata").
		Values(obj.Name, obj.Type, pq.Array(obj.Columns), pq.Array(embedding), metadata).
		Suffix(`ON CONFLICT (object_name) DO UPDATE SET
			object_type = EXCLUDED.object_type,
			columns = EXCLUDED.columns,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_at = now()`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting embedding for %s: %w", obj.Name, err)
	}
	return nil
}

// StoredObject is one persisted catalog entry.
type StoredObject struct {
	Object    Object
	Embedding []float64
}

// Get loads one stored object by qualified name. Returns sql.ErrNoRows
// when absent.
func (s *Store) Get(ctx context.Context, name string) (*StoredObject, error) {
	query, args, err := sq.Select("metadata", "embedding").
		From("schema_embeddings").
		Where(sq.Eq{"object_name": name}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	var metadata []byte
	var embedding pq.Float64Array
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&metadata, &embedding); err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}

	var obj Object
	if err := json.Unmarshal(metadata, &obj); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", name, err)
	}
	return &StoredObject{Object: obj, Embedding: embedding}, nil
}

// Names lists the stored object names in lexical order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	query, _, err := sq.Select("object_name").
		From("schema_embeddings").
		OrderBy("object_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing stored objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating names: %w", err)
	}
	return names, nil
}
