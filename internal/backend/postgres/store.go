package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/domain"
)

// store implements backend.Store on PostgreSQL.
type store struct {
	db *DB
}

// NewStore creates a PostgreSQL-backed Store.
func NewStore(db *DB) backend.Store {
	return &store{db: db}
}

// PutRef creates the object with ref_count 1 or increments ref_count
// atomically. The (xmax = 0) trick distinguishes a fresh insert from
// a conflict update in a single statement.
func (s *store) PutRef(ctx context.Context, key string, value []byte, attrs map[string]string) (bool, error) {
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return false, fmt.Errorf("failed to encode attrs: %w", err)
	}

	query := `
		INSERT INTO cas_objects (key, value, attrs, ref_count, created_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (key) DO UPDATE
		SET ref_count = cas_objects.ref_count + 1
		RETURNING (xmax = 0) AS is_new
	`

	var created bool
	err = s.db.Pool.QueryRow(ctx, query, key, value, attrsJSON, time.Now().UTC()).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert object: %w", err)
	}
	return created, nil
}

// Get returns the stored value.
func (s *store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT value FROM cas_objects WHERE key = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, backend.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return value, nil
}

// Up atomically increments the refcount.
func (s *store) Up(ctx context.Context, key string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE cas_objects SET ref_count = ref_count + 1 WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to increment refcount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrKeyNotFound
	}
	return nil
}

// Down atomically decrements the refcount and deletes the row when it
// reaches zero.
func (s *store) Down(ctx context.Context, key string) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var newCount int64
		err := tx.QueryRow(ctx,
			`UPDATE cas_objects SET ref_count = ref_count - 1
			 WHERE key = $1 AND ref_count > 0
			 RETURNING ref_count`, key,
		).Scan(&newCount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return backend.ErrKeyNotFound
			}
			return fmt.Errorf("failed to decrement refcount: %w", err)
		}

		if newCount <= 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM cas_objects WHERE key = $1`, key); err != nil {
				return fmt.Errorf("failed to delete drained object: %w", err)
			}
		}
		return nil
	})
}

// Attrs returns the object's attributes.
func (s *store) Attrs(ctx context.Context, key string) (map[string]string, error) {
	var attrsJSON []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT attrs FROM cas_objects WHERE key = $1`, key,
	).Scan(&attrsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, backend.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get attrs: %w", err)
	}

	attrs := make(map[string]string)
	if err := json.Unmarshal(attrsJSON, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attrs: %w", err)
	}
	return attrs, nil
}

// RefCount returns the object's current refcount.
func (s *store) RefCount(ctx context.Context, key string) (uint64, error) {
	var count uint64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT ref_count FROM cas_objects WHERE key = $1`, key,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, backend.ErrKeyNotFound
		}
		return 0, fmt.Errorf("failed to get refcount: %w", err)
	}
	return count, nil
}

// List returns every object with its refcount.
func (s *store) List(ctx context.Context) ([]domain.ObjectInfo, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT key, ref_count FROM cas_objects ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []domain.ObjectInfo
	for rows.Next() {
		var info domain.ObjectInfo
		if err := rows.Scan(&info.Key, &info.RefCount); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		objects = append(objects, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}
	return objects, nil
}

// IndexSet inserts or replaces entries in one transaction.
func (s *store) IndexSet(ctx context.Context, name string, entries map[string]string) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO index_objects (name, created_at) VALUES ($1, $2)
			 ON CONFLICT (name) DO NOTHING`, name, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to create index object: %w", err)
		}
		for key, value := range entries {
			_, err = tx.Exec(ctx,
				`INSERT INTO index_entries (name, version_key, value) VALUES ($1, $2, $3)
				 ON CONFLICT (name, version_key) DO UPDATE SET value = EXCLUDED.value`,
				name, key, value)
			if err != nil {
				return fmt.Errorf("failed to set index entry: %w", err)
			}
		}
		return nil
	})
}

// IndexGet returns all entries of name's index map.
func (s *store) IndexGet(ctx context.Context, name string) (map[string]string, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM index_objects WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check index existence: %w", err)
	}
	if !exists {
		return nil, backend.ErrKeyNotFound
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT version_key, value FROM index_entries WHERE name = $1 ORDER BY version_key`,
		name)
	if err != nil {
		return nil, fmt.Errorf("failed to read index entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		entries[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index entries: %w", err)
	}
	return entries, nil
}

// IndexRemoveKeys removes keys; the index object survives.
func (s *store) IndexRemoveKeys(ctx context.Context, name string, keys []string) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM index_objects WHERE name = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check index existence: %w", err)
		}
		if !exists {
			return backend.ErrKeyNotFound
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM index_entries WHERE name = $1 AND version_key = ANY($2)`,
			name, keys)
		if err != nil {
			return fmt.Errorf("failed to remove index entries: %w", err)
		}
		return nil
	})
}

// IndexDelete removes the index object (entries cascade).
func (s *store) IndexDelete(ctx context.Context, name string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM index_objects WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete index object: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrKeyNotFound
	}
	return nil
}

// IndexNames returns the names of all index objects.
func (s *store) IndexNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT name FROM index_objects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list index objects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index names: %w", err)
	}
	return names, nil
}

// Close closes the underlying pool.
func (s *store) Close() error {
	return s.db.Close()
}

// Ensure store implements backend.Store.
var _ backend.Store = (*store)(nil)
