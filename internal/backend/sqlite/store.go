package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/domain"
)

// store implements backend.Store on SQLite. All refcount mutations run
// inside transactions; with SQLite's single-writer connection that
// makes the create-or-bump and decrement-and-maybe-delete primitives
// atomic.
type store struct {
	db *DB
}

// NewStore creates a SQLite-backed Store.
func NewStore(db *DB) backend.Store {
	return &store{db: db}
}

// PutRef creates the object with ref_count 1, or increments ref_count
// if the key already exists. Attributes are written only on create;
// an existing object keeps the metadata it was written with.
func (s *store) PutRef(ctx context.Context, key string, value []byte, attrs map[string]string) (bool, error) {
	var created bool
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cas_objects SET ref_count = ref_count + 1 WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("failed to bump object: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected > 0 {
			return nil
		}

		now := time.Now().UTC().Format(time.RFC3339)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cas_objects (key, value, ref_count, created_at) VALUES (?, ?, 1, ?)`,
			key, value, now)
		if err != nil {
			return fmt.Errorf("failed to insert object: %w", err)
		}
		for name, attrValue := range attrs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cas_attrs (key, name, value) VALUES (?, ?, ?)`,
				key, name, attrValue)
			if err != nil {
				return fmt.Errorf("failed to insert attr %q: %w", name, err)
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Get returns the stored value.
func (s *store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.db.QueryRowContext(ctx,
		`SELECT value FROM cas_objects WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return nil, backend.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return value, nil
}

// Up atomically increments the refcount.
func (s *store) Up(ctx context.Context, key string) error {
	res, err := s.db.db.ExecContext(ctx,
		`UPDATE cas_objects SET ref_count = ref_count + 1 WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to increment refcount: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return backend.ErrKeyNotFound
	}
	return nil
}

// Down atomically decrements the refcount and deletes the object row
// and its attrs when the count reaches zero. Attrs are deleted
// explicitly rather than through the FK cascade so the driver's
// pragma handling cannot change the semantics.
func (s *store) Down(ctx context.Context, key string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cas_objects SET ref_count = ref_count - 1 WHERE key = ? AND ref_count > 0`,
			key)
		if err != nil {
			return fmt.Errorf("failed to decrement refcount: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return backend.ErrKeyNotFound
		}

		res, err = tx.ExecContext(ctx,
			`DELETE FROM cas_objects WHERE key = ? AND ref_count <= 0`, key)
		if err != nil {
			return fmt.Errorf("failed to delete drained object: %w", err)
		}
		if deleted, _ := res.RowsAffected(); deleted > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cas_attrs WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete drained object attrs: %w", err)
			}
		}
		return nil
	})
}

// Attrs returns the object's attributes.
func (s *store) Attrs(ctx context.Context, key string) (map[string]string, error) {
	var exists int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cas_objects WHERE key = ?`, key,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check object existence: %w", err)
	}
	if exists == 0 {
		return nil, backend.ErrKeyNotFound
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT name, value FROM cas_attrs WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list attrs: %w", err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan attr: %w", err)
		}
		attrs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attrs: %w", err)
	}
	return attrs, nil
}

// RefCount returns the object's current refcount.
func (s *store) RefCount(ctx context.Context, key string) (uint64, error) {
	var count uint64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT ref_count FROM cas_objects WHERE key = ?`, key,
	).Scan(&count)
	if err != nil {
		if isNoRows(err) {
			return 0, backend.ErrKeyNotFound
		}
		return 0, fmt.Errorf("failed to get refcount: %w", err)
	}
	return count, nil
}

// List returns every object with its refcount.
func (s *store) List(ctx context.Context) ([]domain.ObjectInfo, error) {
	rows, err := s.db.db.QueryContext(ctx,
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

// IndexSet inserts or replaces entries, creating the index object row
// if needed, in one transaction.
func (s *store) IndexSet(ctx context.Context, name string, entries map[string]string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_objects (name, created_at) VALUES (?, ?)
			 ON CONFLICT (name) DO NOTHING`, name, now)
		if err != nil {
			return fmt.Errorf("failed to create index object: %w", err)
		}
		for key, value := range entries {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO index_entries (name, version_key, value) VALUES (?, ?, ?)
				 ON CONFLICT (name, version_key) DO UPDATE SET value = excluded.value`,
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
	var exists int
	err := s.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_objects WHERE name = ?`, name,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check index existence: %w", err)
	}
	if exists == 0 {
		return nil, backend.ErrKeyNotFound
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT version_key, value FROM index_entries WHERE name = ? ORDER BY version_key`,
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

// IndexRemoveKeys removes keys; the index object row survives.
func (s *store) IndexRemoveKeys(ctx context.Context, name string, keys []string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM index_objects WHERE name = ?`, name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check index existence: %w", err)
		}
		if exists == 0 {
			return backend.ErrKeyNotFound
		}
		for _, key := range keys {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM index_entries WHERE name = ? AND version_key = ?`,
				name, key)
			if err != nil {
				return fmt.Errorf("failed to remove index entry: %w", err)
			}
		}
		return nil
	})
}

// IndexDelete removes the index object together with its entries.
func (s *store) IndexDelete(ctx context.Context, name string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// Entries are deleted explicitly rather than through the FK
		// cascade so the driver's pragma handling cannot change the
		// semantics.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_entries WHERE name = ?`, name); err != nil {
			return fmt.Errorf("failed to delete index entries: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM index_objects WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("failed to delete index object: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return backend.ErrKeyNotFound
		}
		return nil
	})
}

// IndexNames returns the names of all index objects.
func (s *store) IndexNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx,
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

// Close closes the underlying database.
func (s *store) Close() error {
	return s.db.Close()
}

// Ensure store implements backend.Store.
var _ backend.Store = (*store)(nil)
