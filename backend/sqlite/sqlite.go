// Package sqlite is a durable tier on SQLite (modernc.org/sqlite, no cgo).
//
// Every model gets one table with a column per attribute it owns; columns
// are added as models grow, never dropped. Values use serial.SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/serial"
	"github.com/unkn0wn-root/tiered/value"
)

const indexTable = "tiered_index"

// Store is a Backend over one SQLite database.
type Store struct {
	db    *sql.DB
	owns  bool
	table serial.Table

	mu     sync.RWMutex
	models map[string]backend.Schema
}

var (
	_ backend.Backend       = (*Store)(nil)
	_ backend.SchemaEnsurer = (*Store)(nil)
)

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owns = true
	return s, nil
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, backend.ErrNilClient
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + indexTable + ` (
	model TEXT NOT NULL,
	attribute TEXT NOT NULL,
	value TEXT NOT NULL,
	id TEXT NOT NULL,
	PRIMARY KEY (model, attribute, value)
)`)
	if err != nil {
		return nil, fmt.Errorf("create index table: %w", err)
	}
	return &Store{db: db, table: serial.SQL(), models: make(map[string]backend.Schema)}, nil
}

func (s *Store) Name() string { return "sqlite" }

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(t value.Type) string {
	switch t {
	case value.Integer, value.Boolean, value.Datetime:
		return "INTEGER"
	case value.Float:
		return "REAL"
	}
	return "TEXT"
}

// EnsureSchema creates the model table and adds missing columns.
func (s *Store) EnsureSchema(ctx context.Context, sc backend.Schema) error {
	keyType := "TEXT"
	if sc.KeyType == value.Integer {
		keyType = "INTEGER"
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s PRIMARY KEY)",
		quote(sc.Model), quote(sc.Key), keyType))
	if err != nil {
		return fmt.Errorf("create table %s: %w", sc.Model, err)
	}

	existing, err := s.columns(ctx, sc.Model)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(sc.Attributes))
	for n := range sc.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, ok := existing[n]; ok {
			continue
		}
		_, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quote(sc.Model), quote(n), columnType(sc.Attributes[n])))
		if err != nil {
			return fmt.Errorf("add column %s.%s: %w", sc.Model, n, err)
		}
	}

	s.mu.Lock()
	s.models[sc.Model] = sc
	s.mu.Unlock()
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func (s *Store) schema(model string) (backend.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.models[model]
	if !ok {
		return backend.Schema{}, fmt.Errorf("sqlite: no schema for model %q", model)
	}
	return sc, nil
}

func (s *Store) key(sc backend.Schema, id string) (any, error) {
	return value.Coerce(sc.KeyType, id)
}

func (s *Store) Fetch(ctx context.Context, req backend.FetchRequest) (value.Values, bool, error) {
	sc, err := s.schema(req.Model)
	if err != nil {
		return nil, false, err
	}
	key, err := s.key(sc, req.ID)
	if err != nil {
		return nil, false, err
	}
	cols := make([]string, 0, len(req.Attributes)+1)
	cols = append(cols, quote(sc.Key))
	for _, n := range req.Attributes {
		cols = append(cols, quote(n))
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(cols, ", "), quote(req.Model), quote(sc.Key))

	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := s.db.QueryRowContext(ctx, q, key).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch %s: %w", req.Model, err)
	}

	out := make(value.Values, len(req.Attributes))
	for i, n := range req.Attributes {
		r := raw[i+1]
		if r == nil {
			continue
		}
		if b, ok := r.([]byte); ok {
			r = string(b)
		}
		v, err := s.table.Unserialize(req.Types[n], r)
		if err != nil {
			return nil, false, fmt.Errorf("sqlite: %s.%s: %w", req.Model, n, err)
		}
		out[n] = v
	}
	return out, true, nil
}

// Save upserts the row. Increments are added to the stored value, a
// missing row or NULL counting as zero. A Fill save only sets NULL columns.
func (s *Store) Save(ctx context.Context, req backend.SaveRequest) error {
	sc, err := s.schema(req.Model)
	if err != nil {
		return err
	}
	key, err := s.key(sc, req.ID)
	if err != nil {
		return err
	}

	cols := []string{quote(sc.Key)}
	args := []any{key}
	var updates []string

	names := make([]string, 0, len(req.Data))
	for n := range req.Data {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if req.Fill && req.Data[n] == nil {
			continue
		}
		raw, err := s.table.Serialize(req.Types[n], req.Data[n])
		if err != nil {
			return fmt.Errorf("sqlite: %s.%s: %w", req.Model, n, err)
		}
		cols = append(cols, quote(n))
		args = append(args, raw)
		if req.Fill {
			updates = append(updates, fmt.Sprintf("%s = COALESCE(%s.%s, excluded.%s)",
				quote(n), quote(req.Model), quote(n), quote(n)))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(n), quote(n)))
		}
	}

	incs := make([]string, 0, len(req.Increments))
	for n := range req.Increments {
		incs = append(incs, n)
	}
	sort.Strings(incs)
	for _, n := range incs {
		d := req.Increments[n]
		cols = append(cols, quote(n))
		if req.Types[n] == value.Float {
			args = append(args, d)
		} else {
			args = append(args, int64(d))
		}
		updates = append(updates, fmt.Sprintf("%s = COALESCE(%s.%s, 0) + excluded.%s",
			quote(n), quote(req.Model), quote(n), quote(n)))
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s",
		quote(req.Model), strings.Join(cols, ", "), placeholders(len(cols)), quote(sc.Key), conflict)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save %s: %w", req.Model, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *Store) Destroy(ctx context.Context, req backend.DestroyRequest) error {
	sc, err := s.schema(req.Model)
	if err != nil {
		return err
	}
	key, err := s.key(sc, req.ID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(req.Model), quote(sc.Key)), key)
	if err != nil {
		return fmt.Errorf("destroy %s: %w", req.Model, err)
	}
	return nil
}

func (s *Store) IndexGet(ctx context.Context, k backend.IndexKey) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM "+indexTable+" WHERE model = ? AND attribute = ? AND value = ?",
		k.Model, k.Attribute, k.Value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("index get: %w", err)
	}
	return id, true, nil
}

func (s *Store) IndexSet(ctx context.Context, k backend.IndexKey, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+indexTable+" (model, attribute, value, id) VALUES (?, ?, ?, ?)",
		k.Model, k.Attribute, k.Value, id)
	if err != nil {
		return false, fmt.Errorf("index set: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Store) IndexDel(ctx context.Context, k backend.IndexKey) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM "+indexTable+" WHERE model = ? AND attribute = ? AND value = ?",
		k.Model, k.Attribute, k.Value)
	if err != nil {
		return fmt.Errorf("index del: %w", err)
	}
	return nil
}

// Reset empties every model table seen by EnsureSchema and the index table.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.RLock()
	tables := make([]string, 0, len(s.models)+1)
	for m := range s.models {
		tables = append(tables, m)
	}
	s.mu.RUnlock()
	tables = append(tables, indexTable)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(t)); err != nil {
			return fmt.Errorf("reset %s: %w", t, err)
		}
	}
	return tx.Commit()
}

// Close releases the database when the Store opened it.
func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil || !s.owns {
		return nil
	}
	return s.db.Close()
}
