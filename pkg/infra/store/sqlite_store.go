package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements FixtureStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the ledger database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	// Concurrent fixtures record from several goroutines.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS fixtures (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image TEXT NOT NULL,
		session TEXT NOT NULL,
		status TEXT NOT NULL,
		ports TEXT,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fixtures_session ON fixtures(session);
	CREATE INDEX IF NOT EXISTS idx_fixtures_status ON fixtures(status);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record implements FixtureStore.Record
func (s *SQLiteStore) Record(ctx context.Context, f *Fixture) error {
	portsJSON, err := json.Marshal(f.Ports)
	if err != nil {
		return fmt.Errorf("encode ports: %w", err)
	}

	query := `
		INSERT INTO fixtures (id, name, image, session, status, ports, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, image = excluded.image, session = excluded.session,
			status = excluded.status, ports = excluded.ports, error = excluded.error,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		f.ID, f.Name, f.Image, f.Session, string(f.Status),
		string(portsJSON), f.Error, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("record fixture: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFixture(row scanner) (*Fixture, error) {
	f := &Fixture{}
	var status string
	var portsStr, errStr sql.NullString

	err := row.Scan(
		&f.ID, &f.Name, &f.Image, &f.Session, &status,
		&portsStr, &errStr, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = FixtureStatus(status)
	f.Error = errStr.String
	if portsStr.Valid && portsStr.String != "" && portsStr.String != "null" {
		if err := json.Unmarshal([]byte(portsStr.String), &f.Ports); err != nil {
			return nil, fmt.Errorf("decode ports: %w", err)
		}
	}
	return f, nil
}

const fixtureColumns = `id, name, image, session, status, ports, error, created_at, updated_at`

// Get implements FixtureStore.Get
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Fixture, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fixtureColumns+` FROM fixtures WHERE id = ?`, id)

	f, err := scanFixture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFixtureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan fixture: %w", err)
	}
	return f, nil
}

// List implements FixtureStore.List
func (s *SQLiteStore) List(ctx context.Context, filter FixtureFilter) ([]Fixture, int, error) {
	whereClause := "1=1"
	args := []any{}

	if filter.Session != "" {
		whereClause += " AND session = ?"
		args = append(args, filter.Session)
	}
	if filter.Status != "" {
		whereClause += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM fixtures WHERE %s", whereClause)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count fixtures: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM fixtures
		WHERE %s
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, fixtureColumns, whereClause)
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query fixtures: %w", err)
	}
	defer rows.Close()

	var fixtures []Fixture
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan fixture: %w", err)
		}
		fixtures = append(fixtures, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate fixtures: %w", err)
	}

	return fixtures, total, nil
}

// Delete implements FixtureStore.Delete
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fixtures WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete fixture: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrFixtureNotFound
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ FixtureStore = (*SQLiteStore)(nil)
