package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Sessions persist across gateway
// restarts, which lets a voice agent resume after a redeploy.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite store and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// For in-memory databases, use shared cache so all connections in the
	// pool see the same data. Without this, each pooled connection gets a
	// separate empty database.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read/write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_active DATETIME NOT NULL,
			state TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_username ON sessions(username)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	existing, err := s.GetUser(ctx, user.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrUserExists
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, username string) (string, error) {
	id := uuid.New().String()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, username, created_at, last_active, state) VALUES (?, ?, ?, ?, '{}')`,
		id, username, now, now)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess      Session
		stateJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at, last_active, state FROM sessions WHERE id = ?`,
		id).Scan(&sess.ID, &sess.Username, &sess.CreatedAt, &sess.LastActive, &stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}

	// Every lookup counts as activity.
	now := time.Now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastActive = now
	return &sess, nil
}

func (s *SQLiteStore) UpdateSessionState(ctx context.Context, id, key string, value any) (bool, error) {
	return s.mutateState(ctx, id, func(state map[string]any) {
		state[key] = value
	})
}

func (s *SQLiteStore) GetSessionState(ctx context.Context, id, key string) (any, bool, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil || sess == nil {
		return nil, false, err
	}
	v, ok := sess.State[key]
	return v, ok, nil
}

// mutateState applies fn to the session's state bag inside a transaction so
// concurrent writers cannot lose updates.
func (s *SQLiteStore) mutateState(ctx context.Context, id string, fn func(map[string]any)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stateJSON string
	err = tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session state: %w", err)
	}

	state := make(map[string]any)
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return false, fmt.Errorf("decode session state: %w", err)
	}
	fn(state)

	encoded, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("encode session state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET state = ?, last_active = ? WHERE id = ?`,
		string(encoded), time.Now(), id); err != nil {
		return false, fmt.Errorf("write session state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) SweepSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
