package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL, for deployments running
// more than one gateway process against shared user accounts. Note that
// connections themselves are still process-local; only users and sessions
// are shared.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL store and runs migrations.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_active TIMESTAMPTZ NOT NULL,
			state JSONB NOT NULL DEFAULT '{}'
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

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	existing, err := s.GetUser(ctx, user.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrUserExists
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
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

func (s *PostgresStore) CreateSession(ctx context.Context, username string) (string, error) {
	id := uuid.New().String()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, username, created_at, last_active, state) VALUES ($1, $2, $3, $4, '{}')`,
		id, username, now, now)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess      Session
		stateJSON []byte
	)
	err := s.db.QueryRowContext(ctx,
		`UPDATE sessions SET last_active = NOW()
		 WHERE id = $1
		 RETURNING id, username, created_at, last_active, state`,
		id).Scan(&sess.ID, &sess.Username, &sess.CreatedAt, &sess.LastActive, &stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &sess.State); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) UpdateSessionState(ctx context.Context, id, key string, value any) (bool, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode state value: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = jsonb_set(state, ARRAY[$2], $3::jsonb), last_active = NOW() WHERE id = $1`,
		id, key, string(encoded))
	if err != nil {
		return false, fmt.Errorf("write session state: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) GetSessionState(ctx context.Context, id, key string) (any, bool, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil || sess == nil {
		return nil, false, err
	}
	v, ok := sess.State[key]
	return v, ok, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) SweepSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
