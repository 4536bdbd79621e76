// Package sqlite provides a SQLite-backed user registry.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

const userColumns = `id, external_id, display_name, is_owner, is_allowed, has_demanded,
	join_date, last_command_at, spammer_level, version`

// Store persists the user registry in SQLite. Transactions take the write
// lock up front, so each UpdateUser is a serialized read-modify-write.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite registry and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u             models.User
		isOwner       int
		isAllowed     int
		hasDemanded   int
		joinDate      int64
		lastCommandAt sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &u.DisplayName, &isOwner, &isAllowed, &hasDemanded,
		&joinDate, &lastCommandAt, &u.SpammerLevel, &u.Version); err != nil {
		return nil, err
	}
	u.IsOwner = isOwner != 0
	u.IsAllowed = isAllowed != 0
	u.HasDemanded = hasDemanded != 0
	u.JoinDate = fromMillis(joinDate)
	if lastCommandAt.Valid {
		t := fromMillis(lastCommandAt.Int64)
		u.LastCommandAt = &t
	}
	return &u, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// GetUser returns database.ErrUserNotFound when no row matches.
func (s *Store) GetUser(ctx context.Context, externalID int64) (*models.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, database.StoreError(fmt.Sprintf("get user %d", externalID), err)
	}
	return user, nil
}

// GetUserByName returns the oldest user with the display name.
func (s *Store) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE display_name = ? ORDER BY join_date ASC, external_id ASC LIMIT 1`, name)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, database.StoreError(fmt.Sprintf("get user by name %q", name), err)
	}
	return user, nil
}

// CreateUser inserts one fresh record.
func (s *Store) CreateUser(ctx context.Context, externalID int64, displayName string) (*models.User, error) {
	user := database.NewUser(externalID, displayName, s.now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, external_id, display_name, join_date) VALUES (?, ?, ?, ?)`,
		user.ID, user.ExternalID, user.DisplayName, toMillis(user.JoinDate))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, database.ErrUserExists
		}
		return nil, database.StoreError(fmt.Sprintf("insert user %d", externalID), err)
	}
	// Reload so JoinDate carries the stored millisecond precision.
	return s.GetUser(ctx, externalID)
}

// UpdateUser applies mutate inside an immediate transaction.
func (s *Store) UpdateUser(ctx context.Context, externalID int64, mutate database.UserMutation) (*models.User, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, database.StoreError("begin update", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
	current, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, database.StoreError(fmt.Sprintf("read user %d", externalID), err)
	}

	next := current.Clone()
	if err := mutate(&next); err != nil {
		if errors.Is(err, database.ErrSkipUpdate) {
			return current, nil
		}
		return nil, err
	}
	next.ID = current.ID
	next.ExternalID = current.ExternalID
	next.JoinDate = current.JoinDate
	next.Version = current.Version + 1

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET display_name = ?, is_owner = ?, is_allowed = ?, has_demanded = ?,
		   last_command_at = ?, spammer_level = ?, version = ?
		 WHERE external_id = ?`,
		next.DisplayName, boolInt(next.IsOwner), boolInt(next.IsAllowed), boolInt(next.HasDemanded),
		nullMillis(next.LastCommandAt), next.SpammerLevel, next.Version, externalID)
	if err != nil {
		return nil, database.StoreError(fmt.Sprintf("write user %d", externalID), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, database.StoreError(fmt.Sprintf("commit user %d", externalID), err)
	}
	if next.LastCommandAt != nil {
		t := next.LastCommandAt.UTC().Truncate(time.Millisecond)
		next.LastCommandAt = &t
	}
	return &next, nil
}

// DeleteUser removes one record.
func (s *Store) DeleteUser(ctx context.Context, externalID int64) error {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE external_id = ?`, externalID)
	if err != nil {
		return database.StoreError(fmt.Sprintf("delete user %d", externalID), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return database.StoreError(fmt.Sprintf("delete user %d", externalID), err)
	}
	if n == 0 {
		return database.ErrUserNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.query(ctx, `1 = 1`)
}

func (s *Store) ListOwners(ctx context.Context) ([]models.User, error) {
	return s.query(ctx, `is_owner = 1`)
}

func (s *Store) ListAllowedUsers(ctx context.Context) ([]models.User, error) {
	return s.query(ctx, `is_allowed = 1`)
}

func (s *Store) ListUsersByName(ctx context.Context, name string) ([]models.User, error) {
	return s.query(ctx, `display_name = ?`, name)
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]models.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY join_date ASC, external_id ASC`, args...)
	if err != nil {
		return nil, database.StoreError("list users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, database.StoreError("scan user", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("list users", err)
	}
	return users, nil
}

var _ database.UserRepository = (*Store)(nil)
