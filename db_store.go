package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type DBDialect string

const (
	dialectSQLite   DBDialect = "sqlite"
	dialectPostgres DBDialect = "postgres"
)

const (
	seedAdminUsername = "admin"
	seedAdminEmail    = "admin@example.com"
	seedAdminPassword = "password123"
)

type SQLRepository struct {
	dialect DBDialect
	db      *sql.DB
}

// User is one row of the users table. Password holds the bcrypt hash,
// never the plaintext.
type User struct {
	ID       int64
	Username string
	Email    string
	Password string
}

// UserTraitsRow is one row of the all-users traits listing.
type UserTraitsRow struct {
	Username string `json:"username"`
	TraitVector
	UpdatedAt time.Time `json:"updated_at"`
}

func newConfiguredStore() (*Store, error) {
	store := newStore()
	repo, err := openRepositoryFromEnv()
	if err != nil {
		return nil, err
	}
	store.repo = repo
	return store, nil
}

func openRepositoryFromEnv() (*SQLRepository, error) {
	dialectRaw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if dialectRaw == "" {
		dialectRaw = string(dialectSQLite)
	}
	dialect := DBDialect(dialectRaw)

	var driverName string
	var dsn string
	switch dialect {
	case dialectSQLite:
		driverName = "sqlite"
		path := strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
		if path == "" {
			path = filepath.Join("tmp", "virtueville.sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		dsn = path
	case dialectPostgres:
		driverName = "pgx"
		dsn = strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", dialectRaw)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == dialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	repo := &SQLRepository{dialect: dialect, db: db}
	if err := repo.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := repo.ensureSeedUser(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("database: dialect=%s", dialect)
	return repo, nil
}

func (r *SQLRepository) bind(pos int) string {
	if r.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (r *SQLRepository) insertQuery(table string, cols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = r.bind(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		strings.Join(ph, ", "),
	)
}

func (r *SQLRepository) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	pattern := fmt.Sprintf("migrations/%s/*.sql", r.dialect)
	files, err := fs.Glob(migrationFS, pattern)
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		q := r.insertQuery("schema_migrations", []string{"version", "applied_at"})
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// ensureSeedUser creates the development admin account once, matching the
// original deployment's bootstrap row. Migrations cannot do this because
// the password is hashed at insert time.
func (r *SQLRepository) ensureSeedUser(ctx context.Context) error {
	var n int
	q := fmt.Sprintf("SELECT COUNT(1) FROM users WHERE username = %s", r.bind(1))
	if err := r.db.QueryRowContext(ctx, q, seedAdminUsername).Scan(&n); err != nil {
		return fmt.Errorf("check seed user: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.CreateUser(ctx, seedAdminUsername, seedAdminEmail, seedAdminPassword); err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			return nil
		}
		return fmt.Errorf("create seed user: %w", err)
	}
	log.Printf("seeded default user %q", seedAdminUsername)
	return nil
}

// CreateUser validates uniqueness, hashes the password and inserts the row,
// returning the new user id.
func (r *SQLRepository) CreateUser(ctx context.Context, username, email, password string) (int64, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(1) FROM users WHERE username = %s OR email = %s", r.bind(1), r.bind(2))
	if err := r.db.QueryRowContext(ctx, q, username, email).Scan(&n); err != nil {
		return 0, storageErr("check existing user", err)
	}
	if n > 0 {
		return 0, &ConflictError{Msg: "Username or email already exists. Please choose a different one."}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, storageErr("hash password", err)
	}

	now := time.Now().UTC()
	if r.dialect == dialectPostgres {
		var id int64
		q := fmt.Sprintf(
			"INSERT INTO users (username, email, password, created_at) VALUES (%s, %s, %s, %s) RETURNING id",
			r.bind(1), r.bind(2), r.bind(3), r.bind(4),
		)
		if err := r.db.QueryRowContext(ctx, q, username, email, string(hash), now).Scan(&id); err != nil {
			return 0, storageErr("insert user", err)
		}
		return id, nil
	}

	res, err := r.db.ExecContext(ctx,
		r.insertQuery("users", []string{"username", "email", "password", "created_at"}),
		username, email, string(hash), now,
	)
	if err != nil {
		return 0, storageErr("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("read user id", err)
	}
	return id, nil
}

// FindUserByUsername returns the stored user, or nil when no such user
// exists. Callers decide whether absence is an error.
func (r *SQLRepository) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	q := fmt.Sprintf("SELECT id, username, email, password FROM users WHERE username = %s", r.bind(1))
	var u User
	err := r.db.QueryRowContext(ctx, q, username).Scan(&u.ID, &u.Username, &u.Email, &u.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find user", err)
	}
	return &u, nil
}

// UpsertTraits writes a user's trait row, last write wins. The unique
// user_id key makes concurrent saves for the same user converge instead of
// duplicating rows.
func (r *SQLRepository) UpsertTraits(ctx context.Context, userID int64, tv TraitVector, now time.Time) error {
	tv = tv.Normalized()
	q := fmt.Sprintf(`
		INSERT INTO user_traits (user_id, empathy, responsibility, courage, fear, selfishness, dishonesty, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (user_id) DO UPDATE SET
			empathy = excluded.empathy,
			responsibility = excluded.responsibility,
			courage = excluded.courage,
			fear = excluded.fear,
			selfishness = excluded.selfishness,
			dishonesty = excluded.dishonesty,
			updated_at = excluded.updated_at`,
		r.bind(1), r.bind(2), r.bind(3), r.bind(4), r.bind(5), r.bind(6), r.bind(7), r.bind(8),
	)
	if _, err := r.db.ExecContext(ctx, q,
		userID, tv.Empathy, tv.Responsibility, tv.Courage, tv.Fear, tv.Selfishness, tv.Dishonesty, now,
	); err != nil {
		return storageErr("upsert traits", err)
	}
	return nil
}

// GetTraits reads a user's trait row. A user with no row gets the default
// vector, not an error.
func (r *SQLRepository) GetTraits(ctx context.Context, userID int64) (TraitVector, error) {
	q := fmt.Sprintf(`
		SELECT empathy, responsibility, courage, fear, selfishness, dishonesty
		FROM user_traits WHERE user_id = %s`, r.bind(1))
	var tv TraitVector
	err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&tv.Empathy, &tv.Responsibility, &tv.Courage, &tv.Fear, &tv.Selfishness, &tv.Dishonesty,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return TraitVector{}, nil
	}
	if err != nil {
		return TraitVector{}, storageErr("get traits", err)
	}
	return tv, nil
}

// AllTraits lists every user's traits for the dashboard, most recently
// updated first.
func (r *SQLRepository) AllTraits(ctx context.Context) ([]UserTraitsRow, error) {
	q := `
		SELECT u.username, t.empathy, t.responsibility, t.courage,
		       t.fear, t.selfishness, t.dishonesty, t.updated_at
		FROM user_traits t
		JOIN users u ON t.user_id = u.id
		ORDER BY t.updated_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, storageErr("list traits", err)
	}
	defer rows.Close()
	out := []UserTraitsRow{}
	for rows.Next() {
		var row UserTraitsRow
		if err := rows.Scan(
			&row.Username, &row.Empathy, &row.Responsibility, &row.Courage,
			&row.Fear, &row.Selfishness, &row.Dishonesty, &row.UpdatedAt,
		); err != nil {
			return nil, storageErr("scan traits row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate traits rows", err)
	}
	return out, nil
}

// SaveProgress overwrites the durable {traits, completedTasks} blob at a
// storage key. No merge: the record is replaced wholesale.
func (r *SQLRepository) SaveProgress(ctx context.Context, key string, rec ProgressRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return storageErr("encode progress", err)
	}
	q := fmt.Sprintf(`
		INSERT INTO progress_records (storage_key, payload, updated_at)
		VALUES (%s, %s, %s)
		ON CONFLICT (storage_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		r.bind(1), r.bind(2), r.bind(3),
	)
	if _, err := r.db.ExecContext(ctx, q, key, string(payload), time.Now().UTC()); err != nil {
		return storageErr("save progress", err)
	}
	return nil
}

// LoadProgress reads the record at a storage key. Missing records are the
// normal first-run case and corrupt payloads fail open: both return a fresh
// default record rather than an error.
func (r *SQLRepository) LoadProgress(ctx context.Context, key string) (ProgressRecord, error) {
	q := fmt.Sprintf("SELECT payload FROM progress_records WHERE storage_key = %s", r.bind(1))
	var payload string
	err := r.db.QueryRowContext(ctx, q, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultProgressRecord(), nil
	}
	if err != nil {
		return defaultProgressRecord(), storageErr("load progress", err)
	}
	var rec ProgressRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		log.Printf("corrupt progress record at %s, starting fresh: %v", key, err)
		return defaultProgressRecord(), nil
	}
	rec.Traits = rec.Traits.Normalized()
	if rec.CompletedTasks == nil {
		rec.CompletedTasks = TaskSet{}
	}
	return rec, nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}
