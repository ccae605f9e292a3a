package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one journal row — exactly one per calendar day.
type Entry struct {
	ID     string    // day key, DDMMYYYY
	Date   time.Time // creation timestamp, set once
	Mood   int       // 0 = unset, otherwise 1..5
	People string    // "; "-separated canonical person ids
	Notes  string
}

// Person is reference data: canonical lowercase id plus display name.
type Person struct {
	ID   int
	Name string
}

// ErrNotFound is returned when no entry exists for a day key.
var ErrNotFound = errors.New("journal: entry not found")

// StorageError wraps a failure at the storage boundary. The store never
// retries; callers decide whether the failure is user-visible.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("journal store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is the persistence contract for journal entries and the
// reference list of known people.
type Store interface {
	// Get returns the entry for a day key, or ErrNotFound.
	Get(ctx context.Context, dayKey string) (*Entry, error)

	// Put inserts the entry, deterministically overwriting any existing
	// row for the same day key.
	Put(ctx context.Context, e Entry) error

	// Update merge-patches the named columns of an existing entry.
	// Only mood, people and notes are updatable.
	Update(ctx context.Context, dayKey string, fields map[string]any) error

	// ListPeople returns the reference people in stable order.
	ListPeople(ctx context.Context) ([]Person, error)
}

// updatableColumns guards Update against patching anything but the
// mutable workflow fields.
var updatableColumns = map[string]bool{
	"mood":   true,
	"people": true,
	"notes":  true,
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, pgURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Init creates the journal and people tables if they don't exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS journal (
			id     TEXT PRIMARY KEY,
			date   TIMESTAMPTZ NOT NULL,
			mood   INT NOT NULL DEFAULT 0,
			people TEXT NOT NULL DEFAULT '',
			notes  TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS people (
			id   SERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create people table: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Get returns the entry for a day key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, dayKey string) (*Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx,
		"SELECT id, date, mood, people, notes FROM journal WHERE id = $1", dayKey,
	).Scan(&e.ID, &e.Date, &e.Mood, &e.People, &e.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	return &e, nil
}

// Put inserts the entry for the day, resetting any existing row.
// Re-issuing the start command on the same day recreates the entry
// deterministically instead of violating the primary key.
func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO journal (id, date, mood, people, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET date = EXCLUDED.date,
			mood = EXCLUDED.mood,
			people = EXCLUDED.people,
			notes = EXCLUDED.notes
	`, e.ID, e.Date, e.Mood, e.People, e.Notes)
	if err != nil {
		return &StorageError{Op: "put", Err: err}
	}
	return nil
}

// Update merge-patches the named columns of the entry for a day key.
func (s *PostgresStore) Update(ctx context.Context, dayKey string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	i := 1
	for _, col := range []string{"mood", "people", "notes"} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, v)
		i++
	}
	if len(setClauses) != len(fields) {
		for col := range fields {
			if !updatableColumns[col] {
				return &StorageError{Op: "update", Err: fmt.Errorf("column %q is not updatable", col)}
			}
		}
	}

	args = append(args, dayKey)
	query := fmt.Sprintf("UPDATE journal SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "), i)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return &StorageError{Op: "update", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPeople returns all reference people in insertion order.
func (s *PostgresStore) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM people ORDER BY id")
	if err != nil {
		return nil, &StorageError{Op: "list_people", Err: err}
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, &StorageError{Op: "list_people", Err: err}
		}
		p.Name = strings.ToLower(p.Name)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list_people", Err: err}
	}
	return people, nil
}
