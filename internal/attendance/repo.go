package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects placeholder syntax for Repository.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_users (
		user_key   TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_days (
		user_key TEXT NOT NULL REFERENCES attendance_users(user_key),
		day      TEXT NOT NULL,
		PRIMARY KEY (user_key, day)
	)`,
}

// Repository persists attendance records in Postgres or SQLite. A record is a
// row in attendance_users plus one attendance_days row per date, so the
// (key, day) primary key keeps dates a set.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// Get returns the record for key, or nil when absent.
func (r *Repository) Get(ctx context.Context, key string) (*Record, error) {
	rec := Record{Key: key}
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT name, email FROM attendance_users WHERE user_key = ?`), key)
	if err := row.Scan(&rec.Name, &rec.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT day FROM attendance_days WHERE user_key = ? ORDER BY day`), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rec.Dates = []string{}
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		rec.Dates = append(rec.Dates, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := checkDates(rec.Dates); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	return &rec, nil
}

// Create inserts a new record with its dates.
func (r *Repository) Create(ctx context.Context, rec Record) error {
	if _, err := checkDates(rec.Dates); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Key, err)
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO attendance_users (user_key, name, email)
			VALUES (?, ?, ?)
			ON CONFLICT (user_key) DO NOTHING
		`), rec.Key, rec.Name, rec.Email)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrRecordExists
		}
		for _, d := range rec.Dates {
			if err := r.insertDay(ctx, tx, rec.Key, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendDate upserts the user row and adds date if it is not there yet.
func (r *Repository) AppendDate(ctx context.Context, key, date, name, email string) error {
	if !ValidDate(date) {
		return fmt.Errorf("%w: %s: invalid date %q", ErrMalformedRecord, key, date)
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO attendance_users (user_key, name, email)
			VALUES (?, ?, ?)
			ON CONFLICT (user_key) DO UPDATE SET
				name = COALESCE(NULLIF(excluded.name, ''), attendance_users.name),
				email = excluded.email
		`), key, name, email)
		if err != nil {
			return err
		}
		return r.insertDay(ctx, tx, key, date)
	})
}

func (r *Repository) insertDay(ctx context.Context, tx *sql.Tx, key, day string) error {
	_, err := tx.ExecContext(ctx, r.rebind(`
		INSERT INTO attendance_days (user_key, day)
		VALUES (?, ?)
		ON CONFLICT (user_key, day) DO NOTHING
	`), key, day)
	return err
}

// List returns every record ordered by key.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.user_key, u.name, u.email, d.day
		FROM attendance_users u
		LEFT JOIN attendance_days d ON d.user_key = u.user_key
		ORDER BY u.user_key, d.day
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var (
			key, name, email string
			day              sql.NullString
		)
		if err := rows.Scan(&key, &name, &email, &day); err != nil {
			return nil, err
		}
		if len(res) == 0 || res[len(res)-1].Key != key {
			res = append(res, Record{Key: key, Name: name, Email: email, Dates: []string{}})
		}
		if day.Valid {
			last := &res[len(res)-1]
			last.Dates = append(last.Dates, day.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rec := range res {
		if _, err := checkDates(rec.Dates); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Key, err)
		}
	}
	return res, nil
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
