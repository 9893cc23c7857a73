package bridge

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
)

//go:embed migrations/*.sql
var migrations embed.FS

// maxResults caps how many records a single search returns.
const maxResults = 15

// Store looks up genealogy records.
type Store interface {
	// Search returns records matching the surname, optionally narrowed
	// by given name and location.
	Search(ctx context.Context, query archive.Query) ([]archive.Record, error)

	// Close releases the store's resources.
	Close()
}

// PGStore is a Postgres-backed record store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the database and runs pending migrations.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bridge: ping: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PGStore{pool: pool}, nil
}

func migrate(pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("bridge: goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("bridge: migrate: %w", err)
	}
	return nil
}

// Search queries records with a partial, case-insensitive match on each
// provided field, most recent records first.
func (s *PGStore) Search(ctx context.Context, query archive.Query) ([]archive.Record, error) {
	sql := `
		SELECT id, surname, given_name, location, year, record_type, details
		FROM records
		WHERE surname ILIKE '%' || $1 || '%'`
	args := []any{query.Surname}

	if strings.TrimSpace(query.GivenName) != "" {
		args = append(args, query.GivenName)
		sql += fmt.Sprintf(` AND given_name ILIKE '%%' || $%d || '%%'`, len(args))
	}
	if strings.TrimSpace(query.Location) != "" {
		args = append(args, query.Location)
		sql += fmt.Sprintf(` AND location ILIKE '%%' || $%d || '%%'`, len(args))
	}
	sql += fmt.Sprintf(` ORDER BY year DESC LIMIT %d`, maxResults)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("bridge: search: %w", err)
	}
	defer rows.Close()

	var results []archive.Record
	for rows.Next() {
		var r archive.Record
		if err := rows.Scan(&r.ID, &r.Surname, &r.GivenName, &r.Location, &r.Year, &r.RecordType, &r.Details); err != nil {
			return nil, fmt.Errorf("bridge: scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bridge: rows: %w", err)
	}
	return results, nil
}

// Close shuts down the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Seed inserts sample records when the table is empty, for local
// development against a fresh database.
func (s *PGStore) Seed(ctx context.Context) error {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return fmt.Errorf("bridge: seed count: %w", err)
	}
	if count > 0 {
		return nil
	}

	samples := []archive.Record{
		{Surname: "Goldberg", GivenName: "Moshe", Year: "1897", Location: "Warsaw, Poland", RecordType: "Birth Record", Details: "Son of Yaakov and Chana Goldberg."},
		{Surname: "Goldberg", GivenName: "Rivka", Year: "1921", Location: "Warsaw, Poland", RecordType: "Marriage Record", Details: "Married Dovid Weissman."},
		{Surname: "Rosenfeld", GivenName: "Yaakov", Year: "1884", Location: "Vilna, Lithuania", RecordType: "Census Record", Details: "Listed as a tailor, household of six."},
		{Surname: "Rosenfeld", GivenName: "Chaim", Year: "1905", Location: "Vilna, Lithuania", RecordType: "Emigration Record", Details: "Departed for New York aboard the SS Pennsylvania."},
		{Surname: "Katz", GivenName: "Sarah", Year: "1910", Location: "Odessa, Ukraine", RecordType: "Birth Record", Details: "Daughter of Shmuel and Leah Katz."},
	}

	for _, r := range samples {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO records (surname, given_name, location, year, record_type, details)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.Surname, r.GivenName, r.Location, r.Year, r.RecordType, r.Details)
		if err != nil {
			return fmt.Errorf("bridge: seed insert: %w", err)
		}
	}

	log.Info("seeded sample records", "count", len(samples))
	return nil
}
