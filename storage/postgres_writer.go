package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"swipehouse/models"
)

// PostgresWriter persists the accepted listing snapshot to PostgreSQL.
// Each write replaces the previous snapshot wholesale, matching the
// query lifecycle: results are never merged incrementally.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id           TEXT PRIMARY KEY,
			address      TEXT         NOT NULL DEFAULT '',
			title        TEXT         NOT NULL DEFAULT '',
			neighborhood TEXT         NOT NULL DEFAULT '',
			price        NUMERIC(12,2) NOT NULL DEFAULT 0,
			beds         NUMERIC(4,1) NOT NULL DEFAULT 0,
			baths        NUMERIC(4,1) NOT NULL DEFAULT 0,
			sqft         NUMERIC(10,1) NOT NULL DEFAULT 0,
			lat          DOUBLE PRECISION NOT NULL,
			lng          DOUBLE PRECISION NOT NULL,
			commute_mins INTEGER      NOT NULL DEFAULT 0,
			match_score  INTEGER      NOT NULL DEFAULT 0,
			quality      VARCHAR(10)  NOT NULL,
			type         VARCHAR(10)  NOT NULL,
			external_url TEXT         NOT NULL DEFAULT '',
			source       VARCHAR(20)  NOT NULL,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_price   ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_quality ON listings(quality);
		CREATE INDEX IF NOT EXISTS idx_listings_type    ON listings(type);
	`)
	return err
}

// Clear deletes all existing listings from the table.
func (pw *PostgresWriter) Clear() error {
	_, err := pw.db.Exec("DELETE FROM listings")
	if err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Write replaces the stored snapshot with the given listings.
func (pw *PostgresWriter) Write(listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	if err := pw.Clear(); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.Listing) error {
	const cols = 16
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, l := range batch {
		base := idx * cols
		placeholders := make([]string, cols)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			l.ID, l.Address, l.Title, l.Neighborhood, l.Price, l.Beds, l.Baths,
			l.Sqft, l.Lat, l.Lng, l.CommuteMins, l.MatchScore,
			string(l.DataQuality), string(l.Type), l.ExternalURL, l.Source)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (id, address, title, neighborhood, price, beds, baths,
			sqft, lat, lng, commute_mins, match_score, quality, type, external_url, source)
		VALUES %s
		ON CONFLICT (id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves the stored snapshot, most recent first by id order.
func (pw *PostgresWriter) FetchAll() ([]*models.Listing, error) {
	rows, err := pw.db.Query(`
		SELECT id, address, title, neighborhood, price, beds, baths, sqft,
			lat, lng, commute_mins, match_score, quality, type, external_url, source, created_at
		FROM listings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		var quality, mode string
		if err := rows.Scan(
			&l.ID, &l.Address, &l.Title, &l.Neighborhood, &l.Price, &l.Beds, &l.Baths,
			&l.Sqft, &l.Lat, &l.Lng, &l.CommuteMins, &l.MatchScore,
			&quality, &mode, &l.ExternalURL, &l.Source, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l.DataQuality = models.Quality(quality)
		l.Type = models.Mode(mode)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
