/*
Package catalog keeps a SQLite ledger of every import attempt and every
feed written, next to the file-based historical store.

The store stays the source of truth for roster rows; the catalog answers
"who uploaded what, when, and was it a duplicate" without scanning
partition directories.

TABLES:

	imports: one row per import (including duplicates of an already merged hash)
	feeds:   last written feed per (person, partition)

Schema lives in migrator/sqlite/sql and is applied on Open.
*/
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"turnocal/migrator/sqlite"
)

// Fixed width so that text ordering in SQLite is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Import is one recorded import.
type Import struct {
	ID             string
	Hash           string
	Partition      string
	Filename       string
	Rows           int
	Anomalies      int
	AlreadyPresent bool
	ImportedAt     time.Time
}

// Feed is the last feed written for a person in a partition.
type Feed struct {
	Person    string
	Partition string
	Path      string
	Events    int
	WrittenAt time.Time
}

// Catalog wraps the SQLite connection.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog at path and migrates it.
// Use ":memory:" for an in-memory catalog.
func Open(path string) (*Catalog, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordImport appends an import entry.
func (c *Catalog) RecordImport(ctx context.Context, imp Import) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO imports (id, content_hash, partition_key, filename, row_count, anomalies, already_present, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		imp.ID, imp.Hash, imp.Partition, imp.Filename, imp.Rows, imp.Anomalies,
		boolToInt(imp.AlreadyPresent), imp.ImportedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// Imports returns the most recent imports first. partition filters when non-empty;
// limit <= 0 means no limit.
func (c *Catalog) Imports(ctx context.Context, partition string, limit int) ([]Import, error) {
	query := `SELECT id, content_hash, partition_key, filename, row_count, anomalies, already_present, imported_at
		FROM imports`
	var args []any
	if partition != "" {
		query += ` WHERE partition_key = ?`
		args = append(args, partition)
	}
	query += ` ORDER BY imported_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		var (
			imp     Import
			already int
			at      string
		)
		if err := rows.Scan(&imp.ID, &imp.Hash, &imp.Partition, &imp.Filename, &imp.Rows, &imp.Anomalies, &already, &at); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imp.AlreadyPresent = already != 0
		imp.ImportedAt, _ = time.Parse(timeLayout, at)
		out = append(out, imp)
	}
	return out, rows.Err()
}

// RecordFeed upserts the feed entry for (person, partition).
func (c *Catalog) RecordFeed(ctx context.Context, f Feed) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO feeds (person, partition_key, path, events, written_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (person, partition_key) DO UPDATE SET
			path = excluded.path,
			events = excluded.events,
			written_at = excluded.written_at`,
		f.Person, f.Partition, f.Path, f.Events, f.WrittenAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record feed: %w", err)
	}
	return nil
}

// Feeds lists the feeds of a partition ordered by person.
func (c *Catalog) Feeds(ctx context.Context, partition string) ([]Feed, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT person, partition_key, path, events, written_at
		FROM feeds WHERE partition_key = ? ORDER BY person`, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var out []Feed
	for rows.Next() {
		var (
			f  Feed
			at string
		)
		if err := rows.Scan(&f.Person, &f.Partition, &f.Path, &f.Events, &at); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		f.WrittenAt, _ = time.Parse(timeLayout, at)
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
