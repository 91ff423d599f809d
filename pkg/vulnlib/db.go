package vulnlib

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS cpe_index (
	"cpe_string" TEXT NOT NULL PRIMARY KEY,
	"last_fetched" INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS vulnerabilities (
	"ID" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"cpe_string" TEXT NOT NULL,
	"cve_id" TEXT NOT NULL,
	"description" TEXT,
	"source_url" TEXT,
	"published_date" TEXT,
	UNIQUE ("cpe_string", "cve_id")
);
CREATE INDEX IF NOT EXISTS idx_vulnerabilities_cpe ON vulnerabilities ("cpe_string");`

// OpenDB opens the vulnerability cache database, creating it when absent.
// The caller owns the handle and hands it to NewStore.
func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0755)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Store is the identifier -> records cache. It owns the database handle.
type Store struct {
	DB *sql.DB

	now func() time.Time
}

func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init vulnerability cache: %w", err)
	}

	return &Store{DB: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Get returns the cached records of the identifier without contacting the source.
// A fetched identifier with no known vulnerabilities is found with zero records.
func (s *Store) Get(cpe string) ([]Record, bool, error) {
	if _, ok, err := s.LastFetched(cpe); err != nil || !ok {
		return nil, false, err
	}

	rows, err := s.DB.Query(`SELECT cve_id, description, source_url, published_date
		FROM vulnerabilities WHERE cpe_string = ? ORDER BY ID`, cpe)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r := Record{}
		var desc, url, published sql.NullString
		if err := rows.Scan(&r.ID, &desc, &url, &published); err != nil {
			return nil, false, err
		}
		r.Description, r.SourceURL, r.Published = desc.String, url.String, published.String

		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, false, err
	}

	return records, true, nil
}

// Put replaces the records of the identifier and stamps last_fetched.
func (s *Store) Put(cpe string, records []Record) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vulnerabilities WHERE cpe_string = ?`, cpe); err != nil {
		return err
	}

	for _, r := range records {
		_, err := tx.Exec(`INSERT OR REPLACE INTO vulnerabilities
			("cpe_string", "cve_id", "description", "source_url", "published_date")
			VALUES (?, ?, ?, ?, ?)`,
			cpe, r.ID, r.Description, r.SourceURL, r.Published)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(`INSERT INTO cpe_index ("cpe_string", "last_fetched") VALUES (?, ?)
		ON CONFLICT("cpe_string") DO UPDATE SET last_fetched = excluded.last_fetched`,
		cpe, s.now().UnixNano())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Delete(cpe string) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vulnerabilities WHERE cpe_string = ?`, cpe); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM cpe_index WHERE cpe_string = ?`, cpe); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) LastFetched(cpe string) (time.Time, bool, error) {
	var ts int64

	err := s.DB.QueryRow(`SELECT last_fetched FROM cpe_index WHERE cpe_string = ?`, cpe).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	return time.Unix(0, ts), true, nil
}

// Stale lists identifiers fetched before the given time.
func (s *Store) Stale(before time.Time) ([]string, error) {
	rows, err := s.DB.Query(`SELECT cpe_string FROM cpe_index WHERE last_fetched < ? ORDER BY cpe_string`,
		before.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM cpe_index`).Scan(&n)
	return n, err
}

func (s *Store) Flush() error {
	_, err := s.DB.Exec(`DELETE FROM vulnerabilities; DELETE FROM cpe_index;`)
	return err
}
