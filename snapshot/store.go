package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested snapshot doesn't exist.
var ErrNotFound = errors.New("snapshot not found")

// Store persists named snapshots in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
}

// Info describes one stored snapshot.
type Info struct {
	Name    string
	Size    int64
	Created time.Time
}

// OpenStore opens (creating if needed) a snapshot store at the given
// database path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("lunar.snapshot"),
	}, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// Save stores snapshot bytes under a name, replacing any previous
// snapshot with that name.
func (st *Store) Save(name string, data []byte) error {
	_, err := st.db.Exec(
		`INSERT INTO snapshots (name, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		name, data, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", name, err)
	}
	st.log.Debugf("saved snapshot %q (%d bytes)", name, len(data))
	return nil
}

// Load retrieves the snapshot bytes stored under a name.
func (st *Store) Load(name string) ([]byte, error) {
	var data []byte
	err := st.db.QueryRow(`SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	return data, nil
}

// Delete removes a stored snapshot. Deleting a missing name is not an
// error.
func (st *Store) Delete(name string) error {
	_, err := st.db.Exec(`DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting snapshot %q: %w", name, err)
	}
	return nil
}

// List returns all stored snapshots ordered by name.
func (st *Store) List() ([]Info, error) {
	rows, err := st.db.Query(`SELECT name, length(data), created_at FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var created string
		if err := rows.Scan(&info.Name, &info.Size, &created); err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			info.Created = t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
