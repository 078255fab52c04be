package lockstat

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func configureDatabase(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = 200000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS trace_runs (
	id          INTEGER PRIMARY KEY,
	recorded_at INTEGER NOT NULL,
	events      INTEGER NOT NULL,
	dropped     INTEGER NOT NULL,
	digest      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lock_events (
	run_id  INTEGER NOT NULL,
	stamp   INTEGER NOT NULL,
	lock_id INTEGER NOT NULL,
	core    INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	ticket  INTEGER NOT NULL,
	spins   INTEGER NOT NULL,
	PRIMARY KEY (run_id, stamp)
) WITHOUT ROWID;
`

// Export appends the collected trace to the sqlite database at path and
// returns the new run id. Call after Stop.
func (r *Recorder) Export(path string) (int64, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return 0, fmt.Errorf("open trace db: %w", err)
	}
	defer db.Close()

	if err := configureDatabase(db); err != nil {
		return 0, err
	}
	if _, err := db.Exec(schema); err != nil {
		return 0, fmt.Errorf("create trace schema: %w", err)
	}

	events := r.Events()
	sum := r.Digest()

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO trace_runs (recorded_at, events, dropped, digest) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), len(events), int64(r.Dropped()), hex.EncodeToString(sum[:]))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert trace run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("trace run id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO lock_events (run_id, stamp, lock_id, core, kind, ticket, spins)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare insert statement in transaction: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(runID, int64(e.Stamp), int(e.Lock), int(e.Core), e.Kind.String(), int64(e.Ticket), int64(e.Spins)); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert event %d: %w", e.Stamp, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trace: %w", err)
	}
	return runID, nil
}
