package ledger

import (
	"database/sql"
	"sync"
	"time"

	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"
)

// State is the durable portion of the ledger.
type State struct {
	PeriodStart time.Time
	SpentUSD    float64
}

// Store persists ledger state across restarts.
type Store interface {
	// Load returns the persisted state. found is false on first run.
	Load() (state State, found bool, err error)

	// Save writes the state. Called on every commit and rollover.
	Save(state State) error
}

// ============================================================
// SQLite store
// ============================================================

// SQLiteStore persists ledger state in a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes) the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS usage_ledger (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		period_start INTEGER NOT NULL,
		spent_usd REAL NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Load reads the persisted state.
func (s *SQLiteStore) Load() (State, bool, error) {
	var periodUnix int64
	var spent float64

	row := s.db.QueryRow(`SELECT period_start, spent_usd FROM usage_ledger WHERE id = 1`)
	if err := row.Scan(&periodUnix, &spent); err != nil {
		if err == sql.ErrNoRows {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	return State{PeriodStart: time.Unix(periodUnix, 0), SpentUSD: spent}, true, nil
}

// Save upserts the single state row.
func (s *SQLiteStore) Save(state State) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_ledger (id, period_start, spent_usd) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET period_start = excluded.period_start, spent_usd = excluded.spent_usd`,
		state.PeriodStart.Unix(), state.SpentUSD)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================
// In-memory store
// ============================================================

// MemStore is an in-memory Store for tests and budget-less setups.
type MemStore struct {
	mu    sync.Mutex
	state State
	found bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns the stored state.
func (s *MemStore) Load() (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.found, nil
}

// Save stores the state.
func (s *MemStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.found = true
	return nil
}
