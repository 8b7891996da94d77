// Package memory handles persistent snippet storage using SQLite.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed Recall using keyword overlap for relevance.
type Store struct {
	db    *sql.DB
	limit int
}

// OpenStore opens (and initializes) the snippet database at path.
// limit caps how many snippets a Lookup returns; 0 means 5.
func OpenStore(path string, limit int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snippets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	if limit <= 0 {
		limit = 5
	}
	return &Store{db: db, limit: limit}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remember stores a snippet.
func (s *Store) Remember(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snippets (text, created_at) VALUES (?, ?)`,
		text, time.Now().Unix())
	return err
}

// Lookup returns stored snippets sharing words with the prompt, best
// overlap first. Recency breaks ties.
func (s *Store) Lookup(ctx context.Context, prompt string) ([]string, error) {
	words := keywords(prompt)
	if len(words) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT text, created_at FROM snippets ORDER BY created_at DESC LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		text    string
		score   int
		created int64
	}
	var matches []scored
	for rows.Next() {
		var text string
		var created int64
		if err := rows.Scan(&text, &created); err != nil {
			return nil, err
		}
		score := overlap(words, keywords(text))
		if score > 0 {
			matches = append(matches, scored{text, score, created})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].created > matches[j].created
	})

	n := len(matches)
	if n > s.limit {
		n = s.limit
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = matches[i].text
	}
	return out, nil
}

// keywords lowercases and splits text, dropping very short words.
func keywords(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) >= 4 {
			set[w] = struct{}{}
		}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
