package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lexdrill/lexdrill/internal/srs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is RFC3339 with fixed-width nanoseconds so stored timestamps
// compare chronologically when SQLite compares them as strings.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps a SQLite database with methods for words, due-card queries,
// and lookup history.
type Store struct {
	db *sql.DB

	// hasLearned records whether the words table carries the learned
	// column. Detected once at Open via schema introspection; databases
	// from before migration 0002 simply treat every word as not learned.
	hasLearned bool
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "lexdrill.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	hasLearned, err := s.columnExists("words", "learned")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("inspecting words schema: %w", err)
	}
	s.hasLearned = hasLearned

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// --- Words ---

const wordColumns = "id, headword, lexical_json, interval_days, ease_factor, next_review_at, learned, created_at"

// CreateWord inserts a word with its initial schedule.
func (s *Store) CreateWord(w Word) error {
	learned := 0
	if w.Schedule.Learned {
		learned = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO words (id, headword, lexical_json, interval_days, ease_factor, next_review_at, learned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Headword, w.Lexical, w.Schedule.IntervalDays, w.Schedule.EaseFactor,
		w.Schedule.NextReviewAt.UTC().Format(timeFormat), learned,
		w.CreatedAt.UTC().Format(timeFormat),
	)
	return err
}

func scanWord(scan func(dest ...any) error) (Word, error) {
	var (
		w                      Word
		learned                int
		nextReviewAt, createdAt string
	)
	if err := scan(&w.ID, &w.Headword, &w.Lexical, &w.Schedule.IntervalDays,
		&w.Schedule.EaseFactor, &nextReviewAt, &learned, &createdAt); err != nil {
		return Word{}, err
	}
	w.Schedule.Learned = learned != 0

	t, err := time.Parse(time.RFC3339Nano, nextReviewAt)
	if err != nil {
		return Word{}, fmt.Errorf("parsing next_review_at: %w", err)
	}
	w.Schedule.NextReviewAt = t

	t, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Word{}, fmt.Errorf("parsing created_at: %w", err)
	}
	w.CreatedAt = t
	return w, nil
}

// GetWord returns the word with the given id.
func (s *Store) GetWord(id string) (Word, error) {
	row := s.db.QueryRow("SELECT "+wordColumns+" FROM words WHERE id = ?", id)
	w, err := scanWord(row.Scan)
	if err == sql.ErrNoRows {
		return Word{}, ErrNotFound
	}
	return w, err
}

// GetWordByHeadword returns the most recently saved word with the given
// headword. Headwords are not unique by contract; the newest entry wins.
func (s *Store) GetWordByHeadword(headword string) (Word, error) {
	row := s.db.QueryRow("SELECT "+wordColumns+" FROM words WHERE headword = ? ORDER BY created_at DESC LIMIT 1", headword)
	w, err := scanWord(row.Scan)
	if err == sql.ErrNoRows {
		return Word{}, ErrNotFound
	}
	return w, err
}

// ListWords returns saved words newest-first.
func (s *Store) ListWords(limit, offset int) ([]Word, error) {
	rows, err := s.db.Query("SELECT "+wordColumns+" FROM words ORDER BY created_at DESC, id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Word
	for rows.Next() {
		w, err := scanWord(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// DeleteWord removes a word.
func (s *Store) DeleteWord(id string) error {
	res, err := s.db.Exec("DELETE FROM words WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSchedule overwrites the scheduling fields of a word. Nothing else is
// touched; the schedule is only ever written in full.
func (s *Store) UpdateSchedule(id string, state srs.ScheduleState) error {
	learned := 0
	if state.Learned {
		learned = 1
	}
	res, err := s.db.Exec(`
		UPDATE words SET interval_days = ?, ease_factor = ?, next_review_at = ?, learned = ?
		WHERE id = ?`,
		state.IntervalDays, state.EaseFactor,
		state.NextReviewAt.UTC().Format(timeFormat), learned, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchWord moves a word to the end of created_at-ordered list views by
// resetting its created_at. The schedule is deliberately left alone.
func (s *Store) TouchWord(id string, now time.Time) error {
	res, err := s.db.Exec("UPDATE words SET created_at = ? WHERE id = ?",
		now.UTC().Format(timeFormat), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLearned marks a word as mastered (or un-masters it). Learned words are
// excluded from due queries regardless of their due time.
func (s *Store) SetLearned(id string, learned bool) error {
	v := 0
	if learned {
		v = 1
	}
	res, err := s.db.Exec("UPDATE words SET learned = ? WHERE id = ?", v, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDue returns up to limit words due at or before the given time, oldest
// due first with created_at as tie-break, skipping excluded ids and learned
// words.
func (s *Store) FindDue(before time.Time, excluding []string, limit int) ([]Word, error) {
	query, args := s.dueQuery("SELECT "+wordColumns+" FROM words", before, excluding)
	query += " ORDER BY next_review_at ASC, created_at ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Word
	for rows.Next() {
		w, err := scanWord(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// CountDue returns the number of due, not-learned words outside the excluded set.
func (s *Store) CountDue(before time.Time, excluding []string) (int, error) {
	query, args := s.dueQuery("SELECT COUNT(*) FROM words", before, excluding)
	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) dueQuery(selectClause string, before time.Time, excluding []string) (string, []any) {
	query := selectClause + " WHERE next_review_at <= ?"
	args := []any{before.UTC().Format(timeFormat)}

	if s.hasLearned {
		query += " AND learned = 0"
	}

	if len(excluding) > 0 {
		placeholders := strings.Repeat(",?", len(excluding)-1)
		query += " AND id NOT IN (?" + placeholders + ")"
		for _, id := range excluding {
			args = append(args, id)
		}
	}
	return query, args
}

// --- Lookup history ---

// RecordLookup appends one search-history entry.
func (s *Store) RecordLookup(l Lookup) error {
	found := 0
	if l.Found {
		found = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO lookups (id, term, found, created_at) VALUES (?, ?, ?, ?)`,
		l.ID, l.Term, found, l.CreatedAt.UTC().Format(timeFormat),
	)
	return err
}

// RecentLookups returns the newest history entries first.
func (s *Store) RecentLookups(limit int) ([]Lookup, error) {
	rows, err := s.db.Query(`
		SELECT id, term, found, created_at FROM lookups
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Lookup
	for rows.Next() {
		var (
			l         Lookup
			found     int
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.Term, &found, &createdAt); err != nil {
			return nil, err
		}
		l.Found = found != 0
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		l.CreatedAt = t
		results = append(results, l)
	}
	return results, rows.Err()
}
