package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Memory categories assigned by the writer.
const (
	CategoryFact       = "fact"
	CategoryPreference = "preference"
	CategoryOutcome    = "outcome"
)

// Entry is one long-term memory record.
type Entry struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Content    string         `json:"content"`
	Category   string         `json:"category"`
	Importance float64        `json:"importance"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float64      `json:"embedding,omitempty"`
}

// Query filters a Retrieve call. Empty fields do not filter.
type Query struct {
	SessionID string
	Text      string
	Category  string
	Since     time.Time
	Limit     int
}

// Dialect selects placeholder and upsert syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// StoreConfig selects and opens the long-term memory database.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string
}

// SQLStore persists memories in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenStore opens the configured database and ensures the schema exists.
func OpenStore(ctx context.Context, cfg StoreConfig) (*SQLStore, error) {
	dialect := DialectSQLite
	driver := "sqlite"
	if strings.EqualFold(cfg.Driver, "postgres") || strings.EqualFold(cfg.Driver, "postgresql") {
		dialect = DialectPostgres
		driver = "postgres"
	}
	dsn := cfg.DSN
	if dsn == "" {
		if dialect == DialectPostgres {
			return nil, errors.New("memory: postgres DSN is required")
		}
		dsn = "conductor_ltm.db"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	store := NewSQLStore(db, dialect)
	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database. Call Init before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// Init creates the memories table and its indexes.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			importance REAL NOT NULL,
			timestamp TEXT NOT NULL,
			metadata TEXT,
			embedding TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create memories table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_session ON memories(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_category ON memories(category)",
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Store writes an entry and returns its id. Empty category and zero
// importance default to "fact" and 0.5.
func (s *SQLStore) Store(ctx context.Context, entry Entry) (string, error) {
	if entry.Category == "" {
		entry.Category = CategoryFact
	}
	if entry.Importance == 0 {
		entry.Importance = 0.5
	}
	ts := s.now().UTC()
	if entry.ID == "" {
		entry.ID = memoryID(entry.SessionID, entry.Content, ts)
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var embedding sql.NullString
	if len(entry.Embedding) > 0 {
		data, err := json.Marshal(entry.Embedding)
		if err != nil {
			return "", fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embedding = sql.NullString{String: string(data), Valid: true}
	}

	query := `INSERT OR REPLACE INTO memories
		(id, session_id, content, category, importance, timestamp, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if s.dialect == DialectPostgres {
		query = `INSERT INTO memories
		(id, session_id, content, category, importance, timestamp, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id, content = EXCLUDED.content,
			category = EXCLUDED.category, importance = EXCLUDED.importance,
			timestamp = EXCLUDED.timestamp, metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		entry.ID,
		entry.SessionID,
		entry.Content,
		entry.Category,
		entry.Importance,
		ts.Format(time.RFC3339Nano),
		string(metadata),
		embedding,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}
	return entry.ID, nil
}

// Retrieve returns matching entries ordered by importance, then recency.
func (s *SQLStore) Retrieve(ctx context.Context, q Query) ([]Entry, error) {
	conditions := []string{"session_id = ?"}
	args := []any{q.SessionID}

	if q.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, q.Category)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if q.Text != "" {
		conditions = append(conditions, "content LIKE ?")
		args = append(args, "%"+q.Text+"%")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	query := `SELECT id, session_id, content, category, importance, timestamp, metadata, embedding
		FROM memories WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY importance DESC, timestamp DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes an entry and reports whether it existed.
func (s *SQLStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM memories WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearSession removes every entry of a session and returns the count.
func (s *SQLStore) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM memories WHERE session_id = ?"), sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear session: %w", err)
	}
	return res.RowsAffected()
}

// PruneBefore removes entries older than cutoff and returns the count.
func (s *SQLStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM memories WHERE timestamp < ?"),
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune memories: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry     Entry
		ts        string
		metadata  sql.NullString
		embedding sql.NullString
	)
	if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Content, &entry.Category,
		&entry.Importance, &ts, &metadata, &embedding); err != nil {
		return Entry{}, fmt.Errorf("failed to scan memory: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		entry.Timestamp = parsed
	}
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &entry.Metadata)
	}
	if embedding.Valid && embedding.String != "" {
		_ = json.Unmarshal([]byte(embedding.String), &entry.Embedding)
	}
	return entry, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func memoryID(sessionID, content string, ts time.Time) string {
	sum := sha256.Sum256([]byte(sessionID + ":" + content + ":" + ts.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:16]
}
