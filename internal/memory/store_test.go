package memory

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMockStore(t *testing.T, dialect Dialect) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := NewSQLStore(db, dialect)
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return db, mock, store
}

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenStore(context.Background(), StoreConfig{DSN: filepath.Join(t.TempDir(), "ltm.db")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStore_StoreSQLite(t *testing.T) {
	_, mock, store := setupMockStore(t, DialectSQLite)

	mock.ExpectExec("INSERT OR REPLACE INTO memories").
		WithArgs(
			sqlmock.AnyArg(), // id
			"sess-1",
			"the sky is blue",
			CategoryFact,
			0.5,
			"2026-01-02T03:04:05Z",
			"{}",
			sqlmock.AnyArg(), // embedding
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.Store(context.Background(), Entry{SessionID: "sess-1", Content: "the sky is blue"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != 16 {
		t.Fatalf("expected 16-char id, got %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	_, mock, store := setupMockStore(t, DialectPostgres)

	mock.ExpectExec(`INSERT INTO memories .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\).*ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if _, err := store.Store(context.Background(), Entry{SessionID: "s", Content: "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec(`DELETE FROM memories WHERE id = \$1`).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := store.Delete(context.Background(), "abc")
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got deleted=%v err=%v", deleted, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStore_RetrieveBuildsFilters(t *testing.T) {
	_, mock, store := setupMockStore(t, DialectSQLite)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "session_id", "content", "category", "importance", "timestamp", "metadata", "embedding"}).
		AddRow("m1", "s1", "likes go", CategoryPreference, 0.8, "2026-01-02T00:00:00Z", `{"tool":"echo"}`, nil)
	mock.ExpectQuery(`SELECT .* FROM memories WHERE session_id = \? AND category = \? AND timestamp > \? AND content LIKE \?.*ORDER BY importance DESC, timestamp DESC.*LIMIT \?`).
		WithArgs("s1", CategoryPreference, "2026-01-01T00:00:00Z", "%go%", 4).
		WillReturnRows(rows)

	entries, err := store.Retrieve(context.Background(), Query{
		SessionID: "s1", Text: "go", Category: CategoryPreference, Since: since, Limit: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Metadata["tool"] != "echo" {
		t.Fatalf("expected metadata tool=echo, got %v", entries[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Store(ctx, Entry{SessionID: "s1", Content: "low importance fact", Importance: 0.2}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if _, err := store.Store(ctx, Entry{SessionID: "s1", Content: "user preference for tabs", Category: CategoryPreference, Importance: 0.8}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if _, err := store.Store(ctx, Entry{SessionID: "s2", Content: "other session fact"}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	entries, err := store.Retrieve(ctx, Query{SessionID: "s1"})
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Importance != 0.8 {
		t.Fatalf("expected highest importance first, got %v", entries[0].Importance)
	}

	n, err := store.ClearSession(ctx, "s1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 cleared, got %d (err=%v)", n, err)
	}
	if deleted, _ := store.Delete(ctx, "missing"); deleted {
		t.Fatal("expected delete of missing id to report false")
	}
}

func TestSQLStore_PruneBefore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	if _, err := store.Store(ctx, Entry{SessionID: "s1", Content: "stale"}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	store.now = time.Now
	if _, err := store.Store(ctx, Entry{SessionID: "s1", Content: "fresh"}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	n, err := store.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
}

func TestOpenStore_PostgresRequiresDSN(t *testing.T) {
	if _, err := OpenStore(context.Background(), StoreConfig{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for missing postgres DSN")
	}
}
