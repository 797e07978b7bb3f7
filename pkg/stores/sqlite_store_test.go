package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/blob"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
)

const personType = "model.Person"

var seventeenBytes = []byte("0123456789abcdefg")

// testRegistry registers the Person type and a type with a bounded picture.
func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	if err := reg.Register(schema.TypeDescriptor{
		Name:  personType,
		Table: "Person",
		Fields: []schema.FieldDescriptor{
			{Name: "name", SQLType: "VARCHAR(64)"},
			{Name: "picture", SQLType: "BLOB", Nullable: true},
		},
	}); err != nil {
		t.Fatalf("failed to register person: %v", err)
	}
	if err := reg.Register(schema.TypeDescriptor{
		Name: "model.Thumbnail",
		Fields: []schema.FieldDescriptor{
			{Name: "label", SQLType: "TEXT"},
			{Name: "width", SQLType: "INTEGER"},
			{Name: "ratio", SQLType: "REAL", Nullable: true},
			{Name: "approved", SQLType: "BOOLEAN", Nullable: true},
			{Name: "data", SQLType: "BLOB(16)", Nullable: true},
		},
	}); err != nil {
		t.Fatalf("failed to register thumbnail: %v", err)
	}
	return reg
}

// setupTestStore creates an initialized store on a temporary database file.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "images.db"), testRegistry(t))
}

func openTestStore(t *testing.T, path string, reg *schema.Registry) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: path, Registry: reg})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return store
}

func collect(t *testing.T, s Session, typeName string) []*Record {
	t.Helper()

	var out []*Record
	for rec, err := range s.QueryAll(context.Background(), typeName) {
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func person(name string, picture []byte) *Record {
	return NewRecord(map[string]any{"name": name, "picture": picture})
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:     filepath.Join(t.TempDir(), "nested", "dir", "images.db"),
		Registry: testRegistry(t),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); !errors.Is(err, ormerr.ErrNotInitialized) {
		t.Errorf("expected NotInitialized before Init, got %v", err)
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("second Init should be a no-op: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
	if _, err := store.DeleteAll(ctx, personType); !errors.Is(err, ormerr.ErrNotInitialized) {
		t.Errorf("expected NotInitialized after Close, got %v", err)
	}
}

func TestNewSQLiteStoreValidation(t *testing.T) {
	if _, err := NewSQLiteStore(Config{Registry: schema.NewRegistry()}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := NewSQLiteStore(Config{Path: "x.db"}); err == nil {
		t.Error("expected error for missing registry")
	}
}

func TestInitRejectsNonDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-db")
	if err := os.WriteFile(path, bytes.Repeat([]byte("garbage!"), 512), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	store, err := NewSQLiteStore(Config{Path: path, Registry: testRegistry(t)})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	err = store.Init(context.Background())
	if !errors.Is(err, ormerr.ErrStorageIO) {
		t.Errorf("expected StorageIO, got %v", err)
	}
}

func TestOperationsBeforeEnsureSchema(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:     filepath.Join(t.TempDir(), "images.db"),
		Registry: testRegistry(t),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.InsertBatch(ctx, personType, nil); !errors.Is(err, ormerr.ErrNotInitialized) {
		t.Errorf("expected NotInitialized before Init, got %v", err)
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	defer store.Close()

	if _, err := store.DeleteAll(ctx, personType); !errors.Is(err, ormerr.ErrNotInitialized) {
		t.Errorf("expected NotInitialized before EnsureSchema, got %v", err)
	}
	for _, err := range store.QueryAll(ctx, personType) {
		if !errors.Is(err, ormerr.ErrNotInitialized) {
			t.Errorf("expected NotInitialized from query, got %v", err)
		}
	}
}

func TestUnknownType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.DeleteAll(ctx, "model.Ghost"); !errors.Is(err, ormerr.ErrUnknownType) {
		t.Errorf("DeleteAll: expected UnknownType, got %v", err)
	}
	if _, err := store.InsertBatch(ctx, "model.Ghost", []*Record{NewRecord(nil)}); !errors.Is(err, ormerr.ErrUnknownType) {
		t.Errorf("InsertBatch: expected UnknownType, got %v", err)
	}
	if _, err := store.Count(ctx, "model.Ghost"); !errors.Is(err, ormerr.ErrUnknownType) {
		t.Errorf("Count: expected UnknownType, got %v", err)
	}
}

// TestPersonRoundTrip stores one person with a 17-byte picture and one
// without, and reads both back in insertion order.
func TestPersonRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.DeleteAll(ctx, personType); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	records := []*Record{
		person("Alice", seventeenBytes),
		person("Bob", nil),
	}
	ids, err := store.InsertBatch(ctx, personType, records)
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if len(ids) != 2 || ids[0] >= ids[1] {
		t.Fatalf("unexpected IDs %v", ids)
	}
	if records[0].ID != ids[0] || records[1].ID != ids[1] {
		t.Errorf("record IDs not assigned: %d, %d", records[0].ID, records[1].ID)
	}

	got := collect(t, store, personType)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	if got[0].String("name") != "Alice" {
		t.Errorf("first name = %q, want Alice", got[0].String("name"))
	}
	pic := got[0].Blob("picture")
	if !pic.Present() || pic.Len() != 17 || !bytes.Equal(pic.Bytes(), seventeenBytes) {
		t.Errorf("Alice's picture = %v, want 17 bytes", pic)
	}

	if got[1].String("name") != "Bob" {
		t.Errorf("second name = %q, want Bob", got[1].String("name"))
	}
	if got[1].Blob("picture").Present() {
		t.Errorf("Bob's picture should be absent, got %v", got[1].Blob("picture"))
	}
	if _, ok := got[1].Fields["picture"].(blob.Blob); !ok {
		t.Errorf("binary field should be a blob.Blob, got %T", got[1].Fields["picture"])
	}
}

func TestZeroLengthBlobIsPresent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertBatch(ctx, personType, []*Record{person("Empty", []byte{})}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	got := collect(t, store, personType)
	pic := got[0].Blob("picture")
	if !pic.Present() || pic.Len() != 0 {
		t.Errorf("expected present zero-length picture, got %v", pic)
	}
}

func TestScalarTypesRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	records := []*Record{
		NewRecord(map[string]any{"label": "full", "width": 640, "ratio": 1.5, "approved": true, "data": blob.Of([]byte{1, 2, 3})}),
		NewRecord(map[string]any{"label": "sparse", "width": uint8(32)}),
	}
	if _, err := store.InsertBatch(ctx, "model.Thumbnail", records); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	got := collect(t, store, "model.Thumbnail")
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}

	full := got[0].Fields
	if full["width"] != int64(640) || full["ratio"] != 1.5 || full["approved"] != true {
		t.Errorf("unexpected scalar values %v", full)
	}
	if !got[0].Blob("data").Equal(blob.Of([]byte{1, 2, 3})) {
		t.Errorf("unexpected data %v", got[0].Blob("data"))
	}

	sparse := got[1].Fields
	if sparse["width"] != int64(32) {
		t.Errorf("width = %v (%T), want int64 32", sparse["width"], sparse["width"])
	}
	if sparse["ratio"] != nil || sparse["approved"] != nil {
		t.Errorf("absent scalars should be nil, got %v", sparse)
	}
}

// TestInsertBatchIsAtomic checks that one bad record rejects the whole batch.
func TestInsertBatchIsAtomic(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		bad      *Record
		cause    *ormerr.Error
	}{
		{
			name:     "unknown field",
			typeName: personType,
			bad:      NewRecord(map[string]any{"name": "Eve", "age": 30}),
			cause:    ormerr.ErrInvalidField,
		},
		{
			name:     "absent required field",
			typeName: personType,
			bad:      NewRecord(map[string]any{"picture": seventeenBytes}),
			cause:    ormerr.ErrInvalidField,
		},
		{
			name:     "type mismatch",
			typeName: personType,
			bad:      NewRecord(map[string]any{"name": 42}),
			cause:    ormerr.ErrInvalidField,
		},
		{
			name:     "text too long",
			typeName: personType,
			bad:      NewRecord(map[string]any{"name": strings.Repeat("x", 65)}),
			cause:    ormerr.ErrInvalidField,
		},
		{
			name:     "nil record",
			typeName: personType,
			bad:      nil,
			cause:    ormerr.ErrInvalidField,
		},
		{
			name:     "blob too large",
			typeName: "model.Thumbnail",
			bad:      NewRecord(map[string]any{"label": "big", "width": 1, "data": make([]byte, 17)}),
			cause:    ormerr.ErrBlobTooLarge,
		},
	}

	for _, tt := range tests {
		for _, pos := range []int{0, 1, 2} {
			t.Run(fmt.Sprintf("%s at %d", tt.name, pos+1), func(t *testing.T) {
				store := setupTestStore(t)
				ctx := context.Background()

				good := func() *Record {
					if tt.typeName == personType {
						return person("Good", seventeenBytes)
					}
					return NewRecord(map[string]any{"label": "ok", "width": 1})
				}
				batch := []*Record{good(), good(), good()}
				batch[pos] = tt.bad

				ids, err := store.InsertBatch(ctx, tt.typeName, batch)
				if !errors.Is(err, ormerr.ErrInsertFailed) {
					t.Fatalf("expected InsertFailed, got %v", err)
				}
				if !errors.Is(err, tt.cause) {
					t.Errorf("expected cause %s, got %v", tt.cause.Kind, err)
				}
				if ids != nil {
					t.Errorf("expected no IDs, got %v", ids)
				}
				for i, rec := range batch {
					if rec != nil && rec.ID != 0 {
						t.Errorf("ID assigned to record %d despite rollback: %d", i, rec.ID)
					}
				}

				n, err := store.Count(ctx, tt.typeName)
				if err != nil {
					t.Fatalf("failed to count: %v", err)
				}
				if n != 0 {
					t.Errorf("expected empty table after rollback, got %d records", n)
				}
			})
		}
	}
}

func TestDeleteAllThenQueryEmpty(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	batch := []*Record{person("A", nil), person("B", seventeenBytes), person("C", nil)}
	if _, err := store.InsertBatch(ctx, personType, batch); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	n, err := store.DeleteAll(ctx, personType)
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d records, want 3", n)
	}
	if got := collect(t, store, personType); len(got) != 0 {
		t.Errorf("expected no records after delete, got %d", len(got))
	}

	n, err = store.DeleteAll(ctx, personType)
	if err != nil || n != 0 {
		t.Errorf("deleting an empty table = (%d, %v), want (0, nil)", n, err)
	}
}

func TestEmptyBatch(t *testing.T) {
	store := setupTestStore(t)

	ids, err := store.InsertBatch(context.Background(), personType, nil)
	if err != nil {
		t.Fatalf("empty batch failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no IDs, got %v", ids)
	}
}

func TestQueryAllIsRestartable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertBatch(ctx, personType, []*Record{person("A", nil), person("B", nil)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	seq := store.QueryAll(ctx, personType)

	// Stop after the first record.
	for rec, err := range seq {
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if rec.String("name") != "A" {
			t.Errorf("first record = %q, want A", rec.String("name"))
		}
		break
	}

	// A later range sees writes made in between.
	if _, err := store.InsertBatch(ctx, personType, []*Record{person("C", nil)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	var names []string
	for rec, err := range seq {
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		names = append(names, rec.String("name"))
	}
	if strings.Join(names, ",") != "A,B,C" {
		t.Errorf("second range = %v, want A,B,C", names)
	}
}

func TestWriteDuringIteration(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertBatch(ctx, personType, []*Record{person("A", nil), person("B", nil)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	seen := 0
	for _, err := range store.QueryAll(ctx, personType) {
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		seen++
		if _, err := store.InsertBatch(ctx, "model.Thumbnail", []*Record{
			NewRecord(map[string]any{"label": "t", "width": seen}),
		}); err != nil {
			t.Fatalf("insert during iteration failed: %v", err)
		}
	}
	if n, _ := store.Count(ctx, "model.Thumbnail"); n != 2 {
		t.Errorf("expected 2 thumbnails, got %d", n)
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.db")
	store := openTestStore(t, path, testRegistry(t))
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
	if _, err := store.InsertBatch(ctx, personType, []*Record{person("Kept", seventeenBytes)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	// A later run reuses the file and its data.
	reopened := openTestStore(t, path, testRegistry(t))
	got := collect(t, reopened, personType)
	if len(got) != 1 || got[0].String("name") != "Kept" {
		t.Fatalf("data not preserved across runs: %v", got)
	}

	entries, err := reopened.Catalog(ctx)
	if err != nil {
		t.Fatalf("failed to read catalog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 catalog entries, got %d", len(entries))
	}
	if entries[0].TypeName != personType || entries[0].TableName != "Person" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("catalog entry has no creation time")
	}
}

func TestEnsureSchemaDetectsConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: path, Registry: testRegistry(t)})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	defer store.Close()

	if _, err := store.db.ExecContext(ctx, `CREATE TABLE "Thumbnail" ("_id" INTEGER PRIMARY KEY, "label" TEXT)`); err != nil {
		t.Fatalf("failed to create foreign table: %v", err)
	}

	err = store.EnsureSchema(ctx)
	if !errors.Is(err, ormerr.ErrSchemaConflict) {
		t.Fatalf("expected SchemaConflict, got %v", err)
	}

	// Nothing from the failed run is kept.
	info, err := tableInfo(ctx, store.db, "Person")
	if err != nil {
		t.Fatalf("failed to inspect table: %v", err)
	}
	if len(info) != 0 {
		t.Error("tables created before the conflict should be rolled back")
	}
}

func TestEnsureSchemaAdoptsMatchingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.db")
	reg := testRegistry(t)
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Path: path, Registry: reg})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	defer store.Close()

	desc, _ := reg.Lookup(personType)
	if _, err := store.db.ExecContext(ctx, strings.ToLower(CreateTableSQL(desc))); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `INSERT INTO "person" ("name") VALUES ('Existing')`); err != nil {
		t.Fatalf("failed to seed table: %v", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("matching table should be adopted: %v", err)
	}
	got := collect(t, store, personType)
	if len(got) != 1 || got[0].String("name") != "Existing" {
		t.Errorf("adopted table data = %v", got)
	}
}

func TestTxCommit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertBatch(ctx, personType, []*Record{person("Old", nil)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	if _, err := tx.DeleteAll(ctx, personType); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	batch := []*Record{person("New", seventeenBytes)}
	if _, err := tx.InsertBatch(ctx, personType, batch); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if batch[0].ID != 0 {
		t.Error("ID should be assigned only on commit")
	}

	inside := collect(t, tx, personType)
	if len(inside) != 1 || inside[0].String("name") != "New" {
		t.Errorf("transaction should see its own writes, got %v", inside)
	}
	outside := collect(t, store, personType)
	if len(outside) != 1 || outside[0].String("name") != "Old" {
		t.Errorf("readers should see the committed state, got %v", outside)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if batch[0].ID == 0 {
		t.Error("ID not assigned after commit")
	}
	after := collect(t, store, personType)
	if len(after) != 1 || after[0].String("name") != "New" {
		t.Errorf("committed state = %v", after)
	}

	if _, err := tx.DeleteAll(ctx, personType); !errors.Is(err, ormerr.ErrHandleClosed) {
		t.Errorf("expected HandleClosed after commit, got %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, ormerr.ErrHandleClosed) {
		t.Errorf("expected HandleClosed on second commit, got %v", err)
	}
}

func TestTxRollback(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.InsertBatch(ctx, personType, []*Record{person("Keep", nil)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	if _, err := tx.DeleteAll(ctx, personType); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("second rollback should be a no-op: %v", err)
	}

	// The writer permit was released.
	if _, err := store.InsertBatch(ctx, personType, []*Record{person("More", nil)}); err != nil {
		t.Fatalf("insert after rollback failed: %v", err)
	}
	if n, _ := store.Count(ctx, personType); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestTxRejectedBatchKeepsEarlierWork(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.InsertBatch(ctx, personType, []*Record{person("First", nil)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	_, err = tx.InsertBatch(ctx, personType, []*Record{person("Second", nil), NewRecord(map[string]any{"bogus": 1})})
	if !errors.Is(err, ormerr.ErrInsertFailed) {
		t.Fatalf("expected InsertFailed, got %v", err)
	}

	got := collect(t, tx, personType)
	if len(got) != 1 || got[0].String("name") != "First" {
		t.Errorf("expected only the first batch, got %v", got)
	}
}

// TestTxCancelledBatchLeavesNoRows cancels batches part way through and checks
// that the transaction ends with either all or none of each batch.
func TestTxCancelledBatchLeavesNoRows(t *testing.T) {
	const size = 5000

	for _, timeout := range []time.Duration{time.Nanosecond, time.Millisecond, 5 * time.Millisecond, 20 * time.Millisecond} {
		t.Run(timeout.String(), func(t *testing.T) {
			store := setupTestStore(t)
			ctx := context.Background()

			tx, err := store.Begin(ctx)
			if err != nil {
				t.Fatalf("failed to begin: %v", err)
			}
			defer tx.Rollback()

			if _, err := tx.InsertBatch(ctx, personType, []*Record{person("First", nil)}); err != nil {
				t.Fatalf("failed to insert: %v", err)
			}

			batch := make([]*Record, size)
			for i := range batch {
				batch[i] = person(fmt.Sprintf("p%d", i), seventeenBytes)
			}
			bctx, cancel := context.WithTimeout(ctx, timeout)
			_, insertErr := tx.InsertBatch(bctx, personType, batch)
			cancel()

			commitErr := tx.Commit()
			n, err := store.Count(ctx, personType)
			if err != nil {
				t.Fatalf("failed to count: %v", err)
			}

			switch {
			case insertErr == nil:
				if commitErr != nil || n != size+1 {
					t.Errorf("completed batch: commit=%v count=%d, want nil and %d", commitErr, n, size+1)
				}
			case commitErr == nil:
				if n != 1 {
					t.Errorf("rejected batch left %d rows, want 1", n)
				}
			default:
				if !errors.Is(commitErr, ormerr.ErrStorageIO) {
					t.Errorf("commit of a broken transaction: expected StorageIO, got %v", commitErr)
				}
				if n != 0 {
					t.Errorf("broken transaction left %d rows, want 0", n)
				}
			}
		})
	}
}

func TestTxOutlivesBeginContext(t *testing.T) {
	store := setupTestStore(t)

	bctx, cancel := context.WithCancel(context.Background())
	tx, err := store.Begin(bctx)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	cancel()

	ctx := context.Background()
	if _, err := tx.InsertBatch(ctx, personType, []*Record{person("Late", nil)}); err != nil {
		t.Fatalf("insert after Begin context ended failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if n, _ := store.Count(ctx, personType); n != 1 {
		t.Errorf("expected 1 committed record, got %d", n)
	}
}

func TestCatalogErrors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "images.db")

	store, err := NewSQLiteStore(Config{Path: path, Registry: testRegistry(t)})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	defer store.Close()

	if _, err := store.Catalog(ctx); !errors.Is(err, ormerr.ErrNotInitialized) {
		t.Errorf("catalog before EnsureSchema: expected NotInitialized, got %v", err)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	db, err := store.handle()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "UPDATE "+catalogTable+" SET created_at = 'yesterday'"); err != nil {
		t.Fatalf("failed to corrupt catalog: %v", err)
	}
	if _, err := store.Catalog(ctx); !errors.Is(err, ormerr.ErrStorageIO) {
		t.Errorf("corrupt creation time: expected StorageIO, got %v", err)
	}
}

func TestDDL(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: "unused.db", Registry: testRegistry(t)})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ddl := store.DDL()
	if len(ddl) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(ddl))
	}
	want := "CREATE TABLE \"Person\" (\n" +
		"\t\"_id\" INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
		"\t\"name\" VARCHAR(64) NOT NULL,\n" +
		"\t\"picture\" BLOB\n" +
		")"
	if ddl[0] != want {
		t.Errorf("unexpected DDL:\n%s\nwant:\n%s", ddl[0], want)
	}
}

func TestCompareColumns(t *testing.T) {
	expected := []tableColumn{
		{Name: "_id", Type: "INTEGER", PK: true},
		{Name: "name", Type: "VARCHAR(64)", NotNull: true},
		{Name: "picture", Type: "BLOB"},
	}

	tests := []struct {
		name     string
		existing []tableColumn
		want     string
	}{
		{"identical", expected, ""},
		{"case and spacing", []tableColumn{
			{Name: "_ID", Type: "integer", PK: true},
			{Name: "Name", Type: "varchar (64)", NotNull: true},
			{Name: "picture", Type: "blob"},
		}, ""},
		{"missing column", expected[:2], "column picture is missing"},
		{"extra column", append(append([]tableColumn(nil), expected...), tableColumn{Name: "age", Type: "INTEGER"}), "unexpected column age"},
		{"type differs", []tableColumn{expected[0], {Name: "name", Type: "TEXT", NotNull: true}, expected[2]}, "column name has type"},
		{"nullability differs", []tableColumn{expected[0], expected[1], {Name: "picture", Type: "BLOB", NotNull: true}}, "NOT NULL"},
		{"no primary key", []tableColumn{{Name: "_id", Type: "INTEGER"}, expected[1], expected[2]}, "not the primary key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareColumns(tt.existing, expected)
			if tt.want == "" && got != "" {
				t.Errorf("expected match, got %q", got)
			}
			if tt.want != "" && !strings.Contains(got, tt.want) {
				t.Errorf("compareColumns() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
