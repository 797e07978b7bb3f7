package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/blob"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	catalogTable    = "orm_catalog"
	migrationsTable = "orm_schema_migrations"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite.
//
// Writers (EnsureSchema, DeleteAll, InsertBatch, and transactions from Begin)
// are serialized by a single writer permit. Readers take no permit and see the
// last committed state through the WAL.
type SQLiteStore struct {
	cfg    Config
	reg    *schema.Registry
	codec  *blob.Codec
	tel    *telemetry.Telemetry
	log    *telemetry.Logger
	writer *semaphore.Weighted

	mu      sync.RWMutex
	db      *sql.DB
	ensured map[string]bool
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 30 * time.Second
	}
	if cfg.Path == MemoryPath {
		// Every connection to :memory: is a separate database.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}
	if cfg.Codec == nil {
		cfg.Codec = blob.NewCodec(blob.Options{})
	}

	tel := telemetry.OrNop(cfg.Telemetry)

	return &SQLiteStore{
		cfg:     cfg,
		reg:     cfg.Registry,
		codec:   cfg.Codec,
		tel:     tel,
		log:     tel.Logger.NewComponentLogger("stores"),
		writer:  semaphore.NewWeighted(1),
		ensured: make(map[string]bool),
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.cfg.Path
}

// Registry returns the schema registry the store serves.
func (s *SQLiteStore) Registry() *schema.Registry {
	return s.reg
}

// Init opens the database file, creating it and its directory if absent.
// Calling Init on an open store is a no-op.
func (s *SQLiteStore) Init(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	op := s.tel.StartOperation(ctx, "init", "", attribute.String("db.path", s.cfg.Path))
	defer func() { op.End(err) }()

	if s.cfg.Path != MemoryPath {
		if dir := filepath.Dir(s.cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return storageIO("init", "failed to create database directory", err)
			}
		}
	}

	db, err := sql.Open(DriverName, dataSourceName(s.cfg.Path, s.cfg.BusyTimeout))
	if err != nil {
		return storageIO("init", "failed to open database", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection; reading the schema fails early for files that are
	// not SQLite databases.
	if err := db.PingContext(op.Ctx); err != nil {
		_ = db.Close()
		return storageIO("init", "failed to ping database", err)
	}
	var n int
	if err := db.QueryRowContext(op.Ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		_ = db.Close()
		return storageIO("init", "failed to read database schema", err)
	}

	s.db = db
	s.ensured = make(map[string]bool)
	op.Logger.Infof("opened %s with driver %s", s.cfg.Path, DriverName)
	return nil
}

// Close closes the database connection. Closing a closed store is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.ensured = make(map[string]bool)
	if err != nil {
		return storageIO("close", "failed to close database", err)
	}
	return nil
}

// Migrate runs the engine's own catalog migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.writer.Release(1)
	return migrateCatalog(db)
}

func migrateCatalog(db *sql.DB) error {
	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return storageIO("migrate", "failed to create migration driver", err)
	}

	// Create migration instance. Closing it would close db, so it is left open.
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return storageIO("migrate", "failed to create migration instance", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return storageIO("migrate", "failed to run migrations", err)
	}
	return nil
}

// EnsureSchema creates the table of every registered type that does not yet
// exist and verifies the layout of those that do. It is idempotent; a table
// whose columns disagree with its descriptor fails with SchemaConflict.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) (err error) {
	db, err := s.handle()
	if err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	op := s.tel.StartOperation(ctx, "ensure_schema", "")
	defer func() { op.End(err) }()

	if err := s.acquire(op.Ctx); err != nil {
		return err
	}
	defer s.writer.Release(1)

	if err := migrateCatalog(db); err != nil {
		return err
	}

	types := s.reg.Types()
	tx, err := db.BeginTx(op.Ctx, nil)
	if err != nil {
		return storageIO("ensure_schema", "failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	created := 0
	for _, desc := range types {
		made, err := ensureTable(op.Ctx, tx, desc)
		if err != nil {
			return err
		}
		if made {
			created++
			op.Logger.WithType(desc.Name).Infof("created table %s", desc.Table)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageIO("ensure_schema", "failed to commit schema", err)
	}

	s.mu.Lock()
	for _, desc := range types {
		s.ensured[desc.Name] = true
	}
	s.mu.Unlock()

	op.Logger.Debugf("schema ensured for %d types, %d tables created", len(types), created)
	return nil
}

// ensureTable creates or verifies the table of one type and records it in the
// catalog. It reports whether the table was created.
func ensureTable(ctx context.Context, tx *sql.Tx, desc *schema.TypeDescriptor) (bool, error) {
	conflict := func(format string, args ...any) error {
		return ormerr.Newf(ormerr.KindSchemaConflict, format, args...).WithType(desc.Name).WithOp("ensure_schema")
	}

	var owner string
	err := tx.QueryRowContext(ctx,
		"SELECT type_name FROM "+catalogTable+" WHERE table_name = ? AND type_name <> ?",
		desc.Table, desc.Name).Scan(&owner)
	switch {
	case err == nil:
		return false, conflict("table %s belongs to type %s", desc.Table, owner)
	case !errors.Is(err, sql.ErrNoRows):
		return false, storageIO("ensure_schema", "failed to read catalog", err)
	}

	existing, err := tableInfo(ctx, tx, desc.Table)
	if err != nil {
		return false, err
	}

	ddl := CreateTableSQL(desc)
	created := false
	if len(existing) == 0 {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return false, storageIO("ensure_schema", "failed to create table "+desc.Table, err)
		}
		created = true
	} else if diff := compareColumns(existing, expectedColumns(desc)); diff != "" {
		return false, conflict("existing table %s does not match: %s", desc.Table, diff)
	}

	// Existing matching tables without a catalog row are adopted.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+catalogTable+` (type_name, table_name, definition, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type_name) DO UPDATE SET table_name = excluded.table_name, definition = excluded.definition`,
		desc.Name, desc.Table, ddl, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, storageIO("ensure_schema", "failed to record catalog entry", err)
	}
	return created, nil
}

// tableInfo returns the columns of a table, or nil when it does not exist.
func tableInfo(ctx context.Context, q querier, table string) ([]tableColumn, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, storageIO("ensure_schema", "failed to inspect table "+table, err)
	}
	defer rows.Close()

	var cols []tableColumn
	for rows.Next() {
		var (
			cid     int
			c       tableColumn
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, storageIO("ensure_schema", "failed to scan table info", err)
		}
		c.NotNull = notNull != 0
		c.PK = pk != 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageIO("ensure_schema", "error iterating table info", err)
	}
	return cols, nil
}

// DDL returns the CREATE TABLE statements of every registered type, sorted by
// type name. It needs no open database.
func (s *SQLiteStore) DDL() []string {
	types := s.reg.Types()
	out := make([]string, len(types))
	for i, desc := range types {
		out[i] = CreateTableSQL(desc)
	}
	return out
}

// DeleteAll removes every record of a type.
func (s *SQLiteStore) DeleteAll(ctx context.Context, typeName string) (n int64, err error) {
	desc, db, err := s.resolve(typeName)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	op := s.tel.StartOperation(ctx, "delete_all", typeName, telemetry.AttrTable.String(desc.Table))
	defer func() { op.End(err) }()

	err = s.writeTx(op.Ctx, db, func(tx *sql.Tx) error {
		n, err = s.deleteAll(op.Ctx, tx, desc)
		return err
	})
	if err != nil {
		return 0, err
	}
	op.Logger.Debugf("deleted %d records", n)
	return n, nil
}

// InsertBatch inserts records in order inside one transaction. If any record
// is rejected nothing is written and the error is InsertFailed wrapping the
// cause. On success each record's ID is set.
func (s *SQLiteStore) InsertBatch(ctx context.Context, typeName string, records []*Record) (ids []int64, err error) {
	desc, db, err := s.resolve(typeName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	op := s.tel.StartOperation(ctx, "insert_batch", typeName,
		telemetry.AttrTable.String(desc.Table), telemetry.AttrRecords.Int(len(records)))
	defer func() { op.End(err) }()

	err = s.writeTx(op.Ctx, db, func(tx *sql.Tx) error {
		ids, err = s.insertBatch(op.Ctx, tx, desc, records)
		return err
	})
	if err != nil {
		return nil, err
	}
	assignIDs(records, ids)
	op.Logger.Debugf("inserted %d records", len(ids))
	return ids, nil
}

// QueryAll yields every record of a type ordered by identity. The query runs
// when the sequence is ranged over and again on every later range. A failure
// is yielded once as a nil record with the error, ending the sequence.
func (s *SQLiteStore) QueryAll(ctx context.Context, typeName string) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		desc, db, err := s.resolve(typeName)
		if err != nil {
			yield(nil, err)
			return
		}

		ctx, cancel := s.opContext(ctx)
		defer cancel()
		op := s.tel.StartOperation(ctx, "query_all", typeName, telemetry.AttrTable.String(desc.Table))
		err = s.queryAll(op.Ctx, db, desc, yield)
		op.End(err)
	}
}

// Count returns the number of stored records of a type.
func (s *SQLiteStore) Count(ctx context.Context, typeName string) (int64, error) {
	desc, db, err := s.resolve(typeName)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var n int64
	if err := db.QueryRowContext(ctx, countSQL(desc)).Scan(&n); err != nil {
		return 0, storageIO("count", "failed to count records", err).WithType(typeName)
	}
	return n, nil
}

// Catalog lists the tables created or adopted by the engine.
func (s *SQLiteStore) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var present int
	if err := db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", catalogTable).Scan(&present); err != nil {
		return nil, storageIO("catalog", "failed to look up catalog table", err)
	}
	if present == 0 {
		return nil, ormerr.New(ormerr.KindNotInitialized, "schema has not been ensured").WithOp("catalog")
	}

	rows, err := db.QueryContext(ctx,
		"SELECT type_name, table_name, definition, created_at FROM "+catalogTable+" ORDER BY type_name")
	if err != nil {
		return nil, storageIO("catalog", "failed to list catalog", err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var (
			e       CatalogEntry
			created string
		)
		if err := rows.Scan(&e.TypeName, &e.TableName, &e.Definition, &created); err != nil {
			return nil, storageIO("catalog", "failed to scan catalog entry", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, storageIO("catalog", "invalid creation time for "+e.TypeName, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageIO("catalog", "error iterating catalog", err)
	}
	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return storageIO("health_check", "database ping failed", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) deleteAll(ctx context.Context, q querier, desc *schema.TypeDescriptor) (int64, error) {
	res, err := q.ExecContext(ctx, deleteSQL(desc))
	if err != nil {
		return 0, storageIO("delete_all", "failed to delete records", err).WithType(desc.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageIO("delete_all", "failed to read deleted count", err).WithType(desc.Name)
	}
	s.tel.Metrics.RecordDeleted(desc.Name, n)
	return n, nil
}

func (s *SQLiteStore) insertBatch(ctx context.Context, tx *sql.Tx, desc *schema.TypeDescriptor, records []*Record) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	if len(records) == 0 {
		return ids, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(desc))
	if err != nil {
		return nil, storageIO("insert_batch", "failed to prepare insert", err).WithType(desc.Name)
	}
	defer stmt.Close()

	for i, rec := range records {
		args, err := s.bindRecord(desc, rec)
		if err != nil {
			return nil, insertFailed(desc, i, err)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, insertFailed(desc, i, storageIO("insert_batch", "failed to insert record", err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, insertFailed(desc, i, storageIO("insert_batch", "failed to get record ID", err))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *SQLiteStore) queryAll(ctx context.Context, q querier, desc *schema.TypeDescriptor, yield func(*Record, error) bool) error {
	err := s.scanAll(ctx, q, desc, yield)
	if err != nil {
		yield(nil, err)
	}
	return err
}

// scanAll yields decoded rows. It returns nil as soon as yield asks to stop,
// so the caller only yields an error when iteration was not abandoned.
func (s *SQLiteStore) scanAll(ctx context.Context, q querier, desc *schema.TypeDescriptor, yield func(*Record, error) bool) error {
	rows, err := q.QueryContext(ctx, selectSQL(desc))
	if err != nil {
		return storageIO("query_all", "failed to query records", err).WithType(desc.Name)
	}
	defer rows.Close()

	row := make([]any, len(desc.Fields)+1)
	ptrs := make([]any, len(row))
	for i := range row {
		ptrs[i] = &row[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return storageIO("query_all", "failed to scan record", err).WithType(desc.Name)
		}
		rec, err := s.decodeRecord(desc, row)
		if err != nil {
			return err
		}
		s.tel.Metrics.RecordLoaded(desc.Name)
		if !yield(rec, nil) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return storageIO("query_all", "error iterating records", err).WithType(desc.Name)
	}
	return nil
}

// writeTx runs fn in a transaction while holding the writer permit.
func (s *SQLiteStore) writeTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.writer.Release(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageIO("begin", "failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageIO("commit", "failed to commit transaction", err)
	}
	return nil
}

// acquire takes the writer permit, bounded by ctx.
func (s *SQLiteStore) acquire(ctx context.Context) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return storageIO("acquire", "timed out waiting for the writer lock", err)
	}
	return nil
}

// opContext applies OpTimeout when ctx has no deadline.
func (s *SQLiteStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// handle returns the open database or NotInitialized.
func (s *SQLiteStore) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ormerr.New(ormerr.KindNotInitialized, "database not initialized")
	}
	return s.db, nil
}

// resolve returns the descriptor of an ensured type and the open database.
func (s *SQLiteStore) resolve(typeName string) (*schema.TypeDescriptor, *sql.DB, error) {
	s.mu.RLock()
	db, ensured := s.db, s.ensured[typeName]
	s.mu.RUnlock()

	if db == nil {
		return nil, nil, ormerr.New(ormerr.KindNotInitialized, "database not initialized").WithType(typeName)
	}
	desc, err := s.reg.Lookup(typeName)
	if err != nil {
		return nil, nil, err
	}
	if !ensured {
		return nil, nil, ormerr.New(ormerr.KindNotInitialized, "table not ensured; call EnsureSchema").WithType(typeName)
	}
	return desc, db, nil
}

func assignIDs(records []*Record, ids []int64) {
	for i, id := range ids {
		records[i].ID = id
	}
}

func insertFailed(desc *schema.TypeDescriptor, index int, cause error) error {
	return ormerr.Wrap(ormerr.KindInsertFailed,
		fmt.Sprintf("record %d rejected, batch rolled back", index), cause).WithType(desc.Name).WithOp("insert_batch")
}

func storageIO(op, msg string, err error) *ormerr.Error {
	return ormerr.Wrap(ormerr.KindStorageIO, msg, err).WithOp(op)
}
