package stores

import (
	"context"
	"iter"
	"time"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/blob"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/telemetry"
)

// Record is one instance of a registered record type.
//
// Field values are string, any integer kind, float64, bool, []byte, or
// blob.Blob. A nil value, a nil []byte, an absent blob.Blob, or a missing key
// means the field is absent. Records produced by QueryAll carry integers as
// int64 and binary fields as blob.Blob.
type Record struct {
	// ID is the storage identity; 0 until the record is inserted.
	ID int64 `json:"id"`

	// Fields holds the field values by field name.
	Fields map[string]any `json:"fields"`
}

// NewRecord creates a record with the given field values.
func NewRecord(fields map[string]any) *Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Record{Fields: fields}
}

// Get returns a field value and whether it is present.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns a text field, or "" when absent or not text.
func (r *Record) String(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

// Blob returns a binary field. Absent for missing fields.
func (r *Record) Blob(name string) blob.Blob {
	switch v := r.Fields[name].(type) {
	case blob.Blob:
		return v
	case []byte:
		return blob.FromBytes(v)
	}
	return blob.Absent()
}

// Session is the set of record operations shared by the engine and its
// transactions.
type Session interface {
	// DeleteAll removes every record of a type and returns how many were removed.
	DeleteAll(ctx context.Context, typeName string) (int64, error)

	// InsertBatch inserts records atomically in order and returns their IDs.
	InsertBatch(ctx context.Context, typeName string, records []*Record) ([]int64, error)

	// QueryAll yields every record of a type in insertion order. Each range
	// over the sequence runs the query again.
	QueryAll(ctx context.Context, typeName string) iter.Seq2[*Record, error]
}

// Store is the storage engine contract.
type Store interface {
	Session

	// Lifecycle
	Init(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Close() error

	// Unit of work
	Begin(ctx context.Context) (*Tx, error)

	// Utility
	Count(ctx context.Context, typeName string) (int64, error)
	Catalog(ctx context.Context) ([]CatalogEntry, error)
	HealthCheck(ctx context.Context) error
}

// CatalogEntry describes a table created or adopted by the engine.
type CatalogEntry struct {
	TypeName   string    `json:"type_name"`
	TableName  string    `json:"table_name"`
	Definition string    `json:"definition"`
	CreatedAt  time.Time `json:"created_at"`
}

// Config holds SQLite store configuration
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string

	// Registry supplies the record types. Required.
	Registry *schema.Registry

	// Codec encodes binary columns. Defaults to a plain codec.
	Codec *blob.Codec

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long SQLite waits on a locked database file.
	BusyTimeout time.Duration

	// OpTimeout bounds an operation whose context has no deadline.
	OpTimeout time.Duration

	// Telemetry receives logs, spans, and metrics. Defaults to telemetry.Nop().
	Telemetry *telemetry.Telemetry
}
