package schema

import "strings"

// IdentityColumn is the implicit storage identity column added to every table.
const IdentityColumn = "_id"

// StorageType is the abstract storage type of a field.
type StorageType int

const (
	StorageUnknown StorageType = iota
	StorageText
	StorageInteger
	StorageReal
	StorageBool
	StorageBinary
)

// String returns the lower-case name of the storage type.
func (t StorageType) String() string {
	switch t {
	case StorageText:
		return "text"
	case StorageInteger:
		return "integer"
	case StorageReal:
		return "real"
	case StorageBool:
		return "bool"
	case StorageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// DefaultSQLType returns the SQL type declared for a field that only names a
// storage type.
func (t StorageType) DefaultSQLType() string {
	switch t {
	case StorageText:
		return "TEXT"
	case StorageInteger:
		return "INTEGER"
	case StorageReal:
		return "REAL"
	case StorageBool:
		return "BOOLEAN"
	case StorageBinary:
		return "BLOB"
	default:
		return ""
	}
}

// FieldDescriptor maps one field of a record type to a table column.
type FieldDescriptor struct {
	// Name is the field name used in records.
	Name string `json:"name" yaml:"name" validate:"required,sqlident"`

	// Column is the column name. Defaults to Name.
	Column string `json:"column" yaml:"column" validate:"required,sqlident"`

	// SQLType is the declared column type, e.g. "VARCHAR(64)" or "BLOB".
	SQLType string `json:"sql_type" yaml:"sql_type" validate:"required,max=64"`

	// Type is the storage type. Derived from SQLType when zero.
	Type StorageType `json:"type" yaml:"type" validate:"gt=0"`

	// Nullable allows the field to be absent.
	Nullable bool `json:"nullable" yaml:"nullable"`

	// MaxLength is the length policy in bytes for text and binary fields.
	// Derived from SQLType when zero; zero afterwards means no declared policy.
	MaxLength int64 `json:"max_length,omitempty" yaml:"max_length,omitempty" validate:"gte=0"`
}

// TypeDescriptor describes a record type and its table.
type TypeDescriptor struct {
	// Name is the unique type name, optionally dotted ("model.Person").
	Name string `json:"name" yaml:"name" validate:"required,typename"`

	// Table is the table name. Defaults to the last segment of Name.
	Table string `json:"table" yaml:"table" validate:"required,sqlident"`

	// Fields are the mapped fields in column order.
	Fields []FieldDescriptor `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

// Field returns the descriptor of the named field.
func (d *TypeDescriptor) Field(name string) (*FieldDescriptor, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// Columns returns the mapped column names in declaration order, without the
// identity column.
func (d *TypeDescriptor) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Column
	}
	return cols
}

func (d *TypeDescriptor) clone() *TypeDescriptor {
	c := *d
	c.Fields = append([]FieldDescriptor(nil), d.Fields...)
	return &c
}

// defaultTableName returns the last dot-separated segment of a type name.
func defaultTableName(typeName string) string {
	if i := strings.LastIndexByte(typeName, '.'); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}
