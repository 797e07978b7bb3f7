// Package mapping parses textual mapping declarations into schema
// descriptors. A mapping file lists one CLASS per record type and one FIELD
// line per mapped field; SQLMAP lines adjust a field after the fact, most
// commonly to mark a binary field nullable:
//
//	CLASS model.Person TABLE Person
//	  FIELD name TYPE VARCHAR(64)
//	  FIELD picture TYPE BLOB
//	  SQLMAP FOR picture NULLABLE
//
// Keywords are case-insensitive. Lines starting with # or // are comments.
package mapping

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
)

// Parse parses mapping source. name is used in error positions.
func Parse(name, src string) ([]schema.TypeDescriptor, error) {
	file, err := mappingParser.ParseString(name, src)
	if err != nil {
		return nil, syntaxError(err)
	}
	return file.descriptors()
}

// ParseFile reads and parses a mapping file.
func ParseFile(path string) ([]schema.TypeDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ormerr.Wrap(ormerr.KindStorageIO, "failed to read mapping file", err)
	}
	return Parse(path, string(data))
}

// Load parses the mapping file at path and registers every declared type.
func Load(reg *schema.Registry, path string) ([]schema.TypeDescriptor, error) {
	descs, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return descs, registerAll(reg, descs)
}

// LoadString parses mapping source and registers every declared type.
func LoadString(reg *schema.Registry, name, src string) ([]schema.TypeDescriptor, error) {
	descs, err := Parse(name, src)
	if err != nil {
		return nil, err
	}
	return descs, registerAll(reg, descs)
}

func registerAll(reg *schema.Registry, descs []schema.TypeDescriptor) error {
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *mappingFile) descriptors() ([]schema.TypeDescriptor, error) {
	out := make([]schema.TypeDescriptor, 0, len(f.Classes))
	for _, c := range f.Classes {
		d := schema.TypeDescriptor{Name: c.Name, Table: c.Table}
		for _, m := range c.Members {
			switch {
			case m.Field != nil:
				d.Fields = append(d.Fields, m.Field.descriptor())
			case m.SQLMap != nil:
				if err := m.SQLMap.apply(&d); err != nil {
					return nil, err
				}
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fieldDecl) descriptor() schema.FieldDescriptor {
	return schema.FieldDescriptor{
		Name:     f.Name,
		Column:   f.Column,
		SQLType:  f.Type.String(),
		Nullable: f.Nullable,
	}
}

func (s *sqlMapDecl) apply(d *schema.TypeDescriptor) error {
	field, ok := d.Field(s.Field)
	if !ok {
		return ormerr.Newf(ormerr.KindInvalidMapping,
			"%s: SQLMAP FOR %s names a field that is not declared above it", s.Pos, s.Field).
			WithType(d.Name).WithField(s.Field)
	}
	for _, c := range s.Clauses {
		switch {
		case c.Nullable:
			field.Nullable = true
		case c.Column != "":
			field.Column = c.Column
		case c.Type != nil:
			field.SQLType = c.Type.String()
			field.Type = schema.StorageUnknown
			field.MaxLength = 0
		}
	}
	return nil
}

// String renders the declared type as it will appear in DDL.
func (t *sqlType) String() string {
	if t == nil {
		return ""
	}
	if t.Quoted != "" {
		return strings.Trim(t.Quoted, `'"`)
	}
	name := strings.ToUpper(t.Name)
	if t.Length != nil {
		return fmt.Sprintf("%s(%d)", name, *t.Length)
	}
	return name
}

func syntaxError(err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return ormerr.Newf(ormerr.KindInvalidMapping, "%s: %s", perr.Position(), perr.Message())
	}
	return ormerr.Wrap(ormerr.KindInvalidMapping, "failed to parse mapping", err)
}
