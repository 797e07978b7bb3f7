package stores

import (
	"fmt"
	"strings"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/schema"
)

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTableSQL returns the CREATE TABLE statement for a record type.
func CreateTableSQL(desc *schema.TypeDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", quoteIdent(desc.Table))
	fmt.Fprintf(&b, "\t%s INTEGER PRIMARY KEY AUTOINCREMENT", quoteIdent(schema.IdentityColumn))
	for _, f := range desc.Fields {
		fmt.Fprintf(&b, ",\n\t%s %s", quoteIdent(f.Column), f.SQLType)
		if !f.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString("\n)")
	return b.String()
}

func insertSQL(desc *schema.TypeDescriptor) string {
	cols := make([]string, len(desc.Fields))
	marks := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		cols[i] = quoteIdent(f.Column)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(desc.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func selectSQL(desc *schema.TypeDescriptor) string {
	cols := make([]string, 0, len(desc.Fields)+1)
	cols = append(cols, quoteIdent(schema.IdentityColumn))
	for _, f := range desc.Fields {
		cols = append(cols, quoteIdent(f.Column))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quoteIdent(desc.Table), quoteIdent(schema.IdentityColumn))
}

func deleteSQL(desc *schema.TypeDescriptor) string {
	return "DELETE FROM " + quoteIdent(desc.Table)
}

func countSQL(desc *schema.TypeDescriptor) string {
	return "SELECT COUNT(*) FROM " + quoteIdent(desc.Table)
}

// tableColumn is one row of PRAGMA table_info.
type tableColumn struct {
	Name    string
	Type    string
	NotNull bool
	PK      bool
}

// expectedColumns returns the columns CreateTableSQL produces for desc.
func expectedColumns(desc *schema.TypeDescriptor) []tableColumn {
	cols := make([]tableColumn, 0, len(desc.Fields)+1)
	cols = append(cols, tableColumn{Name: schema.IdentityColumn, Type: "INTEGER", PK: true})
	for _, f := range desc.Fields {
		cols = append(cols, tableColumn{Name: f.Column, Type: f.SQLType, NotNull: !f.Nullable})
	}
	return cols
}

// compareColumns describes the first difference between an existing table and
// the expected layout, or returns "" when they agree. Column order is ignored.
func compareColumns(existing, expected []tableColumn) string {
	byName := make(map[string]tableColumn, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c
	}

	for _, want := range expected {
		got, ok := byName[strings.ToLower(want.Name)]
		if !ok {
			return fmt.Sprintf("column %s is missing", want.Name)
		}
		delete(byName, strings.ToLower(want.Name))

		if normalizeType(got.Type) != normalizeType(want.Type) {
			return fmt.Sprintf("column %s has type %q, expected %q", want.Name, got.Type, want.Type)
		}
		if want.PK {
			if !got.PK {
				return fmt.Sprintf("column %s is not the primary key", want.Name)
			}
			continue
		}
		if got.NotNull != want.NotNull {
			return fmt.Sprintf("column %s has NOT NULL=%t, expected %t", want.Name, got.NotNull, want.NotNull)
		}
	}

	for name := range byName {
		return fmt.Sprintf("unexpected column %s", name)
	}
	return ""
}

// normalizeType upper-cases a declared type and drops whitespace so
// "varchar (64)" and "VARCHAR(64)" compare equal.
func normalizeType(t string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' {
			return -1
		}
		return r
	}, strings.ToUpper(t))
}
