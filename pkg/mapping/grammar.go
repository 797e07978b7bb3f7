package mapping

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// mappingFile is the parse tree of a mapping declaration file.
type mappingFile struct {
	Classes []*classDecl `@@*`
}

// classDecl is a CLASS statement followed by its members.
type classDecl struct {
	Pos     lexer.Position
	Name    string        `"CLASS" @Ident`
	Table   string        `( "TABLE" @Ident )?`
	Members []*memberDecl `@@*`
}

// memberDecl is either a FIELD line or an SQLMAP override.
type memberDecl struct {
	Field  *fieldDecl  `  @@`
	SQLMap *sqlMapDecl `| @@`
}

// fieldDecl declares one field:
//
//	FIELD <name> [COLUMN <column>] TYPE <sqlType>[(<n>)] [NULLABLE]
type fieldDecl struct {
	Pos      lexer.Position
	Name     string   `"FIELD" @Ident`
	Column   string   `( "COLUMN" @Ident )?`
	Type     *sqlType `"TYPE" @@`
	Nullable bool     `@"NULLABLE"?`
}

// sqlMapDecl overrides an already declared field:
//
//	SQLMAP FOR <field> { NULLABLE | COLUMN_NAME <column> | SQLTYPE <sqlType> }
type sqlMapDecl struct {
	Pos     lexer.Position
	Field   string          `"SQLMAP" "FOR" @Ident`
	Clauses []*sqlMapClause `@@+`
}

type sqlMapClause struct {
	Nullable bool     `  @"NULLABLE"`
	Column   string   `| "COLUMN_NAME" @Ident`
	Type     *sqlType `| "SQLTYPE" @@`
}

// sqlType is either a bare type with an optional length, or a quoted type.
type sqlType struct {
	Quoted string `  @String`
	Name   string `| @Ident`
	Length *int64 `  ( "(" @Int ")" )?`
}

// mappingLexer tokenizes mapping files. Newlines are insignificant; one field
// per line is a convention, not a rule.
var mappingLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(#|//)[^\r\n]*`},
	{Name: "String", Pattern: `'[^'\r\n]*'|"[^"\r\n]*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_$.]*`},
	{Name: "Punct", Pattern: `[(),;]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var mappingParser = participle.MustBuild[mappingFile](
	participle.Lexer(mappingLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Ident"),
)
