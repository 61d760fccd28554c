// Package schemagen renders portable table definitions into
// database-specific DDL. Sites run the platform against whatever engine
// their PACS vendor supports, so the same schema must be expressible for
// MySQL, PostgreSQL, SQLite, Firebird, SQL Server and Oracle.
package schemagen

import (
	"fmt"
	"strings"
)

// Dialect identifies a target database engine.
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQLite     Dialect = "sqlite"
	DialectFirebird   Dialect = "firebird"
	DialectSQLServer  Dialect = "sqlserver"
	DialectOracle     Dialect = "oracle"
)

// Dialects lists every supported dialect.
func Dialects() []Dialect {
	return []Dialect{
		DialectMySQL,
		DialectPostgreSQL,
		DialectSQLite,
		DialectFirebird,
		DialectSQLServer,
		DialectOracle,
	}
}

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dialects() {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unsupported dialect %q", s)
}

// ColumnType is a portable column type that maps to an engine-specific type.
type ColumnType string

const (
	TypeVarchar50  ColumnType = "varchar_50"
	TypeVarchar100 ColumnType = "varchar_100"
	TypeVarchar255 ColumnType = "varchar_255"
	TypeText       ColumnType = "text"
	TypeInteger    ColumnType = "integer"
	TypeBigint     ColumnType = "bigint"
	TypeBoolean    ColumnType = "boolean"
	TypeTimestamp  ColumnType = "timestamp"
	TypeDate       ColumnType = "date"
	TypeDecimal    ColumnType = "decimal"
	TypeFloat      ColumnType = "float"
	TypeBlob       ColumnType = "blob"
	TypeJSON       ColumnType = "json"
)

// Column is a portable column definition.
type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
	Unique     bool
	Default    string // "CURRENT_TIMESTAMP", "true"/"false" for booleans, else a literal
	ForeignKey string // "table.column"
	Check      string
}

// Index is a portable index definition.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table is a portable table definition.
type Table struct {
	Name    string
	Columns []Column
	Indexes []Index
}

type syntaxRules struct {
	quoteOpen        string
	quoteClose       string
	currentTimestamp string
	booleanTrue      string
	booleanFalse     string
	cascade          string
}

var typeMappings = map[Dialect]map[ColumnType]string{
	DialectMySQL: {
		TypeVarchar50: "VARCHAR(50)", TypeVarchar100: "VARCHAR(100)", TypeVarchar255: "VARCHAR(255)",
		TypeText: "TEXT", TypeInteger: "INT", TypeBigint: "BIGINT", TypeBoolean: "BOOLEAN",
		TypeTimestamp: "TIMESTAMP", TypeDate: "DATE", TypeDecimal: "DECIMAL(10,2)",
		TypeFloat: "FLOAT", TypeBlob: "BLOB", TypeJSON: "JSON",
	},
	DialectPostgreSQL: {
		TypeVarchar50: "VARCHAR(50)", TypeVarchar100: "VARCHAR(100)", TypeVarchar255: "VARCHAR(255)",
		TypeText: "TEXT", TypeInteger: "INTEGER", TypeBigint: "BIGINT", TypeBoolean: "BOOLEAN",
		TypeTimestamp: "TIMESTAMP", TypeDate: "DATE", TypeDecimal: "DECIMAL(10,2)",
		TypeFloat: "REAL", TypeBlob: "BYTEA", TypeJSON: "JSONB",
	},
	DialectSQLite: {
		TypeVarchar50: "TEXT", TypeVarchar100: "TEXT", TypeVarchar255: "TEXT",
		TypeText: "TEXT", TypeInteger: "INTEGER", TypeBigint: "INTEGER", TypeBoolean: "INTEGER",
		TypeTimestamp: "TIMESTAMP", TypeDate: "TEXT", TypeDecimal: "REAL",
		TypeFloat: "REAL", TypeBlob: "BLOB", TypeJSON: "TEXT",
	},
	DialectFirebird: {
		TypeVarchar50: "VARCHAR(50)", TypeVarchar100: "VARCHAR(100)", TypeVarchar255: "VARCHAR(255)",
		TypeText: "BLOB SUB_TYPE TEXT", TypeInteger: "INTEGER", TypeBigint: "BIGINT", TypeBoolean: "BOOLEAN",
		TypeTimestamp: "TIMESTAMP", TypeDate: "DATE", TypeDecimal: "DECIMAL(10,2)",
		TypeFloat: "FLOAT", TypeBlob: "BLOB", TypeJSON: "BLOB SUB_TYPE TEXT",
	},
	DialectSQLServer: {
		TypeVarchar50: "NVARCHAR(50)", TypeVarchar100: "NVARCHAR(100)", TypeVarchar255: "NVARCHAR(255)",
		TypeText: "NVARCHAR(MAX)", TypeInteger: "INT", TypeBigint: "BIGINT", TypeBoolean: "BIT",
		TypeTimestamp: "DATETIME2", TypeDate: "DATE", TypeDecimal: "DECIMAL(10,2)",
		TypeFloat: "FLOAT", TypeBlob: "VARBINARY(MAX)", TypeJSON: "NVARCHAR(MAX)",
	},
	DialectOracle: {
		TypeVarchar50: "VARCHAR2(50)", TypeVarchar100: "VARCHAR2(100)", TypeVarchar255: "VARCHAR2(255)",
		TypeText: "CLOB", TypeInteger: "NUMBER(10)", TypeBigint: "NUMBER(19)", TypeBoolean: "NUMBER(1)",
		TypeTimestamp: "TIMESTAMP", TypeDate: "DATE", TypeDecimal: "NUMBER(10,2)",
		TypeFloat: "BINARY_FLOAT", TypeBlob: "BLOB", TypeJSON: "CLOB",
	},
}

var syntaxByDialect = map[Dialect]syntaxRules{
	DialectMySQL: {
		quoteOpen: "`", quoteClose: "`",
		currentTimestamp: "CURRENT_TIMESTAMP", booleanTrue: "TRUE", booleanFalse: "FALSE",
		cascade: "ON DELETE CASCADE ON UPDATE CASCADE",
	},
	DialectPostgreSQL: {
		quoteOpen: `"`, quoteClose: `"`,
		currentTimestamp: "CURRENT_TIMESTAMP", booleanTrue: "TRUE", booleanFalse: "FALSE",
		cascade: "ON DELETE CASCADE ON UPDATE CASCADE",
	},
	DialectSQLite: {
		quoteOpen: `"`, quoteClose: `"`,
		currentTimestamp: "CURRENT_TIMESTAMP", booleanTrue: "1", booleanFalse: "0",
		cascade: "ON DELETE CASCADE ON UPDATE CASCADE",
	},
	DialectFirebird: {
		quoteOpen: `"`, quoteClose: `"`,
		currentTimestamp: "CURRENT_TIMESTAMP", booleanTrue: "TRUE", booleanFalse: "FALSE",
		cascade: "ON DELETE CASCADE ON UPDATE CASCADE",
	},
	DialectSQLServer: {
		quoteOpen: "[", quoteClose: "]",
		currentTimestamp: "GETDATE()", booleanTrue: "1", booleanFalse: "0",
		cascade: "ON DELETE CASCADE ON UPDATE CASCADE",
	},
	DialectOracle: {
		quoteOpen: `"`, quoteClose: `"`,
		currentTimestamp: "CURRENT_TIMESTAMP", booleanTrue: "1", booleanFalse: "0",
		cascade: "ON DELETE CASCADE",
	},
}

// Generator renders DDL for a single dialect.
type Generator struct {
	dialect Dialect
	types   map[ColumnType]string
	syntax  syntaxRules
}

// NewGenerator returns a generator for the given dialect.
func NewGenerator(dialect Dialect) (*Generator, error) {
	types, ok := typeMappings[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &Generator{dialect: dialect, types: types, syntax: syntaxByDialect[dialect]}, nil
}

// Dialect returns the generator's target dialect.
func (g *Generator) Dialect() Dialect {
	return g.dialect
}

func (g *Generator) quote(identifier string) string {
	return g.syntax.quoteOpen + identifier + g.syntax.quoteClose
}

// ColumnDefinition renders a single column definition.
func (g *Generator) ColumnDefinition(col Column) (string, error) {
	sqlType, ok := g.types[col.Type]
	if !ok {
		return "", fmt.Errorf("column %s: unknown column type %q", col.Name, col.Type)
	}

	parts := []string{g.quote(col.Name), sqlType}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if col.NotNull && !col.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if col.Unique && !col.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}

	if col.Default != "" {
		switch {
		case col.Default == "CURRENT_TIMESTAMP":
			parts = append(parts, "DEFAULT "+g.syntax.currentTimestamp)
		case col.Type == TypeBoolean:
			if strings.EqualFold(col.Default, "true") {
				parts = append(parts, "DEFAULT "+g.syntax.booleanTrue)
			} else {
				parts = append(parts, "DEFAULT "+g.syntax.booleanFalse)
			}
		default:
			parts = append(parts, fmt.Sprintf("DEFAULT '%s'", col.Default))
		}
	}

	if col.Check != "" {
		parts = append(parts, fmt.Sprintf("CHECK (%s)", col.Check))
	}

	return strings.Join(parts, " "), nil
}

// TableSQL renders the CREATE TABLE statement and its index statements.
func (g *Generator) TableSQL(table Table) ([]string, error) {
	var defs []string
	var fks []Column

	for _, col := range table.Columns {
		def, err := g.ColumnDefinition(col)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table.Name, err)
		}
		defs = append(defs, "    "+def)
		if col.ForeignKey != "" {
			fks = append(fks, col)
		}
	}

	for _, col := range fks {
		refTable, refColumn, ok := strings.Cut(col.ForeignKey, ".")
		if !ok {
			return nil, fmt.Errorf("table %s: column %s: foreign key %q must be table.column", table.Name, col.Name, col.ForeignKey)
		}
		fkName := fmt.Sprintf("fk_%s_%s", table.Name, col.Name)
		defs = append(defs, fmt.Sprintf("    CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s) %s",
			g.quote(fkName), g.quote(col.Name), g.quote(refTable), g.quote(refColumn), g.syntax.cascade))
	}

	statements := []string{
		fmt.Sprintf("CREATE TABLE %s (\n%s\n);", g.quote(table.Name), strings.Join(defs, ",\n")),
	}
	for _, idx := range table.Indexes {
		statements = append(statements, g.IndexSQL(table.Name, idx))
	}
	return statements, nil
}

// IndexSQL renders a CREATE INDEX statement.
func (g *Generator) IndexSQL(tableName string, idx Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = g.quote(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);",
		unique, g.quote(idx.Name), g.quote(tableName), strings.Join(cols, ", "))
}

// SchemaSQL renders a full schema as one script.
func (g *Generator) SchemaSQL(tables []Table) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Schema for %s\n\n", g.dialect)
	for _, table := range tables {
		statements, err := g.TableSQL(table)
		if err != nil {
			return "", err
		}
		for _, stmt := range statements {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
