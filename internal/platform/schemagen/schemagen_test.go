package schemagen

import (
	"strings"
	"testing"
)

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite")
	if err != nil {
		t.Fatalf("ParseDialect: %v", err)
	}
	if d != DialectSQLite {
		t.Errorf("dialect = %q, want sqlite", d)
	}

	if _, err := ParseDialect("mongodb"); err == nil {
		t.Error("expected error for unsupported dialect")
	}
}

func TestColumnDefinitionPerDialect(t *testing.T) {
	col := Column{Name: "is_active", Type: TypeBoolean, Default: "true"}

	tests := []struct {
		dialect Dialect
		want    string
	}{
		{DialectMySQL, "`is_active` BOOLEAN DEFAULT TRUE"},
		{DialectPostgreSQL, `"is_active" BOOLEAN DEFAULT TRUE`},
		{DialectSQLite, `"is_active" INTEGER DEFAULT 1`},
		{DialectSQLServer, "[is_active] BIT DEFAULT 1"},
		{DialectOracle, `"is_active" NUMBER(1) DEFAULT 1`},
	}

	for _, tt := range tests {
		g, err := NewGenerator(tt.dialect)
		if err != nil {
			t.Fatalf("%s: %v", tt.dialect, err)
		}
		got, err := g.ColumnDefinition(col)
		if err != nil {
			t.Fatalf("%s: %v", tt.dialect, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestColumnDefinitionTimestampDefault(t *testing.T) {
	col := Column{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"}

	g, _ := NewGenerator(DialectSQLServer)
	got, err := g.ColumnDefinition(col)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "DEFAULT GETDATE()") {
		t.Errorf("expected GETDATE() default, got %q", got)
	}

	g, _ = NewGenerator(DialectMySQL)
	got, _ = g.ColumnDefinition(col)
	if !strings.Contains(got, "DEFAULT CURRENT_TIMESTAMP") {
		t.Errorf("expected CURRENT_TIMESTAMP default, got %q", got)
	}
}

func TestTableSQLForeignKey(t *testing.T) {
	table := Table{
		Name: "shared_folders",
		Columns: []Column{
			{Name: "id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
			{Name: "device_id", Type: TypeVarchar50, NotNull: true, ForeignKey: "nas_devices.id"},
		},
	}

	g, _ := NewGenerator(DialectPostgreSQL)
	statements, err := g.TableSQL(table)
	if err != nil {
		t.Fatal(err)
	}
	if len(statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(statements))
	}
	sql := statements[0]
	if !strings.Contains(sql, `CONSTRAINT "fk_shared_folders_device_id"`) {
		t.Errorf("missing foreign key constraint:\n%s", sql)
	}
	if !strings.Contains(sql, `REFERENCES "nas_devices"("id")`) {
		t.Errorf("missing foreign key reference:\n%s", sql)
	}
}

func TestTableSQLBadForeignKey(t *testing.T) {
	table := Table{
		Name: "t",
		Columns: []Column{
			{Name: "x", Type: TypeVarchar50, ForeignKey: "nodot"},
		},
	}
	g, _ := NewGenerator(DialectSQLite)
	if _, err := g.TableSQL(table); err == nil {
		t.Error("expected error for malformed foreign key")
	}
}

func TestIndexSQL(t *testing.T) {
	g, _ := NewGenerator(DialectMySQL)
	got := g.IndexSQL("referring_doctors", Index{
		Name:    "idx_referring_doctors_hpcsa",
		Columns: []string{"hpcsa_number"},
		Unique:  true,
	})
	want := "CREATE UNIQUE INDEX `idx_referring_doctors_hpcsa` ON `referring_doctors` (`hpcsa_number`);"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSchemaSQLAllDialects(t *testing.T) {
	tables := ManagementTables()
	for _, d := range Dialects() {
		g, err := NewGenerator(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		sql, err := g.SchemaSQL(tables)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		for _, table := range tables {
			if !strings.Contains(sql, table.Name) {
				t.Errorf("%s: schema missing table %s", d, table.Name)
			}
		}
	}
}
