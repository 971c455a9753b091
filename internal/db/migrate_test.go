package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	files := fstest.MapFS{
		"002_indexes.sql": {Data: []byte("CREATE INDEX a ON t (x);")},
		"001_core.sql":    {Data: []byte("CREATE TABLE t (x INT);")},
		"README.md":       {Data: []byte("notes")},
		"draft.sql":       {Data: []byte("SELECT 1;")},
		"abc_bad.sql":     {Data: []byte("SELECT 1;")},
	}

	migrations, err := LoadMigrations(files)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len = %d, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "001_core.sql" {
		t.Errorf("Name = %q, want 001_core.sql", migrations[0].Name)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := LoadMigrations(files); err == nil {
		t.Fatal("expected error for duplicate versions")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	m := NewMigrator(nil)

	migrations, err := LoadMigrations(m.files)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}

	schema := migrations[0].SQL
	for _, want := range []string{
		"uq_doctor_practice_slot",
		"uq_appointment_number",
		"NULLS NOT DISTINCT",
		"ON DELETE CASCADE",
		"BEFORE UPDATE ON appointment_status_history",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
