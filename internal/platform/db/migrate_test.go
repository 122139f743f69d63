package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"003_dispensing.sql": {Data: []byte("CREATE TABLE orders (id UUID PRIMARY KEY);")},
		"001_catalog.sql":    {Data: []byte("CREATE TABLE institute (id UUID PRIMARY KEY);")},
		"002_inventory.sql":  {Data: []byte("CREATE TABLE inventory_item (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, want := range []string{"001_catalog.sql", "002_inventory.sql", "003_dispensing.sql"} {
		if migrations[i].Name != want || migrations[i].Version != i+1 {
			t.Errorf("migration[%d] = %d %s, want %d %s", i, migrations[i].Version, migrations[i].Name, i+1, want)
		}
		if len(migrations[i].Checksum) != 64 {
			t.Errorf("migration[%d]: expected sha256 hex checksum, got %q", i, migrations[i].Checksum)
		}
	}
	if migrations[0].SQL != "CREATE TABLE institute (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_DirFS(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"010_tables.sql", "002_second.sql", "001_first.sql", "005_middle.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	migrations, err := NewMigrator(nil, os.DirFS(dir)).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	var got []int
	for _, m := range migrations {
		got = append(got, m.Version)
	}
	want := []int{1, 2, 5, 10}
	if len(got) != len(want) {
		t.Fatalf("versions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("versions = %v, want %v", got, want)
		}
	}
}

func TestLoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not sql")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"000_zero.sql":       {Data: []byte("-- version must be positive")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("unexpected migrations %+v", migrations)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 2;")},
	}
	_, err := NewMigrator(nil, files).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version 1") {
		t.Errorf("expected duplicate version error, got %v", err)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	if _, err := NewMigrator(nil, os.DirFS("/nonexistent/medledger/migrations")).LoadMigrations(); err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestStatusOf(t *testing.T) {
	files := fstest.MapFS{
		"001_catalog.sql":   {Data: []byte("SELECT 1;")},
		"002_inventory.sql": {Data: []byte("SELECT 2;")},
		"003_orders.sql":    {Data: []byte("SELECT 3;")},
	}
	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	applied := map[int]appliedMigration{
		1: {checksum: migrations[0].Checksum, appliedAt: at},
		2: {checksum: "edited-since", appliedAt: at},
	}

	statuses := statusOf(migrations, applied)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].Modified || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("001: unexpected %+v", statuses[0])
	}
	if !statuses[1].Applied || !statuses[1].Modified {
		t.Errorf("002: expected applied and modified, got %+v", statuses[1])
	}
	if statuses[2].Applied || statuses[2].AppliedAt != nil {
		t.Errorf("003: expected pending, got %+v", statuses[2])
	}
}

func TestSchemaLockKey(t *testing.T) {
	if schemaLockKey("dept_pharmacy") != schemaLockKey("dept_pharmacy") {
		t.Error("expected a stable lock key")
	}
	if schemaLockKey("dept_pharmacy") == schemaLockKey("dept_stores") {
		t.Error("expected distinct lock keys per schema")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil, EmbeddedMigrations()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("expected embedded migrations starting at 1, got %+v", migrations)
	}

	var all strings.Builder
	for _, m := range migrations {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{"inventory_item", "ledger_entry", "prescription", "orders", "medicine", "institute"} {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("expected embedded migrations to create %s", table)
		}
	}
}
