package database

import (
	"context"
	"testing"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantIsUp    bool
		wantOK      bool
	}{
		{"20260305_120000_initial_schema.up.sql", "20260305_120000", "initial_schema", true, true},
		{"20260305_120000_initial_schema.down.sql", "20260305_120000", "initial_schema", false, true},
		{"20260401_090000_add_device_icons.up.sql", "20260401_090000", "add_device_icons", true, true},
		{"readme.md", "", "", false, false},
		{"notes.sql", "", "", false, false},
		{"20260305_bad.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if isUp != tt.wantIsUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
			}
		})
	}
}

func TestMigrateWithoutEmbeddedFiles(t *testing.T) {
	db := openTestDB(t)

	// With no embedded FS registered in this test binary the call is a no-op
	// beyond creating the bookkeeping table.
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if count != 0 {
		t.Errorf("applied migrations = %d, want 0", count)
	}
}
