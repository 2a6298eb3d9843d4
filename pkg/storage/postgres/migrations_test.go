package postgres

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 1")},
		"migrations/002_second.sql": {Data: []byte("SELECT 1")},
		"migrations/001_first.sql":  {Data: []byte("SELECT 1")},
		"migrations/README":         {Data: []byte("notes")},
	}

	tests := []struct {
		name    string
		applied map[int]bool
		want    []int
	}{
		{"fresh database", nil, []int{1, 2, 10}},
		{"partially applied", map[int]bool{1: true}, []int{2, 10}},
		{"up to date", map[int]bool{1: true, 2: true, 10: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pendingMigrations(fsys, tt.applied)
			if err != nil {
				t.Fatalf("pendingMigrations: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d migrations, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.version != tt.want[i] {
					t.Errorf("migration %d version = %d, want %d", i, m.version, tt.want[i])
				}
			}
		})
	}
}

func TestPendingMigrationsBadPrefix(t *testing.T) {
	fsys := fstest.MapFS{"migrations/abc_broken.sql": {Data: []byte("SELECT 1")}}
	if _, err := pendingMigrations(fsys, nil); err == nil {
		t.Error("expected error for non-numeric prefix")
	}
}

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	got, err := pendingMigrations(migrationFiles, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].version != 1 || got[1].version != 2 {
		t.Errorf("embedded migrations = %+v", got)
	}
}
