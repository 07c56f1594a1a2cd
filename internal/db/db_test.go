package db

import (
	"path/filepath"
	"testing"

	"radiochat/internal/models"
)

func TestConnect_SQLite(t *testing.T) {
	gdb, err := Connect("sqlite:" + filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, m := range []any{&models.User{}, &models.Room{}, &models.RoomMember{}, &models.RoomInvite{}, &models.Message{}} {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("Migrate() missing table for %T", m)
		}
	}
}

func TestIsSQLite(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"sqlite:/tmp/x.db", true},
		{"sqlite:file::memory:", true},
		{"host=localhost user=postgres dbname=chat", false},
		{"postgres://u:p@localhost/chat", false},
	}
	for _, tt := range tests {
		if got := isSQLite(tt.dsn); got != tt.want {
			t.Errorf("isSQLite(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}
