package db

import (
	"path/filepath"
	"strings"
	"testing"

	"voxpro/config"
)

func TestMySQLDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "site",
		DBPassword: "secret",
		DBHost:     "db.local",
		DBPort:     "3307",
		DBName:     "voxpro",
	}

	dsn := MySQLDSN(cfg)
	for _, part := range []string{"site:secret@tcp(db.local:3307)/voxpro", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("dsn %q missing %q", dsn, part)
		}
	}
}

func TestConnectSQLiteAndMigrate(t *testing.T) {
	cfg := &config.Config{
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "nested", "voxpro.db"),
	}

	gdb, err := ConnectGormDB(cfg)
	if err != nil {
		t.Fatalf("ConnectGormDB: %v", err)
	}
	defer CloseGormDB()

	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"assignments", "media_files", "events", "users"} {
		if !gdb.Migrator().HasTable(table) {
			t.Errorf("table %s missing after migrate", table)
		}
	}
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	if _, err := ConnectGormDB(&config.Config{DBDriver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
