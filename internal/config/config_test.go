package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Archiver.ArchiveStride != 1000 {
		t.Fatalf("ArchiveStride = %d, want 1000", cfg.Archiver.ArchiveStride)
	}
	if cfg.Archiver.StallSeconds != 30 {
		t.Fatalf("StallSeconds = %d, want 30", cfg.Archiver.StallSeconds)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
node:
  address: "http://localhost:8080"
  token: "secret"
archiver:
  archive_stride: 500
  stall_seconds: 10
postgres:
  host: db.internal
  port: 5433
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.Address != "http://localhost:8080" {
		t.Fatalf("Node.Address = %q", cfg.Node.Address)
	}
	if cfg.Archiver.ArchiveStride != 500 {
		t.Fatalf("ArchiveStride = %d, want 500", cfg.Archiver.ArchiveStride)
	}
	if cfg.Postgres.Port != 5433 {
		t.Fatalf("Postgres.Port = %d, want 5433", cfg.Postgres.Port)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("node:\n  address: \"http://file\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ALGOD_ADDRESS", "http://env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.Address != "http://env" {
		t.Fatalf("Node.Address = %q, want env override", cfg.Node.Address)
	}
}

func TestLoadRejectsZeroStride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("archiver:\n  archive_stride: 0\n  stall_seconds: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted archive_stride: 0")
	}
}

func TestParseShard(t *testing.T) {
	cases := []struct {
		spec    string
		a, b    uint64
		wantErr bool
	}{
		{"", 0, 1, false},
		{"1/4", 1, 4, false},
		{"4/4", 4, 4, false},
		{"0/4", 0, 0, true},
		{"5/4", 0, 0, true},
		{"x/4", 0, 0, true},
		{"1", 0, 0, true},
	}
	for _, c := range cases {
		a, b, err := ParseShard(c.spec)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseShard(%q): expected error", c.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseShard(%q): unexpected error: %v", c.spec, err)
			continue
		}
		if a != c.a || b != c.b {
			t.Errorf("ParseShard(%q) = (%d, %d), want (%d, %d)", c.spec, a, b, c.a, c.b)
		}
	}
}
