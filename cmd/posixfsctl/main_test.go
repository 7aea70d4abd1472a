package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigurationDefaultsValidate(t *testing.T) {
	cfg, err := loadConfiguration("")
	if err != nil {
		t.Fatalf("loadConfiguration(\"\"): %v", err)
	}
	if cfg.Tier.MaxHotPages != 1024 {
		t.Fatalf("expected default MaxHotPages=1024, got %d", cfg.Tier.MaxHotPages)
	}
	if cfg.CAS.PrefixLen != 2 {
		t.Fatalf("expected default CAS.PrefixLen=2, got %d", cfg.CAS.PrefixLen)
	}
}

func TestLoadConfigurationFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posixfs.yaml")
	yaml := "tier:\n  enabled: true\n  max_hot_pages: 7\n  access_threshold: 2\ncas:\n  base: objects\n  prefix_len: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	cfg, err := loadConfiguration(path)
	if err != nil {
		t.Fatalf("loadConfiguration(%q): %v", path, err)
	}
	if cfg.Tier.MaxHotPages != 7 {
		t.Fatalf("expected MaxHotPages=7 from file, got %d", cfg.Tier.MaxHotPages)
	}
	if cfg.CAS.PrefixLen != 3 {
		t.Fatalf("expected CAS.PrefixLen=3 from file, got %d", cfg.CAS.PrefixLen)
	}
}

func TestLoadConfigurationRejectsInvalidPrefixLen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posixfs.yaml")
	yaml := "cas:\n  base: objects\n  prefix_len: 99\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	if _, err := loadConfiguration(path); err == nil {
		t.Fatal("expected an out-of-range cas.prefix_len to fail Validate")
	}
}

func TestImportTreeTieredUsesConfiguration(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seeding source tree: %v", err)
	}

	cfg, err := loadConfiguration("")
	if err != nil {
		t.Fatalf("loadConfiguration: %v", err)
	}
	cfg.CAS.PrefixLen = 4

	ctx := context.Background()
	f, err := importTree(ctx, src, true, cfg, nil)
	if err != nil {
		t.Fatalf("importTree(tiered): %v", err)
	}
	data, err := f.ReadFile(ctx, "a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}
