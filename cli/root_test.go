package cli

import (
	"path/filepath"
	"testing"
)

func TestConfigResolve_DefaultsCacheDirUnderStateDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ZR_CACHE_DIR", "")
	t.Setenv("ZR_PARALLEL", "")

	cfg := &Config{}
	if err := cfg.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := filepath.Join(cfg.StateDir, "cache")
	if cfg.CacheDir != want {
		t.Fatalf("CacheDir = %q, want %q", cfg.CacheDir, want)
	}
	if cfg.Parallel != 1 {
		t.Fatalf("expected default Parallel of 1, got %d", cfg.Parallel)
	}
}

func TestConfigResolve_EnvOverridesCacheDirAndParallel(t *testing.T) {
	home := t.TempDir()
	override := filepath.Join(home, "custom-cache")
	t.Setenv("HOME", home)
	t.Setenv("ZR_CACHE_DIR", override)
	t.Setenv("ZR_PARALLEL", "8")

	cfg := &Config{}
	if err := cfg.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.CacheDir != override {
		t.Fatalf("CacheDir = %q, want %q", cfg.CacheDir, override)
	}
	if cfg.Parallel != 8 {
		t.Fatalf("Parallel = %d, want 8", cfg.Parallel)
	}
}

func TestConfigResolve_FlagTakesPrecedenceOverEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ZR_CACHE_DIR", filepath.Join(home, "env-cache"))
	t.Setenv("ZR_PARALLEL", "8")

	flagCache := filepath.Join(home, "flag-cache")
	cfg := &Config{CacheDir: flagCache, Parallel: 2}
	if err := cfg.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.CacheDir != flagCache {
		t.Fatalf("CacheDir = %q, want flag value %q", cfg.CacheDir, flagCache)
	}
	if cfg.Parallel != 2 {
		t.Fatalf("Parallel = %d, want flag value 2", cfg.Parallel)
	}
}
