package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conform/internal/probecache"
)

func writeCacheTestConfig(t *testing.T) (configPath, cachePath string) {
	t.Helper()

	base := t.TempDir()
	library := filepath.Join(base, "library")
	if err := os.MkdirAll(library, 0o755); err != nil {
		t.Fatal(err)
	}
	cachePath = filepath.Join(base, "cache", "probecache.db")
	configPath = filepath.Join(base, "config.toml")

	body := fmt.Sprintf("[source]\npath = %q\n\n[logging]\ndir = %q\n\n[probe_cache]\nenabled = true\npath = %q\n",
		library, filepath.Join(base, "logs"), cachePath)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, cachePath
}

func seedCache(t *testing.T, cachePath string, paths ...string) {
	t.Helper()

	store, err := probecache.Open(cachePath)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()
	for i, path := range paths {
		if err := store.Put(context.Background(), path, int64(1000+i), int64(42+i), "SKIP", "", ""); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}
}

func TestCacheStatsCountsEntries(t *testing.T) {
	configPath, cachePath := writeCacheTestConfig(t)
	seedCache(t, cachePath, "/library/a.mp4", "/library/b.mp4")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-c", configPath, "cache", "stats"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out.String(), "Entries:  2") {
		t.Fatalf("stats must report the entry count:\n%s", out.String())
	}
	if !strings.Contains(out.String(), cachePath) {
		t.Fatalf("stats must name the database file:\n%s", out.String())
	}
}

func TestCachePruneRemovesAgedEntries(t *testing.T) {
	configPath, cachePath := writeCacheTestConfig(t)
	seedCache(t, cachePath, "/library/a.mp4")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-c", configPath, "cache", "prune", "--older-than", "0"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	if !strings.Contains(out.String(), "Pruned 1 entries") {
		t.Fatalf("prune must report the removed count:\n%s", out.String())
	}
}

func TestCacheForgetDropsPath(t *testing.T) {
	configPath, cachePath := writeCacheTestConfig(t)
	seedCache(t, cachePath, "/library/a.mp4")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"-c", configPath, "cache", "forget", "/library/a.mp4"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("cache forget: %v", err)
	}

	store, err := probecache.Open(cachePath)
	if err != nil {
		t.Fatalf("reopen cache: %v", err)
	}
	defer store.Close()
	entry, err := store.Get(context.Background(), "/library/a.mp4", 1000, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Fatalf("forgotten path must miss, got %+v", entry)
	}
}
