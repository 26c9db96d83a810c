package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"kayblog/internal/config"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "settings.yaml")
	_ = os.WriteFile(f, []byte("SITE_URL: https://example.org/\nCONTENT_DIR: posts\n"), 0o644)
	c, err := config.Load(f)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.SiteURL != "https://example.org" {
		t.Fatalf("site url not trimmed: %q", c.SiteURL)
	}
	if c.Cache.Type != "file" || c.Cache.Dir != "posts/.cache" {
		t.Fatalf("cache defaults not applied: %+v", c.Cache)
	}
	if c.SongsFile != "posts/songs.csv" || c.FriendsFile != "posts/friends.json" {
		t.Fatalf("data file defaults wrong: %q %q", c.SongsFile, c.FriendsFile)
	}
	if c.Concurrency.Render != 8 || c.Server.Addr != ":8080" {
		t.Fatalf("concurrency/server defaults missing: %+v %+v", c.Concurrency, c.Server)
	}
	if c.LogFormat == "" || c.LogLocale == "" || c.LogColor == "" {
		t.Fatalf("log defaults missing")
	}
	if c.SiteTitle == "" || c.SiteAuthor == "" {
		t.Fatalf("site title/author defaults missing: %q %q", c.SiteTitle, c.SiteAuthor)
	}
}

func TestConfig_Rejects(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "settings.yaml")

	_ = os.WriteFile(f, []byte("CACHE:\n  type: etcd\n"), 0o644)
	if _, err := config.Load(f); err == nil {
		t.Fatalf("expect error for unknown cache type")
	}
	_ = os.WriteFile(f, []byte("CONCURRENCY:\n  render: -1\n"), 0o644)
	if _, err := config.Load(f); err == nil {
		t.Fatalf("expect error for negative concurrency")
	}
	_ = os.WriteFile(f, []byte("CACHE:\n  type: minio\n"), 0o644)
	if _, err := config.Load(f); err == nil {
		t.Fatalf("expect error for minio without endpoint")
	}
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ContentDir != "data" {
		t.Fatalf("content dir = %q", c.ContentDir)
	}
}

func TestConfig_EnvOverlay(t *testing.T) {
	t.Setenv("STEAM_API_KEY", "k-123")
	t.Setenv("STEAM_ID", "42")
	t.Setenv("KAYBLOG_CACHE", "sqlite")
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Steam.APIKey != "k-123" || c.Steam.SteamID != "42" {
		t.Fatalf("steam env not applied: %+v", c.Steam)
	}
	if c.Cache.Type != "sqlite" || c.Cache.DSN == "" {
		t.Fatalf("cache env not applied: %+v", c.Cache)
	}
}
