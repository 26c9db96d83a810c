package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"kayblog/internal/cache"
	"kayblog/internal/config"
	"kayblog/internal/model"
)

// setup 写出最小站点：两篇不需要富化的文章与一份歌单。
func setup(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"a.md":      "---\ndate: \"2024-01-02 10:00\"\n---\n第一篇\n",
		"b.md":      "---\ndate: \"2024-03-04 08:30\"\n---\n## 第二篇\n\n```go\nfmt.Println(1)\n```\n",
		"songs.csv": "歌曲名,艺术家,专辑名,id,歌曲来源名称,封面,时长\nAlpha,A,X,wy_1,wy,,3:00\nBeta,B,Y,kg_2,kg,,4:00\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(data, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfgPath := filepath.Join(root, "settings.yaml")
	yml := "SITE_URL: https://example.com/\n" +
		"CONTENT_DIR: " + data + "\n" +
		"OUTPUT_DIR: " + filepath.Join(root, "out") + "\n" +
		"LOG_LEVEL: error\n" +
		"CACHE:\n  dir: " + filepath.Join(root, "cache") + "\n"
	if err := os.WriteFile(cfgPath, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCommand_WritesArtifacts(t *testing.T) {
	root, cfgPath := setup(t)
	out, err := run(t, "--config", cfgPath, "build")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, "文章") {
		t.Fatalf("summary missing: %s", out)
	}
	for _, name := range []string{"site.json", "sitemap.xml", "feed.xml", "theme.css"} {
		if _, err := os.Stat(filepath.Join(root, "out", name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(root, "out", "site.json"))
	if err != nil {
		t.Fatal(err)
	}
	var site model.Site
	if err := json.Unmarshal(b, &site); err != nil {
		t.Fatalf("decode site.json: %v", err)
	}
	if site.Stats.PostsTotal != 2 || site.Stats.SongsTotal != 2 {
		t.Fatalf("stats: %+v", site.Stats)
	}
	if site.Posts[0].ID != "b" || site.Posts[1].ID != "a" {
		t.Fatalf("order: %s, %s", site.Posts[0].ID, site.Posts[1].ID)
	}
}

func TestRunBuild_Locked(t *testing.T) {
	root, cfgPath := setup(t)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(root, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(filepath.Join(outDir, lockFile))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	if _, err := runBuild(context.Background(), cfg, nil); !errors.Is(err, ErrBuildLocked) {
		t.Fatalf("expected ErrBuildLocked, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "site.json")); !os.IsNotExist(err) {
		t.Fatalf("locked build must not write output")
	}
}

func TestCacheCommands(t *testing.T) {
	root, cfgPath := setup(t)
	store := cache.NewFileStore(filepath.Join(root, "cache"), cache.NamespaceVideo)
	if err := cache.PutJSON(context.Background(), store, "BV1abc", map[string]string{"title": "视频"}); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgPath, "cache", "ls", "video")
	if err != nil {
		t.Fatalf("cache ls: %v", err)
	}
	if !strings.Contains(out, "BV1abc") {
		t.Fatalf("ls output: %s", out)
	}
	out, err = run(t, "--config", cfgPath, "cache", "get", "video", "BV1abc")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if !strings.Contains(out, `"title": "视频"`) {
		t.Fatalf("get output: %s", out)
	}
	if _, err := run(t, "--config", cfgPath, "cache", "get", "video", "missing"); err == nil {
		t.Fatalf("expected miss error")
	}
	if _, err := run(t, "--config", cfgPath, "cache", "ls", "etc"); err == nil {
		t.Fatalf("expected namespace error")
	}
}

func TestSongsCommand(t *testing.T) {
	_, cfgPath := setup(t)
	out, err := run(t, "--config", cfgPath, "songs")
	if err != nil {
		t.Fatalf("songs: %v", err)
	}
	if !strings.Contains(out, "https://api.viki.moe/ncm/songs/1/play") || !strings.Contains(out, "不支持") {
		t.Fatalf("songs output: %s", out)
	}
}

func TestNewApp_EnrichmentSingleAttempt(t *testing.T) {
	root, cfgPath := setup(t)
	post := "---\ndate: \"2024-05-06 09:00\"\nbvid: BV1x\n---\n视频文章\n"
	if err := os.WriteFile(filepath.Join(root, "data", "c.md"), []byte(post), 0o644); err != nil {
		t.Fatal(err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Upstream.BilibiliAPI = srv.URL
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	posts := a.assembler.Assemble(context.Background())
	if len(posts) != 3 {
		t.Fatalf("posts = %d", len(posts))
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("upstream hits = %d, want 1", got)
	}
}
