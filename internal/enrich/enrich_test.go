package enrich_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kayblog/internal/cache"
	"kayblog/internal/enrich"
	"kayblog/internal/fetch"
	"kayblog/internal/model"
	"kayblog/internal/palette"
)

func newClient(t *testing.T) *fetch.Client {
	t.Helper()
	cl, err := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return cl
}

func TestVideos_CacheHitSkipsNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	store := cache.NewFileStore(t.TempDir(), cache.NamespaceVideo)
	_ = cache.PutJSON(ctx, store, "BV1cached", model.VideoMeta{ExternalID: "BV1cached", Title: "cached"})

	v := enrich.NewVideos(newClient(t), store, srv.URL)
	meta, err := v.Video(ctx, "BV1cached")
	if err != nil || meta.Title != "cached" {
		t.Fatalf("video: %+v %v", meta, err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("cache hit must not call upstream, got %d calls", hits)
	}
}

func TestVideos_MissFetchesAndPersists(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Query().Get("bvid") != "BV1new" {
			t.Errorf("bvid not forwarded: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"bvid":"BV1new","title":"hello","desc":"d",
			"pic":"http://i0.hdslb.com/x.jpg","owner":{"name":"kay","mid":42},
			"stat":{"view":12345,"like":6,"coin":7,"favorite":8},"duration":125}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := cache.NewFileStore(t.TempDir(), cache.NamespaceVideo)
	v := enrich.NewVideos(newClient(t), store, srv.URL)
	meta, err := v.Video(ctx, "BV1new")
	if err != nil {
		t.Fatalf("video: %v", err)
	}
	if meta.ThumbnailURL != "https://i0.hdslb.com/x.jpg" {
		t.Fatalf("pic not upgraded: %s", meta.ThumbnailURL)
	}
	if meta.Owner.ID != 42 || meta.Stats.Views != 12345 || meta.DurationSeconds != 125 {
		t.Fatalf("fields: %+v", meta)
	}
	if ok, _ := store.Exists(ctx, "BV1new"); !ok {
		t.Fatalf("result should be cached")
	}
	if _, err := v.Video(ctx, "BV1new"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", hits)
	}
}

func TestVideos_UpstreamErrorNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":-404,"message":"啥都木有"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	store := cache.NewFileStore(t.TempDir(), cache.NamespaceVideo)
	v := enrich.NewVideos(newClient(t), store, srv.URL)
	if _, err := v.Video(ctx, "BV1gone"); !errors.Is(err, enrich.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if ok, _ := store.Exists(ctx, "BV1gone"); ok {
		t.Fatalf("failed lookup must not be cached")
	}
}

func TestMusic_SearchLyricsPalette(t *testing.T) {
	var searches int32
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		q := r.URL.Query()
		if q.Get("source") != "netease" || q.Get("type") != "search" || q.Get("keyword") != "晴天" || q.Get("limit") != "1" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"results":[{"id":186016,"name":"晴天","artist":["周杰伦"],
			"album":"叶惠美","pic":"http://p1.music.126.net/c.jpg","url":"http://m7.music.126.net/a.mp3","lrc":"` + base + `/lrc"}]}}`))
	})
	mux.HandleFunc("/lrc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[00:01.00]故事的小黄花"))
	})
	// 歌词地址会被升级为 https，需要 TLS 服务端
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()
	base = srv.URL
	cl, err := fetch.New(fetch.Options{
		Timeout:   5 * time.Second,
		TLSConfig: srv.Client().Transport.(*http.Transport).TLSClientConfig,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	ctx := context.Background()
	store := cache.NewFileStore(t.TempDir(), cache.NamespaceMusic)
	var paletteCalls int
	m := enrich.NewMusic(cl, store, srv.URL+"/api/").WithPalette(func(ctx context.Context, cover string) palette.Palette {
		paletteCalls++
		if cover != "http://p1.music.126.net/c.jpg" {
			t.Errorf("cover: %s", cover)
		}
		return palette.Default()
	})

	meta, err := m.Music(ctx, "", "晴天")
	if err != nil {
		t.Fatalf("music: %v", err)
	}
	if meta.ID != "186016" || meta.Artist != "周杰伦" || meta.Source != "netease" {
		t.Fatalf("fields: %+v", meta)
	}
	if meta.PlayURL != "https://m7.music.126.net/a.mp3" || meta.CoverURL != "https://p1.music.126.net/c.jpg" {
		t.Fatalf("urls not upgraded: %+v", meta)
	}
	if meta.Lyrics != "[00:01.00]故事的小黄花" {
		t.Fatalf("lyrics: %q", meta.Lyrics)
	}
	if meta.BackgroundGradient != palette.DefaultGradient || meta.TextColor != palette.TextLight {
		t.Fatalf("palette not stored: %+v", meta)
	}
	if ok, _ := store.Exists(ctx, enrich.MusicKey("netease", "晴天")); !ok {
		t.Fatalf("music result should be cached under source:keyword")
	}
	if _, err := m.Music(ctx, "netease", "晴天"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if atomic.LoadInt32(&searches) != 1 || paletteCalls != 1 {
		t.Fatalf("cache hit must skip search and palette: searches=%d palette=%d", searches, paletteCalls)
	}
}

func TestMusic_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"results":[]}}`))
	}))
	defer srv.Close()
	m := enrich.NewMusic(newClient(t), cache.NewFileStore(t.TempDir(), cache.NamespaceMusic), srv.URL)
	if _, err := m.Music(context.Background(), "netease", "nothing"); !errors.Is(err, enrich.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestMusicKey_Normalizes(t *testing.T) {
	// "é" 组合形式与预组合形式应得到同一个 key
	if enrich.MusicKey("netease", "Cafe\u0301") != enrich.MusicKey("netease", "Caf\u00e9") {
		t.Fatalf("keys should be NFC-normalized")
	}
}

func TestParseLyrics(t *testing.T) {
	lrc := "[ti:晴天]\n[00:01.50]第一句\n[00:10.00][01:00.00]重复句\n[00:05.0]\n[00:03]第二句"
	got := enrich.ParseLyrics(lrc)
	want := []enrich.LyricLine{
		{At: 1500 * time.Millisecond, Text: "第一句"},
		{At: 3 * time.Second, Text: "第二句"},
		{At: 10 * time.Second, Text: "重复句"},
		{At: time.Minute, Text: "重复句"},
	}
	if len(got) != len(want) {
		t.Fatalf("lines: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}
