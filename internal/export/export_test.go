package export_test

import (
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"kayblog/internal/export"
	"kayblog/internal/model"
)

func bundle() export.Bundle {
	d1 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	edited := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return export.Bundle{
		SiteURL: "https://blog.14kay.top",
		Title:   "14K",
		Author:  "kay",
		Now:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Posts: []model.Post{
			{ID: "spring", Date: d1, Content: "<p>春天到了，<strong>出去走走</strong></p>", BilibiliVideo: &model.VideoMeta{ExternalID: "BV1", ThumbnailURL: "https://i0.hdslb.com/x.jpg"}},
			{ID: "newyear", Date: d2, Edited: &edited, Content: "<p>新年快乐</p>"},
		},
		Songs:   []model.Song{{Name: "Alpha", ID: "wy_1", Source: "wy"}},
		Friends: []model.Friend{{Title: "A", URL: "https://a.example"}},
	}
}

func TestWrite_AllArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := export.Write(dir, bundle()); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, name := range []string{"site.json", "sitemap.xml", "feed.xml", "theme.css"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s missing: %v", name, err)
		}
	}

	b, _ := os.ReadFile(filepath.Join(dir, "site.json"))
	var site model.Site
	if err := json.Unmarshal(b, &site); err != nil {
		t.Fatalf("decode site: %v", err)
	}
	if site.Stats.PostsTotal != 2 || site.Stats.VideosTotal != 1 || site.Stats.SongsTotal != 1 || site.Stats.FriendsTotal != 1 {
		t.Fatalf("stats: %+v", site.Stats)
	}
	if site.Posts[0].ID != "spring" {
		t.Fatalf("post order changed: %v", site.Posts[0].ID)
	}

	f, err := os.Open(filepath.Join(dir, "feed.xml"))
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer f.Close()
	feed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		t.Fatalf("parse feed: %v", err)
	}
	if feed.Title != "14K" || len(feed.Items) != 2 {
		t.Fatalf("feed: %s %d", feed.Title, len(feed.Items))
	}
	if feed.Items[0].Link != "https://blog.14kay.top/#spring" || feed.Items[0].Title != "春天到了，出去走走" {
		t.Fatalf("item: %q %q", feed.Items[0].Link, feed.Items[0].Title)
	}

	css, _ := os.ReadFile(filepath.Join(dir, "theme.css"))
	if !strings.Contains(string(css), "html.dark") {
		t.Fatalf("theme css missing dark scope")
	}
}

func TestSitemap_PostLastMod(t *testing.T) {
	b := bundle()
	out, err := export.Sitemap(b.SiteURL, b.Posts, b.Now)
	if err != nil {
		t.Fatalf("sitemap: %v", err)
	}
	var set struct {
		URLs []struct {
			Loc     string `xml:"loc"`
			LastMod string `xml:"lastmod"`
		} `xml:"url"`
	}
	if err := xml.Unmarshal(out, &set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := map[string]string{}
	for _, u := range set.URLs {
		got[u.Loc] = u.LastMod
	}
	if got["https://blog.14kay.top"] == "" || got["https://blog.14kay.top/songs"] == "" {
		t.Fatalf("static pages missing: %v", got)
	}
	if got["https://blog.14kay.top/#newyear"] != "2024-02-01T00:00:00Z" {
		t.Fatalf("edited post should use edited time: %v", got)
	}
	if got["https://blog.14kay.top/#spring"] != "2024-03-01T08:00:00Z" {
		t.Fatalf("post should use date: %v", got)
	}
}

func TestSummary(t *testing.T) {
	if s := export.Summary("<p>hello <em>world</em></p>\n<p>again</p>", 100); s != "hello world again" {
		t.Fatalf("summary: %q", s)
	}
	if s := export.Summary("<p>一二三四五六</p>", 3); s != "一二三…" {
		t.Fatalf("truncate: %q", s)
	}
}
