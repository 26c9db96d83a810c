package content_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kayblog/internal/content"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestSplit(t *testing.T) {
	fm, body, err := content.Split([]byte("---\ndate: 2024-01-02\nbvid: BV1xx411c7mD\nmusic: 晴天\nmusic_source: tencent\n---\n# Hi\n"))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if fm.Date != "2024-01-02" || fm.BVID != "BV1xx411c7mD" || fm.Music != "晴天" || fm.MusicSource != "tencent" {
		t.Fatalf("front-matter = %+v", fm)
	}
	if string(body) != "# Hi\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplit_CRLFAndEmptyBody(t *testing.T) {
	fm, body, err := content.Split([]byte("\xef\xbb\xbf---\r\ndate: 2024-01-02 08:30\r\n---"))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if fm.Date != "2024-01-02 08:30" || len(body) != 0 {
		t.Fatalf("fm=%+v body=%q", fm, body)
	}
}

func TestSplit_Errors(t *testing.T) {
	if _, _, err := content.Split([]byte("# no front matter")); !errors.Is(err, content.ErrNoFrontMatter) {
		t.Fatalf("want ErrNoFrontMatter, got %v", err)
	}
	if _, _, err := content.Split([]byte("---\ndate: [unclosed\n---\nbody")); err == nil {
		t.Fatalf("want yaml error")
	}
	if _, _, err := content.Split([]byte("---\ndate: 2024-01-02\nbody without closing")); !errors.Is(err, content.ErrNoFrontMatter) {
		t.Fatalf("want ErrNoFrontMatter for unterminated block, got %v", err)
	}
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	cases := map[string]time.Time{
		"2024-01-02":                   time.Date(2024, 1, 2, 0, 0, 0, 0, loc),
		"2024-01-02 15:04":             time.Date(2024, 1, 2, 15, 4, 0, 0, loc),
		"2024-01-02T15:04:05Z":         time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
		"2024/01/02":                   time.Date(2024, 1, 2, 0, 0, 0, 0, loc),
		" 2024-01-02 15:04:05 ":        time.Date(2024, 1, 2, 15, 4, 5, 0, loc),
		"2024-01-02T15:04:05+09:00":    time.Date(2024, 1, 2, 6, 4, 5, 0, time.UTC),
		"2024-01-02 15:04:05 +0900":    time.Date(2024, 1, 2, 6, 4, 5, 0, time.UTC),
		"2024-01-02 15:04:05 +09:00":   time.Date(2024, 1, 2, 6, 4, 5, 0, time.UTC),
		"2024-01-02 15:04:05 Z":        time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
		"2024-01-02 15:04 -0500":       time.Date(2024, 1, 2, 20, 4, 0, 0, time.UTC),
		"2024-01-02 15:04:05.5 +00:00": time.Date(2024, 1, 2, 15, 4, 5, 5e8, time.UTC),
	}
	for in, want := range cases {
		got, err := content.ParseTime(in, loc)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := content.ParseTime("yesterday", loc); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStore_ListAndRead(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.md", "---\ndate: 2024-02-01\nedited: 2024-02-03\n---\nB")
	write(t, dir, "a.md", "---\ndate: 2024-01-01\n---\nA")
	write(t, dir, ".draft.md", "---\ndate: 2024-01-01\n---\nX")
	write(t, dir, "songs.csv", "name\n")
	_ = os.Mkdir(filepath.Join(dir, "sub.md"), 0o755)

	s := content.NewStore(dir, time.UTC)
	files, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0].ID != "a" || files[1].ID != "b" || files[1].Order != 1 {
		t.Fatalf("files = %+v", files)
	}
	doc, err := s.Read(files[1])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Edited == nil || !doc.Edited.Equal(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("edited = %v", doc.Edited)
	}
	if string(doc.Body) != "B" {
		t.Fatalf("body = %q", doc.Body)
	}
}

func TestStore_ReadRejects(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "nodate.md", "---\nbvid: BV1\n---\nbody")
	write(t, dir, "latin1.md", "---\ndate: 2024-01-01\n---\n\xff\xfe")
	s := content.NewStore(dir, time.UTC)
	files, _ := s.List()
	for _, f := range files {
		if _, err := s.Read(f); err == nil {
			t.Errorf("%s: expected error", f.ID)
		}
	}
}

func TestStore_MissingDir(t *testing.T) {
	s := content.NewStore(filepath.Join(t.TempDir(), "missing"), nil)
	if _, err := s.List(); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
