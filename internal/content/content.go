// 包 content 是文章源文件的只读存储：枚举 data 目录下的 *.md，
// 拆分 YAML front-matter 与正文，不做任何渲染。
package content

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ErrNoFrontMatter 表示文件缺少 --- 包围的 front-matter。
var ErrNoFrontMatter = errors.New("missing front-matter")

// File 为一篇文章源文件。Order 为目录内的遍历顺序（文件名字典序）。
type File struct {
	ID      string
	Path    string
	Order   int
	ModTime time.Time
}

// FrontMatter 为文章头部元数据。日期以字符串读取，由 ParseTime 统一解析。
type FrontMatter struct {
	Date        string `yaml:"date"`
	Edited      string `yaml:"edited"`
	BVID        string `yaml:"bvid"`
	Music       string `yaml:"music"`
	MusicSource string `yaml:"music_source"`
}

// Document 为解析后的单篇文章。
type Document struct {
	File
	Meta   FrontMatter
	Date   time.Time
	Edited *time.Time
	Body   []byte
}

// Store 读取单个目录下的文章。
type Store struct {
	dir string
	loc *time.Location
}

// NewStore 创建 Store；loc 为 nil 时使用本地时区解析不带时区的日期。
func NewStore(dir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{dir: dir, loc: loc}
}

func (s *Store) Dir() string { return s.dir }

// List 返回全部 *.md 文件，按文件名排序，隐藏文件忽略。
func (s *Store) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read content dir %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".md") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]File, 0, len(names))
	for i, name := range names {
		p := filepath.Join(s.dir, name)
		f := File{ID: strings.TrimSuffix(name, ".md"), Path: p, Order: i}
		if fi, err := os.Stat(p); err == nil {
			f.ModTime = fi.ModTime()
		}
		out = append(out, f)
	}
	return out, nil
}

// Read 读取并解析一篇文章。
func (s *Store) Read(f File) (*Document, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("read %s: content is not valid UTF-8", f.Path)
	}
	meta, body, err := Split(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	doc := &Document{File: f, Meta: meta, Body: body}
	if strings.TrimSpace(meta.Date) == "" {
		return nil, fmt.Errorf("parse %s: front-matter date is required", f.Path)
	}
	if doc.Date, err = ParseTime(meta.Date, s.loc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if strings.TrimSpace(meta.Edited) != "" {
		e, err := ParseTime(meta.Edited, s.loc)
		if err != nil {
			return nil, fmt.Errorf("parse %s: edited: %w", f.Path, err)
		}
		doc.Edited = &e
	}
	return doc, nil
}

// Split 拆分 front-matter 与正文。开头允许 BOM 与空行。
func Split(raw []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter
	src := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	src = bytes.TrimLeft(src, "\n")
	if !bytes.HasPrefix(src, []byte("---\n")) {
		return fm, nil, ErrNoFrontMatter
	}
	rest := src[len("---\n"):]
	var head, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---\n")):
		body = rest[len("---\n"):]
	case bytes.Equal(rest, []byte("---")):
	default:
		end := bytes.Index(rest, []byte("\n---\n"))
		if end < 0 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return fm, nil, ErrNoFrontMatter
			}
			end = len(rest) - len("\n---")
			head = rest[:end]
		} else {
			head = rest[:end]
			body = rest[end+len("\n---\n"):]
		}
	}
	if len(bytes.TrimSpace(head)) > 0 {
		if err := yaml.Unmarshal(head, &fm); err != nil {
			return fm, nil, fmt.Errorf("unmarshal front-matter: %w", err)
		}
	}
	return fm, body, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999 Z07:00",
	"2006-01-02 15:04 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// ParseTime 解析 front-matter 中常见的日期写法；不带时区的写法按 loc 解释。
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
