package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"kayblog/internal/cache"
	"kayblog/internal/fetch"
	"kayblog/internal/logx"
	"kayblog/internal/model"
	"kayblog/internal/palette"
)

// DefaultMusicSource 为 front-matter 未指定 music_source 时使用的平台。
const DefaultMusicSource = "netease"

// PaletteFunc 从封面地址提取配色，必须总是返回结果。
type PaletteFunc func(ctx context.Context, coverURL string) palette.Palette

// Music 通过音乐搜索代理解析歌曲信息，并附带歌词与封面配色。
type Music struct {
	client  *fetch.Client
	store   cache.Store
	api     string
	palette PaletteFunc
}

// NewMusic 创建音乐解析器。
func NewMusic(client *fetch.Client, store cache.Store, api string) *Music {
	m := &Music{client: client, store: store, api: api}
	m.palette = func(ctx context.Context, coverURL string) palette.Palette {
		return palette.Extract(ctx, client, coverURL)
	}
	return m
}

// WithPalette 替换配色提取函数（测试中避免下载图片）。
func (m *Music) WithPalette(fn PaletteFunc) *Music {
	m.palette = fn
	return m
}

// MusicKey 为缓存 key：source + ":" + 关键字（NFC 归一化，避免同形不同码的重复条目）。
func MusicKey(source, keyword string) string {
	return source + ":" + norm.NFC.String(strings.TrimSpace(keyword))
}

// flexString 兼容上游把 id 返回成数字或字符串、把 artist 返回成数组的情况。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var parts []flexString
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		ss := make([]string, 0, len(parts))
		for _, p := range parts {
			ss = append(ss, string(p))
		}
		*f = flexString(strings.Join(ss, " / "))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

type searchItem struct {
	ID     flexString `json:"id"`
	Name   string     `json:"name"`
	Artist flexString `json:"artist"`
	Album  flexString `json:"album"`
	Pic    string     `json:"pic"`
	URL    string     `json:"url"`
	Lrc    string     `json:"lrc"`
}

type searchResponse struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Data    *struct {
		Results []searchItem `json:"results"`
	} `json:"data"`
}

// Music 先查缓存；未命中时搜索一次，取第一条结果，补充歌词与配色后写回缓存。
func (m *Music) Music(ctx context.Context, source, keyword string) (*model.MusicMeta, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("empty music keyword")
	}
	if source == "" {
		source = DefaultMusicSource
	}
	key := MusicKey(source, keyword)
	var meta model.MusicMeta
	ok, err := cache.GetJSON(ctx, m.store, key, &meta)
	if err != nil {
		logx.Warnf("读取音乐缓存失败：%s 错误=%v", key, err)
	}
	if ok {
		return &meta, nil
	}

	u, err := url.Parse(m.api)
	if err != nil {
		return nil, fmt.Errorf("parse music api: %w", err)
	}
	q := u.Query()
	q.Set("source", source)
	q.Set("type", "search")
	q.Set("keyword", keyword)
	q.Set("limit", strconv.Itoa(1))
	u.RawQuery = q.Encode()

	var resp searchResponse
	if err := m.client.GetJSON(ctx, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("search music %s: %w", key, err)
	}
	if resp.Data == nil || len(resp.Data.Results) == 0 {
		return nil, fmt.Errorf("search music %s: %w: no results %s", key, ErrUpstream, resp.Message)
	}
	item := resp.Data.Results[0]

	out := model.MusicMeta{
		ID:       string(item.ID),
		Title:    item.Name,
		Artist:   string(item.Artist),
		Album:    string(item.Album),
		CoverURL: secure(item.Pic),
		PlayURL:  secure(item.URL),
		Source:   source,
	}
	if item.Lrc != "" {
		if b, err := m.client.GetBytes(ctx, secure(item.Lrc), 1<<20); err != nil {
			logx.Warnf("获取歌词失败：%s 错误=%v", out.ID, err)
		} else {
			out.Lyrics = string(b)
		}
	}
	if item.Pic != "" {
		p := m.palette(ctx, item.Pic)
		out.BackgroundGradient = p.Gradient
		out.TextColor = p.TextColor
	}
	if err := cache.PutJSON(ctx, m.store, key, out); err != nil {
		logx.Warnf("写入音乐缓存失败：%s 错误=%v", key, err)
	}
	return &out, nil
}
