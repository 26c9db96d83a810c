package export

import (
	"encoding/xml"
	"fmt"
	"time"

	"kayblog/internal/model"
)

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// 固定页面：路径、更新频率、优先级
var staticPages = []struct{ path, freq, priority string }{
	{"", "daily", "1.0"},
	{"/about", "monthly", "0.8"},
	{"/songs", "weekly", "0.7"},
	{"/friends", "weekly", "0.7"},
	{"/games", "weekly", "0.6"},
}

// Sitemap 生成站点地图。文章以首页锚点 SITE_URL/#<id> 表示，lastmod 取编辑时间或发布时间。
func Sitemap(siteURL string, posts []model.Post, now time.Time) ([]byte, error) {
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range staticPages {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        siteURL + p.path,
			LastMod:    now.UTC().Format(time.RFC3339),
			ChangeFreq: p.freq,
			Priority:   p.priority,
		})
	}
	for _, p := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        PostURL(siteURL, p.ID),
			LastMod:    p.LastModified().UTC().Format(time.RFC3339),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}
	b, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sitemap: %w", err)
	}
	return append([]byte(xml.Header), b...), nil
}

// PostURL 返回文章永久链接。
func PostURL(siteURL, id string) string {
	return siteURL + "/#" + id
}
