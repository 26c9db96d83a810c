// 包 model 定义站点数据模型（文章/视频/音乐/朋友/歌曲/导出结构）。
package model

import (
	"fmt"
	"strconv"
	"time"
)

// Post 为组装完成的文章，每次构建重新生成，不做增量修改。
type Post struct {
	ID            string     `json:"id"`
	Date          time.Time  `json:"date"`
	Edited        *time.Time `json:"edited,omitempty"`
	Content       string     `json:"content"`
	BilibiliVideo *VideoMeta `json:"bilibiliVideo,omitempty"`
	Music         *MusicMeta `json:"music,omitempty"`
}

// LastModified 返回编辑时间，缺省为发布时间。
func (p Post) LastModified() time.Time {
	if p.Edited != nil {
		return *p.Edited
	}
	return p.Date
}

// VideoMeta 为 B 站视频信息。JSON 字段沿用上游命名，旧缓存文件可直接读取。
type VideoMeta struct {
	ExternalID      string     `json:"bvid"`
	Title           string     `json:"title"`
	Description     string     `json:"desc"`
	ThumbnailURL    string     `json:"pic"`
	Owner           VideoOwner `json:"owner"`
	Stats           VideoStats `json:"stat"`
	DurationSeconds int        `json:"duration"`
}

type VideoOwner struct {
	Name string `json:"name"`
	ID   int64  `json:"mid"`
}

type VideoStats struct {
	Views     int64 `json:"view"`
	Likes     int64 `json:"like"`
	Coins     int64 `json:"coin"`
	Favorites int64 `json:"favorite"`
}

// URL 返回视频页地址。
func (v VideoMeta) URL() string {
	return "https://www.bilibili.com/video/" + v.ExternalID
}

// MusicMeta 为音乐搜索结果，配色字段由封面提取后随元数据一起缓存。
type MusicMeta struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Artist             string `json:"artist"`
	Album              string `json:"album,omitempty"`
	CoverURL           string `json:"pic,omitempty"`
	PlayURL            string `json:"url"`
	Source             string `json:"source"`
	Lyrics             string `json:"lyrics,omitempty"`
	BackgroundGradient string `json:"bgGradient,omitempty"`
	TextColor          string `json:"textColor,omitempty"`
	Waveform           []int  `json:"waveform,omitempty"`
}

// Friend 为友链条目（外部维护的静态列表）。
type Friend struct {
	Title       string `json:"title" yaml:"title"`
	URL         string `json:"url" yaml:"url"`
	AvatarURL   string `json:"avatar" yaml:"avatar"`
	Description string `json:"description" yaml:"description"`
	Author      string `json:"author" yaml:"author"`
}

// FriendPost 为朋友圈中的一篇文章。
type FriendPost struct {
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	Author  string    `json:"author"`
	Avatar  string    `json:"avatar"`
	Created time.Time `json:"created"`
}

// Song 为歌单条目；ID 带平台前缀（wy_/tx_ 等）。
type Song struct {
	Name          string `json:"name"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	ID            string `json:"id"`
	Source        string `json:"source"`
	CoverURL      string `json:"cover"`
	DurationLabel string `json:"duration"`
}

// Stats 为导出统计信息。
type Stats struct {
	PostsTotal   int       `json:"posts_total"`
	SongsTotal   int       `json:"songs_total"`
	FriendsTotal int       `json:"friends_total"`
	VideosTotal  int       `json:"videos_total"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Site 为 site.json 顶层结构。
type Site struct {
	Stats       Stats        `json:"stats"`
	Posts       []Post       `json:"posts"`
	Songs       []Song       `json:"songs"`
	Friends     []Friend     `json:"friends"`
	FriendPosts []FriendPost `json:"friend_posts,omitempty"`
}

// FormatDuration 将秒数格式化为 m:ss 或 h:mm:ss。
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatCount 以“万”为单位缩写播放量等计数。
func FormatCount(n int64) string {
	if n >= 10000 {
		return strconv.FormatFloat(float64(n)/10000, 'f', 1, 64) + "万"
	}
	return strconv.FormatInt(n, 10)
}
