// 包 config 负责加载与校验站点配置（settings.yaml），
// 并在读取 .env 后用环境变量覆盖敏感字段（API Key、密码等）。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 为站点构建与服务所需的全部配置。
type Config struct {
	SiteURL      string       `yaml:"SITE_URL"`
	SiteTitle    string       `yaml:"SITE_TITLE"`
	SiteDesc     string       `yaml:"SITE_DESCRIPTION"`
	SiteAuthor   string       `yaml:"SITE_AUTHOR"`
	ContentDir   string       `yaml:"CONTENT_DIR"`
	SongsFile    string       `yaml:"SONGS_FILE"`
	FriendsFile  string       `yaml:"FRIENDS_FILE"`
	OutputDir    string       `yaml:"OUTPUT_DIR"`
	Timezone     string       `yaml:"TIMEZONE"`
	Cache        Cache        `yaml:"CACHE"`
	Upstream     Upstream     `yaml:"UPSTREAM"`
	Concurrency  Concurrency  `yaml:"CONCURRENCY"`
	Proxy        Proxy        `yaml:"PROXY"`
	Server       Server       `yaml:"SERVER"`
	Steam        Steam        `yaml:"STEAM"`
	FriendCircle FriendCircle `yaml:"FRIEND_CIRCLE"`
	LogLevel     string       `yaml:"LOG_LEVEL"`
	LogFormat    string       `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale    string       `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor     string       `yaml:"LOG_COLOR"`  // auto|always|never
	LogFile      string       `yaml:"LOG_FILE"`   // 为空则只输出到 stdout
	UserAgent    string       `yaml:"-"`
}

// Cache 描述富化缓存的后端。
type Cache struct {
	Type       string `yaml:"type"` // file|sqlite|redis|minio
	Dir        string `yaml:"dir"`
	DSN        string `yaml:"dsn"`
	MemorySize int    `yaml:"memory_size"`
	Redis      Redis  `yaml:"redis"`
	Minio      Minio  `yaml:"minio"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// Upstream 为第三方只读接口地址。
type Upstream struct {
	BilibiliAPI    string `yaml:"bilibili_api"`
	MusicAPI       string `yaml:"music_api"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Concurrency struct {
	Render  int `yaml:"render"`
	Friends int `yaml:"friends"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

type Server struct {
	Addr  string `yaml:"addr"`
	Watch bool   `yaml:"watch"`
}

type Steam struct {
	SteamID string `yaml:"steam_id"`
	APIKey  string `yaml:"-"`
	Proxy   string `yaml:"-"`
}

type FriendCircle struct {
	Enabled  bool `yaml:"enabled"`
	MaxPosts int  `yaml:"max_posts"`
}

var validCacheTypes = map[string]bool{"file": true, "sqlite": true, "redis": true, "minio": true}

// Load 读取 YAML 配置；path 为空或文件不存在时使用全部默认值。
// .env 文件（若存在）先于环境变量覆盖被加载，已存在的环境变量不会被覆盖。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			b, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv 仅处理不应写进仓库的字段。
func (c *Config) applyEnv() {
	c.Steam.APIKey = os.Getenv("STEAM_API_KEY")
	if v := os.Getenv("STEAM_ID"); v != "" {
		c.Steam.SteamID = v
	}
	c.Steam.Proxy = firstNonEmpty(os.Getenv("STEAM_PROXY"), os.Getenv("HTTPS_PROXY"))
	c.Cache.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Cache.Minio.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	c.Cache.Minio.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	c.UserAgent = os.Getenv("KAYBLOG_UA")
	if v := os.Getenv("KAYBLOG_CACHE"); v != "" {
		c.Cache.Type = v
	}
	if v := os.Getenv("KAYBLOG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("KAYBLOG_RENDER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency.Render = n
		}
	}
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.Concurrency.Render < 0 || c.Concurrency.Friends < 0 {
		return errors.New("CONCURRENCY values must be >= 0")
	}
	if c.FriendCircle.MaxPosts < 0 {
		return errors.New("FRIEND_CIRCLE.max_posts must be >= 0")
	}
	if c.SiteURL == "" {
		c.SiteURL = "https://blog.14kay.top"
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	if c.SiteTitle == "" {
		c.SiteTitle = "14K | Life & Music"
	}
	if c.SiteAuthor == "" {
		c.SiteAuthor = "Kay"
	}
	if c.ContentDir == "" {
		c.ContentDir = "data"
	}
	if c.SongsFile == "" {
		c.SongsFile = c.ContentDir + "/songs.csv"
	}
	if c.FriendsFile == "" {
		c.FriendsFile = c.ContentDir + "/friends.json"
	}
	if c.OutputDir == "" {
		c.OutputDir = "out"
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
		}
	}
	c.Cache.Type = strings.ToLower(strings.TrimSpace(c.Cache.Type))
	if c.Cache.Type == "" {
		c.Cache.Type = "file"
	}
	if !validCacheTypes[c.Cache.Type] {
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = c.ContentDir + "/.cache"
	}
	if c.Cache.DSN == "" {
		c.Cache.DSN = c.Cache.Dir + "/enrich.db"
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Cache.Minio.Bucket == "" {
		c.Cache.Minio.Bucket = "kayblog-cache"
	}
	if c.Cache.Type == "minio" && c.Cache.Minio.Endpoint == "" {
		return errors.New("CACHE.minio.endpoint is required for minio cache")
	}
	if c.Upstream.BilibiliAPI == "" {
		c.Upstream.BilibiliAPI = "https://api.bilibili.com/x/web-interface/view"
	}
	if c.Upstream.MusicAPI == "" {
		c.Upstream.MusicAPI = "https://music-dl.sayqz.com/api/"
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		c.Upstream.TimeoutSeconds = 15
	}
	if c.Concurrency.Render == 0 {
		c.Concurrency.Render = 8
	}
	if c.Concurrency.Friends == 0 {
		c.Concurrency.Friends = 4
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Steam.SteamID == "" {
		c.Steam.SteamID = "76561198268671173"
	}
	if c.FriendCircle.MaxPosts == 0 {
		c.FriendCircle.MaxPosts = 5
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}

// UpstreamTimeout 返回第三方请求超时。
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// Location 返回解析 front-matter 日期所用时区，未配置时为本地时区。
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
