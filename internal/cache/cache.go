// 包 cache 为第三方富化数据提供键值缓存：只写一次、永不过期、永不刷新。
// 具体后端（平铺文件 / SQLite / Redis / MinIO）隐藏在 Store 接口之后。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"kayblog/internal/config"
	"kayblog/internal/logx"
)

// Store 为缓存后端。Get 未命中时返回 (nil, false, nil)。
// 同一 key 并发写入按最后写入者为准；值对同一 key 总是相同，因此无需加锁。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Lister 为可枚举 key 的后端（CLI 的 cache ls 使用）。
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// 命名空间：B 站视频与音乐元数据分开存放。
const (
	NamespaceVideo = "bilibili"
	NamespaceMusic = "music"
)

// GetJSON 读取并解码 JSON；解码失败视为未命中并记录警告，由调用方重新拉取。
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		logx.Warnf("缓存条目损坏，按未命中处理：key=%s 错误=%v", key, err)
		return false, nil
	}
	return true, nil
}

// PutJSON 以缩进 JSON 写入，便于人工查看缓存文件。
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache value %s: %w", key, err)
	}
	return s.Put(ctx, key, b)
}

// fileName 将 key 转为安全的文件/对象名，路径分隔符与 Windows 不允许的 ':' 均被转义。
func fileName(key string) string {
	return url.QueryEscape(key) + ".json"
}

func keyFromFileName(name string) (string, bool) {
	if len(name) <= len(".json") || name[len(name)-len(".json"):] != ".json" {
		return "", false
	}
	// 兼容旧版 PathEscape 写出的文件名（含字面 ':' 与 %20）
	k, err := url.QueryUnescape(name[:len(name)-len(".json")])
	if err != nil {
		return "", false
	}
	return k, true
}

// Open 根据配置打开指定命名空间的缓存。返回的 close 函数释放底层连接。
func Open(ctx context.Context, cfg config.Cache, namespace string) (Store, func() error, error) {
	var (
		s       Store
		closeFn = func() error { return nil }
	)
	switch cfg.Type {
	case "", "file":
		s = NewFileStore(cfg.Dir, namespace)
	case "sqlite":
		db, err := OpenSQLite(cfg.DSN, namespace)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = db, db.Close
	case "redis":
		rs, err := OpenRedis(ctx, cfg.Redis, namespace)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = rs, rs.Close
	case "minio":
		ms, err := OpenMinio(ctx, cfg.Minio, namespace)
		if err != nil {
			return nil, nil, err
		}
		s = ms
	default:
		return nil, nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
	if cfg.MemorySize > 0 {
		m, err := NewMemory(s, cfg.MemorySize)
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		s = m
	}
	return s, closeFn, nil
}

func now() time.Time { return time.Now().UTC() }
