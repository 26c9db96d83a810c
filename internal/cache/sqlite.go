package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite 把缓存条目存进单表 entries(namespace, key)，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
	ns string
}

// OpenSQLite 打开数据库并执行自动迁移。
func OpenSQLite(path, namespace string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		// 多个命名空间共享同一文件，等待锁而不是立刻返回 SQLITE_BUSY
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db, ns: namespace}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS entries (
            namespace TEXT NOT NULL,
            key TEXT NOT NULL,
            value BLOB NOT NULL,
            created_at TIMESTAMP,
            PRIMARY KEY (namespace, key)
        );`)
	if err != nil {
		return fmt.Errorf("exec migrate: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM entries WHERE namespace = ? AND key = ?`, s.ns, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache %s: %w", key, err)
	}
	return b, true, nil
}

func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE namespace = ? AND key = ?`, s.ns, key).Scan(&n); err != nil {
		return false, fmt.Errorf("count cache %s: %w", key, err)
	}
	return n > 0, nil
}

// Put 重复写入同一 key 时覆盖（值相同，结果幂等）。
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO entries(namespace, key, value, created_at)
        VALUES(?,?,?,?)
        ON CONFLICT(namespace, key) DO UPDATE SET value=excluded.value`,
		s.ns, key, value, now())
	if err != nil {
		return fmt.Errorf("upsert cache %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM entries WHERE namespace = ? ORDER BY key`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return out, nil
}
