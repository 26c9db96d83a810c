// 包 friends 读取友链列表，并可选地抓取每位朋友博客的最新文章（朋友圈）。
package friends

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"kayblog/internal/model"
)

// Load 读取友链文件：.yaml/.yml 按 YAML 解析，其余按 JSON 数组解析。
// 文件不存在时返回空列表；url 为空的条目丢弃，重复 url 保留第一条。
func Load(path string) ([]model.Friend, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read friends %s: %w", path, err)
	}
	var list []model.Friend
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &list)
	default:
		err = json.Unmarshal(b, &list)
	}
	if err != nil {
		return nil, fmt.Errorf("parse friends %s: %w", path, err)
	}
	return dedup(list), nil
}

func dedup(in []model.Friend) []model.Friend {
	seen := make(map[string]bool, len(in))
	out := make([]model.Friend, 0, len(in))
	for _, f := range in {
		f.URL = strings.TrimSpace(f.URL)
		if f.URL == "" || seen[f.URL] {
			continue
		}
		seen[f.URL] = true
		out = append(out, f)
	}
	return out
}
