// 包 songs 读取歌单 CSV，并把带平台前缀的歌曲 id 解析为可播放的流地址。
package songs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"kayblog/internal/model"
)

// 支持播放的平台
const (
	SourceNetease = "wy"
	SourceQQ      = "tx"
)

// 列顺序：歌曲名,艺术家,专辑名,id,歌曲来源名称,封面,时长
const columns = 7

var idPrefix = regexp.MustCompile(`^(wy|tx|kg|mg)_`)

// Load 读取歌单文件；文件不存在时返回空列表。
func Load(path string) ([]model.Song, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open songs %s: %w", path, err)
	}
	defer f.Close()
	out, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse songs %s: %w", path, err)
	}
	return out, nil
}

// Parse 解析 CSV，丢弃表头行；列数不足的行补空，空行跳过。
func Parse(r io.Reader) ([]model.Song, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	var out []model.Song
	header := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for len(rec) < columns {
			rec = append(rec, "")
		}
		out = append(out, model.Song{
			Name:          strings.TrimSpace(rec[0]),
			Artist:        strings.TrimSpace(rec[1]),
			Album:         strings.TrimSpace(rec[2]),
			ID:            strings.TrimSpace(rec[3]),
			Source:        strings.TrimSpace(rec[4]),
			CoverURL:      strings.Replace(strings.TrimSpace(rec[5]), "http://", "https://", 1),
			DurationLabel: strings.TrimSpace(rec[6]),
		})
	}
	return out, nil
}

// Supported 判断平台是否可播放。
func Supported(source string) bool {
	return source == SourceNetease || source == SourceQQ
}

// StreamURL 返回歌曲的播放地址；不支持的平台返回空串。
func StreamURL(s model.Song) string {
	id := idPrefix.ReplaceAllString(s.ID, "")
	switch s.Source {
	case SourceNetease:
		return "https://api.viki.moe/ncm/songs/" + id + "/play"
	case SourceQQ:
		return "https://api.viki.moe/qqm/songs/" + id + "/play"
	default:
		return ""
	}
}
