package enrich

import (
	"bufio"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// LyricLine 为一行带时间戳的歌词。
type LyricLine struct {
	At   time.Duration `json:"at"`
	Text string        `json:"text"`
}

var lrcTag = regexp.MustCompile(`\[(\d{1,3}):(\d{1,2})(?:[.:](\d{1,3}))?\]`)

// ParseLyrics 解析 LRC 文本。一行可带多个时间戳；空文本与元信息标签（[ti:] 等）被丢弃。
// 结果按时间排序，时间相同保持原顺序。
func ParseLyrics(lrc string) []LyricLine {
	var out []LyricLine
	sc := bufio.NewScanner(strings.NewReader(lrc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		tags := lrcTag.FindAllStringSubmatchIndex(line, -1)
		if len(tags) == 0 {
			continue
		}
		// 时间戳只认行首连续的部分
		end := 0
		var stamps []time.Duration
		for _, t := range tags {
			if t[0] != end {
				break
			}
			end = t[1]
			stamps = append(stamps, stamp(line, t))
		}
		text := strings.TrimSpace(line[end:])
		if text == "" {
			continue
		}
		for _, at := range stamps {
			out = append(out, LyricLine{At: at, Text: text})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

func stamp(line string, idx []int) time.Duration {
	mm, _ := strconv.Atoi(line[idx[2]:idx[3]])
	ss, _ := strconv.Atoi(line[idx[4]:idx[5]])
	d := time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second
	if idx[6] >= 0 {
		frac := line[idx[6]:idx[7]]
		n, _ := strconv.Atoi(frac)
		switch len(frac) {
		case 1:
			d += time.Duration(n) * 100 * time.Millisecond
		case 2:
			d += time.Duration(n) * 10 * time.Millisecond
		default:
			d += time.Duration(n) * time.Millisecond
		}
	}
	return d
}
