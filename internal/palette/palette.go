// 包 palette 从专辑封面提取主色，生成播放卡片的背景渐变与文字颜色。
// 任何失败（无封面、下载失败、解码失败、没有可用像素）都回落到默认配色，不返回错误。
package palette

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"kayblog/internal/fetch"
	"kayblog/internal/logx"
)

const (
	// 采样网格边长
	gridSize = 100

	minBrightness = 30
	maxBrightness = 220
	minSaturation = 0.2
	bucketWidth   = 10

	darken  = 20
	lighten = 50

	// 亮度 >= 该值使用深色文字
	LuminanceThreshold = 0.45

	DefaultGradient = "linear-gradient(135deg, #667eea 0%, #764ba2 100%)"
	TextLight       = "text-white"
	TextDark        = "text-gray-900"
)

// Palette 为提取结果。
type Palette struct {
	Gradient  string
	TextColor string
	Dominant  color.RGBA
	Luminance float64
	Fallback  bool
}

// Default 返回默认配色。
func Default() Palette {
	return Palette{Gradient: DefaultGradient, TextColor: TextLight, Fallback: true}
}

// Extract 下载并分析封面。coverURL 为空或任何一步失败时返回 Default()。
func Extract(ctx context.Context, client *fetch.Client, coverURL string) Palette {
	if coverURL == "" || client == nil {
		return Default()
	}
	b, err := client.GetBytes(ctx, coverURL, 10<<20)
	if err != nil {
		logx.Warnf("封面下载失败，使用默认配色：%s 错误=%v", coverURL, err)
		return Default()
	}
	p, err := FromBytes(b)
	if err != nil {
		logx.Warnf("封面解码失败，使用默认配色：%s 错误=%v", coverURL, err)
		return Default()
	}
	return p
}

// FromBytes 解码图片并提取配色；仅解码失败时返回错误。
func FromBytes(b []byte) (Palette, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return Default(), fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), nil
}

// FromImage 居中裁成正方形并缩放到固定网格后统计主色。
func FromImage(img image.Image) (p Palette) {
	defer func() {
		// 个别解码器产生的畸形图像可能让缩放越界
		if r := recover(); r != nil {
			logx.Warnf("封面处理异常，使用默认配色：%v", r)
			p = Default()
		}
	}()
	if img == nil || img.Bounds().Empty() {
		return Default()
	}
	grid := image.NewNRGBA(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(grid, grid.Bounds(), img, squareCrop(img.Bounds()), draw.Src, nil)

	dom, ok := dominant(grid)
	if !ok {
		return Default()
	}
	lum := Luminance(dom)
	return Palette{
		Gradient:  Gradient(dom),
		TextColor: TextColorFor(lum),
		Dominant:  dom,
		Luminance: lum,
	}
}

func squareCrop(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == h {
		return b
	}
	if w > h {
		off := (w - h) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	}
	off := (h - w) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
}

type bucket struct {
	c     color.RGBA
	count int
}

// dominant 过滤过暗/过亮/低饱和像素后按 10 为宽度分桶，数量相同取先出现的桶。
func dominant(img *image.NRGBA) (color.RGBA, bool) {
	index := map[color.RGBA]int{}
	var buckets []bucket
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := img.NRGBAAt(x, y)
			if !keep(px.R, px.G, px.B) {
				continue
			}
			key := color.RGBA{R: quantize(px.R), G: quantize(px.G), B: quantize(px.B), A: 255}
			if i, ok := index[key]; ok {
				buckets[i].count++
				continue
			}
			index[key] = len(buckets)
			buckets = append(buckets, bucket{c: key, count: 1})
		}
	}
	if len(buckets) == 0 {
		return color.RGBA{}, false
	}
	best := buckets[0]
	for _, bk := range buckets[1:] {
		if bk.count > best.count {
			best = bk
		}
	}
	return best.c, true
}

func keep(r, g, b uint8) bool {
	// 比较三通道之和，避免整除把 220.33 截成 220
	sum := int(r) + int(g) + int(b)
	if sum < 3*minBrightness || sum > 3*maxBrightness {
		return false
	}
	hi := max(r, g, b)
	lo := min(r, g, b)
	if hi == 0 {
		return false
	}
	return float64(hi-lo)/float64(hi) >= minSaturation
}

func quantize(c uint8) uint8 { return c / bucketWidth * bucketWidth }

// Gradient 由主色生成两段渐变：起点压暗 20，终点提亮 50。
func Gradient(c color.RGBA) string {
	return fmt.Sprintf("linear-gradient(135deg, rgb(%d, %d, %d) 0%%, rgb(%d, %d, %d) 100%%)",
		shift(c.R, -darken), shift(c.G, -darken), shift(c.B, -darken),
		shift(c.R, lighten), shift(c.G, lighten), shift(c.B, lighten))
}

func shift(v uint8, d int) int {
	return max(0, min(255, int(v)+d))
}

// Luminance 为感知亮度，范围 0..1。
func Luminance(c color.RGBA) float64 {
	return (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
}

// TextColorFor 恰好等于阈值时使用深色文字。
func TextColorFor(lum float64) string {
	if lum >= LuminanceThreshold {
		return TextDark
	}
	return TextLight
}
