// 包 render 将文章 Markdown 渲染为可直接嵌入页面的 HTML：
// GFM → 数学公式（MathML） → 代码高亮 → 外链标注 → 序列化 → 清洗。
// 同样的输入总是得到字节级一致的输出。
package render

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// 代码高亮主题：亮色/暗色各一套，暗色样式挂在 html.dark 下。
const (
	LightTheme = "github"
	DarkTheme  = "github-dark"
)

// Options 为渲染器参数。SiteURL 用于判断链接是否站外。
type Options struct {
	SiteURL string
}

// Renderer 可并发使用。
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New 创建渲染器。
func New(opts Options) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			mathML{},
			highlighting.NewHighlighting(
				highlighting.WithStyle(LightTheme),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(&externalLinks{siteHost: hostOf(opts.SiteURL)}, 999),
			),
		),
	)
	return &Renderer{md: md, policy: newPolicy()}
}

// Render 渲染正文（不含 front-matter）。goldmark 内部异常只影响当前文章。
func (r *Renderer) Render(src []byte) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = "", fmt.Errorf("render markdown: %v", p)
		}
	}()
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(false)
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowAttrs("rel").Matching(regexp.MustCompile(`^[a-z ]+$`)).OnElements("a")
	p.AllowElements("input")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	allowMathML(p)
	return p
}

// allowMathML 放行公式渲染产生的 MathML 元素与属性。
func allowMathML(p *bluemonday.Policy) {
	// 大部分 MathML 元素不带属性，需显式允许无属性出现
	p.AllowNoAttrs().OnElements("math", "semantics", "annotation", "mrow", "mi", "mn", "mo", "mtext", "mspace",
		"msub", "msup", "msubsup", "munder", "mover", "munderover", "mfrac", "msqrt", "mroot",
		"mtable", "mtr", "mtd")
	p.AllowAttrs("xmlns").Matching(regexp.MustCompile(`^http://www\.w3\.org/1998/Math/MathML$`)).OnElements("math")
	p.AllowAttrs("display").Matching(regexp.MustCompile(`^(block|inline)$`)).OnElements("math")
	p.AllowAttrs("encoding").Matching(regexp.MustCompile(`^application/x-tex$`)).OnElements("annotation")
	p.AllowAttrs("mathvariant").Matching(regexp.MustCompile(`^[a-z-]+$`)).OnElements("mi")
	p.AllowAttrs("fence", "stretchy").Matching(regexp.MustCompile(`^(true|false)$`)).OnElements("mo")
	p.AllowAttrs("minsize", "maxsize").Matching(emLength).OnElements("mo")
	p.AllowAttrs("width").Matching(emLength).OnElements("mspace")
	p.AllowAttrs("accent").Matching(regexp.MustCompile(`^true$`)).OnElements("mover")
	p.AllowAttrs("accentunder").Matching(regexp.MustCompile(`^true$`)).OnElements("munder")
	p.AllowAttrs("linethickness").Matching(regexp.MustCompile(`^0$`)).OnElements("mfrac")
	p.AllowAttrs("columnalign").Matching(regexp.MustCompile(`^(left|right|center)( (left|right|center))*$`)).OnElements("mtable")
}

var emLength = regexp.MustCompile(`^-?[0-9.]+em$`)

// externalLinks 为指向站外的绝对链接加上新窗口打开与 noopener/noreferrer。
type externalLinks struct {
	siteHost string
}

func (t *externalLinks) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest string
		switch l := n.(type) {
		case *ast.Link:
			dest = string(l.Destination)
		case *ast.AutoLink:
			if l.AutoLinkType != ast.AutoLinkURL {
				return ast.WalkContinue, nil
			}
			dest = string(l.URL(source))
		default:
			return ast.WalkContinue, nil
		}
		if t.isExternal(dest) {
			n.SetAttributeString("target", []byte("_blank"))
			n.SetAttributeString("rel", []byte("noopener noreferrer"))
		}
		return ast.WalkContinue, nil
	})
}

func (t *externalLinks) isExternal(dest string) bool {
	d := strings.TrimSpace(dest)
	if strings.HasPrefix(strings.ToLower(d), "www.") {
		d = "http://" + d
	}
	u, err := url.Parse(d)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return normHost(u.Hostname()) != t.siteHost
}

func hostOf(site string) string {
	u, err := url.Parse(strings.TrimSpace(site))
	if err != nil {
		return ""
	}
	return normHost(u.Hostname())
}

func normHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}

// ThemeCSS 返回代码高亮的样式表：亮色为默认，暗色限定在 html.dark 下。
func ThemeCSS() (string, error) {
	f := chromahtml.New(chromahtml.WithClasses(true))
	var light, dark bytes.Buffer
	if err := f.WriteCSS(&light, styles.Get(LightTheme)); err != nil {
		return "", fmt.Errorf("write %s css: %w", LightTheme, err)
	}
	if err := f.WriteCSS(&dark, styles.Get(DarkTheme)); err != nil {
		return "", fmt.Errorf("write %s css: %w", DarkTheme, err)
	}
	return light.String() + scopeCSS(dark.String(), "html.dark"), nil
}

// scopeCSS 给每条规则的选择器加上前缀；chroma 每条规则占一行。
func scopeCSS(css, scope string) string {
	var b strings.Builder
	for _, line := range strings.Split(css, "\n") {
		if line == "" {
			continue
		}
		if i := strings.Index(line, "*/ "); i >= 0 {
			line = line[:i+3] + scope + " " + line[i+3:]
		} else if strings.HasPrefix(line, ".") {
			line = scope + " " + line
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
