package render

import (
	"bytes"
	"html"

	mathjax "github.com/litao91/goldmark-mathjax"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// mathML 沿用 goldmark-mathjax 对 $…$ 与 $$…$$ 的解析，
// 但在服务端直接输出 MathML。
type mathML struct{}

func (mathML) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(mathjax.NewMathJaxBlockParser(), 701)),
		parser.WithInlineParsers(util.Prioritized(mathjax.NewInlineMathParser(), 501)),
	)
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(&mathRenderer{}, 500)))
}

type mathRenderer struct{}

func (r *mathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(mathjax.KindInlineMath, r.renderInline)
	reg.Register(mathjax.KindMathBlock, r.renderBlock)
}

func (r *mathRenderer) renderInline(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*ast.Text)
		if !ok {
			continue
		}
		v := t.Segment.Value(source)
		if bytes.HasSuffix(v, []byte("\n")) {
			buf.Write(v[:len(v)-1])
			buf.WriteByte(' ')
			continue
		}
		buf.Write(v)
	}
	tex := buf.String()
	out, err := texToMathML(tex, false)
	if err != nil {
		// 转换失败时原样保留源码
		_, _ = w.WriteString(`<span class="math inline math-error">$` + html.EscapeString(tex) + `$</span>`)
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString(`<span class="math inline">` + out + `</span>`)
	return ast.WalkSkipChildren, nil
}

func (r *mathRenderer) renderBlock(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	tex := buf.String()
	out, err := texToMathML(tex, true)
	if err != nil {
		_, _ = w.WriteString("<pre class=\"math display math-error\">$$\n" + html.EscapeString(tex) + "$$</pre>\n")
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString(`<div class="math display">` + out + "</div>\n")
	return ast.WalkSkipChildren, nil
}
