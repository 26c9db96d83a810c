package render

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
)

// 本文件把常用的 TeX 数学子集转换为 MathML（呈现标记），
// 浏览器原生排版，无需客户端脚本。不认识的命令一律报错，由调用方原样保留源码。

var errTeX = errors.New("unsupported tex")

type texKind int

const (
	tkLetter texKind = iota
	tkNumber
	tkCommand
	tkText // \text{...} 等，arg 为原始内容
	tkOpen
	tkClose
	tkSup
	tkSub
	tkAmp
	tkOther
)

type texToken struct {
	kind texKind
	val  string
	arg  string
}

func (t texToken) String() string {
	switch t.kind {
	case tkCommand, tkText:
		return `\` + t.val
	default:
		return t.val
	}
}

// 参数按原文读取的命令。
var texTextCommands = map[string]bool{
	"text": true, "textrm": true, "textit": true, "textbf": true, "textsf": true,
	"texttt": true, "mbox": true, "hbox": true, "operatorname": true,
}

func isASCIILetter(r rune) bool { return r < unicode.MaxASCII && unicode.IsLetter(r) }
func isDigit(r rune) bool       { return r >= '0' && r <= '9' }

func tokenizeTeX(src string) []texToken {
	rs := []rune(src)
	var out []texToken
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\\':
			j := i + 1
			if j >= len(rs) {
				out = append(out, texToken{kind: tkCommand})
				i = j
				continue
			}
			if !isASCIILetter(rs[j]) {
				out = append(out, texToken{kind: tkCommand, val: string(rs[j])})
				i = j + 1
				continue
			}
			for j < len(rs) && isASCIILetter(rs[j]) {
				j++
			}
			name := string(rs[i+1 : j])
			i = j
			if texTextCommands[name] {
				if raw, next, ok := readGroup(rs, i); ok {
					out = append(out, texToken{kind: tkText, val: name, arg: raw})
					i = next
					continue
				}
			}
			out = append(out, texToken{kind: tkCommand, val: name})
		case c == '{':
			out = append(out, texToken{kind: tkOpen, val: "{"})
			i++
		case c == '}':
			out = append(out, texToken{kind: tkClose, val: "}"})
			i++
		case c == '^':
			out = append(out, texToken{kind: tkSup, val: "^"})
			i++
		case c == '_':
			out = append(out, texToken{kind: tkSub, val: "_"})
			i++
		case c == '&':
			out = append(out, texToken{kind: tkAmp, val: "&"})
			i++
		case isDigit(c):
			j := i
			for j < len(rs) && (isDigit(rs[j]) || rs[j] == '.' && j+1 < len(rs) && isDigit(rs[j+1])) {
				j++
			}
			out = append(out, texToken{kind: tkNumber, val: string(rs[i:j])})
			i = j
		case unicode.IsLetter(c):
			out = append(out, texToken{kind: tkLetter, val: string(c)})
			i++
		default:
			out = append(out, texToken{kind: tkOther, val: string(c)})
			i++
		}
	}
	return out
}

// readGroup 从 i 起（跳过空白）读取一个配平的 {...}，返回其原文。
func readGroup(rs []rune, i int) (string, int, bool) {
	for i < len(rs) && unicode.IsSpace(rs[i]) {
		i++
	}
	if i >= len(rs) || rs[i] != '{' {
		return "", i, false
	}
	depth := 0
	for j := i; j < len(rs); j++ {
		switch rs[j] {
		case '\\':
			j++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return string(rs[i+1 : j]), j + 1, true
			}
		}
	}
	return "", i, false
}

var textUnescaper = strings.NewReplacer(`\{`, "{", `\}`, "}", `\&`, "&", `\%`, "%", `\$`, "$", `\_`, "_", `\#`, "#", `\ `, " ")

var (
	texLowerGreek = map[string]string{
		"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ϵ", "varepsilon": "ε",
		"zeta": "ζ", "eta": "η", "theta": "θ", "vartheta": "ϑ", "iota": "ι", "kappa": "κ",
		"lambda": "λ", "mu": "μ", "nu": "ν", "xi": "ξ", "omicron": "ο", "pi": "π", "varpi": "ϖ",
		"rho": "ρ", "varrho": "ϱ", "sigma": "σ", "varsigma": "ς", "tau": "τ", "upsilon": "υ",
		"phi": "ϕ", "varphi": "φ", "chi": "χ", "psi": "ψ", "omega": "ω",
		"infty": "∞", "partial": "∂", "nabla": "∇", "emptyset": "∅", "varnothing": "∅",
		"ell": "ℓ", "hbar": "ℏ", "aleph": "ℵ", "Re": "ℜ", "Im": "ℑ", "wp": "℘", "imath": "ı", "jmath": "ȷ",
	}
	texUpperGreek = map[string]string{
		"Gamma": "Γ", "Delta": "Δ", "Theta": "Θ", "Lambda": "Λ", "Xi": "Ξ", "Pi": "Π",
		"Sigma": "Σ", "Upsilon": "Υ", "Phi": "Φ", "Psi": "Ψ", "Omega": "Ω",
	}
	texOperators = map[string]string{
		"times": "×", "cdot": "⋅", "div": "÷", "pm": "±", "mp": "∓", "ast": "∗", "star": "⋆",
		"circ": "∘", "bullet": "∙", "oplus": "⊕", "ominus": "⊖", "otimes": "⊗", "odot": "⊙",
		"leq": "≤", "le": "≤", "geq": "≥", "ge": "≥", "neq": "≠", "ne": "≠", "approx": "≈",
		"equiv": "≡", "cong": "≅", "sim": "∼", "simeq": "≃", "propto": "∝", "ll": "≪", "gg": "≫",
		"to": "→", "rightarrow": "→", "leftarrow": "←", "gets": "←", "leftrightarrow": "↔",
		"Rightarrow": "⇒", "Leftarrow": "⇐", "Leftrightarrow": "⇔", "implies": "⟹",
		"impliedby": "⟸", "iff": "⟺", "mapsto": "↦", "longrightarrow": "⟶", "longleftarrow": "⟵",
		"uparrow": "↑", "downarrow": "↓", "in": "∈", "notin": "∉", "ni": "∋",
		"subset": "⊂", "subseteq": "⊆", "supset": "⊃", "supseteq": "⊇", "cup": "∪", "cap": "∩",
		"setminus": "∖", "forall": "∀", "exists": "∃", "nexists": "∄", "neg": "¬", "lnot": "¬",
		"land": "∧", "wedge": "∧", "lor": "∨", "vee": "∨", "perp": "⊥", "parallel": "∥", "mid": "∣",
		"cdots": "⋯", "ldots": "…", "dots": "…", "vdots": "⋮", "ddots": "⋱",
		"langle": "⟨", "rangle": "⟩", "lfloor": "⌊", "rfloor": "⌋", "lceil": "⌈", "rceil": "⌉",
		"vert": "|", "Vert": "‖", "{": "{", "}": "}", "|": "‖", "%": "%", "$": "$", "#": "#",
		"&": "&", "_": "_", "colon": ":", "bmod": "mod", "prime": "′", "angle": "∠",
		"triangle": "△", "therefore": "∴", "because": "∵", "top": "⊤", "bot": "⊥", "dagger": "†",
	}
	texLargeOps = map[string]string{
		"sum": "∑", "prod": "∏", "coprod": "∐", "int": "∫", "iint": "∬", "iiint": "∭", "oint": "∮",
		"bigcup": "⋃", "bigcap": "⋂", "bigoplus": "⨁", "bigotimes": "⨂", "bigvee": "⋁", "bigwedge": "⋀",
	}
	texIntegrals = map[string]bool{"int": true, "iint": true, "iiint": true, "oint": true}
	// 函数名，值表示上下标是否放在正上/正下方
	texFunctions = map[string]bool{
		"sin": false, "cos": false, "tan": false, "cot": false, "sec": false, "csc": false,
		"arcsin": false, "arccos": false, "arctan": false, "sinh": false, "cosh": false,
		"tanh": false, "coth": false, "exp": false, "log": false, "ln": false, "lg": false,
		"dim": false, "ker": false, "hom": false, "arg": false, "deg": false,
		"det": true, "gcd": true, "lim": true, "liminf": true, "limsup": true,
		"max": true, "min": true, "sup": true, "inf": true, "Pr": true,
	}
	texSpaces = map[string]string{
		",": "0.1667em", "thinspace": "0.1667em", ":": "0.2222em", ">": "0.2222em",
		";": "0.2778em", " ": "0.25em", "enspace": "0.5em", "quad": "1em", "qquad": "2em",
		"!": "-0.1667em",
	}
	texAccents = map[string]string{
		"hat": "^", "widehat": "^", "bar": "¯", "overline": "¯", "vec": "→", "overrightarrow": "→",
		"tilde": "~", "widetilde": "~", "dot": "˙", "ddot": "¨", "check": "ˇ", "breve": "˘",
		"acute": "´", "grave": "`",
	}
	texVariants = map[string]string{
		"mathbf": "bold", "mathit": "italic", "mathrm": "normal", "mathbb": "double-struck",
		"mathcal": "script", "mathscr": "script", "mathfrak": "fraktur", "mathsf": "sans-serif",
		"mathtt": "monospace", "boldsymbol": "bold-italic", "bm": "bold-italic",
	}
	texDelimSizes = map[string]string{
		"big": "1.2em", "bigl": "1.2em", "bigr": "1.2em",
		"Big": "1.623em", "Bigl": "1.623em", "Bigr": "1.623em",
		"bigg": "2.047em", "biggl": "2.047em", "biggr": "2.047em",
		"Bigg": "2.470em", "Biggl": "2.470em", "Biggr": "2.470em",
	}
	texDelims = map[string]string{
		"{": "{", "}": "}", "langle": "⟨", "rangle": "⟩", "|": "‖", "lvert": "|", "rvert": "|",
		"vert": "|", "Vert": "‖", "lVert": "‖", "rVert": "‖", "lfloor": "⌊", "rfloor": "⌋",
		"lceil": "⌈", "rceil": "⌉", "backslash": `\`,
	}
	texNegations = map[string]string{
		"=": "≠", "<": "≮", ">": "≯", "in": "∉", "subset": "⊄", "equiv": "≢", "sim": "≁",
	}
	texEnvFences = map[string][2]string{
		"matrix": {"", ""}, "smallmatrix": {"", ""}, "pmatrix": {"(", ")"}, "bmatrix": {"[", "]"},
		"Bmatrix": {"{", "}"}, "vmatrix": {"|", "|"}, "Vmatrix": {"‖", "‖"}, "cases": {"{", ""},
		"aligned": {"", ""}, "align": {"", ""}, "align*": {"", ""}, "gathered": {"", ""},
		"gather": {"", ""}, "gather*": {"", ""}, "split": {"", ""},
	}
	texEnvAlign = map[string]string{
		"aligned": "right left", "align": "right left", "align*": "right left", "split": "right left",
		"cases": "left left",
	}
)

type texParser struct {
	toks    []texToken
	pos     int
	display bool
	variant string
	bracket int // \sqrt[...] 的嵌套层数，只有在其中 ] 才是终止符
}

func (p *texParser) peek() *texToken {
	if p.pos < len(p.toks) {
		return &p.toks[p.pos]
	}
	return nil
}

func (p *texParser) next() *texToken {
	t := p.peek()
	if t != nil {
		p.pos++
	}
	return t
}

func (p *texParser) expect(kind texKind, val string) error {
	t := p.next()
	if t == nil {
		return fmt.Errorf("%w: missing %s", errTeX, val)
	}
	if t.kind != kind || (val != "" && t.val != val) {
		return fmt.Errorf("%w: expected %s, got %s", errTeX, val, t)
	}
	return nil
}

// texToMathML 把 TeX 源码转换为一个完整的 <math> 元素。
func texToMathML(src string, display bool) (string, error) {
	p := &texParser{toks: tokenizeTeX(src), display: display}
	rows, err := p.parseTable()
	if err != nil {
		return "", err
	}
	if t := p.peek(); t != nil {
		return "", fmt.Errorf("%w: unexpected %s", errTeX, t)
	}
	var body string
	if len(rows) == 1 && len(rows[0]) == 1 {
		body = rows[0][0]
	} else {
		body = tableMarkup(rows, "")
	}
	var b strings.Builder
	b.WriteString(`<math xmlns="http://www.w3.org/1998/Math/MathML"`)
	if display {
		b.WriteString(` display="block"`)
	}
	b.WriteString(`><semantics><mrow>`)
	b.WriteString(body)
	b.WriteString(`</mrow><annotation encoding="application/x-tex">`)
	b.WriteString(html.EscapeString(strings.TrimSpace(src)))
	b.WriteString(`</annotation></semantics></math>`)
	return b.String(), nil
}

// parseList 解析到 }、&、\\、\right、\end 或输入结束为止，终止符留给调用方。
func (p *texParser) parseList(b *strings.Builder) error {
	for {
		t := p.peek()
		if t == nil || t.kind == tkClose || t.kind == tkAmp {
			return nil
		}
		if t.kind == tkCommand && (t.val == "right" || t.val == "end" || t.val == `\`) {
			return nil
		}
		if t.kind == tkOther && t.val == "]" && p.inBracket() {
			return nil
		}
		if err := p.parseScripted(b); err != nil {
			return err
		}
	}
}

func (p *texParser) inBracket() bool { return p.bracket > 0 }

func (p *texParser) parseTable() ([][]string, error) {
	var rows [][]string
	var row []string
	for {
		var cell strings.Builder
		if err := p.parseList(&cell); err != nil {
			return nil, err
		}
		row = append(row, cell.String())
		t := p.peek()
		if t != nil && t.kind == tkAmp {
			p.next()
			continue
		}
		if t != nil && t.kind == tkCommand && t.val == `\` {
			p.next()
			rows = append(rows, row)
			row = nil
			continue
		}
		rows = append(rows, row)
		break
	}
	// 末尾多余的 \\
	if last := rows[len(rows)-1]; len(rows) > 1 && len(last) == 1 && last[0] == "" {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

func tableMarkup(rows [][]string, align string) string {
	var b strings.Builder
	b.WriteString("<mtable")
	if align != "" {
		b.WriteString(` columnalign="` + align + `"`)
	}
	b.WriteString(">")
	for _, row := range rows {
		b.WriteString("<mtr>")
		for _, cell := range row {
			b.WriteString("<mtd><mrow>" + cell + "</mrow></mtd>")
		}
		b.WriteString("</mtr>")
	}
	b.WriteString("</mtable>")
	return b.String()
}

func (p *texParser) parseScripted(b *strings.Builder) error {
	var base strings.Builder
	limits := false
	if t := p.peek(); t != nil && t.kind != tkSup && t.kind != tkSub {
		l, err := p.parseAtom(&base)
		if err != nil {
			return err
		}
		limits = l && p.display
	}
	if t := p.peek(); t != nil && t.kind == tkCommand {
		switch t.val {
		case "limits":
			p.next()
			limits = true
		case "nolimits":
			p.next()
			limits = false
		}
	}
	var sub, sup string
	hasSub, hasSup := false, false
	for {
		t := p.peek()
		if t == nil || (t.kind != tkSup && t.kind != tkSub) {
			break
		}
		p.next()
		arg, err := p.parseArg()
		if err != nil {
			return err
		}
		if t.kind == tkSup {
			if hasSup {
				return fmt.Errorf("%w: double superscript", errTeX)
			}
			sup, hasSup = arg, true
		} else {
			if hasSub {
				return fmt.Errorf("%w: double subscript", errTeX)
			}
			sub, hasSub = arg, true
		}
	}
	if !hasSub && !hasSup {
		b.WriteString(base.String())
		return nil
	}
	bs := base.String()
	if bs == "" {
		bs = "<mrow></mrow>"
	}
	under, over, both := "msub", "msup", "msubsup"
	if limits {
		under, over, both = "munder", "mover", "munderover"
	}
	switch {
	case hasSub && hasSup:
		b.WriteString("<" + both + ">" + bs + sub + sup + "</" + both + ">")
	case hasSub:
		b.WriteString("<" + under + ">" + bs + sub + "</" + under + ">")
	default:
		b.WriteString("<" + over + ">" + bs + sup + "</" + over + ">")
	}
	return nil
}

// parseArg 读取一个命令参数或上下标：花括号组或单个记号。
func (p *texParser) parseArg() (string, error) {
	t := p.peek()
	if t == nil {
		return "", fmt.Errorf("%w: missing argument", errTeX)
	}
	switch t.kind {
	case tkOpen:
		p.next()
		var b strings.Builder
		if err := p.parseList(&b); err != nil {
			return "", err
		}
		if err := p.expect(tkClose, "}"); err != nil {
			return "", err
		}
		return "<mrow>" + b.String() + "</mrow>", nil
	case tkNumber:
		// x^23 只取第一位
		if len(t.val) > 1 {
			first := t.val[:1]
			t.val = t.val[1:]
			return "<mn>" + first + "</mn>", nil
		}
	case tkClose, tkSup, tkSub, tkAmp:
		return "", fmt.Errorf("%w: unexpected %s", errTeX, t)
	}
	var b strings.Builder
	if _, err := p.parseAtom(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// parseAtom 写出恰好一个元素（或什么都不写），返回上下标是否应放在正上/正下方。
func (p *texParser) parseAtom(b *strings.Builder) (bool, error) {
	t := p.next()
	if t == nil {
		return false, fmt.Errorf("%w: unexpected end", errTeX)
	}
	switch t.kind {
	case tkOpen:
		var inner strings.Builder
		if err := p.parseList(&inner); err != nil {
			return false, err
		}
		if err := p.expect(tkClose, "}"); err != nil {
			return false, err
		}
		b.WriteString("<mrow>" + inner.String() + "</mrow>")
	case tkLetter:
		p.writeIdent(b, t.val)
	case tkNumber:
		b.WriteString("<mn>" + t.val + "</mn>")
	case tkOther:
		writeOther(b, t.val)
	case tkText:
		text := textUnescaper.Replace(t.arg)
		if t.val == "operatorname" {
			b.WriteString("<mi>" + html.EscapeString(strings.TrimSpace(text)) + "</mi>")
			return false, nil
		}
		b.WriteString("<mtext>" + html.EscapeString(text) + "</mtext>")
	case tkCommand:
		return p.parseCommand(b, t.val)
	default:
		return false, fmt.Errorf("%w: unexpected %s", errTeX, t)
	}
	return false, nil
}

func (p *texParser) writeIdent(b *strings.Builder, s string) {
	if p.variant != "" {
		b.WriteString(`<mi mathvariant="` + p.variant + `">` + html.EscapeString(s) + "</mi>")
		return
	}
	b.WriteString("<mi>" + html.EscapeString(s) + "</mi>")
}

func writeOther(b *strings.Builder, s string) {
	switch s {
	case "-":
		s = "−"
	case "*":
		s = "∗"
	case "'":
		s = "′"
	case "~":
		b.WriteString(`<mspace width="0.25em"/>`)
		return
	}
	b.WriteString("<mo>" + html.EscapeString(s) + "</mo>")
}

func (p *texParser) parseCommand(b *strings.Builder, name string) (bool, error) {
	if s, ok := texLowerGreek[name]; ok {
		p.writeIdent(b, s)
		return false, nil
	}
	if s, ok := texUpperGreek[name]; ok {
		b.WriteString(`<mi mathvariant="normal">` + s + "</mi>")
		return false, nil
	}
	if s, ok := texOperators[name]; ok {
		b.WriteString("<mo>" + html.EscapeString(s) + "</mo>")
		return false, nil
	}
	if s, ok := texLargeOps[name]; ok {
		b.WriteString("<mo>" + s + "</mo>")
		return !texIntegrals[name], nil
	}
	if limits, ok := texFunctions[name]; ok {
		fn := name
		switch name {
		case "liminf":
			fn = "lim inf"
		case "limsup":
			fn = "lim sup"
		}
		b.WriteString("<mi>" + fn + "</mi>")
		return limits, nil
	}
	if w, ok := texSpaces[name]; ok {
		b.WriteString(`<mspace width="` + w + `"/>`)
		return false, nil
	}
	if s, ok := texAccents[name]; ok {
		arg, err := p.parseArg()
		if err != nil {
			return false, err
		}
		b.WriteString(`<mover accent="true">` + arg + "<mo>" + html.EscapeString(s) + "</mo></mover>")
		return false, nil
	}
	if v, ok := texVariants[name]; ok {
		old := p.variant
		p.variant = v
		arg, err := p.parseArg()
		p.variant = old
		if err != nil {
			return false, err
		}
		b.WriteString(arg)
		return false, nil
	}
	if size, ok := texDelimSizes[name]; ok {
		d, err := p.parseDelim()
		if err != nil {
			return false, err
		}
		b.WriteString(`<mo minsize="` + size + `" maxsize="` + size + `">` + d + "</mo>")
		return false, nil
	}

	switch name {
	case "frac", "dfrac", "tfrac", "cfrac":
		num, err := p.parseArg()
		if err != nil {
			return false, err
		}
		den, err := p.parseArg()
		if err != nil {
			return false, err
		}
		b.WriteString("<mfrac>" + num + den + "</mfrac>")
	case "binom", "dbinom", "tbinom":
		n, err := p.parseArg()
		if err != nil {
			return false, err
		}
		k, err := p.parseArg()
		if err != nil {
			return false, err
		}
		b.WriteString(`<mrow><mo>(</mo><mfrac linethickness="0">` + n + k + `</mfrac><mo>)</mo></mrow>`)
	case "sqrt":
		index := ""
		hasIndex := false
		if t := p.peek(); t != nil && t.kind == tkOther && t.val == "[" {
			p.next()
			p.bracket++
			var idx strings.Builder
			err := p.parseList(&idx)
			p.bracket--
			if err != nil {
				return false, err
			}
			if err := p.expect(tkOther, "]"); err != nil {
				return false, err
			}
			index, hasIndex = "<mrow>"+idx.String()+"</mrow>", true
		}
		radicand, err := p.parseArg()
		if err != nil {
			return false, err
		}
		if hasIndex {
			b.WriteString("<mroot>" + radicand + index + "</mroot>")
		} else {
			b.WriteString("<msqrt>" + radicand + "</msqrt>")
		}
	case "underline":
		arg, err := p.parseArg()
		if err != nil {
			return false, err
		}
		b.WriteString(`<munder accentunder="true">` + arg + "<mo>_</mo></munder>")
	case "overbrace", "underbrace":
		arg, err := p.parseArg()
		if err != nil {
			return false, err
		}
		if name == "overbrace" {
			b.WriteString("<mover>" + arg + "<mo>⏞</mo></mover>")
		} else {
			b.WriteString("<munder>" + arg + "<mo>⏟</mo></munder>")
		}
		return true, nil
	case "left":
		open, err := p.parseDelim()
		if err != nil {
			return false, err
		}
		var inner strings.Builder
		if err := p.parseList(&inner); err != nil {
			return false, err
		}
		if err := p.expect(tkCommand, "right"); err != nil {
			return false, err
		}
		closing, err := p.parseDelim()
		if err != nil {
			return false, err
		}
		b.WriteString("<mrow>" + fence(open) + inner.String() + fence(closing) + "</mrow>")
	case "middle":
		d, err := p.parseDelim()
		if err != nil {
			return false, err
		}
		b.WriteString(`<mo stretchy="true">` + d + "</mo>")
	case "not":
		t := p.next()
		if t == nil {
			return false, fmt.Errorf("%w: \\not at end", errTeX)
		}
		s, ok := texNegations[t.val]
		if !ok || t.kind == tkLetter || t.kind == tkNumber {
			return false, fmt.Errorf("%w: \\not %s", errTeX, t)
		}
		b.WriteString("<mo>" + html.EscapeString(s) + "</mo>")
	case "begin":
		env, err := p.envName()
		if err != nil {
			return false, err
		}
		return false, p.parseEnv(b, env)
	case "displaystyle", "textstyle", "limits", "nolimits":
	default:
		return false, fmt.Errorf("%w: \\%s", errTeX, name)
	}
	return false, nil
}

func fence(d string) string {
	if d == "" {
		return ""
	}
	return `<mo fence="true" stretchy="true">` + d + "</mo>"
}

// parseDelim 读取 \left 等之后的定界符，"." 表示空。
func (p *texParser) parseDelim() (string, error) {
	t := p.next()
	if t == nil {
		return "", fmt.Errorf("%w: missing delimiter", errTeX)
	}
	switch t.kind {
	case tkOther:
		switch t.val {
		case ".":
			return "", nil
		case "(", ")", "[", "]", "|", "/":
			return t.val, nil
		case "<":
			return "⟨", nil
		case ">":
			return "⟩", nil
		}
	case tkCommand:
		if d, ok := texDelims[t.val]; ok {
			return html.EscapeString(d), nil
		}
	}
	return "", fmt.Errorf("%w: bad delimiter %s", errTeX, t)
}

func (p *texParser) envName() (string, error) {
	if err := p.expect(tkOpen, "{"); err != nil {
		return "", err
	}
	var name strings.Builder
	for {
		t := p.next()
		if t == nil {
			return "", fmt.Errorf("%w: unterminated environment name", errTeX)
		}
		switch {
		case t.kind == tkClose:
			return name.String(), nil
		case t.kind == tkLetter, t.kind == tkOther && t.val == "*":
			name.WriteString(t.val)
		default:
			return "", fmt.Errorf("%w: bad environment name", errTeX)
		}
	}
}

func (p *texParser) parseEnv(b *strings.Builder, env string) error {
	fences, ok := texEnvFences[env]
	if !ok {
		return fmt.Errorf("%w: environment %s", errTeX, env)
	}
	rows, err := p.parseTable()
	if err != nil {
		return err
	}
	if err := p.expect(tkCommand, "end"); err != nil {
		return err
	}
	end, err := p.envName()
	if err != nil {
		return err
	}
	if end != env {
		return fmt.Errorf("%w: \\begin{%s} closed by \\end{%s}", errTeX, env, end)
	}
	table := tableMarkup(rows, texEnvAlign[env])
	if fences[0] == "" && fences[1] == "" {
		b.WriteString(table)
		return nil
	}
	b.WriteString("<mrow>" + fence(fences[0]) + table + fence(fences[1]) + "</mrow>")
	return nil
}
