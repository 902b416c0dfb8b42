package enricher

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"shopbot/internal/config"
)

// Selector is a compiled CSS selector. Supported syntax is the subset remote
// product pages need: tag, .class, #id, [attr], [attr=value] (quoted or
// bare), compounds like span.-b.-ltr, and the descendant combinator.
type Selector struct {
	raw   string
	parts []compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrCond
}

type attrCond struct {
	key    string
	val    string
	hasVal bool
}

// Compile parses sel.
func Compile(sel string) (*Selector, error) {
	tokens, err := splitDescendants(sel)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", sel, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("selector %q: empty", sel)
	}
	s := &Selector{raw: sel}
	for _, tok := range tokens {
		c, err := parseCompound(tok)
		if err != nil {
			return nil, fmt.Errorf("selector %q: %w", sel, err)
		}
		s.parts = append(s.parts, c)
	}
	return s, nil
}

func (s *Selector) String() string { return s.raw }

// All returns the descendants of root matching s, in document order.
func (s *Selector) All(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && s.matches(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// First returns the first match under root, or nil.
func (s *Selector) First(root *html.Node) *html.Node {
	if m := s.All(root); len(m) > 0 {
		return m[0]
	}
	return nil
}

// matches checks right to left: n must match the last compound and its
// ancestors must contain the rest in order.
func (s *Selector) matches(n *html.Node) bool {
	last := len(s.parts) - 1
	if !s.parts[last].match(n) {
		return false
	}
	i := last - 1
	for a := n.Parent; a != nil && i >= 0; a = a.Parent {
		if a.Type == html.ElementNode && s.parts[i].match(a) {
			i--
		}
	}
	return i < 0
}

func (c compound) match(n *html.Node) bool {
	if c.tag != "" && c.tag != "*" && !strings.EqualFold(n.Data, c.tag) {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	for _, cl := range c.classes {
		if !hasClass(n, cl) {
			return false
		}
	}
	for _, a := range c.attrs {
		v, ok := lookupAttr(n, a.key)
		if !ok || (a.hasVal && v != a.val) {
			return false
		}
	}
	return true
}

// splitDescendants splits on whitespace outside of [...] and quotes.
func splitDescendants(sel string) ([]string, error) {
	var out []string
	var cur strings.Builder
	depth := 0
	var quote rune
	for _, r := range strings.TrimSpace(sel) {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			if depth == 0 {
				return nil, fmt.Errorf("quote outside attribute")
			}
			quote = r
		case r == '[':
			depth++
		case r == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ]")
			}
		case r == ' ' || r == '\t' || r == '\n':
			if depth == 0 {
				if cur.Len() > 0 {
					out = append(out, cur.String())
					cur.Reset()
				}
				continue
			}
		}
		cur.WriteRune(r)
	}
	if depth != 0 || quote != 0 {
		return nil, fmt.Errorf("unterminated attribute")
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out, nil
}

func parseCompound(tok string) (compound, error) {
	var c compound
	i := 0
	readIdent := func() string {
		start := i
		for i < len(tok) && isIdentByte(tok[i]) {
			i++
		}
		return tok[start:i]
	}

	if i < len(tok) && (tok[i] == '*' || isIdentByte(tok[i])) {
		if tok[i] == '*' {
			c.tag = "*"
			i++
		} else {
			c.tag = strings.ToLower(readIdent())
		}
	}
	for i < len(tok) {
		switch tok[i] {
		case '.':
			i++
			name := readIdent()
			if name == "" {
				return c, fmt.Errorf("empty class in %q", tok)
			}
			c.classes = append(c.classes, name)
		case '#':
			i++
			name := readIdent()
			if name == "" {
				return c, fmt.Errorf("empty id in %q", tok)
			}
			c.id = name
		case '[':
			end := strings.IndexByte(tok[i:], ']')
			if end < 0 {
				return c, fmt.Errorf("unterminated attribute in %q", tok)
			}
			cond, err := parseAttr(tok[i+1 : i+end])
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, cond)
			i += end + 1
		default:
			return c, fmt.Errorf("unexpected %q in %q", tok[i], tok)
		}
	}
	return c, nil
}

func parseAttr(body string) (attrCond, error) {
	key, val, hasVal := strings.Cut(body, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return attrCond{}, fmt.Errorf("empty attribute name")
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && (val[0] == '\'' || val[0] == '"') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return attrCond{key: strings.ToLower(key), val: val, hasVal: hasVal}, nil
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// extractor is a compiled config.Strategy.
type extractor struct {
	sel  *Selector
	attr string
}

func compileStrategies(field string, strategies []config.Strategy) ([]extractor, error) {
	out := make([]extractor, 0, len(strategies))
	for _, s := range strategies {
		sel, err := Compile(s.Selector)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, extractor{sel: sel, attr: s.Attr})
	}
	return out, nil
}

// extract tries each strategy in order and returns the first non-empty value.
func extract(root *html.Node, strategies []extractor) string {
	for _, s := range strategies {
		for _, n := range s.sel.All(root) {
			var v string
			if s.attr != "" {
				v = strings.TrimSpace(attr(n, s.attr))
			} else {
				v = textContent(n)
			}
			if v != "" {
				return v
			}
		}
	}
	return ""
}

func hasClass(n *html.Node, want string) bool {
	for _, part := range strings.Fields(attr(n, "class")) {
		if part == want {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.TextNode {
			b.WriteString(x.Data)
		}
		if x.Type == html.ElementNode && (x.Data == "script" || x.Data == "style") {
			return
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
