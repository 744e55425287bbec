package xslt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xpath"
	"github.com/beevik/etree"
)

// A value is one of string, float64, bool, nodeSet or *fragment.
type value interface{}

// nodeSet holds source nodes in document order.
type nodeSet []*navigator

// fragment is a result tree fragment built by a variable body.
type fragment struct {
	tokens []etree.Token
}

func (f *fragment) String() string {
	var sb strings.Builder
	for _, t := range f.tokens {
		switch c := t.(type) {
		case *etree.CharData:
			sb.WriteString(c.Data)
		case *etree.Element:
			sb.WriteString(textContent(c))
		}
	}
	return sb.String()
}

func stringValue(v value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(x)
	case nodeSet:
		if len(x) == 0 {
			return ""
		}
		return x[0].Value()
	case *fragment:
		return x.String()
	}
	return fmt.Sprint(v)
}

func booleanValue(v value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case nodeSet:
		return len(x) > 0
	}
	return true
}

func numberValue(v value) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(stringValue(v)), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// literal renders v as an XPath expression that evaluates to the same value.
func literal(v value) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "true()"
		}
		return "false()"
	case float64:
		switch {
		case math.IsNaN(x):
			return "(0 div 0)"
		case math.IsInf(x, 1):
			return "(1 div 0)"
		case math.IsInf(x, -1):
			return "(-1 div 0)"
		}
		return "(" + strconv.FormatFloat(x, 'f', -1, 64) + ")"
	case nodeSet:
		switch len(x) {
		case 0:
			return "/.."
		case 1:
			return x[0].path()
		}
		paths := make([]string, len(x))
		for i, n := range x {
			paths[i] = n.path()
		}
		return "(" + strings.Join(paths, " | ") + ")"
	}
	return quote(stringValue(v))
}

func quote(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// scope is a linked list of variable bindings keyed by expanded name.
type scope struct {
	parent *scope
	name   string
	value  value
}

func (s *scope) bind(name string, v value) *scope {
	return &scope{parent: s, name: name, value: v}
}

func (s *scope) lookup(name string) (value, bool) {
	for ; s != nil; s = s.parent {
		if s.name == name {
			return s.value, true
		}
	}
	return nil, false
}

// context is the dynamic context an expression is evaluated in.
type context struct {
	node *navigator
	pos  int
	size int
	vars *scope
}

func isNameChar(c byte) bool {
	return c == '_' || c == '-' || c == '.' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// bindExpression rewrites expr so the xpath package can evaluate it: variable
// references become literals, current() becomes a path to the context node,
// and position() and last() outside predicates become the context position
// and size.
func (t *transform) bindExpression(expr string, ctx *context) (string, error) {
	if !strings.ContainsAny(expr, "$(") {
		return expr, nil
	}
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '\'' || c == '"':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				return "", fmt.Errorf("unterminated string literal in %q", expr)
			}
			sb.WriteString(expr[i : i+end+2])
			i += end + 2
			continue
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == '$':
			j := i + 1
			for j < len(expr) && (isNameChar(expr[j]) || expr[j] == ':') {
				j++
			}
			name := t.sheet.expandedName(expr[i+1 : j])
			v, ok := ctx.vars.lookup(name)
			if !ok {
				return "", fmt.Errorf("variable $%s is not defined", expr[i+1:j])
			}
			sb.WriteString(literal(v))
			i = j
			continue
		case i == 0 || !isNameChar(expr[i-1]):
			if fn, n := contextFunction(expr[i:]); n > 0 {
				switch {
				case fn == "current":
					sb.WriteString(literal(nodeSet{ctx.node}))
				case depth == 0 && fn == "position":
					sb.WriteString(literal(float64(ctx.pos)))
				case depth == 0 && fn == "last":
					sb.WriteString(literal(float64(ctx.size)))
				default:
					sb.WriteString(expr[i : i+n])
				}
				i += n
				continue
			}
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), nil
}

// contextFunction reports whether s starts with a call to current(),
// position() or last(), returning the function name and the call's length.
func contextFunction(s string) (string, int) {
	for _, fn := range []string{"current", "position", "last"} {
		if !strings.HasPrefix(s, fn) {
			continue
		}
		rest := strings.TrimLeft(s[len(fn):], " \t\r\n")
		if !strings.HasPrefix(rest, "(") {
			continue
		}
		inner := strings.TrimLeft(rest[1:], " \t\r\n")
		if !strings.HasPrefix(inner, ")") {
			continue
		}
		return fn, len(s) - len(inner) + 1
	}
	return "", 0
}

func (t *transform) compile(expr string) (compiled *xpath.Expr, err error) {
	if c, ok := t.exprs[expr]; ok {
		return c, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid expression %q: %v", expr, r)
		}
	}()
	compiled, err = xpath.CompileWithNS(expr, t.sheet.namespaces)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	t.exprs[expr] = compiled
	return compiled, nil
}

// eval evaluates an XPath expression in ctx.
func (t *transform) eval(expr string, ctx *context) (result value, err error) {
	if name, ok := variableReference(expr); ok {
		v, found := ctx.vars.lookup(t.sheet.expandedName(name))
		if !found {
			return nil, fmt.Errorf("variable $%s is not defined", name)
		}
		return v, nil
	}
	bound, err := t.bindExpression(expr, ctx)
	if err != nil {
		return nil, err
	}
	compiled, err := t.compile(bound)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate %q: %v", expr, r)
		}
	}()
	switch v := compiled.Evaluate(ctx.node.Copy()).(type) {
	case *xpath.NodeIterator:
		return t.collect(v), nil
	case string, float64, bool:
		return v, nil
	default:
		return nil, fmt.Errorf("evaluate %q: unexpected result %T", expr, v)
	}
}

// variableReference reports whether expr is nothing but a variable reference.
func variableReference(expr string) (string, bool) {
	expr = strings.TrimSpace(expr)
	if len(expr) < 2 || expr[0] != '$' {
		return "", false
	}
	for i := 1; i < len(expr); i++ {
		if !isNameChar(expr[i]) && expr[i] != ':' {
			return "", false
		}
	}
	return expr[1:], true
}

func (t *transform) evalNodes(expr string, ctx *context) (nodeSet, error) {
	v, err := t.eval(expr, ctx)
	if err != nil {
		return nil, err
	}
	nodes, ok := v.(nodeSet)
	if !ok {
		return nil, fmt.Errorf("expression %q does not select nodes", expr)
	}
	return nodes, nil
}

// collect drains it into a duplicate-free node set in document order.
func (t *transform) collect(it *xpath.NodeIterator) nodeSet {
	seen := make(map[nodeKey]bool)
	var nodes nodeSet
	for it.MoveNext() {
		n, ok := it.Current().Copy().(*navigator)
		if !ok || seen[n.key()] {
			continue
		}
		seen[n.key()] = true
		nodes = append(nodes, n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return t.position(nodes[i]) < t.position(nodes[j])
	})
	return nodes
}

func (t *transform) position(n *navigator) int {
	if p, ok := t.order[n.key()]; ok {
		return p
	}
	return math.MaxInt
}
