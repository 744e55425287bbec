package xslt

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/antchfx/xpath"
	"github.com/beevik/etree"
)

// maxDepth bounds nested template invocations.
const maxDepth = 512

// transform holds the state of one stylesheet run over one source document.
type transform struct {
	sheet     *compiledSheet
	source    *etree.Document
	root      *navigator
	order     map[nodeKey]int
	exprs     map[string]*xpath.Expr
	matches   map[string]map[nodeKey]bool
	globals   *scope
	depth     int
	onMessage func(string)
}

func newTransform(sheet *compiledSheet, source *etree.Document, onMessage func(string)) *transform {
	return &transform{
		sheet:     sheet,
		source:    source,
		root:      newNavigator(source),
		order:     documentOrder(source),
		exprs:     make(map[string]*xpath.Expr),
		matches:   make(map[string]map[nodeKey]bool),
		onMessage: onMessage,
	}
}

// run applies templates to the document node and returns the result tree.
func (t *transform) run() (*etree.Document, error) {
	for _, el := range t.sheet.globals {
		ctx := t.rootContext()
		v, err := t.variableValue(el, ctx)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", el.SelectAttrValue("name", ""), err)
		}
		t.globals = t.globals.bind(t.sheet.expandedName(el.SelectAttrValue("name", "")), v)
	}

	out := etree.NewDocument()
	if err := t.applyTo(t.root, 1, 1, "", nil, &out.Element); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *transform) rootContext() *context {
	return &context{node: t.root, pos: 1, size: 1, vars: t.globals}
}

func (t *transform) applyTo(node *navigator, pos, size int, mode string, params map[string]value, out *etree.Element) error {
	r, err := t.match(node, mode)
	if err != nil {
		return err
	}
	if r == nil {
		return t.builtin(node, mode, out)
	}
	return t.invoke(r.body, &context{node: node, pos: pos, size: size, vars: t.globals}, params, out)
}

// match returns the best rule in mode for node, or nil.
func (t *transform) match(node *navigator, mode string) (*rule, error) {
	for _, r := range t.sheet.rules {
		if r.mode != mode {
			continue
		}
		set, ok := t.matches[r.pattern]
		if !ok {
			nodes, err := t.evalNodes(matchExpression(r.pattern), t.rootContext())
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", r.pattern, err)
			}
			set = make(map[nodeKey]bool, len(nodes))
			for _, n := range nodes {
				set[n.key()] = true
			}
			t.matches[r.pattern] = set
		}
		if set[node.key()] {
			return r, nil
		}
	}
	return nil, nil
}

func (t *transform) builtin(node *navigator, mode string, out *etree.Element) error {
	switch node.NodeType() {
	case xpath.RootNode, xpath.ElementNode:
		children := childNodes(node)
		for i, c := range children {
			if err := t.applyTo(c, i+1, len(children), mode, nil, out); err != nil {
				return err
			}
		}
	case xpath.TextNode, xpath.AttributeNode:
		if v := node.Value(); v != "" {
			out.CreateText(v)
		}
	}
	return nil
}

func childNodes(node *navigator) nodeSet {
	var children nodeSet
	c := *node
	for ok := c.MoveToChild(); ok; ok = c.MoveToNext() {
		n := c
		children = append(children, &n)
	}
	return children
}

// invoke instantiates a template body. Leading xsl:param elements take
// their value from params when present.
func (t *transform) invoke(body *etree.Element, ctx *context, params map[string]value, out *etree.Element) error {
	if t.depth >= maxDepth {
		return fmt.Errorf("template recursion deeper than %d", maxDepth)
	}
	t.depth++
	defer func() { t.depth-- }()

	c := *ctx
	for _, el := range body.ChildElements() {
		if !isXSL(el, "param") {
			continue
		}
		name := t.sheet.expandedName(el.SelectAttrValue("name", ""))
		v, ok := params[name]
		if !ok {
			var err error
			if v, err = t.variableValue(el, &c); err != nil {
				return err
			}
		}
		c.vars = c.vars.bind(name, v)
	}
	return t.sequence(body, &c, out)
}

// sequence instantiates the children of parent. Variables bound by a child
// are visible to its following siblings.
func (t *transform) sequence(parent *etree.Element, ctx *context, out *etree.Element) error {
	c := *ctx
	for _, tok := range parent.Child {
		switch n := tok.(type) {
		case *etree.CharData:
			if !n.IsWhitespace() {
				out.CreateText(n.Data)
			}
		case *etree.Element:
			switch {
			case isXSL(n, "param"), isXSL(n, "sort"), isXSL(n, "with-param"), isXSL(n, "fallback"):
			case isXSL(n, "variable"):
				v, err := t.variableValue(n, &c)
				if err != nil {
					return err
				}
				c.vars = c.vars.bind(t.sheet.expandedName(n.SelectAttrValue("name", "")), v)
			default:
				if err := t.instruction(n, &c, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// variableValue computes the value of an xsl:variable, xsl:param or
// xsl:with-param element.
func (t *transform) variableValue(el *etree.Element, ctx *context) (value, error) {
	if sel := el.SelectAttr("select"); sel != nil {
		return t.eval(sel.Value, ctx)
	}
	if len(el.ChildElements()) == 0 {
		return el.Text(), nil
	}
	tmp := etree.NewElement("fragment")
	if err := t.sequence(el, ctx, tmp); err != nil {
		return nil, err
	}
	return &fragment{tokens: tmp.Child}, nil
}

func (t *transform) instruction(el *etree.Element, ctx *context, out *etree.Element) error {
	if el.NamespaceURI() != Namespace {
		return t.literalElement(el, ctx, out)
	}

	switch el.Tag {
	case "apply-templates":
		nodes, err := t.evalNodes(el.SelectAttrValue("select", "node()"), ctx)
		if err != nil {
			return err
		}
		if nodes, err = t.sortNodes(el, nodes, ctx); err != nil {
			return err
		}
		params, err := t.withParams(el, ctx)
		if err != nil {
			return err
		}
		mode := el.SelectAttrValue("mode", "")
		if mode != "" {
			mode = t.sheet.expandedName(mode)
		}
		for i, n := range nodes {
			if err := t.applyTo(n, i+1, len(nodes), mode, params, out); err != nil {
				return err
			}
		}
		return nil

	case "call-template":
		name := el.SelectAttrValue("name", "")
		body, ok := t.sheet.named[t.sheet.expandedName(name)]
		if !ok {
			return fmt.Errorf("no template named %q", name)
		}
		params, err := t.withParams(el, ctx)
		if err != nil {
			return err
		}
		return t.invoke(body, &context{node: ctx.node, pos: ctx.pos, size: ctx.size, vars: t.globals}, params, out)

	case "for-each":
		nodes, err := t.evalNodes(el.SelectAttrValue("select", ""), ctx)
		if err != nil {
			return err
		}
		if nodes, err = t.sortNodes(el, nodes, ctx); err != nil {
			return err
		}
		for i, n := range nodes {
			c := &context{node: n, pos: i + 1, size: len(nodes), vars: ctx.vars}
			if err := t.sequence(el, c, out); err != nil {
				return err
			}
		}
		return nil

	case "value-of":
		v, err := t.eval(el.SelectAttrValue("select", ""), ctx)
		if err != nil {
			return err
		}
		if s := stringValue(v); s != "" {
			out.CreateText(s)
		}
		return nil

	case "text":
		if s := el.Text(); s != "" {
			out.CreateText(s)
		}
		return nil

	case "copy":
		return t.copyShallow(el, ctx, out)

	case "copy-of":
		v, err := t.eval(el.SelectAttrValue("select", ""), ctx)
		if err != nil {
			return err
		}
		switch x := v.(type) {
		case nodeSet:
			for _, n := range x {
				if err := copyNode(n, out); err != nil {
					return err
				}
			}
		case *fragment:
			for _, tok := range x.tokens {
				out.AddChild(copyToken(tok))
			}
		default:
			if s := stringValue(v); s != "" {
				out.CreateText(s)
			}
		}
		return nil

	case "if":
		ok, err := t.test(el, ctx)
		if err != nil || !ok {
			return err
		}
		return t.sequence(el, ctx, out)

	case "choose":
		for _, branch := range el.ChildElements() {
			switch {
			case isXSL(branch, "when"):
				ok, err := t.test(branch, ctx)
				if err != nil {
					return err
				}
				if ok {
					return t.sequence(branch, ctx, out)
				}
			case isXSL(branch, "otherwise"):
				return t.sequence(branch, ctx, out)
			}
		}
		return nil

	case "element":
		name, err := t.avt(el.SelectAttrValue("name", ""), ctx)
		if err != nil {
			return err
		}
		if name == "" {
			return fmt.Errorf("xsl:element without a name")
		}
		e := out.CreateElement(name)
		if ns := el.SelectAttr("namespace"); ns != nil {
			uri, err := t.avt(ns.Value, ctx)
			if err != nil {
				return err
			}
			declare(e, e.Space, uri)
		}
		return t.sequence(el, ctx, e)

	case "attribute":
		name, err := t.avt(el.SelectAttrValue("name", ""), ctx)
		if err != nil {
			return err
		}
		content, err := t.textOf(el, ctx)
		if err != nil {
			return err
		}
		if err := setAttr(out, name, content); err != nil {
			return err
		}
		if ns := el.SelectAttr("namespace"); ns != nil {
			uri, err := t.avt(ns.Value, ctx)
			if err != nil {
				return err
			}
			if prefix, _ := splitQName(name); prefix != "" && resolvePrefix(out, prefix) != uri {
				declare(out, prefix, uri)
			}
		}
		return nil

	case "comment":
		content, err := t.textOf(el, ctx)
		if err != nil {
			return err
		}
		out.CreateComment(content)
		return nil

	case "processing-instruction":
		name, err := t.avt(el.SelectAttrValue("name", ""), ctx)
		if err != nil {
			return err
		}
		content, err := t.textOf(el, ctx)
		if err != nil {
			return err
		}
		out.CreateProcInst(name, content)
		return nil

	case "message":
		msg, err := t.textOf(el, ctx)
		if err != nil {
			return err
		}
		if el.SelectAttrValue("terminate", "no") == "yes" {
			return fmt.Errorf("terminated by xsl:message: %s", msg)
		}
		if t.onMessage != nil {
			t.onMessage(msg)
		}
		return nil
	}
	return fmt.Errorf("xsl:%s is not supported", el.Tag)
}

func (t *transform) test(el *etree.Element, ctx *context) (bool, error) {
	v, err := t.eval(el.SelectAttrValue("test", ""), ctx)
	if err != nil {
		return false, err
	}
	return booleanValue(v), nil
}

func (t *transform) withParams(el *etree.Element, ctx *context) (map[string]value, error) {
	var params map[string]value
	for _, p := range el.ChildElements() {
		if !isXSL(p, "with-param") {
			continue
		}
		v, err := t.variableValue(p, ctx)
		if err != nil {
			return nil, err
		}
		if params == nil {
			params = make(map[string]value)
		}
		params[t.sheet.expandedName(p.SelectAttrValue("name", ""))] = v
	}
	return params, nil
}

// textOf instantiates el's content and returns its string value.
func (t *transform) textOf(el *etree.Element, ctx *context) (string, error) {
	tmp := etree.NewElement("text")
	if err := t.sequence(el, ctx, tmp); err != nil {
		return "", err
	}
	return textContent(tmp), nil
}

func (t *transform) literalElement(el *etree.Element, ctx *context, out *etree.Element) error {
	e := out.CreateElement(el.FullTag())
	for _, a := range el.Attr {
		switch {
		case isNamespaceDecl(a):
			if a.Value != Namespace {
				e.CreateAttr(a.FullKey(), a.Value)
			}
		case a.Space != "" && resolvePrefix(el, a.Space) == Namespace:
		default:
			v, err := t.avt(a.Value, ctx)
			if err != nil {
				return err
			}
			e.CreateAttr(a.FullKey(), v)
		}
	}
	return t.sequence(el, ctx, e)
}

func (t *transform) copyShallow(el *etree.Element, ctx *context, out *etree.Element) error {
	switch ctx.node.NodeType() {
	case xpath.RootNode:
		return t.sequence(el, ctx, out)
	case xpath.ElementNode:
		src, _ := ctx.node.element()
		e := out.CreateElement(src.FullTag())
		for _, a := range src.Attr {
			if isNamespaceDecl(a) {
				e.CreateAttr(a.FullKey(), a.Value)
			}
		}
		return t.sequence(el, ctx, e)
	case xpath.AttributeNode:
		return setAttr(out, ctx.node.attribute().FullKey(), ctx.node.Value())
	case xpath.TextNode:
		out.CreateText(ctx.node.Value())
	case xpath.CommentNode:
		out.CreateComment(ctx.node.Value())
	}
	return nil
}

func copyNode(n *navigator, out *etree.Element) error {
	switch n.NodeType() {
	case xpath.AttributeNode:
		return setAttr(out, n.attribute().FullKey(), n.Value())
	case xpath.RootNode:
		for _, c := range childNodes(n) {
			if err := copyNode(c, out); err != nil {
				return err
			}
		}
		return nil
	}
	out.AddChild(copyToken(n.node))
	return nil
}

func copyToken(tok etree.Token) etree.Token {
	switch c := tok.(type) {
	case *etree.Element:
		return c.Copy()
	case *etree.CharData:
		if c.IsCData() {
			return etree.NewCData(c.Data)
		}
		return etree.NewText(c.Data)
	case *etree.Comment:
		return etree.NewComment(c.Data)
	case *etree.ProcInst:
		return etree.NewProcInst(c.Target, c.Inst)
	}
	return etree.NewText("")
}

func setAttr(out *etree.Element, key, value string) error {
	if out.Tag == "" {
		return fmt.Errorf("attribute %s has no element to attach to", key)
	}
	out.CreateAttr(key, value)
	return nil
}

func declare(e *etree.Element, prefix, uri string) {
	if prefix == "" {
		e.CreateAttr("xmlns", uri)
		return
	}
	e.CreateAttr("xmlns:"+prefix, uri)
}

// avt expands an attribute value template.
func (t *transform) avt(s string, ctx *context) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := closingBrace(s, i+1)
			if end < 0 {
				return "", fmt.Errorf("unterminated expression in %q", s)
			}
			v, err := t.eval(s[i+1:end], ctx)
			if err != nil {
				return "", err
			}
			sb.WriteString(stringValue(v))
			i = end
		case c == '}':
			return "", fmt.Errorf("unmatched } in %q", s)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func closingBrace(s string, from int) int {
	var quote byte
	for i := from; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '}':
			return i
		}
	}
	return -1
}

type sortKey struct {
	selectExpr string
	numeric    bool
	descending bool
}

// sortNodes orders nodes by the xsl:sort children of el.
func (t *transform) sortNodes(el *etree.Element, nodes nodeSet, ctx *context) (nodeSet, error) {
	var keys []sortKey
	for _, s := range el.ChildElements() {
		if isXSL(s, "sort") {
			keys = append(keys, sortKey{
				selectExpr: s.SelectAttrValue("select", "."),
				numeric:    s.SelectAttrValue("data-type", "text") == "number",
				descending: s.SelectAttrValue("order", "ascending") == "descending",
			})
		}
	}
	if len(keys) == 0 || len(nodes) < 2 {
		return nodes, nil
	}

	values := make([][]value, len(nodes))
	for i, n := range nodes {
		c := &context{node: n, pos: i + 1, size: len(nodes), vars: ctx.vars}
		values[i] = make([]value, len(keys))
		for k, key := range keys {
			v, err := t.eval(key.selectExpr, c)
			if err != nil {
				return nil, err
			}
			if key.numeric {
				values[i][k] = numberValue(v)
			} else {
				values[i][k] = stringValue(v)
			}
		}
	}

	idx := make([]int, len(nodes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for k, key := range keys {
			cmp := compareKeys(values[idx[a]][k], values[idx[b]][k])
			if key.descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	sorted := make(nodeSet, len(nodes))
	for i, j := range idx {
		sorted[i] = nodes[j]
	}
	return sorted, nil
}

// compareKeys orders NaN before every number.
func compareKeys(a, b value) int {
	if fa, ok := a.(float64); ok {
		fb := b.(float64)
		switch {
		case math.IsNaN(fa) && math.IsNaN(fb):
			return 0
		case math.IsNaN(fa):
			return -1
		case math.IsNaN(fb):
			return 1
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a.(string), b.(string))
}

// serialize writes the result tree according to the stylesheet's xsl:output
// settings. Prefixes used in the result but never declared get a declaration
// from the source document or the stylesheet.
func (t *transform) serialize(result *etree.Document) ([]byte, error) {
	if t.sheet.output.method == "text" {
		return []byte(textContent(&result.Element)), nil
	}

	known := make(map[string]string)
	if root := t.source.Root(); root != nil {
		collectNamespaces(root, known)
	}
	for prefix, uri := range t.sheet.namespaces {
		if _, ok := known[prefix]; !ok && uri != Namespace {
			known[prefix] = uri
		}
	}
	for _, e := range result.ChildElements() {
		declareMissing(e, map[string]string{}, known)
	}

	if t.sheet.output.indent {
		result.Indent(2)
	}
	if !t.sheet.output.omitDecl {
		decl := `version="1.0" encoding="UTF-8"`
		if t.sheet.output.standalone != "" {
			decl += ` standalone="` + t.sheet.output.standalone + `"`
		}
		result.InsertChildAt(0, etree.NewProcInst("xml", decl))
	}
	return result.WriteToBytes()
}

func declareMissing(e *etree.Element, inScope, known map[string]string) {
	scope, copied := inScope, false
	bind := func(prefix, uri string) {
		if !copied {
			scope = make(map[string]string, len(inScope)+1)
			for k, v := range inScope {
				scope[k] = v
			}
			copied = true
		}
		scope[prefix] = uri
	}
	for _, a := range e.Attr {
		if a.Space == "xmlns" {
			bind(a.Key, a.Value)
		}
	}

	needed := []string{e.Space}
	for _, a := range e.Attr {
		if a.Space != "xmlns" {
			needed = append(needed, a.Space)
		}
	}
	for _, prefix := range needed {
		if prefix == "" || prefix == "xml" {
			continue
		}
		if _, ok := scope[prefix]; ok {
			continue
		}
		if uri, ok := known[prefix]; ok {
			declare(e, prefix, uri)
			bind(prefix, uri)
		}
	}

	for _, c := range e.ChildElements() {
		declareMissing(c, scope, known)
	}
}
