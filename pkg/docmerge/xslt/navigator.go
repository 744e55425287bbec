package xslt

import (
	"strconv"
	"strings"

	"github.com/antchfx/xpath"
	"github.com/beevik/etree"
)

// navigator is an xpath.NodeNavigator over an etree document. Only elements,
// character data and comments are visible as child nodes; namespace
// declarations are not visible as attributes.
type navigator struct {
	root *etree.Element // the document node
	node etree.Token
	attr int // index into the element's Attr slice, -1 when on the node itself
}

// nodeKey identifies a node independently of the navigator positioned on it.
type nodeKey struct {
	node etree.Token
	attr int
}

var _ xpath.NodeNavigator = (*navigator)(nil)

func newNavigator(doc *etree.Document) *navigator {
	return &navigator{root: &doc.Element, node: &doc.Element, attr: -1}
}

func (n *navigator) key() nodeKey { return nodeKey{node: n.node, attr: n.attr} }

func (n *navigator) element() (*etree.Element, bool) {
	e, ok := n.node.(*etree.Element)
	return e, ok
}

func (n *navigator) attribute() *etree.Attr {
	e, _ := n.element()
	return &e.Attr[n.attr]
}

func (n *navigator) NodeType() xpath.NodeType {
	if n.attr >= 0 {
		return xpath.AttributeNode
	}
	switch n.node.(type) {
	case *etree.CharData:
		return xpath.TextNode
	case *etree.Comment:
		return xpath.CommentNode
	}
	if n.node == etree.Token(n.root) {
		return xpath.RootNode
	}
	return xpath.ElementNode
}

func (n *navigator) LocalName() string {
	if n.attr >= 0 {
		return n.attribute().Key
	}
	if e, ok := n.element(); ok && e != n.root {
		return e.Tag
	}
	return ""
}

func (n *navigator) Prefix() string {
	if n.attr >= 0 {
		return n.attribute().Space
	}
	if e, ok := n.element(); ok {
		return e.Space
	}
	return ""
}

// NamespaceURL is picked up by the xpath package for prefixed name tests.
func (n *navigator) NamespaceURL() string {
	e, ok := n.element()
	if !ok {
		return ""
	}
	if n.attr >= 0 {
		if space := n.attribute().Space; space != "" {
			return resolvePrefix(e, space)
		}
		return ""
	}
	return e.NamespaceURI()
}

func (n *navigator) Value() string {
	if n.attr >= 0 {
		return n.attribute().Value
	}
	switch t := n.node.(type) {
	case *etree.CharData:
		return t.Data
	case *etree.Comment:
		return t.Data
	case *etree.Element:
		return textContent(t)
	}
	return ""
}

func (n *navigator) Copy() xpath.NodeNavigator {
	c := *n
	return &c
}

func (n *navigator) MoveToRoot() {
	n.node, n.attr = n.root, -1
}

func (n *navigator) MoveToParent() bool {
	if n.attr >= 0 {
		n.attr = -1
		return true
	}
	if n.node == etree.Token(n.root) {
		return false
	}
	parent := n.node.Parent()
	if parent == nil {
		return false
	}
	n.node = parent
	return true
}

func (n *navigator) MoveToNextAttribute() bool {
	e, ok := n.element()
	if !ok {
		return false
	}
	for i := n.attr + 1; i < len(e.Attr); i++ {
		if !isNamespaceDecl(e.Attr[i]) {
			n.attr = i
			return true
		}
	}
	return false
}

func (n *navigator) MoveToChild() bool {
	if n.attr >= 0 {
		return false
	}
	e, ok := n.element()
	if !ok {
		return false
	}
	if child := visibleFrom(e, 0, 1); child != nil {
		n.node = child
		return true
	}
	return false
}

func (n *navigator) MoveToFirst() bool {
	if n.attr >= 0 || n.node == etree.Token(n.root) {
		return false
	}
	parent := n.node.Parent()
	if parent == nil {
		return false
	}
	if first := visibleFrom(parent, 0, 1); first != nil {
		n.node = first
		return true
	}
	return false
}

func (n *navigator) MoveToNext() bool {
	return n.moveSibling(1)
}

func (n *navigator) MoveToPrevious() bool {
	return n.moveSibling(-1)
}

func (n *navigator) moveSibling(step int) bool {
	if n.attr >= 0 || n.node == etree.Token(n.root) {
		return false
	}
	parent := n.node.Parent()
	if parent == nil {
		return false
	}
	if sibling := visibleFrom(parent, n.node.Index()+step, step); sibling != nil {
		n.node = sibling
		return true
	}
	return false
}

func (n *navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*navigator)
	if !ok || o.root != n.root {
		return false
	}
	*n = *o
	return true
}

// path returns an absolute location path that selects exactly this node.
func (n *navigator) path() string {
	c := *n
	var steps []string
	if c.attr >= 0 {
		e, _ := c.element()
		pos := 0
		for i := 0; i <= c.attr; i++ {
			if !isNamespaceDecl(e.Attr[i]) {
				pos++
			}
		}
		steps = append(steps, "@*["+strconv.Itoa(pos)+"]")
		c.attr = -1
	}
	for c.node != etree.Token(c.root) {
		pos := 1
		probe := c
		for probe.MoveToPrevious() {
			pos++
		}
		steps = append(steps, "node()["+strconv.Itoa(pos)+"]")
		if !c.MoveToParent() {
			break
		}
	}
	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return "/" + strings.Join(steps, "/")
}

func visible(t etree.Token) bool {
	switch t.(type) {
	case *etree.Element, *etree.CharData, *etree.Comment:
		return true
	}
	return false
}

// visibleFrom scans e's children from index i in direction step and returns
// the first visible token.
func visibleFrom(e *etree.Element, i, step int) etree.Token {
	for ; i >= 0 && i < len(e.Child); i += step {
		if visible(e.Child[i]) {
			return e.Child[i]
		}
	}
	return nil
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func textContent(e *etree.Element) string {
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, t := range e.Child {
			switch c := t.(type) {
			case *etree.CharData:
				sb.WriteString(c.Data)
			case *etree.Element:
				walk(c)
			}
		}
	}
	walk(e)
	return sb.String()
}

// documentOrder numbers every node reachable from the document node.
func documentOrder(doc *etree.Document) map[nodeKey]int {
	order := make(map[nodeKey]int)
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		order[nodeKey{node: e, attr: -1}] = len(order)
		for i, a := range e.Attr {
			if !isNamespaceDecl(a) {
				order[nodeKey{node: e, attr: i}] = len(order)
			}
		}
		for _, t := range e.Child {
			switch c := t.(type) {
			case *etree.Element:
				walk(c)
			case *etree.CharData, *etree.Comment:
				order[nodeKey{node: c, attr: -1}] = len(order)
			}
		}
	}
	walk(&doc.Element)
	return order
}
