package xslt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// rule is one alternative of a template's match pattern.
type rule struct {
	pattern  string
	mode     string
	priority float64
	position int
	body     *etree.Element
}

type output struct {
	method     string
	omitDecl   bool
	standalone string
	indent     bool
}

// compiledSheet is a compiled XSLT stylesheet.
type compiledSheet struct {
	root       *etree.Element
	namespaces map[string]string
	rules      []*rule // highest priority first
	named      map[string]*etree.Element
	globals    []*etree.Element
	output     output
}

func isXSL(e *etree.Element, tag string) bool {
	return e.Tag == tag && e.NamespaceURI() == Namespace
}

func compileStylesheet(doc *etree.Document) (*compiledSheet, error) {
	root := doc.Root()
	if root == nil || !(isXSL(root, "stylesheet") || isXSL(root, "transform")) {
		return nil, fmt.Errorf("root element is not xsl:stylesheet")
	}

	s := &compiledSheet{
		root:       root,
		namespaces: make(map[string]string),
		named:      make(map[string]*etree.Element),
		output:     output{method: "xml"},
	}
	collectNamespaces(root, s.namespaces)

	for i, el := range root.ChildElements() {
		if el.NamespaceURI() != Namespace {
			continue
		}
		switch el.Tag {
		case "template":
			if err := s.addTemplate(el, i); err != nil {
				return nil, err
			}
		case "param", "variable":
			if el.SelectAttrValue("name", "") == "" {
				return nil, fmt.Errorf("xsl:%s without a name", el.Tag)
			}
			s.globals = append(s.globals, el)
		case "output":
			s.output.method = el.SelectAttrValue("method", s.output.method)
			s.output.omitDecl = el.SelectAttrValue("omit-xml-declaration", "no") == "yes"
			s.output.standalone = el.SelectAttrValue("standalone", "")
			s.output.indent = el.SelectAttrValue("indent", "no") == "yes"
		case "strip-space", "preserve-space", "decimal-format":
		default:
			return nil, fmt.Errorf("xsl:%s is not supported", el.Tag)
		}
	}

	sort.SliceStable(s.rules, func(i, j int) bool {
		if s.rules[i].priority != s.rules[j].priority {
			return s.rules[i].priority > s.rules[j].priority
		}
		return s.rules[i].position > s.rules[j].position
	})
	return s, nil
}

func (s *compiledSheet) addTemplate(el *etree.Element, position int) error {
	match := el.SelectAttrValue("match", "")
	name := el.SelectAttrValue("name", "")
	if match == "" && name == "" {
		return fmt.Errorf("xsl:template needs a match or name attribute")
	}
	if name != "" {
		s.named[s.expandedName(name)] = el
	}
	if match == "" {
		return nil
	}

	var explicit *float64
	if p := el.SelectAttrValue("priority", ""); p != "" {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("invalid template priority %q", p)
		}
		explicit = &f
	}
	mode := el.SelectAttrValue("mode", "")
	if mode != "" {
		mode = s.expandedName(mode)
	}
	for _, alt := range splitTopLevel(match, '|') {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return fmt.Errorf("empty alternative in pattern %q", match)
		}
		prio := defaultPriority(alt)
		if explicit != nil {
			prio = *explicit
		}
		s.rules = append(s.rules, &rule{pattern: alt, mode: mode, priority: prio, position: position, body: el})
	}
	return nil
}

// expandedName turns a QName into {uri}local form using the stylesheet's
// namespace declarations.
func (s *compiledSheet) expandedName(qname string) string {
	prefix, local := splitQName(qname)
	if prefix == "" {
		return local
	}
	return "{" + s.namespaces[prefix] + "}" + local
}

// collectNamespaces gathers every prefix declared anywhere under e. The
// first declaration of a prefix wins.
func collectNamespaces(e *etree.Element, into map[string]string) {
	for _, a := range e.Attr {
		if a.Space == "xmlns" {
			if _, ok := into[a.Key]; !ok {
				into[a.Key] = a.Value
			}
		}
	}
	for _, c := range e.ChildElements() {
		collectNamespaces(c, into)
	}
}

func defaultPriority(pattern string) float64 {
	p := strings.TrimPrefix(strings.TrimPrefix(pattern, "child::"), "attribute::")
	p = strings.TrimPrefix(p, "@")
	switch {
	case strings.ContainsAny(p, "/["):
		return 0.5
	case p == "*", p == "node()", p == "text()", p == "comment()", p == "processing-instruction()":
		return -0.5
	case strings.HasSuffix(p, ":*"):
		return -0.25
	}
	return 0
}

// splitTopLevel splits s at sep characters that are outside brackets,
// parentheses and string literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// matchExpression turns a match pattern into an expression that selects
// every node the pattern matches when evaluated from the document node.
func matchExpression(pattern string) string {
	if strings.HasPrefix(pattern, "/") {
		return pattern
	}
	return "//" + pattern
}
