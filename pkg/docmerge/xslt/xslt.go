// Package xslt runs XSL transformations over a template's main part.
//
// Parameters are bound by rewriting the stylesheet's top-level xsl:param
// declarations before it is compiled. Native runs the XSLT 1.0 instructions
// and patterns that document stylesheets rely on; XPath evaluation is done
// by github.com/antchfx/xpath over an etree tree.
package xslt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// Namespace is the XSLT namespace URI.
const Namespace = "http://www.w3.org/1999/XSL/Transform"

// Processor transforms a document with a stylesheet and a parameter set.
// Parameter names are matched against stylesheet parameters declared in
// namespaceURI; an empty namespaceURI selects unqualified parameters.
type Processor interface {
	Transform(document, stylesheet []byte, params map[string]string, namespaceURI string) ([]byte, error)
}

// Native is a pure Go Processor. It supports template rules with modes and
// priorities, named templates, variables and parameters, sorting, attribute
// value templates and the usual result-building instructions. xsl:import,
// xsl:include, xsl:key and xsl:number are rejected.
type Native struct {
	// OnMessage receives the text of non-terminating xsl:message
	// instructions. Nil drops them.
	OnMessage func(message string)
}

// Transform checks that document is well formed, binds params into the
// stylesheet and runs it.
func (p Native) Transform(document, stylesheet []byte, params map[string]string, namespaceURI string) (out []byte, err error) {
	source, err := parseDocument(document)
	if err != nil {
		return nil, err
	}

	bound, err := BindParams(stylesheet, params, namespaceURI)
	if err != nil {
		return nil, err
	}
	sheetDoc := etree.NewDocument()
	if err := sheetDoc.ReadFromBytes(bound); err != nil {
		return nil, &TransformError{Stage: StageStylesheet, Cause: err}
	}
	sheet, err := compileStylesheet(sheetDoc)
	if err != nil {
		return nil, &TransformError{Stage: StageStylesheet, Cause: err}
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &TransformError{Stage: StageTransform, Cause: fmt.Errorf("%v", r)}
		}
	}()
	t := newTransform(sheet, source, p.OnMessage)
	result, err := t.run()
	if err != nil {
		return nil, &TransformError{Stage: StageTransform, Cause: err}
	}
	out, err = t.serialize(result)
	if err != nil {
		return nil, &TransformError{Stage: StageTransform, Cause: err}
	}
	return out, nil
}

// CheckWellFormed reports whether document parses as XML.
func CheckWellFormed(document []byte) error {
	_, err := parseDocument(document)
	return err
}

func parseDocument(document []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(document); err != nil {
		return nil, &TransformError{Stage: StageDocument, Cause: err}
	}
	if doc.Root() == nil {
		return nil, &TransformError{Stage: StageDocument, Cause: fmt.Errorf("no root element")}
	}
	return doc, nil
}

// BindParams returns a copy of stylesheet in which every top-level xsl:param
// named in params holds the given string value. Naming a parameter the
// stylesheet does not declare is an error.
func BindParams(stylesheet []byte, params map[string]string, namespaceURI string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(stylesheet); err != nil {
		return nil, &TransformError{Stage: StageStylesheet, Cause: err}
	}
	root := doc.Root()
	if root == nil || root.NamespaceURI() != Namespace ||
		(root.Tag != "stylesheet" && root.Tag != "transform") {
		return nil, &TransformError{Stage: StageStylesheet, Cause: fmt.Errorf("root element is not xsl:stylesheet")}
	}
	if len(params) == 0 {
		return stylesheet, nil
	}

	declared := make(map[string]*etree.Element)
	for _, el := range root.ChildElements() {
		if el.Tag != "param" || el.NamespaceURI() != Namespace {
			continue
		}
		prefix, local := splitQName(el.SelectAttrValue("name", ""))
		uri := ""
		if prefix != "" {
			uri = resolvePrefix(el, prefix)
		}
		if uri == namespaceURI {
			declared[local] = el
		}
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		el, ok := declared[name]
		if !ok {
			return nil, &TransformError{
				Stage: StageParams,
				Cause: fmt.Errorf("parameter %q is not declared in namespace %q", name, namespaceURI),
			}
		}
		el.RemoveAttr("select")
		for len(el.Child) > 0 {
			el.RemoveChildAt(0)
		}
		el.SetText(params[name])
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, &TransformError{Stage: StageParams, Cause: err}
	}
	return out, nil
}

func splitQName(qname string) (prefix, local string) {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}

// resolvePrefix looks up the namespace bound to prefix in scope at el.
func resolvePrefix(el *etree.Element, prefix string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, attr := range e.Attr {
			if attr.Space == "xmlns" && attr.Key == prefix {
				return attr.Value
			}
		}
	}
	return ""
}
