// Package markup contains the pure text-buffer operations behind template
// processing: placeholder scanning and normalization, locating structural
// spans (table rows and named blocks) by tag text, and splicing clones of
// those spans back into the buffer.
//
// Nothing here parses a DOM. Every function takes the XML of one package part
// as a string and returns a new string, so a failed call never leaves a
// half-edited buffer behind.
//
// The contract used by the template facade is deliberately narrow:
//
//	span, err := markup.LocateRow(buf, "userId")  // find
//	buf, err = markup.CloneSpan(buf, span, 3, g)  // splice
//
// An alternative DOM-backed locator only needs to produce the same Span values.
package markup
