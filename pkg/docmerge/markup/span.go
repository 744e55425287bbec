package markup

import (
	"regexp"
	"strings"
)

const tableClosingTag = "</w:tbl>"

var (
	mergeRestartRegex  = regexp.MustCompile(`<w:vMerge\s+w:val=["']restart["']\s*(?:/>|></w:vMerge>)`)
	mergeContinueRegex = regexp.MustCompile(`<w:vMerge(?:\s+w:val=["']continue["'])?\s*(?:/>|></w:vMerge>)`)
)

// Span is a [Start, End) byte range of a text buffer.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Text returns the part of buf covered by the span.
func (s Span) Text(buf string) string {
	return buf[s.Start:s.End]
}

func (s Span) within(buf string) bool {
	return s.Start >= 0 && s.Start <= s.End && s.End <= len(buf)
}

// BlockSpan locates a block delimited by ${NAME} and ${/NAME}.
//
// Outer covers both markers and Inner the content between them. A marker
// that is the only text of its paragraph (or run) owns that element, so
// Outer then covers the whole marker paragraphs and Inner stays balanced.
type BlockSpan struct {
	Name  string
	Outer Span
	Inner Span
}

// LocateRow finds the table row holding the first occurrence of the
// placeholder name. If that row starts a vertically merged cell, the span is
// extended over every following row that continues the merge, so the rows
// are cloned as one unit.
func LocateRow(buf, name string) (Span, error) {
	token := Bracket(name)
	pos := strings.Index(buf, token)
	if pos < 0 {
		return Span{}, &PlaceholderNotFoundError{Placeholder: token}
	}

	row, ok := rowScanner.enclosing(buf, pos)
	if !ok {
		reason := "no enclosing table row end"
		if row.Start < 0 {
			reason = "no enclosing table row start"
		}
		return Span{}, &StructuralBoundaryError{Placeholder: token, Offset: pos, Reason: reason}
	}

	if mergeRestartRegex.MatchString(row.Text(buf)) {
		for {
			next, ok := rowScanner.next(buf, row.End)
			if !ok || strings.Contains(buf[row.End:next.Start], tableClosingTag) {
				break
			}
			if !mergeContinueRegex.MatchString(next.Text(buf)) {
				break
			}
			row.End = next.End
		}
	}
	return row, nil
}

// LocateBlock finds the first ${name} marker and the first ${/name} after it.
func LocateBlock(buf, name string) (BlockSpan, error) {
	name = Unbracket(name)
	startMarker := "${" + name + "}"
	endMarker := "${/" + name + "}"

	start := strings.Index(buf, startMarker)
	if start < 0 {
		return BlockSpan{}, &BlockNotFoundError{Block: name, Marker: startMarker}
	}
	end := strings.Index(buf[start+len(startMarker):], endMarker)
	if end < 0 {
		if before := strings.Index(buf, endMarker); before >= 0 {
			return BlockSpan{}, &BlockBoundaryError{Block: name, StartOffset: start, EndOffset: before}
		}
		return BlockSpan{}, &BlockNotFoundError{Block: name, Marker: endMarker}
	}
	end += start + len(startMarker)

	open := markerRegion(buf, start, startMarker)
	closing := markerRegion(buf, end, endMarker)
	if open.End > closing.Start {
		return BlockSpan{}, &StructuralBoundaryError{
			Placeholder: startMarker,
			Offset:      start,
			Reason:      "block markers overlap",
		}
	}

	inner := Span{Start: open.End, End: closing.Start}
	if !Balanced(inner.Text(buf)) {
		return BlockSpan{}, &StructuralBoundaryError{
			Placeholder: startMarker,
			Offset:      start,
			Reason:      "block content is not balanced markup",
		}
	}

	return BlockSpan{
		Name:  name,
		Outer: Span{Start: open.Start, End: closing.End},
		Inner: inner,
	}, nil
}

// markerRegion returns the range a block marker occupies: its paragraph or
// run when the marker is the only text there, otherwise the marker itself.
func markerRegion(buf string, pos int, marker string) Span {
	for _, scanner := range []*elementScanner{paragraphScanner, runScanner} {
		el, ok := scanner.enclosing(buf, pos)
		if ok && strings.TrimSpace(StripTags(el.Text(buf))) == marker {
			return el
		}
	}
	return Span{Start: pos, End: pos + len(marker)}
}

// SpliceSpan replaces the span of buf with repl.
func SpliceSpan(buf string, span Span, repl string) string {
	var sb strings.Builder
	sb.Grow(len(buf) - span.Len() + len(repl))
	sb.WriteString(buf[:span.Start])
	sb.WriteString(repl)
	sb.WriteString(buf[span.End:])
	return sb.String()
}
