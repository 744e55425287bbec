package markup

import (
	"regexp"
	"strings"
)

var tagRegex = regexp.MustCompile(`<[^>]*>`)

type tagKind int

const (
	tagOpen tagKind = iota
	tagClose
	tagEmpty
	tagOther
)

// classifyTag reports the kind and qualified element name of a single tag
// such as "<w:t xml:space=\"preserve\">", "</w:r>" or "<w:b/>".
func classifyTag(tag string) (tagKind, string) {
	switch {
	case strings.HasPrefix(tag, "</"):
		return tagClose, tagName(tag[2 : len(tag)-1])
	case strings.HasPrefix(tag, "<?"), strings.HasPrefix(tag, "<!"):
		return tagOther, ""
	case strings.HasSuffix(tag, "/>"):
		return tagEmpty, tagName(tag[1 : len(tag)-2])
	default:
		return tagOpen, tagName(tag[1 : len(tag)-1])
	}
}

func tagName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// Balanced reports whether every element opened in fragment is closed in
// fragment and no element is closed that was not opened there.
func Balanced(fragment string) bool {
	var stack []string
	for _, tag := range tagRegex.FindAllString(fragment, -1) {
		kind, name := classifyTag(tag)
		switch kind {
		case tagOpen:
			stack = append(stack, name)
		case tagClose:
			if len(stack) == 0 || stack[len(stack)-1] != name {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

// mirrored reports whether removing tags from the buffer keeps it well formed:
// after dropping internally balanced pairs, the leading close tags must be
// re-opened in reverse order, e.g. "</w:t></w:r><w:r><w:t>".
func mirrored(tags []string) bool {
	var opened, closed []string
	for _, tag := range tags {
		kind, name := classifyTag(tag)
		switch kind {
		case tagOpen:
			opened = append(opened, name)
		case tagClose:
			if len(opened) > 0 {
				if opened[len(opened)-1] != name {
					return false
				}
				opened = opened[:len(opened)-1]
				continue
			}
			closed = append(closed, name)
		}
	}
	if len(opened) != len(closed) {
		return false
	}
	for i, name := range closed {
		if opened[len(opened)-1-i] != name {
			return false
		}
	}
	return true
}

// StripTags removes every tag from s, leaving character data only.
func StripTags(s string) string {
	return tagRegex.ReplaceAllString(s, "")
}

// elementMarker is one start or end tag of a given element found in a buffer.
type elementMarker struct {
	start, end int
	open       bool
}

type elementScanner struct {
	re *regexp.Regexp
}

func newElementScanner(qname string) *elementScanner {
	return &elementScanner{re: regexp.MustCompile(`</?` + regexp.QuoteMeta(qname) + `(?:\s[^>]*)?>`)}
}

var (
	rowScanner       = newElementScanner("w:tr")
	paragraphScanner = newElementScanner("w:p")
	runScanner       = newElementScanner("w:r")
)

// markers lists start and end tags of the element in document order.
// Self-closing elements are complete on their own and are skipped.
func (s *elementScanner) markers(buf string) []elementMarker {
	locs := s.re.FindAllStringIndex(buf, -1)
	out := make([]elementMarker, 0, len(locs))
	for _, loc := range locs {
		tag := buf[loc[0]:loc[1]]
		if strings.HasSuffix(tag, "/>") {
			continue
		}
		out = append(out, elementMarker{start: loc[0], end: loc[1], open: !strings.HasPrefix(tag, "</")})
	}
	return out
}

// enclosing finds the innermost element that is still open at offset and
// returns its [start, end) range, end covering the closing tag. A missing
// start or end tag is reported as -1 in the returned span.
func (s *elementScanner) enclosing(buf string, offset int) (Span, bool) {
	markers := s.markers(buf)

	first := len(markers)
	for i, m := range markers {
		if m.start >= offset {
			first = i
			break
		}
	}

	start := -1
	depth := 0
	for i := first - 1; i >= 0; i-- {
		m := markers[i]
		if m.end > offset {
			// offset points into the tag itself
			continue
		}
		if !m.open {
			depth++
			continue
		}
		if depth == 0 {
			start = m.start
			break
		}
		depth--
	}
	if start < 0 {
		return Span{Start: -1, End: -1}, false
	}

	end := s.closing(markers[first:])
	if end < 0 {
		return Span{Start: start, End: -1}, false
	}
	return Span{Start: start, End: end}, true
}

// closing walks markers forward from a position inside an element and
// returns the end offset of the tag that closes it, or -1.
func (s *elementScanner) closing(markers []elementMarker) int {
	depth := 0
	for _, m := range markers {
		if m.open {
			depth++
			continue
		}
		if depth == 0 {
			return m.end
		}
		depth--
	}
	return -1
}

// next returns the first complete element starting at or after offset.
func (s *elementScanner) next(buf string, offset int) (Span, bool) {
	markers := s.markers(buf)
	for i, m := range markers {
		if m.start < offset || !m.open {
			continue
		}
		end := s.closing(markers[i+1:])
		if end < 0 {
			return Span{}, false
		}
		return Span{Start: m.start, End: end}, true
	}
	return Span{}, false
}
