package markup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultNamePattern is the grammar placeholder names must match unless a
// template is configured otherwise. An optional leading '/' marks a block end
// and '#<digits>' suffixes are clone indexes.
const DefaultNamePattern = `^/?[\p{L}\p{N}_.:\-]+(#[0-9]+)*$`

var (
	// "$", optional tags, "{", anything but "}" or "$" (tags included), "}"
	rawPlaceholderRegex = regexp.MustCompile(`\$(?:<[^>]*>)*\{[^}$]*\}`)
	placeholderRegex    = regexp.MustCompile(`\$\{([^{}$<>]*)\}`)
	suffixedNameRegex   = regexp.MustCompile(`^[^#]+(#[0-9]+)+$`)
)

// Grammar decides which clean names count as placeholders.
type Grammar struct {
	pattern *regexp.Regexp
}

var defaultGrammar = &Grammar{pattern: regexp.MustCompile(DefaultNamePattern)}

// NewGrammar compiles a placeholder name pattern.
func NewGrammar(pattern string) (*Grammar, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid placeholder name pattern %q: %w", pattern, err)
	}
	return &Grammar{pattern: re}, nil
}

// DefaultGrammar returns the grammar for DefaultNamePattern.
func DefaultGrammar() *Grammar {
	return defaultGrammar
}

// Valid reports whether name is an acceptable placeholder name.
// A nil Grammar behaves like DefaultGrammar.
func (g *Grammar) Valid(name string) bool {
	if g == nil {
		g = defaultGrammar
	}
	return name != "" && g.pattern.MatchString(name)
}

func (g *Grammar) String() string {
	if g == nil {
		g = defaultGrammar
	}
	return g.pattern.String()
}

// Bracket turns name into its placeholder token, leaving complete tokens alone.
func Bracket(name string) string {
	if strings.HasPrefix(name, "${") && strings.HasSuffix(name, "}") {
		return name
	}
	return "${" + name + "}"
}

// Unbracket is the inverse of Bracket.
func Unbracket(token string) string {
	if strings.HasPrefix(token, "${") && strings.HasSuffix(token, "}") {
		return token[2 : len(token)-1]
	}
	return token
}

// NormalizePlaceholders rewrites placeholders that word processors split
// with inline markup (spell-check marks, run boundaries) into contiguous
// tokens. A raw span is only rewritten when its clean name is valid and the
// tags dropped from it cancel out, so the result stays well formed. It
// returns the new buffer and the number of tokens rewritten.
//
// The pass is idempotent.
func NormalizePlaceholders(buf string, g *Grammar) (string, int) {
	matches := rawPlaceholderRegex.FindAllStringIndex(buf, -1)
	if len(matches) == 0 {
		return buf, 0
	}

	var sb strings.Builder
	sb.Grow(len(buf))
	last, fixed := 0, 0
	for _, m := range matches {
		raw := buf[m[0]:m[1]]
		if !strings.Contains(raw, "<") {
			continue
		}
		clean := StripTags(raw)
		name := clean[2 : len(clean)-1]
		if !g.Valid(name) || !mirrored(tagRegex.FindAllString(raw, -1)) {
			continue
		}
		sb.WriteString(buf[last:m[0]])
		sb.WriteString(clean)
		last = m[1]
		fixed++
	}
	if fixed == 0 {
		return buf, 0
	}
	sb.WriteString(buf[last:])
	return sb.String(), fixed
}

// Variables lists the distinct placeholder names in buf in order of first
// occurrence.
func Variables(buf string, g *Grammar) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRegex.FindAllStringSubmatch(buf, -1) {
		name := m[1]
		if !g.Valid(name) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// CountVariables counts the occurrences of every placeholder name in buf.
func CountVariables(buf string, g *Grammar) map[string]int {
	counts := make(map[string]int)
	for _, m := range placeholderRegex.FindAllStringSubmatch(buf, -1) {
		if g.Valid(m[1]) {
			counts[m[1]]++
		}
	}
	return counts
}

// IndexVariables appends the clone suffix "#index" to every placeholder in xml.
func IndexVariables(xml string, index int, g *Grammar) string {
	suffix := "#" + strconv.Itoa(index)
	return placeholderRegex.ReplaceAllStringFunc(xml, func(token string) string {
		name := token[2 : len(token)-1]
		if !g.Valid(name) {
			return token
		}
		return "${" + name + suffix + "}"
	})
}

// checkSuffixes rejects spans whose placeholders use '#' for anything other
// than numeric clone suffixes, since indexing them again would be ambiguous.
func checkSuffixes(xml string, g *Grammar) error {
	for _, m := range placeholderRegex.FindAllStringSubmatch(xml, -1) {
		name := m[1]
		if !g.Valid(name) || !strings.Contains(name, "#") {
			continue
		}
		if !suffixedNameRegex.MatchString(name) {
			return &AmbiguousPlaceholderError{Name: name}
		}
	}
	return nil
}

// ReplaceAll replaces up to limit occurrences of token in buf with value,
// all of them when limit is negative. Matching is literal.
func ReplaceAll(buf, token, value string, limit int) (string, int) {
	if token == "" || limit == 0 {
		return buf, 0
	}
	n := strings.Count(buf, token)
	if limit > 0 && n > limit {
		n = limit
	}
	if n == 0 {
		return buf, 0
	}
	return strings.Replace(buf, token, value, n), n
}

// ReplaceEach replaces successive occurrences of token with successive
// values. Occurrences beyond len(values) or limit are left in place.
func ReplaceEach(buf, token string, values []string, limit int) (string, int) {
	if token == "" || len(values) == 0 || limit == 0 {
		return buf, 0
	}
	var sb strings.Builder
	rest, n := buf, 0
	for n < len(values) && (limit < 0 || n < limit) {
		i := strings.Index(rest, token)
		if i < 0 {
			break
		}
		sb.WriteString(rest[:i])
		sb.WriteString(values[n])
		rest = rest[i+len(token):]
		n++
	}
	if n == 0 {
		return buf, 0
	}
	sb.WriteString(rest)
	return sb.String(), n
}

// ReplaceVariables substitutes every placeholder whose name is a key of
// values in a single pass. Values are inserted verbatim. It returns the new
// buffer and the number of tokens replaced.
func ReplaceVariables(buf string, values map[string]string) (string, int) {
	if len(values) == 0 {
		return buf, 0
	}
	n := 0
	out := placeholderRegex.ReplaceAllStringFunc(buf, func(token string) string {
		v, ok := values[token[2:len(token)-1]]
		if !ok {
			return token
		}
		n++
		return v
	})
	if n == 0 {
		return buf, 0
	}
	return out, n
}
