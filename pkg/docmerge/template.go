package docmerge

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/archive"
	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/markup"
	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/xslt"
)

var headerFooterRegex = regexp.MustCompile(`^word/(header|footer)([0-9]*)\.xml$`)

type state int

const (
	stateLoaded state = iota
	stateMutated
	stateSaved
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateLoaded:
		return "loaded"
	case stateMutated:
		return "mutated"
	case stateSaved:
		return "saved"
	default:
		return "closed"
	}
}

// part is one XML entry held in memory.
type part struct {
	name     string
	xml      string
	original string
}

func (p *part) dirty() bool {
	return p.xml != p.original
}

// Template is an opened document being merged. Substitutions apply to the
// headers, the main part and the footers, in that order. Row and block
// operations apply to the main part.
//
// A Template is not safe for concurrent use.
type Template struct {
	path      string
	config    *Config
	logger    *Logger
	processor xslt.Processor
	grammar   *markup.Grammar
	charset   encoding.Encoding

	archive   *archive.Archive
	parts     []*part
	main      *part
	state     state
	savedPath string
}

// Open loads the template at path with the engine's configuration.
func (e *Engine) Open(path string) (*Template, error) {
	a, err := archive.Open(path, e.config.TempDir)
	if err != nil {
		return nil, NewDocumentError("open", path, err)
	}

	t := &Template{
		path:      path,
		config:    e.config,
		logger:    e.logger.WithField("template", path),
		processor: e.processor,
		grammar:   e.grammar,
		charset:   e.charset,
		archive:   a,
	}

	if err := t.load(); err != nil {
		_ = a.Discard()
		return nil, NewDocumentError("open", path, err)
	}

	t.logger.WithFields(Fields{
		"parts":   len(t.parts),
		"working": a.WorkingPath(),
	}).Debug("template opened")
	return t, nil
}

func (t *Template) load() error {
	var headers, footers []string
	if !t.config.SkipHeadersFooters {
		headers, footers = headerFooterParts(t.archive.Entries())
	}

	names := make([]string, 0, len(headers)+1+len(footers))
	names = append(names, headers...)
	names = append(names, t.config.MainPart)
	names = append(names, footers...)

	for _, name := range names {
		data, err := t.archive.ReadEntry(name)
		if err != nil {
			return err
		}
		xml, fixed := markup.NormalizePlaceholders(string(data), t.grammar)
		if fixed > 0 {
			t.logger.WithFields(Fields{"part": name, "fixed": fixed}).Debug("joined split placeholders")
		}
		p := &part{name: name, xml: xml, original: string(data)}
		t.parts = append(t.parts, p)
		if name == t.config.MainPart {
			t.main = p
		}
	}
	return nil
}

// headerFooterParts picks word/headerN.xml and word/footerN.xml from names,
// each group ordered by N.
func headerFooterParts(names []string) (headers, footers []string) {
	for _, name := range names {
		m := headerFooterRegex.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if m[1] == "header" {
			headers = append(headers, name)
		} else {
			footers = append(footers, name)
		}
	}
	byNumber := func(list []string) {
		sort.SliceStable(list, func(i, j int) bool {
			return partNumber(list[i]) < partNumber(list[j])
		})
	}
	byNumber(headers)
	byNumber(footers)
	return headers, footers
}

func partNumber(name string) int {
	n, _ := strconv.Atoi(headerFooterRegex.FindStringSubmatch(name)[2])
	return n
}

// Path returns the path the template was opened from.
func (t *Template) Path() string {
	return t.path
}

func (t *Template) readable() error {
	if t.state == stateClosed {
		return ErrTemplateClosed
	}
	return nil
}

func (t *Template) mutable() error {
	switch t.state {
	case stateClosed:
		return ErrTemplateClosed
	case stateSaved:
		return ErrTemplateSaved
	}
	return nil
}

func (t *Template) touch() {
	t.state = stateMutated
}

// Variables returns the distinct placeholder names of the loaded parts in
// order of first occurrence.
func (t *Template) Variables() ([]string, error) {
	if err := t.readable(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, p := range t.parts {
		for _, name := range markup.Variables(p.xml, t.grammar) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// VariableCount returns how often each placeholder occurs in the loaded parts.
func (t *Template) VariableCount() (map[string]int, error) {
	if err := t.readable(); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range t.parts {
		for name, n := range markup.CountVariables(p.xml, t.grammar) {
			counts[name] += n
		}
	}
	return counts, nil
}

// MainPart returns the current XML of the main part.
func (t *Template) MainPart() (string, error) {
	if err := t.readable(); err != nil {
		return "", err
	}
	return t.main.xml, nil
}

// Part returns the current XML of a loaded part.
func (t *Template) Part(name string) (string, error) {
	if err := t.readable(); err != nil {
		return "", err
	}
	for _, p := range t.parts {
		if p.name == name {
			return p.xml, nil
		}
	}
	return "", &EntryNotFoundError{Path: t.path, Entry: name}
}

// prepareValue converts value to UTF-8 and escapes it for XML text.
func (t *Template) prepareValue(value string) (string, error) {
	if !utf8.ValidString(value) {
		decoded, err := t.charset.NewDecoder().String(value)
		if err != nil {
			return "", fmt.Errorf("failed to decode value from %s: %w", t.config.LegacyCharset, err)
		}
		value = decoded
	}
	return markup.EscapeText(value), nil
}

// SetValue replaces every occurrence of the placeholder search with value.
// search may be given with or without the ${} brackets.
func (t *Template) SetValue(search, value string) error {
	_, err := t.SetValueLimit(search, value, -1)
	return err
}

// SetValueLimit replaces up to limit occurrences of search, counted across
// all parts in document order. A negative limit replaces all of them. It
// returns the number of replacements.
func (t *Template) SetValueLimit(search, value string, limit int) (int, error) {
	if err := t.mutable(); err != nil {
		return 0, err
	}
	escaped, err := t.prepareValue(value)
	if err != nil {
		return 0, err
	}

	token := markup.Bracket(search)
	total := 0
	for _, p := range t.parts {
		remaining := limit
		if limit >= 0 {
			remaining = limit - total
			if remaining == 0 {
				break
			}
		}
		var n int
		p.xml, n = markup.ReplaceAll(p.xml, token, escaped, remaining)
		total += n
	}

	t.touch()
	t.logger.WithFields(Fields{"placeholder": token, "replaced": total}).Debug("set value")
	return total, nil
}

// SetValueList assigns values[i] to the i-th occurrence of search, across
// all parts in document order. Occurrences without a value are kept.
func (t *Template) SetValueList(search string, values []string, limit int) (int, error) {
	if err := t.mutable(); err != nil {
		return 0, err
	}
	escaped := make([]string, len(values))
	for i, v := range values {
		e, err := t.prepareValue(v)
		if err != nil {
			return 0, err
		}
		escaped[i] = e
	}

	token := markup.Bracket(search)
	total := 0
	for _, p := range t.parts {
		remaining := limit
		if limit >= 0 {
			remaining = limit - total
		}
		if total == len(escaped) || remaining == 0 {
			break
		}
		var n int
		p.xml, n = markup.ReplaceEach(p.xml, token, escaped[total:], remaining)
		total += n
	}

	t.touch()
	t.logger.WithFields(Fields{"placeholder": token, "replaced": total}).Debug("set value list")
	return total, nil
}

// SetValues replaces every occurrence of each key with its value.
func (t *Template) SetValues(values map[string]string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	replacements := make(map[string]string, len(values))
	for k, v := range values {
		escaped, err := t.prepareValue(v)
		if err != nil {
			return err
		}
		replacements[markup.Unbracket(k)] = escaped
	}

	total := 0
	for _, p := range t.parts {
		var n int
		p.xml, n = markup.ReplaceVariables(p.xml, replacements)
		total += n
	}

	t.touch()
	t.logger.WithFields(Fields{"keys": len(values), "replaced": total}).Debug("set values")
	return nil
}

// CloneRow replaces the table row holding search with count copies whose
// placeholders are suffixed #1..#count. Rows joined by a vertical merge are
// cloned together. A count of zero removes the row.
func (t *Template) CloneRow(search string, count int) error {
	if err := t.mutable(); err != nil {
		return err
	}
	span, err := markup.LocateRow(t.main.xml, search)
	if err != nil {
		return err
	}
	xml, err := markup.CloneSpan(t.main.xml, span, count, t.grammar)
	if err != nil {
		return err
	}
	t.main.xml = xml

	t.touch()
	t.logger.WithFields(Fields{"placeholder": markup.Bracket(search), "count": count}).Debug("cloned row")
	return nil
}

// CloneRowAndSetValues clones the row holding search once per record and
// fills copy i with record i.
func (t *Template) CloneRowAndSetValues(search string, rows []map[string]string) error {
	if err := t.CloneRow(search, len(rows)); err != nil {
		return err
	}
	return t.SetValues(indexedValues(rows))
}

// CloneBlock replaces the block name with count indexed copies of its
// content. The markers are removed.
func (t *Template) CloneBlock(name string, count int) error {
	if err := t.mutable(); err != nil {
		return err
	}
	block, err := markup.LocateBlock(t.main.xml, name)
	if err != nil {
		return err
	}
	xml, err := markup.CloneBlock(t.main.xml, block, count, t.grammar)
	if err != nil {
		return err
	}
	t.main.xml = xml

	t.touch()
	t.logger.WithFields(Fields{"block": block.Name, "count": count}).Debug("cloned block")
	return nil
}

// CloneBlockWithValues clones the block once per record and fills copy i
// with record i.
func (t *Template) CloneBlockWithValues(name string, rows []map[string]string) error {
	if err := t.CloneBlock(name, len(rows)); err != nil {
		return err
	}
	return t.SetValues(indexedValues(rows))
}

// ReplaceBlock replaces the block name, markers included, with xml.
func (t *Template) ReplaceBlock(name, xml string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	block, err := markup.LocateBlock(t.main.xml, name)
	if err != nil {
		return err
	}
	t.main.xml = markup.ReplaceBlock(t.main.xml, block, xml)

	t.touch()
	t.logger.WithField("block", block.Name).Debug("replaced block")
	return nil
}

// DeleteBlock removes the block name together with its markers.
func (t *Template) DeleteBlock(name string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	block, err := markup.LocateBlock(t.main.xml, name)
	if err != nil {
		return err
	}
	t.main.xml = markup.DeleteBlock(t.main.xml, block)

	t.touch()
	t.logger.WithField("block", block.Name).Debug("deleted block")
	return nil
}

// indexedValues flattens per-copy records into name#i keys.
func indexedValues(rows []map[string]string) map[string]string {
	values := make(map[string]string)
	for i, row := range rows {
		suffix := "#" + strconv.Itoa(i+1)
		for k, v := range row {
			values[markup.Unbracket(k)+suffix] = v
		}
	}
	return values
}

// ApplyXSLStyleSheet transforms the main part with stylesheet. params are
// bound to the stylesheet parameters declared in namespaceURI.
func (t *Template) ApplyXSLStyleSheet(stylesheet []byte, params map[string]string, namespaceURI string) error {
	if err := t.mutable(); err != nil {
		return err
	}
	out, err := t.processor.Transform([]byte(t.main.xml), stylesheet, params, namespaceURI)
	if err != nil {
		t.logger.WithField("error", err).Warn("xsl transform failed")
		return err
	}
	t.main.xml = string(out)

	t.touch()
	t.logger.WithField("params", len(params)).Debug("applied xsl stylesheet")
	return nil
}

// Save writes the modified parts into the working copy and returns its
// path. The template can no longer be modified afterwards. Saving a saved
// template returns the same path.
func (t *Template) Save() (string, error) {
	switch t.state {
	case stateClosed:
		return "", ErrTemplateClosed
	case stateSaved:
		return t.savedPath, nil
	}

	for _, p := range t.parts {
		if !p.dirty() {
			continue
		}
		if err := t.archive.WriteEntry(p.name, []byte(p.xml)); err != nil {
			return "", NewDocumentError("save", t.path, err)
		}
	}

	path, err := t.archive.Close()
	if err != nil {
		t.state = stateClosed
		_ = t.archive.Discard()
		return "", NewDocumentError("save", t.path, err)
	}

	t.state = stateSaved
	t.savedPath = path
	t.logger.WithField("working", path).Info("template saved")
	return path, nil
}

// SaveAs saves the template and moves the result to path, replacing any
// file there. Every later call fails with ErrTemplateClosed. If the move
// fails the template stays saved, so Save still returns the working copy
// and SaveAs can be retried.
func (t *Template) SaveAs(path string) error {
	if t.state == stateClosed {
		return ErrTemplateClosed
	}
	working, err := t.Save()
	if err != nil {
		return err
	}

	if err := archive.SaveAs(working, path); err != nil {
		return NewDocumentError("save as", path, fmt.Errorf("working copy kept at %s: %w", working, err))
	}
	t.state = stateClosed
	t.logger.WithField("output", path).Info("template written")
	return nil
}

// Close releases the template. An unsaved template's working copy is
// removed; a saved one is left for the caller. Close is safe to call more
// than once.
func (t *Template) Close() error {
	prev := t.state
	t.state = stateClosed
	switch prev {
	case stateLoaded, stateMutated:
		if err := t.archive.Discard(); err != nil {
			return NewDocumentError("close", t.path, err)
		}
		t.logger.WithField("state", prev.String()).Debug("template discarded")
	}
	return nil
}
