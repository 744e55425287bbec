package markup

import (
	"fmt"
	"strings"
)

// CloneSpan replaces span with count copies of its text. Every placeholder in
// copy i (1-based) is renamed from ${name} to ${name#i}. A count of zero
// removes the span.
//
// The buffer is rebuilt in one splice; on error buf is returned unchanged.
func CloneSpan(buf string, span Span, count int, g *Grammar) (string, error) {
	if count < 0 {
		return buf, ErrInvalidCount
	}
	if !span.within(buf) {
		return buf, fmt.Errorf("span [%d, %d) outside buffer of %d bytes", span.Start, span.End, len(buf))
	}
	xml := span.Text(buf)
	if err := checkSuffixes(xml, g); err != nil {
		return buf, err
	}
	return SpliceSpan(buf, span, repeat(xml, count, g)), nil
}

// CloneBlock replaces the whole block, markers included, with count indexed
// copies of its inner content. The markers are dropped once, not per clone.
func CloneBlock(buf string, block BlockSpan, count int, g *Grammar) (string, error) {
	if count < 0 {
		return buf, ErrInvalidCount
	}
	if !block.Outer.within(buf) || !block.Inner.within(buf) {
		return buf, fmt.Errorf("block %q outside buffer of %d bytes", block.Name, len(buf))
	}
	xml := block.Inner.Text(buf)
	if err := checkSuffixes(xml, g); err != nil {
		return buf, err
	}
	return SpliceSpan(buf, block.Outer, repeat(xml, count, g)), nil
}

// ReplaceBlock replaces the whole block, markers included, with xml.
func ReplaceBlock(buf string, block BlockSpan, xml string) string {
	return SpliceSpan(buf, block.Outer, xml)
}

// DeleteBlock excises the block together with its markers.
func DeleteBlock(buf string, block BlockSpan) string {
	return ReplaceBlock(buf, block, "")
}

func repeat(xml string, count int, g *Grammar) string {
	var sb strings.Builder
	sb.Grow(len(xml) * count)
	for i := 1; i <= count; i++ {
		sb.WriteString(IndexVariables(xml, i, g))
	}
	return sb.String()
}
