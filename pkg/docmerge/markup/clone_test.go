package markup

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cloneRow(t *testing.T, buf, name string, count int) string {
	t.Helper()
	span, err := LocateRow(buf, name)
	require.NoError(t, err)
	out, err := CloneSpan(buf, span, count, nil)
	require.NoError(t, err)
	return out
}

func TestCloneSpan_ConcreteScenario(t *testing.T) {
	buf := `<w:tr><w:tc>${userId}</w:tc></w:tr>`

	buf = cloneRow(t, buf, "userId", 2)
	assert.Equal(t, `<w:tr><w:tc>${userId#1}</w:tc></w:tr><w:tr><w:tc>${userId#2}</w:tc></w:tr>`, buf)

	buf, _ = ReplaceAll(buf, Bracket("userId#1"), "A", -1)
	buf, _ = ReplaceAll(buf, Bracket("userId#2"), "B", -1)
	assert.Equal(t, `<w:tr><w:tc>A</w:tc></w:tr><w:tr><w:tc>B</w:tc></w:tr>`, buf)
}

func TestCloneSpan_CountInvariant(t *testing.T) {
	row := `<w:tr><w:tc><w:p><w:r><w:t>${x}</w:t></w:r></w:p></w:tc><w:tc><w:p/></w:tc></w:tr>`
	buf := table(plainRow, row, plainRow)
	rowsBefore := strings.Count(buf, "<w:tr>")

	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("count %d", n), func(t *testing.T) {
			out := cloneRow(t, buf, "x", n)

			var want []string
			for i := 1; i <= n; i++ {
				want = append(want, fmt.Sprintf("x#%d", i))
			}
			assert.Equal(t, want, Variables(out, nil))
			assert.Equal(t, rowsBefore+n-1, strings.Count(out, "<w:tr>"))
			assert.Equal(t, strings.Count(out, "<w:tr>"), strings.Count(out, "</w:tr>"))
			requireWellFormed(t, out)
		})
	}
}

func TestCloneSpan_VerticalMergeAtomicity(t *testing.T) {
	buf := table(mergedRestartRow, mergedContinueRow, plainRow)

	out := cloneRow(t, buf, "x", 2)

	first := strings.Replace(mergedRestartRow, "${x}", "${x#1}", 1)
	second := strings.Replace(mergedRestartRow, "${x}", "${x#2}", 1)
	assert.Equal(t, table(first, mergedContinueRow, second, mergedContinueRow, plainRow), out)
	assert.Equal(t, 1, strings.Count(out, "tail"))
	requireWellFormed(t, out)
}

func TestCloneSpan_ZeroRemovesRow(t *testing.T) {
	row := `<w:tr><w:tc><w:p><w:r><w:t>${x}</w:t></w:r></w:p></w:tc></w:tr>`
	out := cloneRow(t, table(row, plainRow), "x", 0)
	assert.Equal(t, table(plainRow), out)
}

func TestCloneSpan_Errors(t *testing.T) {
	buf := `<w:tr><w:tc>${x}</w:tc></w:tr>`
	span, err := LocateRow(buf, "x")
	require.NoError(t, err)

	out, err := CloneSpan(buf, span, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidCount)
	assert.Equal(t, buf, out)

	_, err = CloneSpan(buf, Span{Start: 3, End: len(buf) + 1}, 1, nil)
	assert.Error(t, err)

	g, err := NewGrammar(`^[a-z#]+$`)
	require.NoError(t, err)
	ambiguous := `<w:tr><w:tc>${x}${a#b}</w:tc></w:tr>`
	span, err = LocateRow(ambiguous, "x")
	require.NoError(t, err)
	out, err = CloneSpan(ambiguous, span, 2, g)
	var ae *AmbiguousPlaceholderError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "a#b", ae.Name)
	assert.Equal(t, ambiguous, out)
}

func TestCloneSpan_NestedSuffixes(t *testing.T) {
	buf := `<w:tr><w:tc>${x#2}</w:tc></w:tr>`
	out := cloneRow(t, buf, "x#2", 2)
	assert.Equal(t, []string{"x#2#1", "x#2#2"}, Variables(out, nil))
}

func TestCloneBlock_AndDeleteBlock(t *testing.T) {
	item := para("item ${name}")
	buf := `<w:body>` + para("before") +
		para("${B}") + item + para("${/B}") +
		para("mid") +
		para("${D}") + para("gone") + para("${/D}") +
		para("after") + `</w:body>`

	block, err := LocateBlock(buf, "B")
	require.NoError(t, err)
	buf, err = CloneBlock(buf, block, 3, nil)
	require.NoError(t, err)

	block, err = LocateBlock(buf, "D")
	require.NoError(t, err)
	buf = DeleteBlock(buf, block)

	want := `<w:body>` + para("before") +
		para("item ${name#1}") + para("item ${name#2}") + para("item ${name#3}") +
		para("mid") + para("after") + `</w:body>`
	assert.Equal(t, want, buf)
	assert.Equal(t, []string{"name#1", "name#2", "name#3"}, Variables(buf, nil))
	requireWellFormed(t, buf)
}

func TestCloneBlock_Inline(t *testing.T) {
	buf := `<w:p><w:r><w:t>x${B}[${v}]${/B}z</w:t></w:r></w:p>`
	block, err := LocateBlock(buf, "B")
	require.NoError(t, err)

	out, err := CloneBlock(buf, block, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, `<w:p><w:r><w:t>x[${v#1}][${v#2}]z</w:t></w:r></w:p>`, out)

	_, err = CloneBlock(buf, block, -2, nil)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestReplaceBlock(t *testing.T) {
	buf := para("a") + para("${B}") + para("old") + para("${/B}") + para("b")
	block, err := LocateBlock(buf, "B")
	require.NoError(t, err)

	out := ReplaceBlock(buf, block, para("new"))
	assert.Equal(t, para("a")+para("new")+para("b"), out)
}
