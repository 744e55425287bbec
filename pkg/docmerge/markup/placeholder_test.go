package markup

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireWellFormed(t *testing.T, xml string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml), "buffer is not well formed: %s", xml)
	return doc
}

func TestNormalizePlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		fixed int
	}{
		{
			name:  "contiguous placeholder is untouched",
			input: `<w:p><w:r><w:t>${name}</w:t></w:r></w:p>`,
			want:  `<w:p><w:r><w:t>${name}</w:t></w:r></w:p>`,
		},
		{
			name:  "placeholder split across runs",
			input: `<w:p><w:r><w:t>${</w:t></w:r><w:r><w:t>name}</w:t></w:r></w:p>`,
			want:  `<w:p><w:r><w:t>${name}</w:t></w:r></w:p>`,
			fixed: 1,
		},
		{
			name:  "dollar separated from brace",
			input: `<w:p><w:r><w:t>$</w:t></w:r><w:r><w:t>{x}</w:t></w:r></w:p>`,
			want:  `<w:p><w:r><w:t>${x}</w:t></w:r></w:p>`,
			fixed: 1,
		},
		{
			name:  "spell check marker inside name",
			input: `<w:p><w:r><w:t>${us</w:t></w:r><w:proofErr w:type="spellStart"/><w:r><w:rPr><w:b/></w:rPr><w:t>erId}</w:t></w:r></w:p>`,
			want:  `<w:p><w:r><w:t>${userId}</w:t></w:r></w:p>`,
			fixed: 1,
		},
		{
			name:  "invalid clean name is left alone",
			input: `<w:p><w:r><w:t>${a b</w:t></w:r><w:r><w:t>c}</w:t></w:r></w:p>`,
			want:  `<w:p><w:r><w:t>${a b</w:t></w:r><w:r><w:t>c}</w:t></w:r></w:p>`,
		},
		{
			name:  "unbalanced tags are left alone",
			input: `<w:p><w:r><w:t>${na</w:t></w:r><w:r><w:t>me}</w:t></w:r></w:p><w:p><w:r><w:t>${x</w:t></w:r><w:r><w:rPr><w:b/></w:rPr>y}</w:r></w:p>`,
			want:  `<w:p><w:r><w:t>${name}</w:t></w:r></w:p><w:p><w:r><w:t>${x</w:t></w:r><w:r><w:rPr><w:b/></w:rPr>y}</w:r></w:p>`,
			fixed: 1,
		},
		{
			name:  "several tokens in one buffer",
			input: `<w:t>${a</w:t><w:t>}</w:t><w:t>and ${b}</w:t><w:t>${c</w:t><w:t>}</w:t>`,
			want:  `<w:t>${a}</w:t><w:t>and ${b}</w:t><w:t>${c}</w:t>`,
			fixed: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fixed := NormalizePlaceholders(tt.input, nil)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.fixed, fixed)
		})
	}
}

func TestNormalizePlaceholders_Idempotent(t *testing.T) {
	input := `<w:body><w:p><w:r><w:t>${first</w:t></w:r><w:r><w:t>Name} and $</w:t></w:r>` +
		`<w:r><w:t>{last}</w:t></w:r></w:p><w:p><w:r><w:t>${broken</w:t></w:r><w:r><w:rPr><w:i/></w:rPr>x}</w:r></w:p></w:body>`

	once, _ := NormalizePlaceholders(input, nil)
	twice, fixed := NormalizePlaceholders(once, nil)

	assert.Equal(t, once, twice)
	assert.Zero(t, fixed)
	requireWellFormed(t, once)
}

func TestVariables(t *testing.T) {
	buf := `<w:t>${b}${a}${b}${a b}${/blk}${x#2}${}</w:t>`

	assert.Equal(t, []string{"b", "a", "/blk", "x#2"}, Variables(buf, nil))
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "/blk": 1, "x#2": 1}, CountVariables(buf, nil))
}

func TestGrammar(t *testing.T) {
	g, err := NewGrammar(`^[a-z ]+$`)
	require.NoError(t, err)

	assert.True(t, g.Valid("first name"))
	assert.False(t, g.Valid("Name"))
	assert.False(t, g.Valid(""))
	assert.Equal(t, []string{"a b"}, Variables(`${a b}${X}`, g))

	_, err = NewGrammar(`([`)
	assert.Error(t, err)

	var nilGrammar *Grammar
	assert.True(t, nilGrammar.Valid("customer.name"))
	assert.Equal(t, DefaultNamePattern, nilGrammar.String())
}

func TestBracket(t *testing.T) {
	assert.Equal(t, "${name}", Bracket("name"))
	assert.Equal(t, "${name}", Bracket("${name}"))
	assert.Equal(t, "name", Unbracket("${name}"))
	assert.Equal(t, "name", Unbracket("name"))
}

func TestIndexVariables(t *testing.T) {
	got := IndexVariables(`<w:t>${a} ${b#1} ${not valid}</w:t>`, 3, nil)
	assert.Equal(t, `<w:t>${a#3} ${b#1#3} ${not valid}</w:t>`, got)
}

func TestReplaceAll(t *testing.T) {
	buf := "${a}-${a}-${a}"

	got, n := ReplaceAll(buf, "${a}", "x", -1)
	assert.Equal(t, "x-x-x", got)
	assert.Equal(t, 3, n)

	got, n = ReplaceAll(buf, "${a}", "x", 2)
	assert.Equal(t, "x-x-${a}", got)
	assert.Equal(t, 2, n)

	got, n = ReplaceAll(buf, "${b}", "x", -1)
	assert.Equal(t, buf, got)
	assert.Zero(t, n)
}

func TestReplaceEach(t *testing.T) {
	buf := "${a}-${a}-${a}"

	got, n := ReplaceEach(buf, "${a}", []string{"1", "2"}, -1)
	assert.Equal(t, "1-2-${a}", got)
	assert.Equal(t, 2, n)

	got, n = ReplaceEach(buf, "${a}", []string{"1", "2", "3"}, 1)
	assert.Equal(t, "1-${a}-${a}", got)
	assert.Equal(t, 1, n)
}

func TestReplaceVariables(t *testing.T) {
	buf := "${a} ${b#1} ${a} ${c}"

	got, n := ReplaceVariables(buf, map[string]string{"a": "A", "b#1": "B"})
	assert.Equal(t, "A B A ${c}", got)
	assert.Equal(t, 3, n)

	got, n = ReplaceVariables(buf, map[string]string{"zzz": "x"})
	assert.Equal(t, buf, got)
	assert.Zero(t, n)
}

func TestEscapeText(t *testing.T) {
	value := `a & b < c > "d" 'e'`
	doc := requireWellFormed(t, "<w:t>"+EscapeText(value)+"</w:t>")
	assert.Equal(t, value, doc.Root().Text())
}

func TestBalanced(t *testing.T) {
	assert.True(t, Balanced(`<w:p><w:r><w:t>x</w:t></w:r><w:br/></w:p>`))
	assert.True(t, Balanced(`plain text`))
	assert.False(t, Balanced(`</w:t></w:r><w:r><w:t>`))
	assert.False(t, Balanced(`<w:p><w:r></w:p></w:r>`))
}
