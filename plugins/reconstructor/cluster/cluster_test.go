package cluster

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hghplan/pkg/contract"
	dtok "hghplan/plugins/decoder/tokens"
)

func texts(rows []contract.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Text)
	}
	return out
}

// TestRowsBasic 同行合并、行内按 X 排序、行按 Y 排序
func TestRowsBasic(t *testing.T) {
	c := New(nil)
	toks := []contract.Token{
		{Text: "world", X: 50, Y: 10.5},
		{Text: "second", X: 0, Y: 30},
		{Text: "hello", X: 0, Y: 10},
		{Text: "row", X: 40, Y: 31.5},
	}
	rows := c.Rows(toks)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"hello world", "second row"}, texts(rows))
	assert.Len(t, rows[0].Tokens, 2)
}

// TestRowsTolerance 容差边界：差值等于容差仍合并，超过则分行
func TestRowsTolerance(t *testing.T) {
	c := New(&Options{Tolerance: 2})
	rows := c.Rows([]contract.Token{{Text: "a", X: 0, Y: 0}, {Text: "b", X: 1, Y: 2}})
	assert.Equal(t, []string{"a b"}, texts(rows))

	rows = c.Rows([]contract.Token{{Text: "a", X: 0, Y: 0}, {Text: "b", X: 1, Y: 2.01}})
	assert.Equal(t, []string{"a", "b"}, texts(rows))

	wide := New(&Options{Tolerance: 5})
	rows = wide.Rows([]contract.Token{{Text: "a", X: 0, Y: 0}, {Text: "b", X: 1, Y: 4}})
	assert.Equal(t, []string{"a b"}, texts(rows))
	assert.Equal(t, 5.0, wide.Tolerance())
}

func TestDefaultTolerance(t *testing.T) {
	assert.Equal(t, DefaultTolerance, New(&Options{Tolerance: -1}).Tolerance())
	assert.Equal(t, DefaultTolerance, New(&Options{Tolerance: math.Inf(1)}).Tolerance())
}

// TestRowsDiscardMalformed 空白文本与非有限坐标被丢弃
func TestRowsDiscardMalformed(t *testing.T) {
	c := New(nil)
	rows := c.Rows([]contract.Token{
		{Text: "   ", X: 0, Y: 0},
		{Text: "nan", X: math.NaN(), Y: 0},
		{Text: "inf", X: 0, Y: math.Inf(1)},
		{Text: "ok", X: 0, Y: 0},
	})
	assert.Equal(t, []string{"ok"}, texts(rows))
}

// TestRowsDecodedBadCoordinates 坐标缺失、null 或非数值的项不并入 y≈0 附近的数据行
func TestRowsDecodedBadCoordinates(t *testing.T) {
	doc := `{"items":[
		{"str":"HEADER","x":1},
		{"str":"FOOTER","x":1,"y":null},
		{"str":"oops","x":"left","y":1},
		{"str":"class:5a;day:Mo;slot:1;subject:Ma","x":2,"y":1}
	]}`
	td, err := dtok.New(nil).DecodeTokens(strings.NewReader(doc))
	require.NoError(t, err)
	rows := New(nil).Rows(td.Items)
	require.Len(t, rows, 1)
	assert.Equal(t, "class:5a;day:Mo;slot:1;subject:Ma", rows[0].Text)
	assert.Equal(t, 1.0, rows[0].Y)
}

func TestRowsEmpty(t *testing.T) {
	assert.Empty(t, New(nil).Rows(nil))
	assert.Empty(t, New(nil).Rows([]contract.Token{{Text: "", X: 1, Y: 1}}))
}

// TestRowsCollapseWhitespace 拼接后压缩多余空白
func TestRowsCollapseWhitespace(t *testing.T) {
	rows := New(nil).Rows([]contract.Token{{Text: " klasse:5a; ", X: 0, Y: 0}, {Text: "  tag:Mo", X: 10, Y: 0}})
	assert.Equal(t, []string{"klasse:5a; tag:Mo"}, texts(rows))
}

// TestRowsOrderIndependent 同一集合任意顺序多次运行结果一致
func TestRowsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var toks []contract.Token
	for row := 0; row < 40; row++ {
		for col := 0; col < 6; col++ {
			toks = append(toks, contract.Token{
				Text: string(rune('a'+col)) + string(rune('A'+row%26)),
				X:    float64(col*30) + rng.Float64(),
				Y:    float64(row*12) + rng.Float64()*1.5,
			})
		}
	}
	c := New(nil)
	want := c.Rows(toks)
	require.Len(t, want, 40)
	for i := 0; i < 10; i++ {
		shuffled := append([]contract.Token(nil), toks...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, c.Rows(shuffled))
	}
}
