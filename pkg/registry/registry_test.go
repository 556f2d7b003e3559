package registry

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	require.NoError(t, strictUnmarshal(nil, &o))
	require.NoError(t, strictUnmarshal(json.RawMessage(`null`), &o))
	assert.Equal(t, 0, o.A)
	require.NoError(t, strictUnmarshal(json.RawMessage(`{"a":1}`), &o))
	assert.Equal(t, 1, o.A)
	assert.Error(t, strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o), "未知字段应报错")
}

// TestFactories 遍历注册表入口：合法选项成功、未知字段失败。
func TestFactories(t *testing.T) {
	type factory func(json.RawMessage) (any, error)
	tmp := t.TempDir()
	cases := []struct {
		name string
		ok   string
		f    factory
	}{
		{"reader/fs", `{"buf_size":1024}`, func(r json.RawMessage) (any, error) { return Reader["fs"](r) }},
		{"reader/http", `{"max_bytes":10}`, func(r json.RawMessage) (any, error) { return Reader["http"](r) }},
		{"reconstructor/cluster", `{"tolerance":3}`, func(r json.RawMessage) (any, error) { return Reconstructor["cluster"](r) }},
		{"interpreter/keyvalue", `{}`, func(r json.RawMessage) (any, error) { return Interpreter["keyvalue"](r) }},
		{"validator/dedupe", `{"min_entries":5}`, func(r json.RawMessage) (any, error) { return Validator["dedupe"](r) }},
		{"assembler/grid", `{}`, func(r json.RawMessage) (any, error) { return Assembler["grid"](r) }},
		{"decoder/auto", `{"format":"yaml"}`, func(r json.RawMessage) (any, error) { return CanonicalDecoder["auto"](r) }},
		{"decoder/json", `{"strict":true}`, func(r json.RawMessage) (any, error) { return TokenDecoder["json"](r) }},
		{"writer/fs", fmt.Sprintf(`{"output_dir":%q}`, tmp), func(r json.RawMessage) (any, error) { return Writer["fs"](r) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := tc.f(json.RawMessage(tc.ok))
			require.NoError(t, err)
			assert.NotNil(t, v)
			_, err = tc.f(json.RawMessage(`{"x":1}`))
			assert.Error(t, err, "未对未知字段报错")
		})
	}
}

func TestFactoryOptionErrors(t *testing.T) {
	_, err := CanonicalDecoder["auto"](json.RawMessage(`{"format":"xml"}`))
	assert.Error(t, err)
	_, err = Writer["fs"](json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"fs", "http"}, Names(Reader))
	assert.Equal(t, []string{"auto"}, Names(CanonicalDecoder))
}
