package canonical

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hghplan/pkg/contract"
)

func TestFormatOf(t *testing.T) {
	cases := map[string]string{
		"plan.json":                       FormatJSON,
		"plan.YAML":                       FormatYAML,
		"dir/plan.yml":                    FormatYAML,
		"plan.toml":                       FormatTOML,
		"https://x.org/plan.yaml?v=2":     FormatYAML,
		"plan":                            FormatJSON,
		"https://x.org/stundenplan.txt#a": FormatJSON,
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatOf(in), in)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(&Options{Format: "xml"})
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
	d, err := New(&Options{Format: "YML"})
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, d.(*decoder).format)
}

// TestDecodeFormats 三种格式解码为同构的对象树
func TestDecodeFormats(t *testing.T) {
	docs := map[string]string{
		"plan.json": `{"meta":{"updatedAt":"2026-02-21"},
			"timeslots":[{"id":"1","time":"08:00"}],
			"classes":{"5a":{"MO":[{"slot":"1","subject":"Ma"}],"DI":{"sameAs":"5b"}}}}`,
		"plan.yaml": `
meta:
  updatedAt: "2026-02-21"
timeslots:
  - {id: "1", time: "08:00"}
classes:
  5a:
    MO:
      - {slot: "1", subject: Ma}
    DI: {sameAs: 5b}
`,
		"plan.toml": `
[meta]
updatedAt = 2026-02-21

[[timeslots]]
id = "1"
time = "08:00"

[classes.5a]
DI = { sameAs = "5b" }

[[classes.5a.MO]]
slot = "1"
subject = "Ma"
`,
	}
	d, err := New(nil)
	require.NoError(t, err)
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			v, err := d.DecodeCanonical(name, strings.NewReader(doc))
			require.NoError(t, err)
			root, ok := v.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "2026-02-21", root["meta"].(map[string]any)["updatedAt"])
			ts := root["timeslots"].([]any)
			require.Len(t, ts, 1)
			assert.Equal(t, "08:00", ts[0].(map[string]any)["time"])
			cls := root["classes"].(map[string]any)["5a"].(map[string]any)
			mo := cls["MO"].([]any)
			require.Len(t, mo, 1)
			assert.Equal(t, "Ma", mo[0].(map[string]any)["subject"])
			assert.Equal(t, "5b", cls["DI"].(map[string]any)["sameAs"])
		})
	}
}

func TestDecodeNonObject(t *testing.T) {
	d, _ := New(nil)
	v, err := d.DecodeCanonical("x.json", strings.NewReader(`[1,2]`))
	require.NoError(t, err)
	assert.IsType(t, []any{}, v)
}

func TestDecodeErrors(t *testing.T) {
	d, _ := New(nil)
	for name, doc := range map[string]string{
		"bad.json":   `{"meta":`,
		"trail.json": `{} {}`,
		"bad.yaml":   "a: [1, 2",
		"bad.toml":   "a = = 1",
	} {
		_, err := d.DecodeCanonical(name, strings.NewReader(doc))
		assert.True(t, errors.Is(err, contract.ErrDecode), name)
	}
}

// TestDecodeForcedFormat 强制格式优先于扩展名
func TestDecodeForcedFormat(t *testing.T) {
	d, err := New(&Options{Format: "yaml"})
	require.NoError(t, err)
	v, err := d.DecodeCanonical("plan.json", strings.NewReader("classes: {}"))
	require.NoError(t, err)
	assert.Contains(t, v.(map[string]any), "classes")
}
