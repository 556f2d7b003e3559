package arbiter

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hghplan/pkg/contract"
)

func cand(src contract.Source, ok bool, meta contract.Meta) *Candidate {
	return &Candidate{Source: src, OK: ok, Model: contract.Model{Meta: meta}}
}

// TestDecideNewerWins 2026-02-21 对 2026-02-20，交换后结果翻转
func TestDecideNewerWins(t *testing.T) {
	c := cand(contract.SourceCanonical, true, contract.Meta{"updatedAt": "2026-02-21"})
	p := cand(contract.SourceParsed, true, contract.Meta{"updatedAt": "2026-02-20"})
	d, err := Decide(c, p)
	require.NoError(t, err)
	assert.Equal(t, contract.SourceCanonical, d.Chosen)
	assert.Equal(t, StateBoth, d.State)
	assert.NotEmpty(t, d.Notes)

	c.Model.Meta["updatedAt"] = "2026-02-20"
	p.Model.Meta["updatedAt"] = "2026-02-21"
	d, err = Decide(c, p)
	require.NoError(t, err)
	assert.Equal(t, contract.SourceParsed, d.Chosen)
}

// TestDecideParsedInvalid 解析失败即便更新也回退规范源并记录说明
func TestDecideParsedInvalid(t *testing.T) {
	c := cand(contract.SourceCanonical, true, contract.Meta{"updatedAt": "2026-02-20"})
	p := cand(contract.SourceParsed, false, contract.Meta{"updatedAt": "2026-02-21"})
	p.Issues = contract.Issues{"too few entries: 3 < 10"}
	d, err := Decide(c, p)
	require.NoError(t, err)
	assert.Equal(t, contract.SourceCanonical, d.Chosen)
	assert.Equal(t, StateCanonicalOnly, d.State)
	require.NotEmpty(t, d.Notes)
	assert.Contains(t, d.Notes[0], "falling back")
}

func TestDecideTie(t *testing.T) {
	c := cand(contract.SourceCanonical, true, contract.Meta{"updatedAt": "2026-02-21T00:00:00Z"})
	p := cand(contract.SourceParsed, true, contract.Meta{"updated": "2026-02-21"})
	d, _ := Decide(c, p)
	assert.Equal(t, contract.SourceCanonical, d.Chosen)
	assert.Contains(t, d.Notes[len(d.Notes)-1], "equal")
}

// TestDecideUnknownTimestamps 未知时间戳不是零值
func TestDecideUnknownTimestamps(t *testing.T) {
	known := contract.Meta{"updatedAt": "2020-01-01"}
	garbage := contract.Meta{"updatedAt": "gestern"}

	d, _ := Decide(cand(contract.SourceCanonical, true, known), cand(contract.SourceParsed, true, garbage))
	assert.Equal(t, contract.SourceCanonical, d.Chosen)

	d, _ = Decide(cand(contract.SourceCanonical, true, nil), cand(contract.SourceParsed, true, known))
	assert.Equal(t, contract.SourceParsed, d.Chosen)

	d, _ = Decide(cand(contract.SourceCanonical, true, garbage), cand(contract.SourceParsed, true, nil))
	assert.Equal(t, contract.SourceParsed, d.Chosen)
	assert.Contains(t, d.Notes[len(d.Notes)-1], "no known timestamps")
}

func TestDecideSingleSource(t *testing.T) {
	d, err := Decide(nil, cand(contract.SourceParsed, true, nil))
	require.NoError(t, err)
	assert.Equal(t, StateParsedOnly, d.State)
	assert.Equal(t, contract.SourceParsed, d.Chosen)

	d, err = Decide(cand(contract.SourceCanonical, false, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, StateCanonicalOnly, d.State)
	assert.Len(t, d.Notes, 2)
}

func TestDecideNone(t *testing.T) {
	d, err := Decide(nil, nil)
	assert.True(t, errors.Is(err, contract.ErrNoSource))
	assert.Equal(t, StateNone, d.State)
	assert.Equal(t, contract.Source(""), d.Chosen)

	_, err = Decide(nil, cand(contract.SourceParsed, false, nil))
	assert.True(t, errors.Is(err, contract.ErrNoSource))
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name string
		meta contract.Meta
		key  string
		ok   bool
	}{
		{"rfc3339", contract.Meta{"updatedAt": "2026-02-21T08:30:00+01:00"}, "updatedAt", true},
		{"snake", contract.Meta{"updated_at": "2026-02-21 08:30"}, "updated_at", true},
		{"回退 validFrom", contract.Meta{"validFrom": "2026-02-23"}, "validFrom", true},
		{"德语日期", contract.Meta{"gueltigAb": "23.02.2026"}, "gueltigAb", true},
		{"updated 不可解析时回退", contract.Meta{"updatedAt": "bald", "valid_from": "2026-02-23"}, "valid_from", true},
		{"非字符串", contract.Meta{"updatedAt": 20260221}, "", false},
		{"缺失", contract.Meta{"source": "parsed"}, "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, key, ok := Timestamp(tt.meta)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, key)
		})
	}
	ts, _, _ := Timestamp(contract.Meta{"gueltigAb": "23.02.2026"})
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, 23, ts.Day())
}

func TestPickAndState(t *testing.T) {
	c, p := cand(contract.SourceCanonical, true, nil), cand(contract.SourceParsed, true, nil)
	assert.Same(t, c, Pick(Decision{Chosen: contract.SourceCanonical}, c, p))
	assert.Same(t, p, Pick(Decision{Chosen: contract.SourceParsed}, c, p))
	assert.Nil(t, Pick(Decision{}, c, p))

	b, err := json.Marshal(Decision{Chosen: contract.SourceParsed, State: StateBoth})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chosen":"parsed","state":"both","notes":null}`, string(b))
}
