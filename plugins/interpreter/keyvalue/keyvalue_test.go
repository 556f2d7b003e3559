package keyvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hghplan/pkg/contract"
)

func TestParseRowAliases(t *testing.T) {
	tests := []struct {
		name string
		text string
		want contract.Lesson
	}{
		{
			"英文键",
			"class:5a; day:Monday; slot:1; subject:Math; teacher:Mu; room:101; note:bring calc",
			contract.Lesson{Class: "5a", Day: contract.Monday, Slot: "1", Subject: "Math", Teacher: "Mu", Room: "101", Note: "bring calc"},
		},
		{
			"德语键与缩写",
			"Klasse: HT11 ; Tag: Di; Stunde: 3; Fach: Deutsch; Lehrer: Sch; Raum: B2",
			contract.Lesson{Class: "HT11", Day: contract.Tuesday, Slot: "3", Subject: "Deutsch", Teacher: "Sch", Room: "B2"},
		},
		{
			"大小写不敏感 + std",
			"KLASSE:G21;TAG:freitag;STD:10;FACH:Sport;NOTIZ:Halle",
			contract.Lesson{Class: "G21", Day: contract.Friday, Slot: "10", Subject: "Sport", Note: "Halle"},
		},
		{
			"值中含冒号",
			"class:5a;day:mi;slot:2;subject:Info;note:ab 10:15",
			contract.Lesson{Class: "5a", Day: contract.Wednesday, Slot: "2", Subject: "Info", Note: "ab 10:15"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRow(tt.text)
			require.True(t, r.OK, r.Issues)
			assert.Empty(t, r.Issues)
			assert.Equal(t, tt.want, r.Lesson)
		})
	}
}

// TestParseRowSkipsGarbagePairs 无冒号/空键片段静默跳过
func TestParseRowSkipsGarbagePairs(t *testing.T) {
	r := ParseRow("junk; :value; class:5a; day:Do; slot:4; subject:Bio; unknown:x")
	require.True(t, r.OK)
	assert.Equal(t, "Bio", r.Lesson.Subject)
	assert.Equal(t, contract.Thursday, r.Lesson.Day)
}

// TestParseRowNonData 无任何可识别字段：无候选、无诊断
func TestParseRowNonData(t *testing.T) {
	for _, text := range []string{"", "Stundenplan Schuljahr 2025/26", "Seite: 1", "; ;"} {
		r := ParseRow(text)
		assert.False(t, r.OK, text)
		assert.Empty(t, r.Issues, text)
	}
}

func TestParseRowMissingRequired(t *testing.T) {
	r := ParseRow("class:5a; day:Mo; slot:1")
	assert.False(t, r.OK)
	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0], "subject")

	r = ParseRow("class:5a; day:Mo; slot:1; subject:   ")
	assert.False(t, r.OK)
	require.Len(t, r.Issues, 1)
}

// TestParseRowUnknownDay 未知星期记号：拒绝并记录诊断
func TestParseRowUnknownDay(t *testing.T) {
	r := ParseRow("class:5a; day:Samstag; slot:1; subject:Ma")
	assert.False(t, r.OK)
	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0], `unknown day token "Samstag"`)
}

func TestInterpretRows(t *testing.T) {
	rows := []contract.Row{
		{Text: "Stundenplan HGH"},
		{Text: "klasse:HT12; tag:Mo; std:1; fach:Ma"},
		{Text: "klasse:HT11; tag:Mo; std:1; fach:De"},
		{Text: "klasse:HT12; tag:So; std:2; fach:En"},
		{Text: "klasse:HT12; tag:Di; std:2; fach:En"},
	}
	got := New(nil).Interpret(rows)
	require.Len(t, got.Lessons, 3)
	assert.Equal(t, []string{"HT12", "HT11"}, got.ClassIDs)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, `row 4: unknown day token "So"`, got.Issues[0])
}

func TestInterpretEmpty(t *testing.T) {
	got := New(nil).Interpret(nil)
	assert.Empty(t, got.Lessons)
	assert.Empty(t, got.ClassIDs)
	assert.Empty(t, got.Issues)
}
