package dedupe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hghplan/pkg/contract"
)

func lessons(n int) []contract.Lesson {
	out := make([]contract.Lesson, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, contract.Lesson{Class: "5a", Day: contract.Monday, Slot: fmt.Sprint(i + 1), Subject: "Ma"})
	}
	return out
}

func TestValidateOK(t *testing.T) {
	got := New(nil).Validate(lessons(10))
	assert.True(t, got.OK)
	assert.Empty(t, got.Issues)
	assert.Len(t, got.Lessons, 10)
}

// TestValidateDuplicates 重复三元组：首个保留，每条丢弃记一诊断
func TestValidateDuplicates(t *testing.T) {
	in := lessons(10)
	in = append(in,
		contract.Lesson{Class: "5a", Day: contract.Monday, Slot: "1", Subject: "De"},
		contract.Lesson{Class: "5a", Day: contract.Monday, Slot: "1", Subject: "En"},
	)
	got := New(nil).Validate(in)
	assert.False(t, got.OK)
	require.Len(t, got.Issues, 2)
	assert.Contains(t, got.Issues[0], `"De"`)
	require.Len(t, got.Lessons, 10)
	assert.Equal(t, "Ma", got.Lessons[0].Subject)
}

// TestValidatePreservesOrder 不重排保留项
func TestValidatePreservesOrder(t *testing.T) {
	in := []contract.Lesson{
		{Class: "b", Day: contract.Friday, Slot: "3"},
		{Class: "a", Day: contract.Monday, Slot: "1"},
		{Class: "b", Day: contract.Friday, Slot: "3"},
		{Class: "a", Day: contract.Monday, Slot: "2"},
	}
	got := New(&Options{MinEntries: 1}).Validate(in)
	require.Len(t, got.Lessons, 3)
	assert.Equal(t, []string{"b", "a", "a"}, []string{got.Lessons[0].Class, got.Lessons[1].Class, got.Lessons[2].Class})
	assert.Equal(t, "2", got.Lessons[2].Slot)
}

func TestValidateThreshold(t *testing.T) {
	got := New(nil).Validate(lessons(9))
	assert.False(t, got.OK)
	assert.Equal(t, contract.Issues{"too few entries: 9 < 10"}, got.Issues)
	assert.Len(t, got.Lessons, 9)

	got = New(&Options{MinEntries: 3}).Validate(lessons(3))
	assert.True(t, got.OK)

	got = New(&Options{MinEntries: -1}).Validate(nil)
	assert.True(t, got.OK)
	assert.Empty(t, got.Lessons)
}

// TestValidateEmpty 空输入低于下限
func TestValidateEmpty(t *testing.T) {
	got := New(nil).Validate(nil)
	assert.False(t, got.OK)
	require.Len(t, got.Issues, 1)
}
