package contract

import (
	"sort"
	"strconv"
	"strings"
)

// CompareSlotIDs 节次 ID 比较器（数字优先）：
// - 两者均为数字：按数值；
// - 数字恒在非数字之前；
// - 否则按字典序兜底。
// 返回 -1/0/1。
func CompareSlotIDs(a, b string) int {
	na, aok := slotNumber(a)
	nb, bok := slotNumber(b)
	switch {
	case aok && bok:
		if na < nb {
			return -1
		}
		if na > nb {
			return 1
		}
		// 数值相等（如 "01" 与 "1"）按原文稳定
		return strings.Compare(a, b)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func slotNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !isDecimal(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isDecimal: 仅接受 "12" / "1.5" 形式，排除 NaN/Inf/指数/十六进制。
func isDecimal(s string) bool {
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot && i > 0 && i < len(s)-1:
			dot = true
		default:
			return false
		}
	}
	return true
}

// SortEntries 按节次稳定排序（原地）。
func SortEntries(es []Entry) {
	sort.SliceStable(es, func(i, j int) bool { return CompareSlotIDs(es[i].Slot, es[j].Slot) < 0 })
}

// SortSlotIDs 按节次比较器排序字符串切片（原地）。
func SortSlotIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return CompareSlotIDs(ids[i], ids[j]) < 0 })
}
