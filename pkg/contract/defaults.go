package contract

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SubjectPlaceholder: 科目缺失时的中性占位标记（绝不留空）。
const SubjectPlaceholder = "—"

// 规范星期 ID（周一至周五）。
const (
	Monday    = "MO"
	Tuesday   = "DI"
	Wednesday = "MI"
	Thursday  = "DO"
	Friday    = "FR"
)

// Weekdays 返回规范星期 ID 序列（每次返回新切片）。
func Weekdays() []string {
	return []string{Monday, Tuesday, Wednesday, Thursday, Friday}
}

// dayAliases: 折叠后的别名 → 规范 ID。德语全称、两字母缩写与英文写法均可。
var dayAliases = map[string]string{
	"mo": Monday, "montag": Monday, "mon": Monday, "monday": Monday,
	"di": Tuesday, "dienstag": Tuesday, "tue": Tuesday, "tuesday": Tuesday,
	"mi": Wednesday, "mittwoch": Wednesday, "wed": Wednesday, "wednesday": Wednesday,
	"do": Thursday, "donnerstag": Thursday, "thu": Thursday, "thursday": Thursday,
	"fr": Friday, "freitag": Friday, "fri": Friday, "friday": Friday,
}

// Fold 对键做 NFC 归一 + Unicode 大小写折叠，用于别名匹配。
// cases.Caser 非并发安全，每次调用新建。
func Fold(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Fold().String(s)
}

// CanonicalDay 将星期记号映射为规范 ID；未知记号返回 ("", false)。
func CanonicalDay(token string) (string, bool) {
	id, ok := dayAliases[Fold(strings.TrimSuffix(strings.TrimSpace(token), "."))]
	return id, ok
}

// Defaults: 内置兜底配置（班级名单、节次表、星期序列）。
// 作为不可变值注入流水线，测试可替换而无需改包级状态。
type Defaults struct {
	Timeslots []Timeslot
	ClassIDs  []string
	Days      []string
}

// BuiltinDefaults 返回内置兜底值的新副本。
func BuiltinDefaults() Defaults {
	return Defaults{
		Timeslots: []Timeslot{
			{ID: "1", Time: "07:45-08:30"},
			{ID: "2", Time: "08:30-09:15"},
			{ID: "3", Time: "09:35-10:20"},
			{ID: "4", Time: "10:20-11:05"},
			{ID: "5", Time: "11:25-12:10"},
			{ID: "6", Time: "12:10-12:55"},
			{ID: "7", Time: "13:15-14:00"},
			{ID: "8", Time: "14:00-14:45"},
			{ID: "9", Time: "14:55-15:40"},
			{ID: "10", Time: "15:40-16:25"},
		},
		ClassIDs: []string{"HT11", "HT12", "HT21", "HT22", "G11", "G21", "GT01"},
		Days:     Weekdays(),
	}
}

// WithFallbacks 为空字段补齐内置值，返回副本。
func (d Defaults) WithFallbacks() Defaults {
	b := BuiltinDefaults()
	out := Defaults{
		Timeslots: append([]Timeslot(nil), d.Timeslots...),
		ClassIDs:  append([]string(nil), d.ClassIDs...),
		Days:      append([]string(nil), d.Days...),
	}
	if len(out.Timeslots) == 0 {
		out.Timeslots = b.Timeslots
	}
	if len(out.ClassIDs) == 0 {
		out.ClassIDs = b.ClassIDs
	}
	if len(out.Days) == 0 {
		out.Days = b.Days
	}
	return out
}

// SlotSet 返回节次 ID 集合。
func SlotSet(ts []Timeslot) map[string]struct{} {
	set := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		set[t.ID] = struct{}{}
	}
	return set
}
