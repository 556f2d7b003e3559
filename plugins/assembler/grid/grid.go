package grid

import (
	"hghplan/pkg/contract"
)

// Options: 预留占位，网格装配无需配置。
type Options struct{}

type assembler struct{}

// New 创建网格装配器。
func New(_ *Options) contract.Assembler { return &assembler{} }

// Assemble 按 classes[class][day] 分组；
// 名单为空时回退 d.ClassIDs，名单外的班级按首次出现顺序追加。
func (a *assembler) Assemble(lessons []contract.Lesson, classIDs []string, meta contract.Meta, d contract.Defaults) contract.Model {
	d = d.WithFallbacks()
	ids := classIDs
	if len(ids) == 0 {
		ids = d.ClassIDs
	}

	order := make([]string, 0, len(ids))
	classes := make(map[string]map[string][]contract.Entry, len(ids))
	addClass := func(id string) {
		if _, ok := classes[id]; ok {
			return
		}
		days := make(map[string][]contract.Entry, len(d.Days))
		for _, day := range d.Days {
			days[day] = []contract.Entry{}
		}
		classes[id] = days
		order = append(order, id)
	}
	for _, id := range ids {
		if id != "" {
			addClass(id)
		}
	}

	for _, l := range lessons {
		addClass(l.Class)
		classes[l.Class][l.Day] = append(classes[l.Class][l.Day], l.Entry())
	}
	for _, days := range classes {
		for _, es := range days {
			contract.SortEntries(es)
		}
	}

	return contract.Model{
		Meta:      meta.Clone(),
		Timeslots: append([]contract.Timeslot(nil), d.Timeslots...),
		Classes:   classes,
		ClassIDs:  order,
	}
}

var _ contract.Assembler = (*assembler)(nil)
