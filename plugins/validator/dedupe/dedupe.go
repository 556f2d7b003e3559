package dedupe

import (
	"fmt"

	"hghplan/pkg/contract"
)

// DefaultMinEntries: 少于该条目数的解析结果视为不可信。
const DefaultMinEntries = 10

// Options 为去重校验器的可选配置。
type Options struct {
	// MinEntries: 保留条目下限；0 使用默认 10，负数关闭阈值检查。
	MinEntries int `json:"min_entries"`
}

type validator struct {
	limit int
}

// New 创建去重校验器。
func New(opts *Options) contract.Validator {
	limit := DefaultMinEntries
	if opts != nil && opts.MinEntries != 0 {
		limit = opts.MinEntries
	}
	return &validator{limit: limit}
}

// Validate 以 (class, day, slot) 去重，首个胜出，保留项保持输入顺序。
func (v *validator) Validate(lessons []contract.Lesson) contract.Validation {
	out := contract.Validation{Lessons: make([]contract.Lesson, 0, len(lessons))}
	seen := make(map[string]struct{}, len(lessons))
	for _, l := range lessons {
		k := l.Key()
		if _, dup := seen[k]; dup {
			out.Issues.Addf("duplicate entry %s/%s/%s dropped (subject %q)", l.Class, l.Day, l.Slot, l.Subject)
			continue
		}
		seen[k] = struct{}{}
		out.Lessons = append(out.Lessons, l)
	}
	if v.limit > 0 && len(out.Lessons) < v.limit {
		out.Issues = append(out.Issues, fmt.Sprintf("too few entries: %d < %d", len(out.Lessons), v.limit))
	}
	out.OK = len(out.Issues) == 0
	return out
}

var _ contract.Validator = (*validator)(nil)
