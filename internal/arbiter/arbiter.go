// Package arbiter 在手写规范模型与新解析模型之间按新鲜度择一。
package arbiter

import (
	"fmt"
	"strings"
	"time"

	"hghplan/pkg/contract"
)

// State: 每次运行仅发生一次的同步状态转移。
type State int

const (
	StateNone State = iota
	StateCanonicalOnly
	StateParsedOnly
	StateBoth
)

func (s State) String() string {
	switch s {
	case StateCanonicalOnly:
		return "canonical_only"
	case StateParsedOnly:
		return "parsed_only"
	case StateBoth:
		return "both"
	default:
		return "none"
	}
}

// MarshalText 使状态在 JSON/日志中以名称出现。
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Candidate: 一个已规范化的候选模型；nil 表示来源不可用。
type Candidate struct {
	Source contract.Source
	Model  contract.Model
	OK     bool
	Issues contract.Issues
}

// Decision: 仲裁结果。Notes 记录每个决策点，供运维审计。
type Decision struct {
	Chosen contract.Source `json:"chosen"`
	State  State           `json:"state"`
	Notes  []string        `json:"notes"`
}

// 新鲜度键：优先 updated 系列，回退 valid-from 系列。
var (
	updatedKeys   = []string{"updatedAt", "updated_at", "updated"}
	validFromKeys = []string{"validFrom", "valid_from", "gueltigAb"}
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006",
}

// Timestamp 从 meta 取新鲜度时间戳；缺失或无法解析视为未知（不是零值）。
// 返回所用键以便写入决策说明。
func Timestamp(meta contract.Meta) (time.Time, string, bool) {
	for _, keys := range [][]string{updatedKeys, validFromKeys} {
		for _, k := range keys {
			s, ok := meta[k].(string)
			if !ok {
				continue
			}
			if t, ok := parseTime(s); ok {
				return t, k, true
			}
		}
	}
	return time.Time{}, "", false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Decide 选择当前呈现的模型。
// 解析候选 OK=false 时直接排除；两侧都不可用返回 ErrNoSource（唯一硬失败）。
func Decide(canonical, parsed *Candidate) (Decision, error) {
	var d Decision
	note := func(format string, args ...any) { d.Notes = append(d.Notes, fmt.Sprintf(format, args...)) }

	if parsed != nil && !parsed.OK {
		note("parsed document failed validation (%d issue(s)); falling back", len(parsed.Issues))
		parsed = nil
	}
	if canonical != nil && !canonical.OK {
		note("canonical source has no entries; kept as candidate")
	}

	switch {
	case canonical == nil && parsed == nil:
		d.State = StateNone
		note("no usable source")
		return d, contract.ErrNoSource
	case parsed == nil:
		d.State = StateCanonicalOnly
		d.Chosen = contract.SourceCanonical
		note("only canonical source available")
		return d, nil
	case canonical == nil:
		d.State = StateParsedOnly
		d.Chosen = contract.SourceParsed
		note("only parsed document available")
		return d, nil
	}

	d.State = StateBoth
	ct, ck, cok := Timestamp(canonical.Model.Meta)
	pt, pk, pok := Timestamp(parsed.Model.Meta)
	switch {
	case cok && pok:
		note("canonical %s=%s, parsed %s=%s", ck, ct.Format(time.RFC3339), pk, pt.Format(time.RFC3339))
		if pt.After(ct) {
			d.Chosen = contract.SourceParsed
			note("parsed document is newer")
		} else {
			d.Chosen = contract.SourceCanonical
			if pt.Equal(ct) {
				note("timestamps equal; preferring canonical")
			} else {
				note("canonical source is newer")
			}
		}
	case cok:
		d.Chosen = contract.SourceCanonical
		note("only canonical has a known timestamp (%s)", ck)
	case pok:
		d.Chosen = contract.SourceParsed
		note("only parsed has a known timestamp (%s)", pk)
	default:
		d.Chosen = contract.SourceParsed
		note("no known timestamps; preferring parsed document")
	}
	return d, nil
}

// Pick 返回决策选中的候选。
func Pick(d Decision, canonical, parsed *Candidate) *Candidate {
	switch d.Chosen {
	case contract.SourceCanonical:
		return canonical
	case contract.SourceParsed:
		return parsed
	default:
		return nil
	}
}
