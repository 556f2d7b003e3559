// Package canon 将任意来源的课表形状数据规范化为最终模型。
//
// 输入可能是手写文件解码后的对象树，也可能是装配器产出的模型；
// 两者走同一入口，保证同一组不变量：
//   - 每班每日按节次比较器排序且节次唯一；
//   - 科目从不为空；
//   - sameAs 引用在返回前全部解析；
//   - 每个班级包含全部星期键。
//
// Normalize 从不 panic、从不返回错误，总是给出尽力而为的模型加诊断。
package canon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"hghplan/pkg/contract"
)

// 诊断文本（调用方与测试可据此匹配）。
const (
	IssueNotObject = "input is not an object"
	IssueNoEntries = "no entries in schedule"
)

// Result 为规范化结果。OK 仅表示"至少有一条课时"，与诊断数量无关。
type Result struct {
	Model  contract.Model
	Issues contract.Issues
	OK     bool
}

// day: 单日的中间状态；ref 非空表示尚未解析的 sameAs 引用。
type day struct {
	entries []contract.Entry
	ref     string
}

type normalizer struct {
	d       contract.Defaults
	issues  contract.Issues
	slots   map[string]struct{}
	classes map[string]map[string]*day
}

// Normalize 规范化任意输入。
// 接受 map[string]any、contract.Model、*contract.Model；其余视为非对象。
func Normalize(input any, d contract.Defaults) Result {
	d = d.WithFallbacks()
	raw, ok := asObject(input)
	if !ok {
		return Result{Model: emptyModel(d), Issues: contract.Issues{IssueNotObject}}
	}

	n := &normalizer{d: d, classes: make(map[string]map[string]*day)}
	m := contract.Model{Meta: n.meta(raw["meta"])}
	m.Timeslots = n.timeslots(raw["timeslots"])
	n.slots = contract.SlotSet(m.Timeslots)

	order := n.classOrder(raw["classes"], raw["classIds"])
	for _, cid := range order {
		n.class(cid, raw["classes"])
	}
	n.resolve(order)

	m.ClassIDs = order
	m.Classes = make(map[string]map[string][]contract.Entry, len(order))
	for _, cid := range order {
		days := make(map[string][]contract.Entry, len(d.Days))
		for _, dayID := range d.Days {
			es := []contract.Entry{}
			if dd := n.classes[cid][dayID]; dd != nil && len(dd.entries) > 0 {
				es = dd.entries
			}
			days[dayID] = es
		}
		m.Classes[cid] = days
	}

	res := Result{Model: m, Issues: n.issues, OK: m.EntryCount() > 0}
	if !res.OK {
		res.Issues = append(res.Issues, IssueNoEntries)
	}
	return res
}

func asObject(input any) (map[string]any, bool) {
	switch v := input.(type) {
	case map[string]any:
		if v == nil {
			return nil, false
		}
		return v, true
	case contract.Model:
		return v.Raw(), true
	case *contract.Model:
		if v == nil {
			return nil, false
		}
		return v.Raw(), true
	default:
		return nil, false
	}
}

// emptyModel: 结构性失败时的兜底模型（默认节次 + 名单班级 + 全部空日）。
func emptyModel(d contract.Defaults) contract.Model {
	m := contract.Model{
		Timeslots: append([]contract.Timeslot(nil), d.Timeslots...),
		Classes:   make(map[string]map[string][]contract.Entry, len(d.ClassIDs)),
		ClassIDs:  append([]string(nil), d.ClassIDs...),
	}
	for _, cid := range d.ClassIDs {
		days := make(map[string][]contract.Entry, len(d.Days))
		for _, dayID := range d.Days {
			days[dayID] = []contract.Entry{}
		}
		m.Classes[cid] = days
	}
	return m
}

func (n *normalizer) meta(v any) contract.Meta {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return contract.Meta(t).Clone()
	case contract.Meta:
		return t.Clone()
	default:
		n.issues.Addf("meta is not an object (%T); ignored", v)
		return nil
	}
}

func (n *normalizer) timeslots(v any) []contract.Timeslot {
	var out []contract.Timeslot
	switch list := v.(type) {
	case nil:
	case []any:
		seen := make(map[string]struct{}, len(list))
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				n.issues.Addf("timeslot #%d is not an object; dropped", i+1)
				continue
			}
			id, tm := text(obj["id"]), text(obj["time"])
			if id == "" || tm == "" {
				n.issues.Addf("timeslot #%d missing id or time; dropped", i+1)
				continue
			}
			if _, dup := seen[id]; dup {
				n.issues.Addf("duplicate timeslot id %q dropped", id)
				continue
			}
			seen[id] = struct{}{}
			out = append(out, contract.Timeslot{ID: id, Time: tm})
		}
	default:
		n.issues.Addf("timeslots is not a list (%T); using defaults", v)
	}
	if len(out) == 0 {
		return append([]contract.Timeslot(nil), n.d.Timeslots...)
	}
	return out
}

// classOrder: classIds 中列出的班级在前（保持顺序），其余按节次比较器排序追加；
// 完全没有班级时回退名单。
func (n *normalizer) classOrder(classes, ids any) []string {
	cm, isMap := classes.(map[string]any)
	if classes != nil && !isMap {
		n.issues.Addf("classes is not an object (%T); ignored", classes)
	}
	seen := make(map[string]struct{})
	var order []string
	if ids != nil {
		list, ok := ids.([]any)
		if !ok {
			n.issues.Addf("classIds is not a list (%T); ignored", ids)
		}
		for i, item := range list {
			s, ok := item.(string)
			s = strings.TrimSpace(s)
			if !ok || s == "" {
				n.issues.Addf("classIds #%d is not a class id; ignored", i+1)
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			order = append(order, s)
		}
	}
	var rest []string
	for cid := range cm {
		if strings.TrimSpace(cid) == "" {
			n.issues.Addf("class with empty id dropped")
			continue
		}
		if _, ok := seen[cid]; !ok {
			rest = append(rest, cid)
		}
	}
	contract.SortSlotIDs(rest)
	order = append(order, rest...)
	if len(order) == 0 {
		order = append(order, n.d.ClassIDs...)
	}
	return order
}

// class 规范化单个班级的全部日；引用先原样保留。
func (n *normalizer) class(cid string, classes any) {
	days := make(map[string]*day, len(n.d.Days))
	n.classes[cid] = days
	cm, _ := classes.(map[string]any)
	v, present := cm[cid]
	if !present || v == nil {
		return
	}
	obj, ok := v.(map[string]any)
	if !ok {
		n.issues.Addf("class %s: not an object; all days empty", cid)
		return
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		dayID, ok := contract.CanonicalDay(key)
		if !ok {
			n.issues.Addf("class %s: unknown day %q dropped", cid, key)
			continue
		}
		if _, dup := days[dayID]; dup {
			n.issues.Addf("class %s: day %q duplicates %s; dropped", cid, key, dayID)
			continue
		}
		days[dayID] = n.day(cid, dayID, obj[key])
	}
}

func (n *normalizer) day(cid, dayID string, v any) *day {
	where := cid + "/" + dayID
	switch t := v.(type) {
	case nil:
		return &day{}
	case []any:
		return &day{entries: n.entries(where, t)}
	case map[string]any:
		if ref := text(t["sameAs"]); ref != "" {
			return &day{ref: ref}
		}
		n.issues.Addf("%s: object without sameAs; day empty", where)
		return &day{}
	default:
		n.issues.Addf("%s: unsupported day value (%T); day empty", where, v)
		return &day{}
	}
}

func (n *normalizer) entries(where string, list []any) []contract.Entry {
	out := make([]contract.Entry, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			n.issues.Addf("%s: entry #%d is not an object; dropped", where, i+1)
			continue
		}
		e := contract.Entry{
			Slot:    firstText(obj, "slot", "slotId", "id"),
			Subject: text(obj["subject"]),
			Teacher: text(obj["teacher"]),
			Room:    text(obj["room"]),
			Note:    text(obj["note"]),
		}
		if e.Slot == "" {
			n.issues.Addf("%s: entry #%d without slot dropped", where, i+1)
			continue
		}
		if e.Subject == "" {
			e.Subject = contract.SubjectPlaceholder
		}
		if _, known := n.slots[e.Slot]; !known {
			// 宽松：未知节次仅告警，保留条目
			n.issues.Addf("%s: unknown slot %q kept", where, e.Slot)
		}
		out = append(out, e)
	}
	contract.SortEntries(out)
	dedup := out[:0]
	for i, e := range out {
		if i > 0 && e.Slot == dedup[len(dedup)-1].Slot {
			n.issues.Addf("%s: duplicate slot %q dropped (subject %q)", where, e.Slot, e.Subject)
			continue
		}
		dedup = append(dedup, e)
	}
	return dedup
}

// resolve 第二遍：深度优先解析 sameAs；目标先完整解析再按值复制。
// 目标班级不存在或形成环时，该日置空并记诊断。
func (n *normalizer) resolve(order []string) {
	for _, cid := range order {
		for _, dayID := range n.d.Days {
			n.resolveDay(cid, dayID, map[string]bool{})
		}
	}
}

func (n *normalizer) resolveDay(cid, dayID string, visiting map[string]bool) bool {
	dd := n.classes[cid][dayID]
	if dd == nil || dd.ref == "" {
		return true
	}
	where := cid + "/" + dayID
	target := dd.ref
	visiting[cid] = true
	defer delete(visiting, cid)

	if _, exists := n.classes[target]; !exists {
		n.issues.Addf("%s: sameAs target %q not found; day empty", where, target)
		*dd = day{}
		return true
	}
	if visiting[target] || !n.resolveDay(target, dayID, visiting) {
		n.issues.Addf("%s: sameAs %q forms a cycle; day empty", where, target)
		*dd = day{}
		return false
	}
	var src []contract.Entry
	if td := n.classes[target][dayID]; td != nil {
		src = td.entries
	}
	*dd = day{entries: append([]contract.Entry(nil), src...)}
	return true
}

func firstText(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := text(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// text 将标量折算为去空白字符串；对象/数组视为空。
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}
