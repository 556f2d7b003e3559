package contract

import "fmt"

// Token: 文本提取器产出的定位文本单元（外部协作方产出，仅被行重建消费）。
type Token struct {
	Text string  `json:"str"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Row: 同一视觉行的 Token 簇。
// Y 为代表纵坐标（运行均值）；Text 为按 X 升序拼接并压缩空白后的显示文本。
type Row struct {
	Y      float64
	Tokens []Token
	Text   string
}

// Lesson: 行解释器产出的候选课时（可能不完整，不合格者在校验前丢弃）。
type Lesson struct {
	Class   string
	Day     string
	Slot    string
	Subject string
	Teacher string
	Room    string
	Note    string
}

// Key 返回 (class, day, slot) 三元组键，用于去重。
func (l Lesson) Key() string { return l.Class + "\x00" + l.Day + "\x00" + l.Slot }

// Entry 返回去掉 class/day 维度后的课表条目。
func (l Lesson) Entry() Entry {
	return Entry{Slot: l.Slot, Subject: l.Subject, Teacher: l.Teacher, Room: l.Room, Note: l.Note}
}

// Entry: 规范模型中某班某日的一条课时。
type Entry struct {
	Slot    string `json:"slot" msgpack:"slot" yaml:"slot" toml:"slot"`
	Subject string `json:"subject" msgpack:"subject" yaml:"subject" toml:"subject"`
	Teacher string `json:"teacher" msgpack:"teacher" yaml:"teacher" toml:"teacher"`
	Room    string `json:"room" msgpack:"room" yaml:"room" toml:"room"`
	Note    string `json:"note" msgpack:"note" yaml:"note" toml:"note"`
}

// Timeslot: 节次显示标签；ID 为全局连接键。
type Timeslot struct {
	ID   string `json:"id" msgpack:"id" yaml:"id" toml:"id"`
	Time string `json:"time" msgpack:"time" yaml:"time" toml:"time"`
}

// Meta: 自由格式元信息，核心流程仅读取时间戳键，其余原样透传。
type Meta map[string]any

// Clone 深拷贝 Meta（嵌套 map/slice 一并复制）。
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		mm := make(map[string]any, len(t))
		for k, vv := range t {
			mm[k] = cloneValue(vv)
		}
		return mm
	case Meta:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// Model: 规范课表模型 classes[classID][dayID] = 按节次排序的条目。
// 每次摄取生成一个新值，不跨运行共享。
type Model struct {
	Meta      Meta                          `json:"meta" msgpack:"meta"`
	Timeslots []Timeslot                    `json:"timeslots" msgpack:"timeslots"`
	Classes   map[string]map[string][]Entry `json:"classes" msgpack:"classes"`
	ClassIDs  []string                      `json:"classIds" msgpack:"classIds"`
}

// EntryCount 统计全模型条目数。
func (m Model) EntryCount() int {
	n := 0
	for _, days := range m.Classes {
		for _, es := range days {
			n += len(es)
		}
	}
	return n
}

// Raw 将模型转换为未类型化的对象形状（与解码后的规范文件同构），供规范化器复用。
func (m Model) Raw() map[string]any {
	slots := make([]any, 0, len(m.Timeslots))
	for _, ts := range m.Timeslots {
		slots = append(slots, map[string]any{"id": ts.ID, "time": ts.Time})
	}
	classes := make(map[string]any, len(m.Classes))
	for cid, days := range m.Classes {
		dd := make(map[string]any, len(days))
		for day, es := range days {
			arr := make([]any, 0, len(es))
			for _, e := range es {
				arr = append(arr, map[string]any{
					"slot":    e.Slot,
					"subject": e.Subject,
					"teacher": e.Teacher,
					"room":    e.Room,
					"note":    e.Note,
				})
			}
			dd[day] = arr
		}
		classes[cid] = dd
	}
	ids := make([]any, 0, len(m.ClassIDs))
	for _, id := range m.ClassIDs {
		ids = append(ids, id)
	}
	out := map[string]any{
		"timeslots": slots,
		"classes":   classes,
		"classIds":  ids,
	}
	if m.Meta != nil {
		out["meta"] = map[string]any(m.Meta.Clone())
	}
	return out
}

// Issues: 有序、仅追加的人类可读诊断列表。
// 存在诊断本身不使模型失效，有效性只看显式 OK 标志。
type Issues []string

// Addf 追加一条格式化诊断。
func (is *Issues) Addf(format string, args ...any) {
	*is = append(*is, fmt.Sprintf(format, args...))
}

// Append 追加其他诊断列表（保持顺序）。
func (is *Issues) Append(other ...string) {
	*is = append(*is, other...)
}

// Source: 候选模型来源标签。
type Source string

const (
	SourceCanonical Source = "canonical"
	SourceParsed    Source = "parsed"
)
