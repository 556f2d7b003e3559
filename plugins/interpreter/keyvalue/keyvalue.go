package keyvalue

import (
	"fmt"
	"strings"

	"hghplan/pkg/contract"
)

// Options: 预留占位，键值解释器当前无配置。
type Options struct{}

// 规范字段名。
const (
	FieldClass   = "class"
	FieldDay     = "day"
	FieldSlot    = "slot"
	FieldSubject = "subject"
	FieldTeacher = "teacher"
	FieldRoom    = "room"
	FieldNote    = "note"
)

// aliases: 折叠后的键 → 规范字段名（中英/德双语别名）。
var aliases = map[string]string{
	"class": FieldClass, "klasse": FieldClass,
	"day": FieldDay, "tag": FieldDay,
	"slot": FieldSlot, "std": FieldSlot, "stunde": FieldSlot,
	"subject": FieldSubject, "fach": FieldSubject,
	"teacher": FieldTeacher, "lehrer": FieldTeacher,
	"room": FieldRoom, "raum": FieldRoom,
	"note": FieldNote, "notiz": FieldNote,
}

var required = []string{FieldClass, FieldDay, FieldSlot, FieldSubject}

// RowResult: 单行解码结果。
type RowResult struct {
	Lesson contract.Lesson
	OK     bool
	Issues contract.Issues
	// Fields: 识别到的非空规范字段（便于调试与测试）。
	Fields map[string]string
}

// ParseRow 将 "key:value; key:value" 文本解码为候选课时。
// 无冒号或空键的片段静默跳过；未知键忽略；同键多次出现取首个。
func ParseRow(text string) RowResult {
	fields := make(map[string]string)
	for _, part := range strings.Split(text, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key := contract.Fold(k)
		if key == "" {
			continue
		}
		name, known := aliases[key]
		if !known {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := fields[name]; dup {
			continue
		}
		fields[name] = v
	}

	res := RowResult{Fields: fields}
	if len(fields) == 0 {
		// 非数据文本（页眉/页脚），不产出诊断
		return res
	}
	var missing []string
	for _, f := range required {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		res.Issues.Addf("missing required field(s) %s in %q", strings.Join(missing, ","), text)
		return res
	}
	day, ok := contract.CanonicalDay(fields[FieldDay])
	if !ok {
		res.Issues.Addf("unknown day token %q", fields[FieldDay])
		return res
	}
	res.Lesson = contract.Lesson{
		Class:   fields[FieldClass],
		Day:     day,
		Slot:    fields[FieldSlot],
		Subject: fields[FieldSubject],
		Teacher: fields[FieldTeacher],
		Room:    fields[FieldRoom],
		Note:    fields[FieldNote],
	}
	res.OK = true
	return res
}

type interpreter struct{}

// New 创建键值行解释器。
func New(_ *Options) contract.Interpreter { return &interpreter{} }

// Interpret 逐行解码；诊断带行号前缀（从 1 开始，基于重建后的行序）。
func (p *interpreter) Interpret(rows []contract.Row) contract.Interpretation {
	var out contract.Interpretation
	seen := make(map[string]struct{})
	for i, row := range rows {
		r := ParseRow(row.Text)
		for _, is := range r.Issues {
			out.Issues = append(out.Issues, fmt.Sprintf("row %d: %s", i+1, is))
		}
		if !r.OK {
			continue
		}
		out.Lessons = append(out.Lessons, r.Lesson)
		if _, ok := seen[r.Lesson.Class]; !ok {
			seen[r.Lesson.Class] = struct{}{}
			out.ClassIDs = append(out.ClassIDs, r.Lesson.Class)
		}
	}
	return out
}

var _ contract.Interpreter = (*interpreter)(nil)
