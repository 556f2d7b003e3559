package contract

// Interpretation: 行解释结果。
// ClassIDs 为已接受课时中出现的去重班级（按首次出现顺序），
// 供缺少规范班级名单时使用。
type Interpretation struct {
	Lessons  []Lesson
	ClassIDs []string
	Issues   Issues
}

// Interpreter: 将行文本解码为候选课时。
// 约束：
//  1. 每行产出 0 或 1 个候选；
//  2. 缺少必需字段或星期记号未知的行被拒绝并记录诊断；
//  3. 无任何可识别字段的行（页眉等）静默跳过。
type Interpreter interface {
	Interpret(rows []Row) Interpretation
}
