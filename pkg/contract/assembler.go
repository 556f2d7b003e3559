package contract

// Assembler: 将通过校验的课时装配为 classes[class][day] 形状。
// 约束：
//  1. classIDs 为空时回退 Defaults.ClassIDs；
//  2. 每个已知班级包含全部星期键（可为空数组）；
//  3. 每日条目按 CompareSlotIDs 排序；
//  4. meta 原样附加。
type Assembler interface {
	Assemble(lessons []Lesson, classIDs []string, meta Meta, d Defaults) Model
}
