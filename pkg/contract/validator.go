package contract

// Validation: 去重与阈值校验结果。OK 仅在零诊断时为 true。
type Validation struct {
	Lessons []Lesson
	OK      bool
	Issues  Issues
}

// Validator: 对候选课时去重与健全性检查。
// 约束：
//  1. (class, day, slot) 重复时保留首个，其余丢弃且每条记一诊断；
//  2. 总条目低于下限时记一诊断并判为无效；
//  3. 不重排保留项。
type Validator interface {
	Validate(lessons []Lesson) Validation
}
