package contract

// Reconstructor: 将无序定位 Token 聚类为有序逻辑行（可插拔策略）。
// 约束：
//  1. 纵坐标差不超过容差的 Token 归入同一行；
//  2. 行按 Y 升序，行内按 X 升序；
//  3. 对输入顺序不敏感（同一集合多次运行结果一致）；
//  4. 纯计算，不失败；空输入返回空序列。
type Reconstructor interface {
	Rows(tokens []Token) []Row
}
