package contract

import (
	"path"
	"strings"
)

// NormalizeLocation 规范化输入位置，作为日志/诊断中稳定的来源标识。
// 规则：
// - URL（含 "://"）原样保留；
// - 其余统一为正斜杠并 path.Clean；
// - 保留相对/绝对语义，不做隐式绝对化。
func NormalizeLocation(p string) string {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "://") {
		return p
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
