package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrNoSource: 两个来源均不可用（唯一向调用方暴露的数据级硬失败）。
	ErrNoSource = errors.New("no schedule source available")
	// ErrFetch: 读取输入源失败（网络/文件）。
	ErrFetch = errors.New("source fetch failed")
	// ErrDecode: 文档格式错误，无法解码。
	ErrDecode = errors.New("document decode failed")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用参数非法。
	ErrInvalidInput = errors.New("invalid input")
)
