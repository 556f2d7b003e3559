package diag

import (
	"context"
	"errors"
	"net"
	"os"

	"hghplan/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeProtocol  Code = "protocol"
	CodeInvariant Code = "invariant"
	CodeNoSource  Code = "no_source"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrNoSource) {
		return CodeNoSource
	}
	// 协议/解码
	if errors.Is(err, contract.ErrDecode) {
		return CodeProtocol
	}
	// 不变量
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	// 网络（连接/超时等）
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	if errors.Is(err, contract.ErrFetch) {
		return CodeIO
	}
	return CodeUnknown
}
