package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（本地文件/HTTP）。
// 约束：
// 1) 单次调用只打开一个位置，返回原始字节流；
// 2) 不做解码/业务解析；
// 3) 尊重 ctx 取消/超时；
// 4) 不在内部起并发。调用方负责 Close。
type Reader interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}
