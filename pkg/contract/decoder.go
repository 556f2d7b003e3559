package contract

import "io"

// TokenDocument: 外部文本提取器的输出 {meta, items}。
type TokenDocument struct {
	Meta  Meta
	Items []Token
}

// CanonicalDecoder: 将手写规范文件解码为未类型化对象（交由规范化器处理）。
// name 为来源位置，用于按扩展名判定格式。
type CanonicalDecoder interface {
	DecodeCanonical(name string, r io.Reader) (any, error)
}

// TokenDecoder: 解码定位 Token 文档。
type TokenDecoder interface {
	DecodeTokens(r io.Reader) (TokenDocument, error)
}
