package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// 模型产物编码格式。
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// FormatExt 返回编码格式对应的文件扩展名（含点）；未知格式返回空串。
func FormatExt(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return ".json"
	case FormatMsgpack:
		return ".msgpack"
	default:
		return ""
	}
}

// EncodeModel 以指定格式编码模型；空格式视为 json。
// json 为缩进输出（末尾换行），msgpack 为二进制快照。
func EncodeModel(format string, m Model) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return &buf, nil
	case FormatMsgpack:
		b, err := msgpack.Marshal(&m)
		if err != nil {
			return nil, fmt.Errorf("encode msgpack: %w", err)
		}
		return bytes.NewReader(b), nil
	default:
		return nil, fmt.Errorf("%w: unknown model format %q", ErrInvalidInput, format)
	}
}

// DecodeModel 为 EncodeModel 的逆操作（主要用于读取已写出的快照）。
func DecodeModel(format string, r io.Reader) (Model, error) {
	var m Model
	b, err := io.ReadAll(r)
	if err != nil {
		return m, err
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		err = json.Unmarshal(b, &m)
	case FormatMsgpack:
		err = msgpack.Unmarshal(b, &m)
	default:
		return m, fmt.Errorf("%w: unknown model format %q", ErrInvalidInput, format)
	}
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return m, nil
}
