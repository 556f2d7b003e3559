package tokens

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"hghplan/pkg/contract"
)

// Options 为 Token 文档解码器的可选配置。
type Options struct {
	// Strict: 拒绝未知顶层字段（默认宽松，提取器可能附带额外信息）。
	Strict bool `json:"strict"`
}

type decoder struct {
	strict bool
}

// New 创建 Token 文档解码器。
func New(opts *Options) contract.TokenDecoder {
	d := &decoder{}
	if opts != nil {
		d.strict = opts.Strict
	}
	return d
}

type wireDoc struct {
	Meta  map[string]any `json:"meta"`
	Items []wireItem     `json:"items"`
}

// wireItem: 文本字段优先 str，兼容 text。
// 坐标保留原始 JSON，逐项判定，单个坏项不影响整份文档。
type wireItem struct {
	Str  *string         `json:"str"`
	Text string          `json:"text"`
	X    json.RawMessage `json:"x"`
	Y    json.RawMessage `json:"y"`
}

// coord 将坐标解为数值；缺失、null 或非数值返回 NaN，由行重建丢弃。
func coord(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return math.NaN()
	}
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return math.NaN()
	}
	return *f
}

// DecodeTokens 解码 {meta, items:[{str, x, y}]}；文档语法或结构错误返回 ErrDecode。
// 空白文本、坐标缺失或非数值等逐项问题不在此处处理，交由行重建丢弃。
func (d *decoder) DecodeTokens(r io.Reader) (contract.TokenDocument, error) {
	var doc wireDoc
	dec := json.NewDecoder(r)
	if d.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&doc); err != nil {
		return contract.TokenDocument{}, fmt.Errorf("%w: token document: %v", contract.ErrDecode, err)
	}
	out := contract.TokenDocument{
		Meta:  contract.Meta(doc.Meta),
		Items: make([]contract.Token, 0, len(doc.Items)),
	}
	for _, it := range doc.Items {
		text := it.Text
		if it.Str != nil {
			text = *it.Str
		}
		out.Items = append(out.Items, contract.Token{Text: text, X: coord(it.X), Y: coord(it.Y)})
	}
	return out, nil
}

var _ contract.TokenDecoder = (*decoder)(nil)
