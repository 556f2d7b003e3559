package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"hghplan/pkg/contract"
)

// 支持的规范文件格式。
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Options 为规范文件解码器的可选配置。
type Options struct {
	// Format: 强制格式（json|yaml|toml）；为空按扩展名判定，无扩展名按 json。
	Format string `json:"format"`
}

type decoder struct {
	format string
}

// New 创建规范文件解码器；未知 Format 返回 ErrInvalidInput。
func New(opts *Options) (contract.CanonicalDecoder, error) {
	d := &decoder{}
	if opts != nil && opts.Format != "" {
		f := normFormat(opts.Format)
		if f == "" {
			return nil, fmt.Errorf("%w: unknown canonical format %q", contract.ErrInvalidInput, opts.Format)
		}
		d.format = f
	}
	return d, nil
}

func normFormat(s string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "toml":
		return FormatTOML
	default:
		return ""
	}
}

// FormatOf 按位置扩展名判定格式（忽略 URL 查询串）。
func FormatOf(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if f := normFormat(path.Ext(name)); f != "" {
		return f
	}
	return FormatJSON
}

// DecodeCanonical 解码为未类型化对象树：对象统一为 map[string]any，数组统一为 []any。
// 结构校验交由规范化器；此处只对语法错误返回 ErrDecode。
func (d *decoder) DecodeCanonical(name string, r io.Reader) (any, error) {
	format := d.format
	if format == "" {
		format = FormatOf(name)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", contract.ErrFetch, name, err)
	}
	var v any
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(b, &v)
	case FormatTOML:
		var m map[string]any
		_, err = toml.Decode(string(b), &m)
		v = m
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		err = dec.Decode(&v)
		if err == nil && dec.More() {
			err = fmt.Errorf("trailing data after document")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%s): %v", contract.ErrDecode, name, format, err)
	}
	return plain(v), nil
}

// plain 将各解析器的特有类型折算为 JSON 同构的通用值。
func plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = plain(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = plain(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = plain(vv)
		}
		return out
	case []map[string]any:
		// toml 表数组
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = plain(vv)
		}
		return out
	case time.Time:
		return timeString(t)
	default:
		return v
	}
}

// timeString: toml 本地日期/时间以固定时区名标记，按原始精度输出。
func timeString(t time.Time) string {
	switch t.Location().String() {
	case "date-local":
		return t.Format("2006-01-02")
	case "datetime-local":
		return t.Format("2006-01-02T15:04:05")
	case "time-local":
		return t.Format("15:04:05")
	default:
		return t.Format(time.RFC3339)
	}
}

var _ contract.CanonicalDecoder = (*decoder)(nil)
