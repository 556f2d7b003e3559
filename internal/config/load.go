package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix: 环境变量前缀；"__" 表示层级，单个 "_" 保留在键名内。
	EnvPrefix = "HGH_"
	// EnvConfigFile: 指定配置文件路径的环境变量（不参与键映射）。
	EnvConfigFile = EnvPrefix + "CONFIG_FILE"
	// DefaultFile: 工作目录下的默认配置文件名（存在时读取）。
	DefaultFile = "hghplan.yaml"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：输入位置不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Output:       Output{Name: "schedule", Format: "json"},
		FetchTimeout: "15s",
		Logging:      Logging{Level: "info"},
		Server:       Server{Addr: ":8080", RefreshRPM: 6},
		Watch:        Watch{Debounce: "500ms", MaxRPM: 30},
		Components: Components{
			Reader:           "fs",
			HTTPReader:       "http",
			CanonicalDecoder: "auto",
			TokenDecoder:     "json",
			Reconstructor:    "cluster",
			Interpreter:      "keyvalue",
			Validator:        "dedupe",
			Assembler:        "grid",
			Writer:           "fs",
		},
		Options: Options{
			Writer: map[string]any{"output_dir": "out"},
		},
	}
}

// ResolvePath 决定配置文件路径：显式参数 > HGH_CONFIG_FILE > ./hghplan.yaml（若存在）。
// 返回空串表示不读取文件。
func ResolvePath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p
	}
	if st, err := os.Stat(DefaultFile); err == nil && st.Mode().IsRegular() {
		return DefaultFile
	}
	return ""
}

// Load 按 默认值 → 配置文件（YAML，兼容 JSON）→ HGH_ 环境变量 的顺序叠加。
// path 为空时跳过文件层。CLI 覆盖由调用方通过 Merge 完成。
func Load(path string) (Config, error) {
	var raw []byte
	if path != "" {
		b, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		raw = b
	}
	return LoadBytes(raw)
}

// LoadBytes 与 Load 相同，但直接接收配置内容。
func LoadBytes(raw []byte) (Config, error) {
	k := koanf.New(".")
	if len(raw) > 0 {
		if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return Config{}, fmt.Errorf("config: env: %w", err)
	}
	if err := checkKeys(k.Keys()); err != nil {
		return Config{}, err
	}
	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config: %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config: %s exceeds %d bytes", path, maxConfigFileSize)
	}
	b, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return b, nil
}

// envKeyValue: HGH_INPUTS__CANONICAL → inputs.canonical；空值视为未设置。
// options.* 下的值按标量推断类型（整数/浮点/布尔），以通过工厂的严格 JSON 解析；
// roster.class_ids 按逗号切分。
func envKeyValue(key, value string) (string, any) {
	if key == EnvConfigFile || strings.TrimSpace(value) == "" {
		return "", nil
	}
	k := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	k = strings.ReplaceAll(k, "__", ".")
	switch {
	case k == "roster.class_ids":
		return k, splitComma(value)
	case strings.HasPrefix(k, "options."):
		return k, scalar(value)
	}
	return k, value
}

func scalar(s string) any {
	t := strings.TrimSpace(s)
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(t); err == nil {
		return b
	}
	return s
}

// 已知键：叶子键逐一列出；options.<component>.* 与 roster.timeslots 子树放行。
var knownKeys = keySet(
	"inputs.canonical", "inputs.document",
	"output.name", "output.format",
	"fetch_timeout",
	"logging.level",
	"server.addr", "server.refresh_interval", "server.refresh_rpm",
	"watch.debounce", "watch.max_rpm",
	"roster.class_ids", "roster.timeslots",
	"components.reader", "components.http_reader",
	"components.canonical_decoder", "components.token_decoder",
	"components.reconstructor", "components.interpreter",
	"components.validator", "components.assembler", "components.writer",
	"options",
)

var optionSections = keySet(
	"reader", "http_reader", "canonical_decoder", "token_decoder",
	"reconstructor", "interpreter", "validator", "assembler", "writer",
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// checkKeys 拒绝未知键（拼写错误在解析期暴露，而不是静默忽略）。
func checkKeys(keys []string) error {
	var unknown []string
	for _, k := range keys {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		if rest, ok := strings.CutPrefix(k, "options."); ok {
			sec, _, _ := strings.Cut(rest, ".")
			if _, ok := optionSections[sec]; ok {
				continue
			}
		}
		if strings.HasPrefix(k, "roster.timeslots.") {
			continue
		}
		unknown = append(unknown, k)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("config: unknown key(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串空值不覆盖；Options 子树按键替换（不做深度合并）。
func Merge(base, over Config) Config {
	out := base
	if over.Inputs.Canonical != "" {
		out.Inputs.Canonical = over.Inputs.Canonical
	}
	if over.Inputs.Document != "" {
		out.Inputs.Document = over.Inputs.Document
	}
	if over.Output.Name != "" {
		out.Output.Name = over.Output.Name
	}
	if over.Output.Format != "" {
		out.Output.Format = over.Output.Format
	}
	if s := strings.TrimSpace(over.FetchTimeout); s != "" {
		out.FetchTimeout = s
	}
	// Logging（仅 level）
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if over.Server.Addr != "" {
		out.Server.Addr = over.Server.Addr
	}
	if over.Server.RefreshInterval != "" {
		out.Server.RefreshInterval = over.Server.RefreshInterval
	}
	if over.Server.RefreshRPM != 0 {
		out.Server.RefreshRPM = over.Server.RefreshRPM
	}
	if over.Watch.Debounce != "" {
		out.Watch.Debounce = over.Watch.Debounce
	}
	if over.Watch.MaxRPM != 0 {
		out.Watch.MaxRPM = over.Watch.MaxRPM
	}
	if len(over.Roster.ClassIDs) > 0 {
		out.Roster.ClassIDs = cloneStrings(over.Roster.ClassIDs)
	}
	if len(over.Roster.Timeslots) > 0 {
		out.Roster.Timeslots = append([]Timeslot(nil), over.Roster.Timeslots...)
	}

	// 组件名（空不覆盖）
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Components.Reader, over.Components.Reader)
	pick(&out.Components.HTTPReader, over.Components.HTTPReader)
	pick(&out.Components.CanonicalDecoder, over.Components.CanonicalDecoder)
	pick(&out.Components.TokenDecoder, over.Components.TokenDecoder)
	pick(&out.Components.Reconstructor, over.Components.Reconstructor)
	pick(&out.Components.Interpreter, over.Components.Interpreter)
	pick(&out.Components.Validator, over.Components.Validator)
	pick(&out.Components.Assembler, over.Components.Assembler)
	pick(&out.Components.Writer, over.Components.Writer)

	// Options（按键替换）
	out.Options.Reader = mergeOpts(base.Options.Reader, over.Options.Reader)
	out.Options.HTTPReader = mergeOpts(base.Options.HTTPReader, over.Options.HTTPReader)
	out.Options.CanonicalDecoder = mergeOpts(base.Options.CanonicalDecoder, over.Options.CanonicalDecoder)
	out.Options.TokenDecoder = mergeOpts(base.Options.TokenDecoder, over.Options.TokenDecoder)
	out.Options.Reconstructor = mergeOpts(base.Options.Reconstructor, over.Options.Reconstructor)
	out.Options.Interpreter = mergeOpts(base.Options.Interpreter, over.Options.Interpreter)
	out.Options.Validator = mergeOpts(base.Options.Validator, over.Options.Validator)
	out.Options.Assembler = mergeOpts(base.Options.Assembler, over.Options.Assembler)
	out.Options.Writer = mergeOpts(base.Options.Writer, over.Options.Writer)
	return out
}

// mergeOpts 返回新 map，不修改 base。
func mergeOpts(base, over map[string]any) map[string]any {
	if len(base) == 0 && len(over) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
