package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 课表文件与提取器输出放在 ./data 下，产物写到 ./out。
// 组件名采用仓库内置实现，选项列出全部键（值为中性默认）。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Inputs = Inputs{Canonical: "data/plan.yaml", Document: "data/tokens.json"}
	cfg.Server.RefreshInterval = "10m"
	cfg.Roster = Roster{
		ClassIDs: []string{"HT11", "HT12", "HT21", "HT22", "G11", "G21", "GT01"},
	}
	cfg.Options = Options{
		Reader:           map[string]any{"buf_size": 65536, "base_dir": ""},
		HTTPReader:       map[string]any{"headers": map[string]string{}, "max_bytes": 8 << 20, "timeout_ms": 0},
		CanonicalDecoder: map[string]any{"format": ""},
		TokenDecoder:     map[string]any{"strict": false},
		Reconstructor:    map[string]any{"tolerance": 2.0},
		Interpreter:      map[string]any{},
		Validator:        map[string]any{"min_entries": 10},
		Assembler:        map[string]any{},
		Writer: map[string]any{
			"output_dir": "out",
			"atomic":     true,
			"backup":     false,
			"perm_file":  0,
			"perm_dir":   0,
			"buf_size":   65536,
		},
	}
	return cfg
}

// Dump 以 YAML 输出配置（用于诊断与模板）。
func Dump(w io.Writer, c Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteTemplate 在 dir 下生成 hghplan.yaml 与 .env 模板。
// 已存在的文件跳过，不覆盖；返回实际写入的路径。
func WriteTemplate(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string

	var cfgBuf bytes.Buffer
	cfgBuf.WriteString("# hghplan 配置（由 init-config 生成）\n")
	cfgBuf.WriteString("# 优先级：CLI > ENV(HGH_*) > 本文件 > 内置默认\n")
	if err := Dump(&cfgBuf, DefaultTemplateConfig()); err != nil {
		return nil, err
	}
	cfgPath := filepath.Join(dir, DefaultFile)
	ok, err := createExcl(cfgPath, cfgBuf.Bytes())
	if err != nil {
		return written, err
	}
	if ok {
		written = append(written, cfgPath)
	}

	envPath := filepath.Join(dir, ".env")
	ok, err = createExcl(envPath, []byte(dotEnvTemplate()))
	if err != nil {
		return written, err
	}
	if ok {
		written = append(written, envPath)
	}
	return written, nil
}

func createExcl(path string, b []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func dotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# hghplan .env 模板（由 init-config 生成）\n")
	b.WriteString("# \"__\" 表示层级：HGH_INPUTS__CANONICAL → inputs.canonical\n")
	b.WriteString("# 空值表示未设置；按需填写。已存在的环境变量优先。\n\n")

	b.WriteString("# 配置文件\n")
	b.WriteString(EnvConfigFile + "=\n\n")

	b.WriteString("# 来源与产物\n")
	for _, k := range []string{
		"INPUTS__CANONICAL", "INPUTS__DOCUMENT",
		"OUTPUT__NAME", "OUTPUT__FORMAT",
		"FETCH_TIMEOUT", "LOGGING__LEVEL",
	} {
		fmt.Fprintf(&b, "%s%s=\n", EnvPrefix, k)
	}
	b.WriteString("\n# 服务与监听\n")
	for _, k := range []string{
		"SERVER__ADDR", "SERVER__REFRESH_INTERVAL", "SERVER__REFRESH_RPM",
		"WATCH__DEBOUNCE", "WATCH__MAX_RPM",
	} {
		fmt.Fprintf(&b, "%s%s=\n", EnvPrefix, k)
	}
	b.WriteString("\n# 兜底班级名单（逗号分隔）\n")
	b.WriteString(EnvPrefix + "ROSTER__CLASS_IDS=\n")
	b.WriteString("\n# 组件选项（示例）\n")
	for _, k := range []string{
		"OPTIONS__RECONSTRUCTOR__TOLERANCE",
		"OPTIONS__VALIDATOR__MIN_ENTRIES",
		"OPTIONS__WRITER__OUTPUT_DIR",
	} {
		fmt.Fprintf(&b, "%s%s=\n", EnvPrefix, k)
	}
	return b.String()
}
