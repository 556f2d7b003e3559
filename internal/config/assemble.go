package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hghplan/internal/pipeline"
	"hghplan/pkg/contract"
	"hghplan/pkg/registry"
)

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	can := strings.TrimSpace(cfg.Inputs.Canonical)
	doc := strings.TrimSpace(cfg.Inputs.Document)
	if can == "" && doc == "" {
		return errors.New("config: inputs empty (need canonical and/or document)")
	}
	// STDIN 只能被一个来源使用
	if can == "-" && doc == "-" {
		return errors.New("config: '-' cannot be used for both inputs")
	}
	if contract.FormatExt(cfg.Output.Format) == "" {
		return fmt.Errorf("config: output.format %q not supported (json|msgpack)", cfg.Output.Format)
	}
	if _, err := parseDuration("fetch_timeout", cfg.FetchTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("server.refresh_interval", cfg.Server.RefreshInterval); err != nil {
		return err
	}
	if _, err := parseDuration("watch.debounce", cfg.Watch.Debounce); err != nil {
		return err
	}
	if cfg.Server.RefreshRPM < 0 || cfg.Watch.MaxRPM < 0 {
		return errors.New("config: server.refresh_rpm and watch.max_rpm must be >= 0")
	}
	if lv := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); lv != "" && !levels[lv] {
		return fmt.Errorf("config: logging.level %q not in debug|info|warn|error", cfg.Logging.Level)
	}
	seen := map[string]bool{}
	for i, ts := range cfg.Roster.Timeslots {
		id := strings.TrimSpace(ts.ID)
		if id == "" {
			return fmt.Errorf("config: roster.timeslots[%d] missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("config: roster.timeslots duplicate id %q", id)
		}
		seen[id] = true
	}

	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.HTTPReader, d.HTTPReader); registry.Reader[name] == nil {
		return fmt.Errorf("config: http_reader %q not registered", name)
	}
	if name := effName(cfg.Components.CanonicalDecoder, d.CanonicalDecoder); registry.CanonicalDecoder[name] == nil {
		return fmt.Errorf("config: canonical_decoder %q not registered", name)
	}
	if name := effName(cfg.Components.TokenDecoder, d.TokenDecoder); registry.TokenDecoder[name] == nil {
		return fmt.Errorf("config: token_decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Reconstructor, d.Reconstructor); registry.Reconstructor[name] == nil {
		return fmt.Errorf("config: reconstructor %q not registered", name)
	}
	if name := effName(cfg.Components.Interpreter, d.Interpreter); registry.Interpreter[name] == nil {
		return fmt.Errorf("config: interpreter %q not registered", name)
	}
	if name := effName(cfg.Components.Validator, d.Validator); registry.Validator[name] == nil {
		return fmt.Errorf("config: validator %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return fmt.Errorf("config: assembler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只把子树序列化为 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	if err := Validate(cfg); err != nil {
		return comp, pipeline.Settings{}, err
	}
	d := Defaults().Components
	var err error
	wrap := func(kind string, e error) error { return fmt.Errorf("config: build %s: %w", kind, e) }

	if comp.Reader, err = build(registry.Reader, effName(cfg.Components.Reader, d.Reader), cfg.Options.Reader); err != nil {
		return comp, pipeline.Settings{}, wrap("reader", err)
	}
	if comp.HTTP, err = build(registry.Reader, effName(cfg.Components.HTTPReader, d.HTTPReader), cfg.Options.HTTPReader); err != nil {
		return comp, pipeline.Settings{}, wrap("http_reader", err)
	}
	if comp.CanonicalDecoder, err = build(registry.CanonicalDecoder, effName(cfg.Components.CanonicalDecoder, d.CanonicalDecoder), cfg.Options.CanonicalDecoder); err != nil {
		return comp, pipeline.Settings{}, wrap("canonical_decoder", err)
	}
	if comp.TokenDecoder, err = build(registry.TokenDecoder, effName(cfg.Components.TokenDecoder, d.TokenDecoder), cfg.Options.TokenDecoder); err != nil {
		return comp, pipeline.Settings{}, wrap("token_decoder", err)
	}
	if comp.Reconstructor, err = build(registry.Reconstructor, effName(cfg.Components.Reconstructor, d.Reconstructor), cfg.Options.Reconstructor); err != nil {
		return comp, pipeline.Settings{}, wrap("reconstructor", err)
	}
	if comp.Interpreter, err = build(registry.Interpreter, effName(cfg.Components.Interpreter, d.Interpreter), cfg.Options.Interpreter); err != nil {
		return comp, pipeline.Settings{}, wrap("interpreter", err)
	}
	if comp.Validator, err = build(registry.Validator, effName(cfg.Components.Validator, d.Validator), cfg.Options.Validator); err != nil {
		return comp, pipeline.Settings{}, wrap("validator", err)
	}
	if comp.Assembler, err = build(registry.Assembler, effName(cfg.Components.Assembler, d.Assembler), cfg.Options.Assembler); err != nil {
		return comp, pipeline.Settings{}, wrap("assembler", err)
	}
	// 未设置产物名时不落盘
	if strings.TrimSpace(cfg.Output.Name) != "" {
		if comp.Writer, err = build(registry.Writer, effName(cfg.Components.Writer, d.Writer), cfg.Options.Writer); err != nil {
			return comp, pipeline.Settings{}, wrap("writer", err)
		}
	}

	timeout, _ := parseDuration("fetch_timeout", cfg.FetchTimeout)
	set := pipeline.Settings{
		Canonical:    strings.TrimSpace(cfg.Inputs.Canonical),
		Document:     strings.TrimSpace(cfg.Inputs.Document),
		Output:       strings.TrimSpace(cfg.Output.Name),
		Format:       strings.ToLower(strings.TrimSpace(cfg.Output.Format)),
		FetchTimeout: timeout,
		Defaults:     cfg.Fallbacks(),
	}
	return comp, set, nil
}

// Fallbacks 将 roster 转为注入流水线的兜底值（空字段由 WithFallbacks 补齐）。
func (c Config) Fallbacks() contract.Defaults {
	d := contract.Defaults{ClassIDs: cloneStrings(c.Roster.ClassIDs)}
	for _, ts := range c.Roster.Timeslots {
		d.Timeslots = append(d.Timeslots, contract.Timeslot{ID: strings.TrimSpace(ts.ID), Time: ts.Time})
	}
	return d.WithFallbacks()
}

// RefreshInterval 返回 serve 周期刷新间隔（0 表示关闭）。
func (c Config) RefreshInterval() time.Duration {
	d, _ := parseDuration("server.refresh_interval", c.Server.RefreshInterval)
	return d
}

// Debounce 返回 watch 去抖间隔。
func (c Config) Debounce() time.Duration {
	d, _ := parseDuration("watch.debounce", c.Watch.Debounce)
	return d
}

// build 通过注册表构造组件；选项子树先序列化为 JSON。
func build[T any, F ~func(json.RawMessage) (T, error)](reg map[string]F, name string, opts map[string]any) (T, error) {
	var zero T
	newFn, ok := reg[name]
	if !ok {
		return zero, fmt.Errorf("%q not registered (have %s)", name, strings.Join(registry.Names(reg), ", "))
	}
	var raw json.RawMessage
	if len(opts) > 0 {
		b, err := json.Marshal(opts)
		if err != nil {
			return zero, err
		}
		raw = b
	}
	return newFn(raw)
}

// parseDuration: 空串视为 0；负值非法。
func parseDuration(key, s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", key)
	}
	return d, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
