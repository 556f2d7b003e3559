package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"hghplan/pkg/contract"
	grid "hghplan/plugins/assembler/grid"
	dcanon "hghplan/plugins/decoder/canonical"
	dtok "hghplan/plugins/decoder/tokens"
	kv "hghplan/plugins/interpreter/keyvalue"
	rfs "hghplan/plugins/reader/filesystem"
	rhttp "hghplan/plugins/reader/http"
	cluster "hghplan/plugins/reconstructor/cluster"
	dedupe "hghplan/plugins/validator/dedupe"
	wfs "hghplan/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewReconstructor 工厂签名：接收原样 JSON Options。
type NewReconstructor func(raw json.RawMessage) (contract.Reconstructor, error)

// NewInterpreter 工厂签名：接收原样 JSON Options。
type NewInterpreter func(raw json.RawMessage) (contract.Interpreter, error)

// NewValidator 工厂签名：接收原样 JSON Options。
type NewValidator func(raw json.RawMessage) (contract.Validator, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewCanonicalDecoder 工厂签名：接收原样 JSON Options。
type NewCanonicalDecoder func(raw json.RawMessage) (contract.CanonicalDecoder, error)

// NewTokenDecoder 工厂签名：接收原样 JSON Options。
type NewTokenDecoder func(raw json.RawMessage) (contract.TokenDecoder, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 本地文件/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
	// http: HTTP GET Reader
	"http": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rhttp.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rhttp.New(&opts), nil
	},
}

// Reconstructor 工厂注册表。
var Reconstructor = map[string]NewReconstructor{
	// cluster: 纵坐标运行均值单遍聚类
	"cluster": func(raw json.RawMessage) (contract.Reconstructor, error) {
		var opts cluster.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cluster.New(&opts), nil
	},
}

// Interpreter 工厂注册表。
var Interpreter = map[string]NewInterpreter{
	// keyvalue: "key:value; ..." 双语别名行解释器
	"keyvalue": func(raw json.RawMessage) (contract.Interpreter, error) {
		var opts kv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return kv.New(&opts), nil
	},
}

// Validator 工厂注册表。
var Validator = map[string]NewValidator{
	// dedupe: (class, day, slot) 去重 + 条目下限
	"dedupe": func(raw json.RawMessage) (contract.Validator, error) {
		var opts dedupe.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dedupe.New(&opts), nil
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// grid: classes[class][day] 网格装配
	"grid": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts grid.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return grid.New(&opts), nil
	},
}

// CanonicalDecoder 工厂注册表。
var CanonicalDecoder = map[string]NewCanonicalDecoder{
	// auto: 按扩展名或 format 选项解码 json/yaml/toml
	"auto": func(raw json.RawMessage) (contract.CanonicalDecoder, error) {
		var opts dcanon.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dcanon.New(&opts)
	},
}

// TokenDecoder 工厂注册表。
var TokenDecoder = map[string]NewTokenDecoder{
	// json: {meta, items:[{str, x, y}]}
	"json": func(raw json.RawMessage) (contract.TokenDecoder, error) {
		var opts dtok.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dtok.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Names 返回注册表键的有序列表（用于诊断与错误提示）。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
