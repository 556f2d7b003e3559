package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知顶层键在解析期失败。
type Config struct {
	Inputs Inputs `koanf:"inputs" yaml:"inputs"`
	Output Output `koanf:"output" yaml:"output"`
	// FetchTimeout: 单个来源获取超时（time.ParseDuration 格式）。
	FetchTimeout string  `koanf:"fetch_timeout" yaml:"fetch_timeout"`
	Logging      Logging `koanf:"logging" yaml:"logging"`
	Server       Server  `koanf:"server" yaml:"server"`
	Watch        Watch   `koanf:"watch" yaml:"watch"`
	// Roster 覆盖内置兜底班级名单与节次表（空则用内置值）。
	Roster Roster `koanf:"roster" yaml:"roster"`

	// 组件名选择（空则使用默认名）。
	Components Components `koanf:"components" yaml:"components"`
	// 各组件 Options 子树，序列化为 JSON 后交给工厂严格解析。
	Options Options `koanf:"options" yaml:"options"`
}

// Inputs: 两个来源位置（本地路径、"-" 或 http(s) URL）；空串表示不使用该来源。
type Inputs struct {
	Canonical string `koanf:"canonical" yaml:"canonical"`
	Document  string `koanf:"document" yaml:"document"`
}

// Output: 产物逻辑名（相对 writer 输出根，不含扩展名）与编码格式。
type Output struct {
	Name   string `koanf:"name" yaml:"name"`
	Format string `koanf:"format" yaml:"format"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `koanf:"level" yaml:"level"`
}

// Server: serve 子命令。
type Server struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// RefreshInterval 周期性重新摄取；空表示只在启动与 POST /api/refresh 时运行。
	RefreshInterval string `koanf:"refresh_interval" yaml:"refresh_interval"`
	// RefreshRPM 限制 POST /api/refresh 每分钟次数；0 不限。
	RefreshRPM int `koanf:"refresh_rpm" yaml:"refresh_rpm"`
}

// Watch: watch 子命令。
type Watch struct {
	Debounce string `koanf:"debounce" yaml:"debounce"`
	// MaxRPM 限制文件变更触发的每分钟运行次数；0 不限。
	MaxRPM int `koanf:"max_rpm" yaml:"max_rpm"`
}

// Roster: 兜底班级与节次。
type Roster struct {
	ClassIDs  []string   `koanf:"class_ids" yaml:"class_ids"`
	Timeslots []Timeslot `koanf:"timeslots" yaml:"timeslots"`
}

type Timeslot struct {
	ID   string `koanf:"id" yaml:"id"`
	Time string `koanf:"time" yaml:"time"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader           string `koanf:"reader" yaml:"reader"`
	HTTPReader       string `koanf:"http_reader" yaml:"http_reader"`
	CanonicalDecoder string `koanf:"canonical_decoder" yaml:"canonical_decoder"`
	TokenDecoder     string `koanf:"token_decoder" yaml:"token_decoder"`
	Reconstructor    string `koanf:"reconstructor" yaml:"reconstructor"`
	Interpreter      string `koanf:"interpreter" yaml:"interpreter"`
	Validator        string `koanf:"validator" yaml:"validator"`
	Assembler        string `koanf:"assembler" yaml:"assembler"`
	Writer           string `koanf:"writer" yaml:"writer"`
}

// Options: 各组件的原样选项子树。
type Options struct {
	Reader           map[string]any `koanf:"reader" yaml:"reader"`
	HTTPReader       map[string]any `koanf:"http_reader" yaml:"http_reader"`
	CanonicalDecoder map[string]any `koanf:"canonical_decoder" yaml:"canonical_decoder"`
	TokenDecoder     map[string]any `koanf:"token_decoder" yaml:"token_decoder"`
	Reconstructor    map[string]any `koanf:"reconstructor" yaml:"reconstructor"`
	Interpreter      map[string]any `koanf:"interpreter" yaml:"interpreter"`
	Validator        map[string]any `koanf:"validator" yaml:"validator"`
	Assembler        map[string]any `koanf:"assembler" yaml:"assembler"`
	Writer           map[string]any `koanf:"writer" yaml:"writer"`
}
