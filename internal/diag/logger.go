package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger 为阶段化结构化日志器：每行一条 JSON 事件，统一携带 corr_id/comp/stage。
// 底层为 zap；默认写入 logs/ 下按大小轮转的文件。
// nil 接收者安全（全部方法为 no-op）。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 通过配置的 level 初始化，并将日志写入 logs/hghplan-current.txt，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 WriteSyncer（例如 os.Stderr 或测试缓冲）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	if ws == nil {
		ws = zapcore.Lock(os.Stderr)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), ws, ParseLevel(level))
	return &Logger{z: zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))}
}

// NewObservedLogger 返回写入内存观察者的日志器（测试用）。
func NewObservedLogger(corrID, level string) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(ParseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}, logs
}

// Nop 返回丢弃全部事件的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "msg"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

// ParseLevel 解析级别字符串；未知值回退 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap 暴露底层 zap.Logger（供 HTTP 中间件等组件复用同一 sink）。
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// event 组装公共字段；空值字段省略。
func event(comp, stage, code, fileID string, dur time.Duration, count int64, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	if dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", dur.Milliseconds()))
	}
	if count != 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	if fileID != "" {
		fs = append(fs, zap.String("file_id", fileID))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	return l.StartWithKV(comp, msg, fileID, nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, event(comp, "start", "", fileID, 0, 0, kv)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Warn 记录非致命问题（例如诊断条目）。
func (l *Logger) Warn(comp, msg, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Warn(msg, event(comp, "warn", "", fileID, 0, 0, kv)...)
}

// ErrorWith 记录 error 事件，可带 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、位置）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	var dur time.Duration
	if durSince != nil {
		dur = time.Since(*durSince)
	}
	l.z.Error(msg, event(comp, "error", code, fileID, dur, 0, kv)...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	if l == nil {
		return
	}
	l.z.Info(msg, event(comp, "finish", "", "", time.Since(start), count, nil)...)
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Debug(msg, event(comp, "start", "", fileID, 0, 0, kv)...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.z.Info(msg, event(t.comp, "finish", "", t.fileID, time.Since(t.t0), count, nil)...)
}

// Since 返回计时起点（用于 ErrorWith 的 durSince）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
