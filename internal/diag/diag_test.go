package diag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"hghplan/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if _, err := w.Write([]byte("first line that is very long\n")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
}

// 当前文件名与时间戳文件同时存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	defer w.Close()
	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("xxxxxxxxxxxxxxxxxx\n"))
		require.NoError(t, err)
	}
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == CurrentName {
			hasCurrent = true
		}
		if strings.HasPrefix(e.Name(), "hghplan-") && strings.HasSuffix(e.Name(), ".txt") && !strings.Contains(e.Name(), "current") {
			hasRotated = true
		}
	}
	assert.True(t, hasCurrent, "current")
	assert.True(t, hasRotated, "rotated")
}

// 默认 maxBytes 与 rotate 在 f==nil 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	_, err := w.Write([]byte("a\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	w.f = nil
	require.NoError(t, w.rotate())
	require.NoError(t, w.Close())
	require.NoError(t, (&RotatingFile{}).Sync())
}

// UT-DIAG-02: 指标计数与导出
func TestMetricsExport(t *testing.T) {
	IncOp("pipeline", "canonical", "success")
	IncError("pipeline", string(CodeIO))
	ObserveDuration("pipeline", "parsed", 12)
	SetEntries("canonical", 42)
	MarkSuccess(time.Unix(1700000000, 0))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `hghplan_op_total{comp="pipeline",result="success",stage="canonical"}`)
	assert.Contains(t, body, `hghplan_error_total{code="io",comp="pipeline"}`)
	assert.Contains(t, body, "hghplan_op_duration_ms_bucket")
	assert.Contains(t, body, `hghplan_model_entries{source="canonical"} 42`)
	assert.Contains(t, body, "hghplan_last_success_timestamp_seconds")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeCancel},
		{contract.ErrNoSource, CodeNoSource},
		{fmt.Errorf("%w: x.json (json): eof", contract.ErrDecode), CodeProtocol},
		{contract.ErrInvalidInput, CodeInvariant},
		{fmt.Errorf("%w: ..", contract.ErrPathInvalid), CodeInvariant},
		{fmt.Errorf("%w: %w", contract.ErrFetch, &fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}), CodeIO},
		{fmt.Errorf("%w: %w", contract.ErrFetch, &net.DNSError{Err: "x"}), CodeNetwork},
		{fmt.Errorf("%w: status 500", contract.ErrFetch), CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

// Logger 事件字段：corr_id/comp/stage/dur_ms/count/file_id/kv
func TestLoggerObserved(t *testing.T) {
	l, logs := NewObservedLogger("corr-1", "debug")
	timer := l.StartWithKV("pipeline", "fetch canonical", "plan.json", map[string]string{"source": "canonical"})
	timer.Finish("fetched", 3)
	l.Warn("canon", "issue", "plan.json", map[string]string{"issue": "no entries in schedule"})
	since := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWithKV("reader", string(CodeNetwork), "get failed", &since, "http://x", map[string]string{"http_status": "500"})
	l.DebugStart("cluster", "rows", "", nil)
	l.InfoFinish("pipeline", "done", time.Now().Add(-time.Millisecond), 7)

	all := logs.All()
	require.Len(t, all, 6)

	start := all[0].ContextMap()
	assert.Equal(t, "corr-1", start["corr_id"])
	assert.Equal(t, "pipeline", start["comp"])
	assert.Equal(t, "start", start["stage"])
	assert.Equal(t, "plan.json", start["file_id"])
	assert.Equal(t, map[string]string{"source": "canonical"}, start["kv"])

	fin := all[1].ContextMap()
	assert.Equal(t, "finish", fin["stage"])
	assert.Equal(t, int64(3), fin["count"])

	assert.Equal(t, zapcore.WarnLevel, all[2].Level)
	errEv := all[3].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, all[3].Level)
	assert.Equal(t, "network", errEv["code"])
	assert.Contains(t, errEv, "dur_ms")

	assert.Equal(t, zapcore.DebugLevel, all[4].Level)
	assert.Equal(t, int64(7), all[5].ContextMap()["count"])
}

// info 级别过滤 debug
func TestLoggerLevelFilter(t *testing.T) {
	l, logs := NewObservedLogger("c", "info")
	l.DebugStart("comp", "msg", "f", nil)
	assert.Zero(t, logs.Len())
	l.Start("comp", "msg")
	assert.Equal(t, 1, logs.Len())

	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

// JSON 行格式：ts/level/msg 键
func TestLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("corr", "info", zapcore.AddSync(&buf))
	l.Start("pipeline", "run").Finish("ok", 0)
	require.NoError(t, l.Close())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"info"`)
	assert.Contains(t, lines[0], `"msg":"run"`)
	assert.Contains(t, lines[0], `"ts":"`)
	assert.Contains(t, lines[0], `"corr_id":"corr"`)
	assert.NotContains(t, lines[1], `"count"`)
}

// 文件 sink：写入 logs/hghplan-current.txt
func TestLoggerWithSink(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	require.NoError(t, l.Close())
	b, err := os.ReadFile(filepath.Join(dir, "logs", CurrentName))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"comp":"comp"`)
}

// nil 接收者安全
func TestLoggerNilSafe(t *testing.T) {
	var l *Logger
	l.Start("c", "m").Finish("x", 0)
	l.Warn("c", "m", "", nil)
	l.ErrorWith("c", "code", "m", nil, "")
	l.InfoFinish("c", "m", time.Now(), 0)
	l.DebugStart("c", "m", "", nil)
	assert.NoError(t, l.Close())
	assert.NotNil(t, l.Zap())
	var tnil *Timer
	tnil.Finish("x", 0)
	assert.Nil(t, tnil.Since())
	Nop().Start("c", "m").Finish("x", 0)
}

// UT-DIAG-03: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart("/srv/data/plan.json", "https://example.org/tokens.json")
	term.FetchProgress(1, 2) // 非 TTY：不输出进度
	term.SourceFinish("canonical", true, 0, 120*time.Millisecond)
	term.SourceFinish("parsed", false, 3, 5100*time.Millisecond)
	term.Decision("canonical", "both", []string{"timestamps equal; preferring canonical"})
	term.RunFinish(true, 42, 41300*time.Millisecond)

	out := sb.String()
	assert.NotContains(t, out, "\r")
	assert.Contains(t, out, "[run] canonical=plan.json | document=tokens.json\n")
	assert.Contains(t, out, "[ok] canonical | 诊断 0 | 用时 120ms")
	assert.Contains(t, out, "[fail] parsed | 诊断 3 | 用时 5.1s")
	assert.Contains(t, out, "[pick] canonical | state=both")
	assert.Contains(t, out, "timestamps equal; preferring canonical")
	assert.Contains(t, out, "[ok] 完成 | 来源 2 | 条目 42 | 总用时 41.3s")
}

// UT-DIAG-04: 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true // 强制 TTY
	term.RunStart("a.json", "")

	term.FetchProgress(0, 2)
	first := sb.String()
	if !strings.Contains(first, "\r[") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	// 立即第二次：应被节流（<100ms）
	term.FetchProgress(1, 2)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled; got changed output")
	}
	time.Sleep(120 * time.Millisecond)
	term.FetchProgress(1, 2)
	third := sb.String()
	if len(third) <= len(first) {
		t.Fatalf("third progress should append output")
	}
	term.SourceFinish("canonical", false, 1, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	require.Positive(t, idx)
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	require.GreaterOrEqual(t, cr, 0)
	assert.Contains(t, seg[cr+1:], " ")
}

// UT-DIAG-05: 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = false
	term.RunStart("a", "b")
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FetchProgress(0, 0)
	term.SourceFinish("x", true, 0, 0)
	term.Decision("", "none", nil)
	term.RunFinish(true, 0, 0)
}

func TestTerminalInlineWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = true
	term.FetchProgress(1, 2)
	assert.False(t, term.enabled)
}

func TestTerminalNilReceiverNoop(t *testing.T) {
	var tn *Terminal
	tn.RunStart("a", "b")
	tn.FetchProgress(0, 0)
	tn.SourceFinish("x", true, 0, 0)
	tn.Decision("x", "both", nil)
	tn.RunFinish(true, 0, 0)
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	term := NewTerminal(io.Discard, true)
	assert.False(t, term.isTTY)
}

// UT-DIAG-06: 工具函数
func TestHelpers(t *testing.T) {
	s := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.txt", 10)
	assert.NotEmpty(t, s)
	assert.LessOrEqual(t, visLen(s), 10)
	assert.Equal(t, 4, visLen("课表"))
	assert.Equal(t, "tokens.json", shortenBase("https://h.example/a/tokens.json", 40))
	assert.Equal(t, "", shortenBase("x", 0))
	assert.Equal(t, "", shortenBase("  ", 10))
	assert.Equal(t, "a b c", safe("a\nb\rc"))
	assert.Equal(t, "0ms", formatDur(0))
	assert.Equal(t, "1.5s", formatDur(1500*time.Millisecond))

	SetTerminal(nil)
	assert.Nil(t, GetTerminal())
	SetTerminal(NewTerminal(os.Stderr, false))
	assert.NotNil(t, GetTerminal())
	SetTerminal(nil)
}
