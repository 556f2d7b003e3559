package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	xterm "golang.org/x/term"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖并着色；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	// 运行期最小状态
	canonical   string
	document    string
	sourcesDone int
	runStart    time.Time

	// 输出控制
	lastLen   int
	lastFlush time.Time

	okc   *color.Color
	failc *color.Color
	dimc  *color.Color

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		t.isTTY = xterm.IsTerminal(int(f.Fd()))
	}
	t.okc = color.New(color.FgGreen)
	t.failc = color.New(color.FgRed, color.Bold)
	t.dimc = color.New(color.Faint)
	if !t.isTTY || color.NoColor {
		t.okc.DisableColor()
		t.failc.DisableColor()
		t.dimc.DisableColor()
	}
	return t
}

// RunStart: 记录运行上下文（两个来源位置）。
func (t *Terminal) RunStart(canonical, document string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.canonical = shortenBase(canonical, 40)
	t.document = shortenBase(document, 40)
	t.sourcesDone = 0
	t.runStart = time.Now()
	line := fmt.Sprintf("[run] canonical=%s | document=%s", orDash(t.canonical), orDash(t.document))
	if t.isTTY {
		line += " | 获取中…"
	}
	t.println(line)
}

// FetchProgress: 来源获取进度（≥100ms 节流，仅 TTY）。
func (t *Terminal) FetchProgress(done, total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(t.dimc.Sprintf("[fetch] 来源 %d/%d | 用时 %s", done, total, formatSince(t.runStart)))
}

// SourceFinish: 单个来源处理完成（立即刷新并换行）。
func (t *Terminal) SourceFinish(source string, ok bool, issues int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.sourcesDone++
	// 先清掉可能的行尾
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	status := t.okc.Sprint("ok")
	if !ok {
		status = t.failc.Sprint("fail")
	}
	t.println(fmt.Sprintf("[%s] %s | 诊断 %d | 用时 %s", status, safe(source), issues, formatDur(dur)))
}

// Decision: 仲裁结果。
func (t *Terminal) Decision(chosen, state string, notes []string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if chosen == "" {
		chosen = "-"
	}
	t.println(fmt.Sprintf("[pick] %s | state=%s", safe(chosen), safe(state)))
	for _, n := range notes {
		t.println(t.dimc.Sprint("       " + runewidth.Truncate(safe(n), 96, "…")))
	}
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, entries int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := t.okc.Sprint("ok")
	if !ok {
		tag = t.failc.Sprint("fail")
	}
	t.println(fmt.Sprintf("[%s] 完成 | 来源 %d | 条目 %d | 总用时 %s", tag, t.sourcesDone, entries, formatDur(dur)))
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 清尾：若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || s == "" {
		return ""
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	base := filepath.Base(s)
	if visLen(base) <= max {
		return base
	}
	return runewidth.Truncate(base, max, "…")
}

// visLen: 终端可见宽度（CJK 记 2 列）。
func visLen(s string) int { return runewidth.StringWidth(s) }

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
