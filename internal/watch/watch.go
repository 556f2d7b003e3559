// Package watch 在本地输入文件变化时重新触发摄取。
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"hghplan/internal/diag"
	"hghplan/internal/rate"
)

var (
	// ErrNothingToWatch 所有输入均为远程位置、STDIN 或未配置。
	ErrNothingToWatch = errors.New("no local input to watch")

	// ErrWatcherFailed 文件系统监听器初始化失败。
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
)

// DefaultDebounce 连续事件合并窗口。
const DefaultDebounce = 500 * time.Millisecond

const runKey rate.LimitKey = "watch"

// Options 监听参数。
type Options struct {
	Debounce time.Duration
	// MaxRPM 每分钟最多触发次数；0 不限。
	MaxRPM int
}

// Watcher 监听输入文件所在目录（编辑器常以“写临时文件 + rename”替换文件），
// 只对目标文件的事件作出反应。
type Watcher struct {
	fw       *fsnotify.Watcher
	targets  map[string]struct{}
	debounce time.Duration
	gate     rate.Gate
	logger   *diag.Logger
}

// LocalPaths 过滤出可监听的本地路径（去掉空串、"-" 与 http(s) URL）。
func LocalPaths(locations ...string) []string {
	var out []string
	for _, loc := range locations {
		loc = strings.TrimSpace(loc)
		lower := strings.ToLower(loc)
		if loc == "" || loc == "-" || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			continue
		}
		out = append(out, loc)
	}
	return out
}

// New 为给定位置建立监听；目录在此处同步注册，返回后的变更不会丢失。
func New(locations []string, opts Options, logger *diag.Logger) (*Watcher, error) {
	paths := LocalPaths(locations...)
	if len(paths) == 0 {
		return nil, ErrNothingToWatch
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = diag.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	w := &Watcher{
		fw:       fw,
		targets:  make(map[string]struct{}, len(paths)),
		debounce: opts.Debounce,
		gate:     rate.NewGate(map[rate.LimitKey]rate.Limits{runKey: {RPM: opts.MaxRPM}}, nil),
		logger:   logger,
	}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
		w.targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}
	return w, nil
}

// Targets 返回被监听文件的绝对路径。
func (w *Watcher) Targets() []string {
	out := make([]string, 0, len(w.targets))
	for p := range w.targets {
		out = append(out, p)
	}
	return out
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	_, ok := w.targets[abs]
	return ok
}

// Run 阻塞直到 ctx 取消或监听器关闭；去抖窗口内的多次变更只触发一次 fn。
// fn 在本 goroutine 中同步执行，执行期间到达的事件会在其返回后再次触发。
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context)) error {
	defer w.fw.Close()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.DebugStart("watch", "event", ev.Name, map[string]string{"op": ev.Op.String()})
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch", "watcher error", "", map[string]string{"error": err.Error()})
		case <-fire:
			fire = nil
			if err := w.gate.Wait(ctx, runKey); err != nil {
				return nil
			}
			diag.IncOp("watch", "trigger", "success")
			fn(ctx)
		}
	}
}

// Close 提前释放监听器（Run 返回时也会关闭）。
func (w *Watcher) Close() error { return w.fw.Close() }
