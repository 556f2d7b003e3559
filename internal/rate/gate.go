package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"hghplan/pkg/contract"
)

// LimitKey: 限流分组键（例如 "refresh"、"watch"）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示不启用。
type Limits struct {
	RPM int // runs per minute，同时作为桶容量（允许的突发）
}

// Gate: 摄取触发闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消。
	Wait(ctx context.Context, key LimitKey) error
	// Try: 非阻塞尝试；不足时返回 false 与预计可用前的等待时间。
	Try(key LimitKey) (bool, time.Duration)
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (avail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim.RPM)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

// entry: lim 为 nil 表示不限额。
type entry struct {
	mu  sync.Mutex
	lim *xrate.Limiter
	rps float64
}

func newEntry(rpm int) *entry {
	if rpm <= 0 {
		return &entry{}
	}
	rps := float64(rpm) / 60.0
	return &entry{lim: xrate.NewLimiter(xrate.Limit(rps), rpm), rps: rps}
}

// take 在 now 时刻尝试消费一个单位；失败时返回还需等待的时长。
// 时钟回拨时 Limiter 视为无时间流逝。
func (e *entry) take(now time.Time) (bool, time.Duration) {
	if e.lim == nil {
		return true, 0
	}
	if e.lim.AllowN(now, 1) {
		return true, 0
	}
	level := e.lim.TokensAt(now)
	return false, time.Duration((1 - level) / e.rps * float64(time.Second))
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = &entry{}
		g.m[key] = e
	}
	return e
}

func (g *gate) Try(key LimitKey) (bool, time.Duration) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.take(now)
}

func (g *gate) Wait(ctx context.Context, key LimitKey) error {
	if key == "" {
		return contract.ErrInvalidInput
	}
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	for {
		// 快速取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ok, d := g.Try(key)
		if ok {
			return nil
		}
		if d < minSleep {
			d = minSleep
		}
		// 分片睡眠以响应 ctx 取消
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	// 若 d 很长，分片为最多 200ms 的步长，及时响应取消
	const step = 200 * time.Millisecond
	for d > 0 {
		s := min(d, step)
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

// Snapshot: 返回当前可用次数的“向下取整”估值（仅诊断）；未启用返回 -1。
func (g *gate) Snapshot(key LimitKey) int {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lim == nil {
		return -1
	}
	return int(e.lim.TokensAt(now))
}

// 接口断言（可选）。
var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
