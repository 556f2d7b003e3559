package cluster

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"hghplan/pkg/contract"
)

// DefaultTolerance: 同行判定的默认纵向容差（单位同坐标）。
const DefaultTolerance = 2.0

// Options 为聚类重建器的可选配置。
type Options struct {
	// Tolerance: 纵坐标与行均值之差不超过该值即并入该行；<=0 使用默认 2。
	Tolerance float64 `json:"tolerance"`
}

// Reconstructor 基于纵坐标运行均值的单遍行聚类。
type Reconstructor struct {
	tol float64
}

// New 创建聚类重建器。
func New(opts *Options) *Reconstructor {
	tol := DefaultTolerance
	if opts != nil && opts.Tolerance > 0 && !math.IsInf(opts.Tolerance, 0) {
		tol = opts.Tolerance
	}
	return &Reconstructor{tol: tol}
}

// Tolerance 返回生效容差。
func (c *Reconstructor) Tolerance() float64 { return c.tol }

type bucket struct {
	avg    float64
	tokens []contract.Token
}

// Rows 聚类 Token 为有序行。
func (c *Reconstructor) Rows(tokens []contract.Token) []contract.Row {
	clean := make([]contract.Token, 0, len(tokens))
	for _, t := range tokens {
		if strings.TrimSpace(t.Text) == "" || !finite(t.X) || !finite(t.Y) {
			continue
		}
		clean = append(clean, t)
	}
	if len(clean) == 0 {
		return nil
	}
	// 先按 (y, x, text) 全序排序，保证与输入顺序无关
	sort.Slice(clean, func(i, j int) bool {
		a, b := clean[i], clean[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Text < b.Text
	})

	var buckets []*bucket
	for _, t := range clean {
		var hit *bucket
		for _, b := range buckets {
			if math.Abs(b.avg-t.Y) <= c.tol {
				hit = b
				break
			}
		}
		if hit == nil {
			buckets = append(buckets, &bucket{avg: t.Y, tokens: []contract.Token{t}})
			continue
		}
		hit.tokens = append(hit.tokens, t)
		hit.avg = (hit.avg + t.Y) / 2
	}

	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].avg < buckets[j].avg })
	rows := make([]contract.Row, 0, len(buckets))
	for _, b := range buckets {
		sort.SliceStable(b.tokens, func(i, j int) bool { return b.tokens[i].X < b.tokens[j].X })
		parts := make([]string, 0, len(b.tokens))
		for _, t := range b.tokens {
			parts = append(parts, t.Text)
		}
		rows = append(rows, contract.Row{Y: b.avg, Tokens: b.tokens, Text: collapse(strings.Join(parts, " "))})
	}
	return rows
}

// collapse 压缩空白并做 NFC 归一（提取器可能产出分解形式的变音符）。
func collapse(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

var _ contract.Reconstructor = (*Reconstructor)(nil)
