package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hghplan/internal/arbiter"
	"hghplan/internal/canon"
	"hghplan/internal/diag"
	"hghplan/pkg/contract"
)

// - 并发只出现在获取阶段：两个来源各自一个 goroutine，各自受 FetchTimeout 约束。
// - 获取失败只转为诊断（来源不可用），不会使整组失败。
// - 获取之后的各阶段全部同步、无共享状态；每次运行产出新模型。
// - 仅两个来源都不可用时返回 contract.ErrNoSource。

// Components 聚合运行所需的原子组件。
type Components struct {
	// Reader 读取本地位置；HTTP 读取 http(s):// 位置（可为空，此时远程位置不可用）。
	Reader           contract.Reader
	HTTP             contract.Reader
	CanonicalDecoder contract.CanonicalDecoder
	TokenDecoder     contract.TokenDecoder
	Reconstructor    contract.Reconstructor
	Interpreter      contract.Interpreter
	Validator        contract.Validator
	Assembler        contract.Assembler
	// Writer 为空时不落盘，仅返回 Outcome。
	Writer contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Canonical/Document 为来源位置；空串表示未配置。
	Canonical string
	Document  string
	// Output 为产物逻辑名（不含扩展名），空串表示不写出。
	Output string
	// Format: json|msgpack
	Format       string
	FetchTimeout time.Duration
	Defaults     contract.Defaults
	// CorrID 回显到 Outcome，便于与日志对照。
	CorrID string
}

// SourceReport 单个来源的处理摘要。
type SourceReport struct {
	Source    contract.Source `json:"source"`
	Location  string          `json:"location,omitempty"`
	Available bool            `json:"available"`
	OK        bool            `json:"ok"`
	Entries   int             `json:"entries"`
	Issues    contract.Issues `json:"issues"`
	DurMS     int64           `json:"dur_ms"`
}

// Outcome 一次摄取运行的结果。
type Outcome struct {
	CorrID    string                `json:"corr_id,omitempty"`
	Model     *contract.Model       `json:"-"`
	Decision  arbiter.Decision      `json:"decision"`
	Canonical SourceReport          `json:"canonical"`
	Parsed    SourceReport          `json:"parsed"`
	Artifacts []contract.ArtifactID `json:"artifacts,omitempty"`
	Started   time.Time             `json:"started"`
	Finished  time.Time             `json:"finished"`
}

// OK 表示本次运行产出了可发布的模型。
func (o *Outcome) OK() bool { return o != nil && o.Model != nil }

// ReportSuffix: 诊断边车的后缀。
const ReportSuffix = ".report.jsonl"

// 来源不可用时的诊断文本。
const (
	issueNotConfigured = "source not configured"
	issueUnavailable   = "source unavailable"
)

var errNotConfigured = errors.New(issueNotConfigured)

// fetched: 获取阶段产物（字节已完整读入内存）。
type fetched struct {
	data []byte
	err  error
	dur  time.Duration
}

// Run 执行完整摄取：并发获取 → 规范来源规范化 / 文档解析链 → 仲裁 → 写出。
// 返回的 Outcome 即使在出错时也非空，便于上层展示诊断。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (*Outcome, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	out := &Outcome{
		CorrID:    set.CorrID,
		Started:   time.Now(),
		Canonical: SourceReport{Source: contract.SourceCanonical, Location: set.Canonical},
		Parsed:    SourceReport{Source: contract.SourceParsed, Location: set.Document},
	}
	d := set.Defaults.WithFallbacks()
	term := diag.GetTerminal()
	term.RunStart(set.Canonical, set.Document)

	// 获取：两个来源并发；失败只记录在各自的 fetched.err
	var canonF, docF fetched
	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		canonF = fetch(gctx, comp, set.Canonical, set.FetchTimeout, logger)
		term.FetchProgress(int(done.Add(1)), 2)
		return nil
	})
	g.Go(func() error {
		docF = fetch(gctx, comp, set.Document, set.FetchTimeout, logger)
		term.FetchProgress(int(done.Add(1)), 2)
		return nil
	})
	// 取消只让未完成的获取失败；已到手的来源照常参与后续阶段
	_ = g.Wait()

	canonical := canonicalCandidate(comp, set, d, canonF, &out.Canonical, logger)
	parsed := parsedCandidate(comp, parsedDefaults(d, canonical), docF, &out.Parsed, logger)
	for _, rep := range []*SourceReport{&out.Canonical, &out.Parsed} {
		term.SourceFinish(string(rep.Source), rep.Available && rep.OK, len(rep.Issues), time.Duration(rep.DurMS)*time.Millisecond)
		for _, is := range rep.Issues {
			logger.Warn("pipeline", "issue", rep.Location, map[string]string{"source": string(rep.Source), "issue": is})
		}
	}

	// 仲裁
	dec, err := arbiter.Decide(canonical, parsed)
	out.Decision = dec
	term.Decision(string(dec.Chosen), dec.State.String(), dec.Notes)
	if err != nil {
		out.Finished = time.Now()
		code := diag.Classify(err)
		logger.ErrorWith("arbiter", string(code), "no source available", &out.Started, "")
		diag.IncOp("arbiter", "decide", "error")
		diag.IncError("arbiter", string(code))
		term.RunFinish(false, 0, out.Finished.Sub(out.Started))
		// 仍写出诊断边车，便于排查
		if werr := writeReport(ctx, comp, set, out); werr != nil {
			logger.ErrorWith("writer", string(diag.Classify(werr)), "write report failed", nil, set.Output)
		}
		return out, err
	}
	diag.IncOp("arbiter", "decide", "success")
	logger.Start("arbiter", "decided").Finish(fmt.Sprintf("chosen=%s state=%s", dec.Chosen, dec.State), int64(len(dec.Notes)))
	chosen := arbiter.Pick(dec, canonical, parsed)
	m := chosen.Model
	out.Model = &m

	if err := writeArtifacts(ctx, comp, set, out, logger); err != nil {
		out.Finished = time.Now()
		term.RunFinish(false, m.EntryCount(), out.Finished.Sub(out.Started))
		return out, err
	}
	out.Finished = time.Now()
	diag.MarkSuccess(out.Finished)
	diag.ObserveDuration("pipeline", "run", out.Finished.Sub(out.Started).Milliseconds())
	term.RunFinish(true, m.EntryCount(), out.Finished.Sub(out.Started))
	logger.InfoFinish("pipeline", "run", out.Started, int64(m.EntryCount()))
	return out, nil
}

// readerFor 按位置选择 Reader。
func (c Components) readerFor(location string) contract.Reader {
	l := strings.ToLower(location)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		return c.HTTP
	}
	return c.Reader
}

// fetch 读取一个来源的全部字节；每次获取独立受 timeout 约束。
func fetch(ctx context.Context, comp Components, location string, timeout time.Duration, logger *diag.Logger) fetched {
	if strings.TrimSpace(location) == "" {
		return fetched{err: errNotConfigured}
	}
	t0 := time.Now()
	timer := logger.StartWith("reader", "fetch", location)
	r := comp.readerFor(location)
	if r == nil {
		err := fmt.Errorf("%w: no reader for %s", contract.ErrFetch, location)
		logger.ErrorWith("reader", string(diag.Classify(err)), "fetch failed", &t0, location)
		return fetched{err: err, dur: time.Since(t0)}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rc, err := r.Open(ctx, location)
	if err == nil {
		var data []byte
		data, err = io.ReadAll(rc)
		_ = rc.Close()
		if err == nil {
			timer.Finish("fetched", int64(len(data)))
			diag.IncOp("reader", "fetch", "success")
			diag.ObserveDuration("reader", "fetch", time.Since(t0).Milliseconds())
			return fetched{data: data, dur: time.Since(t0)}
		}
	}
	code := diag.Classify(err)
	logger.ErrorWith("reader", string(code), "fetch failed", &t0, location)
	diag.IncOp("reader", "fetch", "error")
	diag.IncError("reader", string(code))
	return fetched{err: err, dur: time.Since(t0)}
}

// unavailable 将获取/解码失败记为诊断，来源视为不可用。
func unavailable(rep *SourceReport, err error) {
	rep.Available = false
	if errors.Is(err, errNotConfigured) {
		rep.Issues.Append(issueNotConfigured)
		return
	}
	rep.Issues.Addf("%s: %v", issueUnavailable, err)
}

// canonicalCandidate: 解码 + 规范化手写规范文件。
func canonicalCandidate(comp Components, set Settings, d contract.Defaults, f fetched, rep *SourceReport, logger *diag.Logger) *arbiter.Candidate {
	t0 := time.Now()
	defer func() { rep.DurMS = (f.dur + time.Since(t0)).Milliseconds() }()
	if f.err != nil {
		unavailable(rep, f.err)
		return nil
	}
	raw, err := comp.CanonicalDecoder.DecodeCanonical(set.Canonical, bytes.NewReader(f.data))
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("decoder", string(code), "decode canonical failed", &t0, set.Canonical)
		diag.IncOp("decoder", "canonical", "error")
		diag.IncError("decoder", string(code))
		unavailable(rep, err)
		return nil
	}
	timer := logger.StartWith("canon", "normalize canonical", set.Canonical)
	res := canon.Normalize(raw, d)
	timer.Finish("normalized", int64(res.Model.EntryCount()))
	stageResult("canon", "canonical", res.OK, t0)

	rep.Available = true
	rep.OK = res.OK
	rep.Entries = res.Model.EntryCount()
	rep.Issues.Append(res.Issues...)
	diag.SetEntries(string(contract.SourceCanonical), rep.Entries)
	return &arbiter.Candidate{Source: contract.SourceCanonical, Model: res.Model, OK: res.OK, Issues: res.Issues}
}

// parsedDefaults: 规范文件可用时，解析链沿用其节次表与班级名单。
func parsedDefaults(d contract.Defaults, canonical *arbiter.Candidate) contract.Defaults {
	if canonical == nil {
		return d
	}
	if ts := canonical.Model.Timeslots; len(ts) > 0 {
		d.Timeslots = append([]contract.Timeslot(nil), ts...)
	}
	if ids := canonical.Model.ClassIDs; len(ids) > 0 {
		d.ClassIDs = append([]string(nil), ids...)
	}
	return d
}

// parsedCandidate: Token 文档 → 行重建 → 行解释 → 校验 → 装配 → 规范化。
// 候选有效性 = 校验通过 且 规范化通过。
func parsedCandidate(comp Components, d contract.Defaults, f fetched, rep *SourceReport, logger *diag.Logger) *arbiter.Candidate {
	t0 := time.Now()
	defer func() { rep.DurMS = (f.dur + time.Since(t0)).Milliseconds() }()
	if f.err != nil {
		unavailable(rep, f.err)
		return nil
	}
	doc, err := comp.TokenDecoder.DecodeTokens(bytes.NewReader(f.data))
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("decoder", string(code), "decode tokens failed", &t0, rep.Location)
		diag.IncOp("decoder", "tokens", "error")
		diag.IncError("decoder", string(code))
		unavailable(rep, err)
		return nil
	}

	timer := logger.StartWith("reconstructor", "rows", rep.Location)
	rows := comp.Reconstructor.Rows(doc.Items)
	timer.Finish("rows", int64(len(rows)))
	logger.DebugStart("interpreter", "interpret", rep.Location, map[string]string{"rows": fmt.Sprint(len(rows))})
	interp := comp.Interpreter.Interpret(rows)
	val := comp.Validator.Validate(interp.Lessons)

	meta := doc.Meta.Clone()
	if meta == nil {
		meta = contract.Meta{}
	}
	if _, ok := meta["source"]; !ok {
		meta["source"] = string(contract.SourceParsed)
	}
	model := comp.Assembler.Assemble(val.Lessons, interp.ClassIDs, meta, d)
	res := canon.Normalize(model.Raw(), d)

	ok := val.OK && res.OK
	stageResult("parser", "parsed", ok, t0)
	rep.Available = true
	rep.OK = ok
	rep.Entries = res.Model.EntryCount()
	rep.Issues.Append(interp.Issues...)
	rep.Issues.Append(val.Issues...)
	rep.Issues.Append(res.Issues...)
	diag.SetEntries(string(contract.SourceParsed), rep.Entries)
	return &arbiter.Candidate{Source: contract.SourceParsed, Model: res.Model, OK: ok, Issues: rep.Issues}
}

func stageResult(comp, stage string, ok bool, t0 time.Time) {
	result := "success"
	if !ok {
		result = "invalid"
	}
	diag.IncOp(comp, stage, result)
	diag.ObserveDuration(comp, stage, time.Since(t0).Milliseconds())
}

// writeArtifacts 写出模型产物与诊断边车。
func writeArtifacts(ctx context.Context, comp Components, set Settings, out *Outcome, logger *diag.Logger) error {
	if comp.Writer == nil || set.Output == "" {
		return nil
	}
	id := contract.ArtifactID(set.Output + contract.FormatExt(set.Format))
	timer := logger.StartWith("writer", "write model", string(id))
	r, err := contract.EncodeModel(set.Format, *out.Model)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := comp.Writer.Write(ctx, id, r); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed", timer.Since(), string(id))
		diag.IncOp("writer", "write", "error")
		diag.IncError("writer", string(code))
		return fmt.Errorf("writer write: %w", err)
	}
	timer.Finish("written", int64(out.Model.EntryCount()))
	diag.IncOp("writer", "write", "success")
	out.Artifacts = append(out.Artifacts, id)

	if err := writeReport(ctx, comp, set, out); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write report failed", nil, set.Output+ReportSuffix)
		diag.IncOp("writer", "report", "error")
		diag.IncError("writer", string(code))
		return fmt.Errorf("writer write(report): %w", err)
	}
	diag.IncOp("writer", "report", "success")
	return nil
}

// reportLine: 边车 JSONL 的诊断行。
type reportLine struct {
	Source contract.Source `json:"source"`
	Issue  string          `json:"issue"`
}

// Report 生成诊断边车内容：首行为仲裁决策，其后每行一条 {source, issue}。
func Report(o *Outcome) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(o.Decision)
	for _, rep := range []SourceReport{o.Canonical, o.Parsed} {
		for _, is := range rep.Issues {
			_ = enc.Encode(reportLine{Source: rep.Source, Issue: is})
		}
	}
	return buf.Bytes()
}

func writeReport(ctx context.Context, comp Components, set Settings, out *Outcome) error {
	if comp.Writer == nil || set.Output == "" {
		return nil
	}
	id := contract.ArtifactID(set.Output + ReportSuffix)
	if err := comp.Writer.Write(ctx, id, bytes.NewReader(Report(out))); err != nil {
		return err
	}
	out.Artifacts = append(out.Artifacts, id)
	return nil
}

func sanity(c Components, s Settings) error {
	if c.CanonicalDecoder == nil || c.TokenDecoder == nil || c.Reconstructor == nil ||
		c.Interpreter == nil || c.Validator == nil || c.Assembler == nil {
		return fmt.Errorf("%w: pipeline: missing components", contract.ErrInvalidInput)
	}
	if c.Reader == nil && c.HTTP == nil {
		return fmt.Errorf("%w: pipeline: no reader", contract.ErrInvalidInput)
	}
	if s.Canonical == "" && s.Document == "" {
		return fmt.Errorf("%w: pipeline: no inputs", contract.ErrInvalidInput)
	}
	if contract.FormatExt(s.Format) == "" {
		return fmt.Errorf("%w: pipeline: unknown format %q", contract.ErrInvalidInput, s.Format)
	}
	return nil
}
