package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "hghplan/internal/config"
	"hghplan/internal/diag"
	"hghplan/internal/httpapi"
	"hghplan/internal/pipeline"
	"hghplan/internal/watch"
	"hghplan/pkg/contract"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行失败（含两个来源都不可用）；3 配置/参数错误。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// exitError 携带退出码；由 run 统一映射。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, a ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, a...)}
}

func runErr(err error) error { return &exitError{code: exitRun, err: err} }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// flags: CLI 覆盖项；零值表示未覆盖（数值项以 Changed 判定）。
type flags struct {
	config     string
	canonical  string
	document   string
	out        string
	format     string
	timeout    string
	tolerance  float64
	minEntries int
	status     bool
	logLevel   string
	addr       string
	interval   string
}

func run(args []string, stdout, stderr io.Writer) int {
	f := &flags{}
	root := newRootCmd(f, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(ee.err, context.Canceled) {
			fprintf(stderr, "%v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fprintf(stderr, "%v\n", err)
	return exitConfig
}

func newRootCmd(f *flags, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "hghplan [--canonical FILE|URL] [--document FILE|URL]",
		Short: "Timetable ingestion: positioned-text document + canonical file → validated schedule model",
		Long: `hghplan reconstructs a school timetable from a positioned-text token document,
normalizes an optional hand-authored canonical file, and arbitrates between
the two by freshness and validity. The winning model is written as
<out>.json (or .msgpack) next to a <out>.report.jsonl diagnostics sidecar.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, f, stderr)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "配置文件路径（YAML/JSON）；缺省读取 $HGH_CONFIG_FILE 或 ./hghplan.yaml（若存在）")
	pf.StringVar(&f.canonical, "canonical", "", "规范课表位置（文件、- 或 http(s) URL）")
	pf.StringVar(&f.document, "document", "", "提取器输出的定位文本文档位置（文件、- 或 http(s) URL）")
	pf.StringVar(&f.out, "out", "", "产物逻辑名（相对 writer 输出目录，不含扩展名）")
	pf.StringVar(&f.format, "format", "", "产物编码：json|msgpack")
	pf.StringVar(&f.timeout, "timeout", "", "单个来源获取超时（如 15s）")
	pf.Float64Var(&f.tolerance, "tolerance", 0, "行聚类纵坐标容差")
	pf.IntVar(&f.minEntries, "min-entries", 0, "解析结果保留条目下限（负数关闭）")
	pf.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.StringVar(&f.logLevel, "log-level", "", "日志等级：debug|info|warn|error")

	root.AddCommand(newInitCmd(stderr))
	root.AddCommand(newServeCmd(f))
	root.AddCommand(newWatchCmd(f, stderr))
	return root
}

func newInitCmd(stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成默认 hghplan.yaml 与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			written, err := cfgpkg.WriteTemplate(dir)
			if err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			if len(written) == 0 {
				fprintf(stderr, "提示：%s 中的配置文件已存在，未覆盖\n", dir)
			}
			return nil
		},
	}
}

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP 服务：发布最近一次摄取结果，支持周期与显式刷新",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := prepare(cmd, f)
			if err != nil {
				return err
			}
			defer a.logger.Close()
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv, err := httpapi.New(func(ctx context.Context) (*pipeline.Outcome, error) {
				return pipelineRun(ctx, a.comp, a.set, a.logger)
			}, a.logger, httpapi.Config{
				Addr:       a.cfg.Server.Addr,
				RefreshRPM: a.cfg.Server.RefreshRPM,
				Interval:   a.cfg.RefreshInterval(),
			})
			if err != nil {
				return configErr("%w", err)
			}
			if err := srv.Serve(ctx); err != nil {
				return runErr(fmt.Errorf("serve: %w", err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "监听地址（覆盖 server.addr）")
	cmd.Flags().StringVar(&f.interval, "interval", "", "周期刷新间隔（覆盖 server.refresh_interval；0 关闭）")
	return cmd
}

func newWatchCmd(f *flags, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "监听本地输入文件，变更后重新摄取",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := prepare(cmd, f)
			if err != nil {
				return err
			}
			defer a.logger.Close()
			w, err := watch.New([]string{a.set.Canonical, a.set.Document}, watch.Options{
				Debounce: a.cfg.Debounce(),
				MaxRPM:   a.cfg.Watch.MaxRPM,
			}, a.logger)
			if err != nil {
				return configErr("watch: %w", err)
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a.terminal(stderr)
			defer diag.SetTerminal(nil)
			once := func(ctx context.Context) {
				start := time.Now()
				if _, err := pipelineRun(ctx, a.comp, a.set, a.logger); err != nil && !errors.Is(err, context.Canceled) {
					// 监听模式下单次失败不退出
					fprintf(stderr, "运行失败: %v\n", err)
					a.logger.ErrorWith("watch", string(diag.Classify(err)), "run failed", &start, "")
				}
			}
			once(ctx)
			if err := w.Run(ctx, once); err != nil {
				return runErr(err)
			}
			return nil
		},
	}
}

// app: 解析合并后的运行期装配。
type app struct {
	cfg    cfgpkg.Config
	comp   pipeline.Components
	set    pipeline.Settings
	logger *diag.Logger
	status bool
}

// prepare 按 .env → 配置文件 → HGH_ 环境变量 → CLI 旗标 的顺序得到最终配置并装配组件。
func prepare(cmd *cobra.Command, f *flags) (*app, error) {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = cfgpkg.LoadDotEnv(".env")
	corrID := uuid.NewString()

	cfg, err := cfgpkg.Load(cfgpkg.ResolvePath(f.config))
	if err != nil {
		return nil, configErr("配置解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overlay(cmd, f))

	if err := cfgpkg.Validate(cfg); err != nil {
		// 提示打印有效配置，便于诊断
		fprintf(cmd.ErrOrStderr(), "有效配置:\n")
		_ = cfgpkg.Dump(cmd.ErrOrStderr(), cfg)
		return nil, configErr("配置校验失败: %w", err)
	}

	// 使用最终配置中的日志级别创建 logger
	logger := diag.NewLogger(corrID, cfg.Logging.Level)

	// 预检：若使用文件系统 Writer，检查输出目录的可写性
	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Close()
		return nil, configErr("输出目录不可写或无法创建: %w", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Close()
		return nil, configErr("装配失败: %w", err)
	}
	set.CorrID = corrID

	// debug: 输出运行时配置信息
	logger.DebugStart("config", "effective", "", map[string]string{
		"canonical":     set.Canonical,
		"document":      set.Document,
		"output":        set.Output,
		"format":        set.Format,
		"fetch_timeout": set.FetchTimeout.String(),
		"reader":        cfg.Components.Reader,
		"http_reader":   cfg.Components.HTTPReader,
		"reconstructor": cfg.Components.Reconstructor,
		"interpreter":   cfg.Components.Interpreter,
		"validator":     cfg.Components.Validator,
		"assembler":     cfg.Components.Assembler,
		"writer":        cfg.Components.Writer,
	})
	return &app{cfg: cfg, comp: comp, set: set, logger: logger, status: f.status}, nil
}

// overlay 把显式给出的旗标转为覆盖层。
func overlay(cmd *cobra.Command, f *flags) cfgpkg.Config {
	var over cfgpkg.Config
	over.Inputs.Canonical = strings.TrimSpace(f.canonical)
	over.Inputs.Document = strings.TrimSpace(f.document)
	over.Output.Name = strings.TrimSpace(f.out)
	over.Output.Format = strings.TrimSpace(f.format)
	over.FetchTimeout = strings.TrimSpace(f.timeout)
	over.Logging.Level = strings.TrimSpace(f.logLevel)
	over.Server.Addr = strings.TrimSpace(f.addr)
	over.Server.RefreshInterval = strings.TrimSpace(f.interval)
	fl := cmd.Flags()
	if fl.Changed("tolerance") {
		over.Options.Reconstructor = map[string]any{"tolerance": f.tolerance}
	}
	// 允许显式设置为 0（使用实现默认）或负数（关闭阈值）
	if fl.Changed("min-entries") {
		over.Options.Validator = map[string]any{"min_entries": f.minEntries}
	}
	return over
}

func (a *app) terminal(stderr io.Writer) *diag.Terminal {
	t := diag.NewTerminal(stderr, a.status)
	diag.SetTerminal(t)
	return t
}

func runOnce(cmd *cobra.Command, f *flags, stderr io.Writer) error {
	start := time.Now()
	a, err := prepare(cmd, f)
	if err != nil {
		return err
	}
	defer a.logger.Close()

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	a.terminal(stderr)
	defer diag.SetTerminal(nil)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	t := a.logger.Start("pipeline", "run")
	out, err := pipelineRun(ctx, a.comp, a.set, a.logger)
	if err != nil {
		// 分类到最接近的退出码（运行期错误）
		code := string(diag.Classify(err))
		a.logger.ErrorWith("pipeline", code, "first error", &start, "")
		diag.IncOp("pipeline", "error", "error")
		if code != "" && code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		if errors.Is(err, contract.ErrInvalidInput) {
			return configErr("运行失败: %w", err)
		}
		return runErr(fmt.Errorf("运行失败: %w", err))
	}
	count := int64(0)
	if out.OK() {
		count = int64(out.Model.EntryCount())
	}
	t.Finish("run", count)
	diag.IncOp("pipeline", "finish", "success")
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)且需要写出产物时，启动前检查输出目录可写性。
// 规则：
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
// 仅针对 fs writer 生效；其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	// 计算生效的 writer 名称
	writerName := strings.TrimSpace(cfg.Components.Writer)
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" || strings.TrimSpace(cfg.Output.Name) == "" {
		return nil
	}
	dir, _ := cfg.Options.Writer["output_dir"].(string)
	dir = strings.TrimSpace(dir)
	if dir == "" {
		// 未指定时无法可靠检查，让装配阶段按实现自行报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		// 目录存在：尝试写入临时文件
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	// 目录不存在：检查父目录可写性
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
