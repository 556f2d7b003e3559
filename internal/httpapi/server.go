// Package httpapi 以只读端点发布最近一次摄取结果，并允许显式刷新。
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"hghplan/internal/diag"
	"hghplan/internal/pipeline"
	"hghplan/internal/rate"
	"hghplan/pkg/contract"
)

// RunFunc 执行一次完整摄取（通常为 pipeline.Run 的闭包）。
type RunFunc func(ctx context.Context) (*pipeline.Outcome, error)

// Config HTTP 服务参数。
type Config struct {
	Addr string
	// RefreshRPM 限制 POST /api/refresh；0 不限。
	RefreshRPM int
	// Interval 周期刷新间隔；0 关闭。
	Interval time.Duration
}

const refreshKey rate.LimitKey = "refresh"

// Server 持有最近结果；每次刷新都是独立运行，互不共享中间状态。
type Server struct {
	echo   *echo.Echo
	run    RunFunc
	logger *diag.Logger
	cfg    Config
	gate   rate.Gate

	mu     sync.Mutex // 串行化摄取
	latest atomic.Pointer[pipeline.Outcome]
	last   atomic.Pointer[runState]
}

// runState 最近一次运行（含失败）。
type runState struct {
	Outcome *pipeline.Outcome
	Err     string
	At      time.Time
}

// New 创建 HTTP 服务；run 必填。
func New(run RunFunc, logger *diag.Logger, cfg Config) (*Server, error) {
	if run == nil {
		return nil, errors.New("httpapi: run func is required")
	}
	if logger == nil {
		logger = diag.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	zl := logger.Zap()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			zl.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		run:    run,
		logger: logger,
		cfg:    cfg,
		gate:   rate.NewGate(map[rate.LimitKey]rate.Limits{refreshKey: {RPM: cfg.RefreshRPM}}, nil),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(diag.Handler()))

	api := s.echo.Group("/api")
	api.GET("/schedule", s.handleSchedule)
	api.GET("/diagnostics", s.handleDiagnostics)
	api.GET("/diagnostics/report", s.handleDiagnosticsReport)
	api.POST("/refresh", s.handleRefresh)
}

// Handler 暴露底层 http.Handler（测试与嵌入使用）。
func (s *Server) Handler() http.Handler { return s.echo }

// Latest 返回最近一次产出模型的结果；尚无时为 nil。
func (s *Server) Latest() *pipeline.Outcome { return s.latest.Load() }

// Refresh 运行一次摄取。只有无错误且产出模型的结果才替换已发布的模型；
// 失败的运行（即便带有模型）仍记录在 /api/diagnostics 中，已发布模型保持不变。
func (s *Server) Refresh(ctx context.Context) (*pipeline.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.logger.Start("httpapi", "refresh")
	out, err := s.run(ctx)
	st := &runState{Outcome: out, At: time.Now()}
	if err != nil {
		st.Err = err.Error()
		code := diag.Classify(err)
		s.logger.ErrorWith("httpapi", string(code), "refresh failed", t.Since(), "")
		diag.IncOp("httpapi", "refresh", "error")
	} else {
		diag.IncOp("httpapi", "refresh", "success")
	}
	if err == nil && out.OK() {
		s.latest.Store(out)
		t.Finish("refresh", int64(out.Model.EntryCount()))
	}
	s.last.Store(st)
	return out, err
}

// HealthResponse: GET /healthz 响应体。
type HealthResponse struct {
	Status    string     `json:"status"`
	HasModel  bool       `json:"has_model"`
	Chosen    string     `json:"chosen,omitempty"`
	State     string     `json:"state,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	// RefreshBudget 为当前可用的手动刷新次数；未限流时省略。
	RefreshBudget *int `json:"refresh_budget,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if o := s.latest.Load(); o != nil {
		resp.HasModel = true
		resp.Chosen = string(o.Decision.Chosen)
		resp.State = o.Decision.State.String()
		at := o.Finished
		resp.UpdatedAt = &at
	}
	if st := s.last.Load(); st != nil {
		resp.LastError = st.Err
	}
	if sn, ok := s.gate.(rate.Snapshoter); ok {
		if n := sn.Snapshot(refreshKey); n >= 0 {
			resp.RefreshBudget = &n
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSchedule 返回已发布模型；?format=msgpack 输出二进制快照。
func (s *Server) handleSchedule(c echo.Context) error {
	o := s.latest.Load()
	if o == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no schedule available yet")
	}
	format := strings.ToLower(c.QueryParam("format"))
	if contract.FormatExt(format) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
	}
	r, err := contract.EncodeModel(format, *o.Model)
	if err != nil {
		return err
	}
	ct := echo.MIMEApplicationJSON
	if format == contract.FormatMsgpack {
		ct = "application/msgpack"
	}
	c.Response().Header().Set("X-Source", string(o.Decision.Chosen))
	c.Response().Header().Set("Last-Modified", o.Finished.UTC().Format(http.TimeFormat))
	return c.Stream(http.StatusOK, ct, r)
}

// DiagnosticsResponse: GET /api/diagnostics 响应体。
type DiagnosticsResponse struct {
	Outcome *pipeline.Outcome `json:"outcome"`
	Error   string            `json:"error,omitempty"`
	At      time.Time         `json:"at"`
}

func (s *Server) handleDiagnostics(c echo.Context) error {
	st := s.last.Load()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no run yet")
	}
	return c.JSON(http.StatusOK, DiagnosticsResponse{Outcome: st.Outcome, Error: st.Err, At: st.At})
}

// handleDiagnosticsReport 以 JSONL 输出诊断边车（与写出的 .report.jsonl 同构）。
func (s *Server) handleDiagnosticsReport(c echo.Context) error {
	st := s.last.Load()
	if st == nil || st.Outcome == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no run yet")
	}
	return c.Blob(http.StatusOK, "application/x-ndjson", pipeline.Report(st.Outcome))
}

func (s *Server) handleRefresh(c echo.Context) error {
	if ok, wait := s.gate.Try(refreshKey); !ok {
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(wait.Seconds()))))
		return echo.NewHTTPError(http.StatusTooManyRequests, "refresh rate limited")
	}
	out, err := s.Refresh(c.Request().Context())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, out)
	case errors.Is(err, contract.ErrNoSource):
		return c.JSON(http.StatusServiceUnavailable, DiagnosticsResponse{Outcome: out, Error: err.Error(), At: time.Now()})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Serve 启动服务：先运行一次摄取，按 Interval 周期刷新，ctx 取消后优雅关闭。
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.Refresh(ctx); err != nil {
		// 首次失败不阻止服务启动；/healthz 与 /api/diagnostics 会反映失败
		s.logger.Warn("httpapi", "initial refresh failed", "", map[string]string{"error": err.Error()})
	}
	if s.cfg.Interval > 0 {
		go s.loop(ctx, s.cfg.Interval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Zap().Info("starting http server", zap.String("addr", s.cfg.Addr))
		errCh <- s.echo.Start(s.cfg.Addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Zap().Info("shutting down http server")
	if err := s.echo.Shutdown(shutCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) loop(ctx context.Context, every time.Duration) {
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			_, _ = s.Refresh(ctx)
		}
	}
}
