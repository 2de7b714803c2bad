package backtest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"candlelab/internal/pattern"
	"candlelab/internal/store"
)

// HTTPServer 提供 Gin 接口，供前端提交回测与查询结果。
type HTTPServer struct {
	addr    string
	runner  *Runner
	results *ResultStore
	store   *store.Store
	render  RenderFunc
	router  *gin.Engine
}

// RenderFunc 渲染一次回测的 HTML 报告，由 report 包注入，
// 避免存储层反向依赖图表库。
type RenderFunc func(c *gin.Context, run Run, trades []Trade) error

type HTTPConfig struct {
	Addr    string
	Runner  *Runner
	Results *ResultStore
	Store   *store.Store
	Render  RenderFunc
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Runner == nil {
		return nil, errors.New("runner 不能为空")
	}
	if cfg.Results == nil {
		return nil, errors.New("result store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:    cfg.Addr,
		runner:  cfg.Runner,
		results: cfg.Results,
		store:   cfg.Store,
		render:  cfg.Render,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api/backtest")
	api.GET("/patterns", s.handlePatterns)
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/summary", s.handleRunSummary)
	api.GET("/runs/:id/report", s.handleRunReport)

	data := s.router.Group("/api/data")
	data.GET("", s.handleDataList)
	data.GET("/:symbol", s.handleDataManifest)
	data.POST("/import", s.handleDataImport)
}

func (s *HTTPServer) handlePatterns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"patterns": pattern.Kinds()})
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.runner.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	trades, err := s.results.ListTrades(c.Request.Context(), c.Param("id"), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunSummary(c *gin.Context) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	switch c.DefaultQuery("set", "all") {
	case "all":
		c.JSON(http.StatusOK, gin.H{"summary": run.Summary.All})
	case "earnings_only":
		c.JSON(http.StatusOK, gin.H{"summary": run.Summary.EarningsOnly})
	case "non_earnings":
		c.JSON(http.StatusOK, gin.H{"summary": run.Summary.NonEarnings})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "set 需为 all/earnings_only/non_earnings"})
	}
}

func (s *HTTPServer) handleRunReport(c *gin.Context) {
	if s.render == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "报告渲染未启用"})
		return
	}
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	trades, err := s.results.ListTrades(c.Request.Context(), run.ID, "", 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.render(c, run, trades); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *HTTPServer) handleDataList(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "数据存储未启用"})
		return
	}
	symbols, err := s.store.Symbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

func (s *HTTPServer) handleDataManifest(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "数据存储未启用"})
		return
	}
	info, err := s.store.Manifest(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *HTTPServer) handleDataImport(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "数据存储未启用"})
		return
	}
	var req struct {
		Dir string `json:"dir" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := s.store.ImportDir(c.Request.Context(), req.Dir)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
