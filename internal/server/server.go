package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fapiaolink/internal/config"
	"github.com/smallbiznis/fapiaolink/internal/correlation"
	invoicedomain "github.com/smallbiznis/fapiaolink/internal/invoice/domain"
	"github.com/smallbiznis/fapiaolink/internal/reconcile"
	"github.com/smallbiznis/fapiaolink/internal/submit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Params struct {
	fx.In

	Engine       *gin.Engine
	Log          *zap.Logger
	InvoiceSvc   invoicedomain.Service
	Orchestrator *submit.Orchestrator
	Reconciler   *reconcile.Service
	Correlation  correlation.Store
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	invoiceSvc   invoicedomain.Service
	orchestrator *submit.Orchestrator
	reconciler   *reconcile.Service
	correlation  correlation.Store
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:       p.Engine,
		log:          p.Log.Named("server"),
		invoiceSvc:   p.InvoiceSvc,
		orchestrator: p.Orchestrator,
		reconciler:   p.Reconciler,
		correlation:  p.Correlation,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/callbacks/invoicing", s.handleCallback)
	v1.GET("/invoices", s.handleListInvoices)
	v1.GET("/invoices/:id", s.handleGetInvoice)
	v1.POST("/invoices/:id/submit", s.handleSubmitInvoice)
	v1.POST("/invoices/merge", s.handleMergeInvoices)
	v1.POST("/invoices/:id/red-note", s.handleRedNote)
	v1.GET("/correlation/stats", s.handleCorrelationStats)
}

// handleCallback always answers 200. The provider retries non-200
// responses; a processed callback is acknowledged in the body even
// when parts of it could not be applied.
func (s *Server) handleCallback(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusOK, reconcile.Response{Success: false, Message: "unreadable body"})
		return
	}
	c.JSON(http.StatusOK, s.reconciler.Ingest(c.Request.Context(), payload))
}

func (s *Server) handleListInvoices(c *gin.Context) {
	req := invoicedomain.ListRequest{
		TenantID:     tenantID(c),
		ErpInvoiceID: c.Query("erp_invoice_id"),
		CustomerName: c.Query("customer_name"),
		Status:       c.Query("status"),
		FapiaoType:   c.Query("fapiao_type"),
		Submitter:    c.Query("submitter"),
	}
	if from, ok := parseTime(c.Query("created_from")); ok {
		req.CreatedFrom = &from
	}
	if to, ok := parseTime(c.Query("created_to")); ok {
		req.CreatedTo = &to
	}
	req.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	req.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	record, err := s.invoiceSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleSubmitInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	receipt, err := s.orchestrator.SubmitSingle(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

func (s *Server) handleMergeInvoices(c *gin.Context) {
	var body struct {
		ErpInvoiceIDs []int64 `json:"erp_invoice_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	receipt, err := s.orchestrator.SubmitMerge(c.Request.Context(), tenantID(c), body.ErpInvoiceIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

func (s *Server) handleRedNote(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	receipt, err := s.orchestrator.SubmitRedNote(c.Request.Context(), tenantID(c), id, body.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

func (s *Server) handleCorrelationStats(c *gin.Context) {
	stats, err := s.correlation.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseInvoiceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
