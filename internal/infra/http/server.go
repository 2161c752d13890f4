package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"memochain/internal/config"
	"memochain/internal/domain"
	"memochain/internal/infra/chain"
	"memochain/internal/infra/logging"
	"memochain/internal/infra/metrics"
	"memochain/internal/infra/ratelimit"
	"memochain/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// LedgerBrowser is the read and maintenance surface of the ledger exposed
// over HTTP beyond the use cases.
type LedgerBrowser interface {
	GetBlock(ctx context.Context, index int64) (domain.Block, error)
	Range(ctx context.Context, from int64, limit int) ([]domain.Block, int64, error)
	InclusionProof(ctx context.Context, hash string) (domain.LedgerProof, error)
	Validate(ctx context.Context) (chain.Report, error)
	RebuildIndex(ctx context.Context) (int64, error)
}

type Server struct {
	cfg     config.Config
	r       *gin.Engine
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	recordUC   *usecase.RecordMemo
	reconciler *usecase.Reconciler
	studentUC  *usecase.StudentLookup
	statsUC    *usecase.LedgerStats
	exportUC   *usecase.ExportSnapshot
	ledger     LedgerBrowser
	storeMode  string

	adminAPIKey    string
	maxUploadBytes int64

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Record      *usecase.RecordMemo
	Reconciler  *usecase.Reconciler
	Students    *usecase.StudentLookup
	Stats       *usecase.LedgerStats
	Export      *usecase.ExportSnapshot
	Ledger      LedgerBrowser
	StoreMode   string
	AdminAPIKey string
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
	RateLimiter domain.RateLimiter
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:            cfg,
		r:              r,
		log:            deps.Logger,
		metrics:        deps.Metrics,
		recordUC:       deps.Record,
		reconciler:     deps.Reconciler,
		studentUC:      deps.Students,
		statsUC:        deps.Stats,
		exportUC:       deps.Export,
		ledger:         deps.Ledger,
		storeMode:      deps.StoreMode,
		adminAPIKey:    deps.AdminAPIKey,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.adminAPIKey == "" {
		s.adminAPIKey = cfg.AdminAPIKey
	}
	if s.storeMode == "" {
		s.storeMode = "memory"
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 16 << 20
	}
	r.Use(requestLogger(s.log))

	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil)
			if err == nil {
				s.rateLimiter = limiter
			} else {
				s.log.WithError(err).Warn("redis rate limiter unavailable, using memory")
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.storeMode})
	})
	if s.cfg.MetricsEnabled && s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/memos", s.handleRecordMemo)
		v1.GET("/verify/:hash", s.handleVerifyHash)
		v1.POST("/verify", s.handleVerify)
		v1.GET("/students/:student_id", s.handleStudent)

		v1.GET("/ledger/stats", s.handleLedgerStats)
		v1.GET("/ledger/blocks", s.handleListBlocks)
		v1.GET("/ledger/blocks/:index", s.handleGetBlock)
		v1.GET("/ledger/proof/:hash", s.handleInclusionProof)

		v1.GET("/ledger/validate", s.handleAdminValidate)
		v1.GET("/export", s.handleAdminExport)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.HTTPAddr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
