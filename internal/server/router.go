// Package server exposes the tutoring turn contract over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fpachisa/TutorAI-sub000/internal/logger"
	"github.com/fpachisa/TutorAI-sub000/internal/metrics"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Limiter        *ClientLimiter
	Log            *logger.Logger
	Metrics        *metrics.Metrics

	TurnHandler       *TurnHandler
	SessionHandler    *SessionHandler
	CurriculumHandler *CurriculumHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORS(cfg.AllowedOrigins))
	}
	r.Use(RequestLogger(cfg.Log))
	r.Use(Metrics(cfg.Metrics))

	r.GET("/healthcheck", HealthCheck)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.TurnHandler != nil {
			api.POST("/turns", RateLimit(cfg.Limiter), cfg.TurnHandler.CreateTurn)
		}
		if cfg.SessionHandler != nil {
			api.GET("/sessions/:id", cfg.SessionHandler.GetSession)
		}
		if cfg.CurriculumHandler != nil {
			api.GET("/curriculum", cfg.CurriculumHandler.ListCurriculum)
			api.GET("/curriculum/:key", cfg.CurriculumHandler.GetCurriculum)
		}
	}
	return r
}

type Server struct {
	http *http.Server
	log  *logger.Logger
}

func NewServer(addr string, handler http.Handler, requestTimeout time.Duration, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      requestTimeout,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.http.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
