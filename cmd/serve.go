package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/fpachisa/TutorAI-sub000/internal/server"
	"github.com/fpachisa/TutorAI-sub000/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tutoring API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			d.cfg.Server.Addr = addr
		}

		shutdownTracing, err := telemetry.Init(telemetry.Config{
			Enabled:     d.cfg.Telemetry.Tracing,
			ServiceName: d.cfg.Telemetry.ServiceName,
			Version:     version,
		}, d.log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
				d.log.Warn("tracing shutdown failed", "error", err)
			}
		}()

		svc, err := d.tutorService(ctx)
		if err != nil {
			return err
		}

		if d.cfg.Log.Mode == "prod" || d.cfg.Log.Mode == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		serviceName := ""
		if d.cfg.Telemetry.Tracing {
			serviceName = d.cfg.Telemetry.ServiceName
		}

		var limiter *server.ClientLimiter
		if d.cfg.Server.RatePerMinute > 0 {
			limiter = server.NewClientLimiter(d.cfg.Server.RatePerMinute, d.cfg.Server.RateBurst)
		}

		router := server.NewRouter(server.RouterConfig{
			ServiceName:       serviceName,
			AllowedOrigins:    d.cfg.Server.AllowedOrigins,
			Limiter:           limiter,
			Log:               d.log,
			Metrics:           d.metrics,
			TurnHandler:       server.NewTurnHandler(svc),
			SessionHandler:    server.NewSessionHandler(d.sessions, d.content),
			CurriculumHandler: server.NewCurriculumHandler(d.content),
		})
		return server.NewServer(d.cfg.Server.Addr, router, d.cfg.Server.RequestTimeout, d.log).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}
