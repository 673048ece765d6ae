package main

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/viewbridge/internal/errors"
	"github.com/vango-dev/viewbridge/pkg/render"
	"github.com/vango-dev/viewbridge/pkg/server"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the render service",
		Long: `Run the render service on the configured Unix socket.

Pages are read from <appRoot>/pages, layouts from <appRoot>/layouts and
fragments from <appRoot>/<id>, or from an S3 bucket when
artifacts.source is "s3". The service stops on SIGINT or SIGTERM.

Examples:
  viewbridge serve
  viewbridge serve --socket /tmp/render.sock --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
	return cmd
}

func runServe(flags *globalFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := slog.Default()
	views := render.NewTemplateRenderer(cfg.ViewSource(), cfg.TemplateConfig(logger))
	srv := server.New(cfg.ServerConfig(), views)

	if cfg.Debug {
		warn("debug mode: 5xx responses include error detail")
	}
	info("socket:    %s", cfg.SocketPath())
	info("artifacts: %s", artifactsLabel(cfg.Artifacts.Source, cfg.AppPath(), cfg.Artifacts.Bucket))

	if addr := cfg.Metrics.Listen; addr != "" {
		r := chi.NewRouter()
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(srv.Registry(), promhttp.HandlerOpts{}))
		ms := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := ms.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				errorMsg("metrics listener: %v", err)
			}
		}()
		defer ms.Close()
		info("metrics:   http://%s/metrics", addr)
	}

	if err := srv.Run(); err != nil {
		switch {
		case stderrors.Is(err, server.ErrSocketInUse):
			return errors.New("E161").
				WithDetail(cfg.SocketPath()).
				WithSuggestion("Stop the other render service or choose another --socket").
				Wrap(err)
		default:
			return err
		}
	}
	success("render service stopped")
	return nil
}

func artifactsLabel(source, appPath, bucket string) string {
	if source == "s3" {
		return "s3://" + bucket
	}
	return appPath
}
