package config

import (
	"log/slog"

	"github.com/vango-dev/viewbridge/pkg/ipc"
	"github.com/vango-dev/viewbridge/pkg/render"
	"github.com/vango-dev/viewbridge/pkg/server"
)

// ClientConfig returns the IPC client configuration.
func (c *Config) ClientConfig() ipc.Config {
	return ipc.Config{
		SocketPath:  c.SocketPath(),
		DialTimeout: duration(c.Client.DialTimeout),
		IOTimeout:   duration(c.Client.IOTimeout),
		IdleTimeout: duration(c.Client.IdleTimeout),
		MaxAttempts: c.Client.MaxAttempts,
	}
}

// ServerConfig returns the render service configuration.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		SocketPath: c.SocketPath(),
		Debug:      c.Debug,
		Layout:     c.Service.Layout,
		Bootstrap: render.Bootstrap{
			Imports:      c.Service.Imports,
			VendorPrefix: c.Service.VendorPrefix,
		},
		Concurrency:      c.Service.Concurrency,
		MaxBodyBytes:     c.Service.MaxBodyBytes,
		ShutdownTimeout:  duration(c.Service.ShutdownTimeout),
		MetricsNamespace: c.Metrics.Namespace,
	}
}

// TemplateConfig returns the template renderer configuration.
func (c *Config) TemplateConfig(logger *slog.Logger) render.TemplateConfig {
	return render.TemplateConfig{
		PagesDir:   c.Service.PagesDir,
		LayoutsDir: c.Service.LayoutsDir,
		Extension:  c.Service.Extension,
		Debug:      c.Debug,
		Logger:     logger,
	}
}

// ViewSource returns the artifact source selected by the artifacts section.
func (c *Config) ViewSource() render.Source {
	if c.Artifacts.Source == SourceS3 {
		client := render.NewS3Client(render.S3Options{
			Region:          c.Artifacts.Region,
			Endpoint:        c.Artifacts.Endpoint,
			AccessKeyID:     c.Artifacts.AccessKeyID,
			SecretAccessKey: c.Artifacts.SecretAccessKey,
			UsePathStyle:    c.Artifacts.UsePathStyle,
		})
		return render.NewS3Source(client, c.Artifacts.Bucket, c.Artifacts.Prefix)
	}
	return render.NewDirSource(c.AppPath())
}
