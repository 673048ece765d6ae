// Package server implements the render service: the process that owns the
// view layer and answers render requests from controllers over a Unix
// socket.
//
// Endpoints:
//
//	POST /render         page + layout composition, text/html
//	POST /render_stream  ordered patch envelopes, all or nothing
//	GET  /healthz        liveness and protocol version
//	GET  /metrics        Prometheus metrics
//
// Invalid input is answered with 400 before any artifact is resolved.
// Missing pages and fragments yield 404; everything else that fails is a
// 500 whose body only carries detail in debug mode.
//
// Basic usage:
//
//	views := render.NewTemplateRenderer(render.NewDirSource("app/views"), render.TemplateConfig{})
//	srv := server.New(&server.Config{SocketPath: "tmp/sockets/render.sock"}, views)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
