// Package middleware provides net/http middleware for the render service.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus metrics middleware
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware opens a server span for every request on the
// render socket. Spans carry the method, the route pattern, the request id
// and the response status.
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("viewbridge-service"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// The tracer uses the global OpenTelemetry tracer provider. Configure it in
// main() before starting the service.
//
// # Prometheus Metrics
//
// The Prometheus middleware collects:
//   - viewbridge_requests_total: requests by route and status
//   - viewbridge_request_duration_seconds: request duration histogram
//   - viewbridge_request_errors_total: failed requests by route and error type
//   - viewbridge_requests_in_flight: requests currently being served
//   - viewbridge_patches_rendered_total: patch envelopes written
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// MetricsConfig and its options are shared with the IPC client metrics in
// pkg/ipc so both sides of the socket can be registered consistently.
package middleware
