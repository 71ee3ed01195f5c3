// Package httpserver runs the billing API over net/http with graceful
// shutdown and Kubernetes style probes.
//
// Server is built from a Config read from HTTP_* variables. Run blocks
// until its context is cancelled and then drains in-flight requests within
// ShutdownTimeout, which lets it sit in an errgroup next to the queue
// worker:
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// LivenessHandler and ReadinessHandler serve /healthz and /readyz; the
// latter runs named checks such as pg.Healthcheck and redis.Healthcheck.
package httpserver
