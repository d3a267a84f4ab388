// Package httpserver runs an http.Handler for the lifetime of a context.
//
// Run listens, serves and, once the context is cancelled, shuts the server
// down within the configured timeout. It is used for small side endpoints
// such as metrics and health probes:
//
//	r := chi.NewRouter()
//	r.Get("/livez", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log, pool.Ping))
//	r.Handle("/metrics", promhttp.Handler())
//
//	srv := httpserver.New(httpserver.WithAddr(":9102"), httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("metrics server", logger.Error(err))
//	}
package httpserver
