// Package httpserver wraps net/http with graceful shutdown, env-configurable
// timeouts, and readiness probes for the service's storage dependencies.
//
// Run blocks until the context is cancelled, an interrupt or TERM signal
// arrives, or the listener fails; shutdown then drains in-flight requests
// within the configured deadline. Errors are wrapped with the ErrStart and
// ErrShutdown sentinels.
//
//	srv := httpserver.New(httpserver.WithAddr(":8080"))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", "error", err)
//	}
package httpserver
