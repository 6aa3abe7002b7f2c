// Package server runs an HTTP server with sane timeouts and graceful
// shutdown driven by the caller's context.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	readTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	handlerTimeout  = 5 * time.Second
)

// Run serves handler on the given port until ctx is cancelled, then
// shuts down gracefully. It blocks until the server has stopped.
func Run(ctx context.Context, handler http.Handler, port string) error {
	log := log.With().Str("pkg", "server").Logger()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		// Instead of setting WriteTimeout, we use http.TimeoutHandler to specify the maximum amount of time for a handler to complete.
		Handler: http.TimeoutHandler(handler, handlerTimeout, ""),
	}

	errCh := make(chan error, 1)

	// Initializing the srv in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Err(err).Msg("forced to shut down")

		return err
	}

	log.Info().Msg("exiting")

	return nil
}
