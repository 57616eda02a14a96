// Package httpserver runs an http.Handler until its context ends.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"messagely/internal/logutil"
)

// ShutdownTimeout bounds how long in-flight requests may take to finish.
const ShutdownTimeout = 30 * time.Second

// Serve listens on bind and serves handler until ctx is canceled, then shuts
// the server down gracefully.
func Serve(ctx context.Context, bind string, handler http.Handler) error {
	lis, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	return ServeListener(ctx, lis, handler)
}

// ServeListener is Serve on an existing listener, which it takes ownership of.
func ServeListener(ctx context.Context, lis net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute * 5,
	}
	log := logutil.GetOrDefault(ctx).With().Str("server.addr", lis.Addr().String()).Logger()

	firstErr := make(chan error, 1)
	go func() {
		defer close(firstErr)
		log.Info().Msg("Starting HTTP server")
		err := server.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			log.Info().Msg("Server closed")
			// shutdown called, ignore the error
			return
		}
		firstErr <- err
	}()

	select {
	case err := <-firstErr:
		return err
	case <-ctx.Done():
		log.Info().Msg("Initiating shutdown process")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("Shutdown completed")
		return <-firstErr
	}
}
