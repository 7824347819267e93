package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Serve runs the HTTP facade on addr until ctx is done, then shuts it down.
func Serve(ctx context.Context, addr string, cfg RouterConfig) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	SetupRouter(e, cfg)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http facade listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http facade")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}
