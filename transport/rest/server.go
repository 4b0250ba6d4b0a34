package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/gridclash/gridclash-backend/internal/repository"
)

// Start - starts the HTTP server with the liveness and match record routes.
func Start(ctx context.Context, logger *slog.Logger, port string, archive repository.ArchiveRepository) error {
	handler := newHandler(logger, archive)

	router := httprouter.New()
	router.GET("/ping", handler.ping)
	router.GET("/matches/:id", handler.matchByID)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
