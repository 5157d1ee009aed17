package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Start runs the HTTP API until ctx is cancelled.
func Start(ctx context.Context, port string, h *Handlers) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", h.Ping)

	mux.HandleFunc("POST /api/auth/token", h.IssueToken)
	mux.HandleFunc("POST /api/auth/revoke", h.withAuth(h.RevokeToken))

	mux.HandleFunc("GET /api/matches", h.ListMatches)
	mux.HandleFunc("POST /api/matches", h.withAuth(h.CreateMatch))
	mux.HandleFunc("GET /api/matches/{id}", h.GetMatch)
	mux.HandleFunc("POST /api/matches/{id}/join", h.withAuth(h.JoinMatch))
	mux.HandleFunc("POST /api/matches/{id}/leave", h.withAuth(h.LeaveMatch))
	mux.HandleFunc("POST /api/matches/{id}/start", h.withAuth(h.StartMatch))
	mux.HandleFunc("POST /api/matches/{id}/finish", h.withAuth(h.FinishMatch))
	mux.HandleFunc("PATCH /api/matches/{id}/settings", h.withAuth(h.UpdateSettings))
	mux.HandleFunc("DELETE /api/matches/{id}", h.withAuth(h.DeleteMatch))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
