package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrhollen/SalesAgent/internal/auth"
	"github.com/mrhollen/SalesAgent/internal/handlers"
	"github.com/mrhollen/SalesAgent/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionOpts := []session.Option{
		session.WithLogger(a.logger),
		session.WithConfig(session.Config{
			BaselineQuery:     a.cfg.Session.BaselineQuery,
			BaselineMaxChunks: a.cfg.Session.BaselineMaxChunks,
			TurnMaxChunks:     a.cfg.Session.TurnMaxChunks,
			ReplyModel:        a.cfg.LLM.DefaultModel,
		}),
	}
	if a.cfg.Session.GenerateReplies {
		sessionOpts = append(sessionOpts, session.WithResponder(a.client))
	}
	sessions := session.NewManager(a.service, sessionOpts...)
	defer sessions.Shutdown()

	mux := handlers.NewMux(auth.NewAccessTokenAuthorizer(a.store), handlers.Handlers{
		Documents: &handlers.DocumentHandler{Service: a.service, DB: a.store, Logger: a.logger},
		Upload:    &handlers.UploadHandler{Service: a.service, Logger: a.logger},
		Query: &handlers.QueryHandler{
			Service:   a.service,
			Limit:     a.cfg.Session.TurnMaxChunks,
			MaxChunks: a.cfg.Session.TurnMaxChunks,
			Logger:    a.logger,
		},
		Sessions: &handlers.SessionHandler{Sessions: sessions, Logger: a.logger},
	}, a.logger)

	server := &http.Server{
		Addr:              a.cfg.ListenAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server is running", "address", server.Addr, "driver", a.cfg.Database.Driver)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
