// Command moderator runs a single cerberus moderator process: an HTTP
// server binding one moderator.Engine to the /setup, /signing,
// /decryption and /shutdown endpoints of spec §6.
//
// Configuration is read from environment variables, mirroring the
// teacher-adjacent original's GlobalParameters::load()
// (original_source/src/parameters.rs): a handful of env vars with
// defaults, not a configuration framework — this binary is explicitly
// out of scope for depth (spec.md §1).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cerberus-project/cerberus/moderator"
	"github.com/cerberus-project/cerberus/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	domain := getenv("CERBERUS_DOMAIN", "cerberus")
	addr := getenv("CERBERUS_LISTEN_ADDR", ":80")

	engine := moderator.New(domain)
	srv := transport.NewServer(engine)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("moderator listening", "addr", addr, "domain", domain)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("moderator server failed", "error", err)
			os.Exit(1)
		}
	case <-srv.Done():
		logger.Info("received shutdown, stopping server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("moderator exited cleanly")
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
