// Command coordinator drives one end-to-end pass of the cerberus protocol
// against a fleet of already-running moderator processes: setup, two
// back-to-back token-creation batches (to exercise the nonce-commitment
// pipeline across calls), a decryption of the second batch's first token,
// and a clean shutdown. This mirrors the reference implementation's
// examples/dry_run.rs end-to-end scenario (spec §8).
//
// Configuration is read from environment variables, mirroring the
// teacher-adjacent original's GlobalParameters::load()
// (original_source/src/parameters.rs) — a handful of env vars with
// defaults, not a configuration framework (spec.md §1 explicitly scopes
// CLI/env plumbing out as a design problem).
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cerberus-project/cerberus/coordinator"
	"github.com/cerberus-project/cerberus/elgamal"
	"github.com/cerberus-project/cerberus/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	domain := getenv("CERBERUS_DOMAIN", "cerberus")
	n := getenvInt("CERBERUS_N", 5)
	tSig := getenvInt("CERBERUS_T_SIG", 3)
	tDec := getenvInt("CERBERUS_T_DEC", 3)
	batchSize := getenvInt("CERBERUS_BATCH_SIZE", 100)

	ht := transport.NewHTTPTransport(&http.Client{Timeout: 30 * time.Second})
	eng := coordinator.New(domain, ht)

	ctx := context.Background()

	if err := run(ctx, logger, eng, n, tSig, tDec, batchSize); err != nil {
		logger.Error("coordinator run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, eng *coordinator.Engine, n, tSig, tDec, batchSize int) error {
	logger.Info("initializing moderators", "n", n, "t_sig", tSig, "t_dec", tDec, "batch_size", batchSize)
	if err := eng.Init(ctx, n, tSig, tDec, batchSize); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	userIds, err := randomUserIds(batchSize)
	if err != nil {
		return fmt.Errorf("drawing user ids: %w", err)
	}

	logger.Info("creating token batch 1")
	if _, err := eng.CreateTokens(ctx, userIds); err != nil {
		return fmt.Errorf("create tokens (batch 1): %w", err)
	}

	// Sign another batch with the same user ids to exercise the
	// nonce-commitment pipeline across calls (spec §8 property 3).
	logger.Info("creating token batch 2")
	tokens, err := eng.CreateTokens(ctx, userIds)
	if err != nil {
		return fmt.Errorf("create tokens (batch 2): %w", err)
	}

	logger.Info("decrypting token")
	decrypted, err := eng.RequestTokenDecryption(ctx, tokens[0].Token.X1)
	if err != nil {
		return fmt.Errorf("request token decryption: %w", err)
	}
	if decrypted != userIds[0] {
		return fmt.Errorf("decrypted user id %x does not match original %x", decrypted, userIds[0])
	}

	logger.Info("shutting down moderators")
	if err := eng.ShutdownModerators(ctx); err != nil {
		return fmt.Errorf("shutdown moderators: %w", err)
	}

	logger.Info("done")
	return nil
}

func randomUserIds(n int) ([]elgamal.UserId, error) {
	ids := make([]elgamal.UserId, n)
	for i := range ids {
		if _, err := io.ReadFull(rand.Reader, ids[i][:]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
