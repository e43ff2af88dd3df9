// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Mailcheck service
//
// Entry point for the mail retrieval service. It:
//  1. Loads configuration from config.yaml and environment variables
//  2. Connects to PostgreSQL (accounts, mail, attachments) and Redis (token cache)
//  3. Wires the token manager, Graph and IMAP retrievers, and the checker
//  4. Serves the REST API for account management and mail checks
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/outboxlabs/mailcheck/internal/api"
	"github.com/outboxlabs/mailcheck/internal/checker"
	"github.com/outboxlabs/mailcheck/internal/config"
	"github.com/outboxlabs/mailcheck/internal/dedup"
	"github.com/outboxlabs/mailcheck/internal/graphapi"
	"github.com/outboxlabs/mailcheck/internal/mailbox"
	"github.com/outboxlabs/mailcheck/internal/store"
	"github.com/outboxlabs/mailcheck/internal/token"
	"github.com/outboxlabs/mailcheck/internal/tokencache"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailcheck service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"imap_addr", cfg.IMAPAddr,
		"default_folder", cfg.DefaultFolder,
		"fetch_limit", cfg.FetchLimit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	cache := tokencache.New(rdb)
	if err := cache.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Wire retrieval components ---
	tokens := token.NewManager(cache, st, cfg.TokenURL, cfg.TokenScope, cfg.ConnectTimeout)
	graph := graphapi.NewClient(cfg.GraphBaseURL)
	imap := mailbox.NewClient(cfg.IMAPAddr, cfg.ConnectTimeout, cfg.FetchLimit)
	saver := dedup.NewSaver(st)

	chk := checker.New(checker.Config{
		Store:         st,
		Tokens:        tokens,
		Graph:         graph,
		Mailbox:       imap,
		Saver:         saver,
		DefaultFolder: cfg.DefaultFolder,
		FetchLimit:    cfg.FetchLimit,
		HTTPTimeout:   cfg.ConnectTimeout,
	})

	// --- REST API ---
	handler := api.NewHandler(st, chk)
	handler.HealthChecks = map[string]func(context.Context) error{
		"postgres": pgPool.Ping,
		"redis":    cache.Ping,
	}

	mux := http.NewServeMux()
	handler.Routes(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("mailcheck service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("mailcheck service stopped")
}
