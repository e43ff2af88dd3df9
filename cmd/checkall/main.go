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

// Mailcheck — Batch Check Command
//
// Standalone CLI tool that runs a sequential mail check over stored
// accounts. Intended for cron-driven retrieval without the REST server.
//
// Usage:
//
//	go run ./cmd/checkall/ [--accounts 1,2,3] [--folder INBOX]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

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

	// --- CLI Flags ---
	accountsFlag := flag.String("accounts", "", "Comma-separated account IDs (optional; empty = all accounts)")
	folderFlag := flag.String("folder", "", "Folder to check (optional; empty = per-account default)")
	flag.Parse()

	var ids []int64
	if *accountsFlag != "" {
		for _, part := range strings.Split(*accountsFlag, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid account id %q\n", part)
				os.Exit(1)
			}
			ids = append(ids, id)
		}
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

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
	defer rdb.Close()

	cache := tokencache.New(rdb)
	if err := cache.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Resolve accounts ---
	if len(ids) == 0 {
		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			slog.Error("failed to list accounts", "error", err)
			os.Exit(1)
		}
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		slog.Error("no accounts to check")
		os.Exit(1)
	}

	slog.Info("starting batch check", "accounts", len(ids), "folder", *folderFlag)

	// --- Run Checks ---
	chk := checker.New(checker.Config{
		Store:         st,
		Tokens:        token.NewManager(cache, st, cfg.TokenURL, cfg.TokenScope, cfg.ConnectTimeout),
		Graph:         graphapi.NewClient(cfg.GraphBaseURL),
		Mailbox:       mailbox.NewClient(cfg.IMAPAddr, cfg.ConnectTimeout, cfg.FetchLimit),
		Saver:         dedup.NewSaver(st),
		DefaultFolder: cfg.DefaultFolder,
		FetchLimit:    cfg.FetchLimit,
		HTTPTimeout:   cfg.ConnectTimeout,
	})

	batch := chk.CheckMany(ctx, ids, *folderFlag)

	// --- Summary ---
	slog.Info("batch check complete",
		"success", batch.SuccessCount,
		"failed", batch.FailedCount,
	)

	for _, res := range batch.Results {
		slog.Info("account result",
			"account_id", res.EmailID,
			"success", res.Success,
			"fetched", res.Fetched,
			"saved", res.Saved,
			"message", res.Message,
		)
	}

	if batch.FailedCount > 0 {
		os.Exit(1)
	}
}
