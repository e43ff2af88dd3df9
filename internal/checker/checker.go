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

// Package checker orchestrates a mail check for one account: it acquires
// a token, dispatches on the protocol mode, falls back between Graph and
// IMAP on specific failure classes, and persists the results.
//
// The fallback directions are deliberately asymmetric. Graph can fail for
// many benign reasons (throttling among them), so any Graph failure is
// worth an IMAP attempt. An IMAP failure only justifies trying Graph when
// it is an authentication rejection; other IMAP errors (bad folder name,
// connection trouble) are configuration problems that a fallback cannot
// fix.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outboxlabs/mailcheck/internal/models"
	"github.com/outboxlabs/mailcheck/internal/proxy"
)

// supportedMailType is the only provider this checker retrieves for.
const supportedMailType = "outlook"

// Store is the account persistence the checker needs. Mode transitions
// happen only here and in the token manager's refresh path.
type Store interface {
	Account(ctx context.Context, id int64) (*models.Account, error)
	UpdateAPIMode(ctx context.Context, id int64, mode models.APIMode) error
	UpdateLastCheckTime(ctx context.Context, id int64, t time.Time) error
}

// TokenManager acquires an access token and the protocol mode to use.
type TokenManager interface {
	Acquire(ctx context.Context, account *models.Account, pxy proxy.Config) (string, models.APIMode, error)
}

// GraphFetcher retrieves mail over the Graph REST API.
type GraphFetcher interface {
	Fetch(ctx context.Context, accessToken, folder string, limit int, base *http.Client) ([]models.FetchedMessage, error)
}

// MailboxFetcher retrieves mail over IMAP.
type MailboxFetcher interface {
	Fetch(ctx context.Context, email, accessToken, folder string, since *time.Time) ([]models.FetchedMessage, error)
}

// Saver persists fetched messages with dedup.
type Saver interface {
	SaveAll(ctx context.Context, emailID int64, msgs []models.FetchedMessage) (int, error)
}

// Config wires a Checker.
type Config struct {
	Store   Store
	Tokens  TokenManager
	Graph   GraphFetcher
	Mailbox MailboxFetcher
	Saver   Saver

	DefaultFolder string
	FetchLimit    int
	HTTPTimeout   time.Duration
}

// Checker runs per-account mail checks.
type Checker struct {
	store   Store
	tokens  TokenManager
	graph   GraphFetcher
	mailbox MailboxFetcher
	saver   Saver

	defaultFolder string
	fetchLimit    int
	httpTimeout   time.Duration
}

// New creates a checker from the config, applying defaults.
func New(cfg Config) *Checker {
	c := &Checker{
		store:         cfg.Store,
		tokens:        cfg.Tokens,
		graph:         cfg.Graph,
		mailbox:       cfg.Mailbox,
		saver:         cfg.Saver,
		defaultFolder: cfg.DefaultFolder,
		fetchLimit:    cfg.FetchLimit,
		httpTimeout:   cfg.HTTPTimeout,
	}
	if c.defaultFolder == "" {
		c.defaultFolder = "INBOX"
	}
	if c.fetchLimit <= 0 {
		c.fetchLimit = 100
	}
	if c.httpTimeout <= 0 {
		c.httpTimeout = 30 * time.Second
	}
	return c
}

// Check runs one mail check for the account. The returned result always
// carries the fetched/saved counts reached so far, even on error; the
// caller decides how to surface the error.
func (c *Checker) Check(ctx context.Context, accountID int64, folder string) (models.CheckResult, error) {
	result := models.CheckResult{EmailID: accountID}
	checkID := uuid.New().String()

	account, err := c.store.Account(ctx, accountID)
	if err != nil {
		return result, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return result, fmt.Errorf("account %d not found", accountID)
	}
	if account.MailType != supportedMailType {
		return result, fmt.Errorf("unsupported mail type %q: only %s accounts can be checked",
			account.MailType, supportedMailType)
	}

	if folder == "" {
		folder = account.DefaultFolder
	}
	if folder == "" {
		folder = c.defaultFolder
	}

	pxy := proxy.FromAccount(account.ProxyType, account.ProxyURL)

	token, mode, err := c.tokens.Acquire(ctx, account, pxy)
	if err != nil {
		return result, fmt.Errorf("acquire token: %w", err)
	}

	slog.Info("starting mail check",
		"check_id", checkID,
		"account_id", accountID,
		"folder", folder,
		"mode", mode,
	)

	httpClient, err := proxy.BuildHTTPClient(pxy, c.httpTimeout)
	if err != nil {
		return result, fmt.Errorf("build http client: %w", err)
	}

	fetched, saved, used, err := c.dispatch(ctx, account, token, mode, folder, httpClient)
	result.Fetched = fetched
	result.Saved = saved
	if err != nil {
		return result, err
	}

	if err := c.store.UpdateLastCheckTime(ctx, accountID, time.Now().UTC()); err != nil {
		return result, fmt.Errorf("update last check time: %w", err)
	}

	result.Success = true
	result.Message = fmt.Sprintf("fetched %d messages, %d new (mode: %s)", fetched, saved, used)
	slog.Info("mail check complete",
		"check_id", checkID,
		"account_id", accountID,
		"fetched", fetched,
		"saved", saved,
		"mode", used,
	)
	return result, nil
}

// dispatch executes the retrieval for the resolved mode, handling the
// fallback rules, and persists any mode transition. It returns the mode
// actually used.
func (c *Checker) dispatch(ctx context.Context, account *models.Account, token string, mode models.APIMode, folder string, httpClient *http.Client) (int, int, models.APIMode, error) {
	switch mode {
	case models.ModeGraph:
		msgs, gerr := c.graph.Fetch(ctx, token, folder, c.fetchLimit, httpClient)
		if gerr == nil {
			saved, err := c.saver.SaveAll(ctx, account.ID, msgs)
			return len(msgs), saved, models.ModeGraph, err
		}

		slog.Warn("graph fetch failed, falling back to IMAP",
			"account_id", account.ID,
			"error", gerr,
		)
		msgs, ierr := c.mailbox.Fetch(ctx, account.Email, token, folder, account.LastCheckTime)
		// The account is demoted to IMAP even when the fallback itself
		// fails; the fallback error still surfaces as the check error.
		if uerr := c.store.UpdateAPIMode(ctx, account.ID, models.ModeIMAP); uerr != nil {
			return 0, 0, models.ModeIMAP, fmt.Errorf("persist api mode: %w", uerr)
		}
		if ierr != nil {
			return 0, 0, models.ModeIMAP, fmt.Errorf("imap fallback: %w", ierr)
		}
		saved, err := c.saver.SaveAll(ctx, account.ID, msgs)
		return len(msgs), saved, models.ModeIMAP, err

	case models.ModeIMAP:
		msgs, ierr := c.mailbox.Fetch(ctx, account.Email, token, folder, account.LastCheckTime)
		if ierr == nil {
			saved, err := c.saver.SaveAll(ctx, account.ID, msgs)
			return len(msgs), saved, models.ModeIMAP, err
		}
		if !IsAuthFailure(ierr) {
			return 0, 0, models.ModeIMAP, ierr
		}

		slog.Warn("IMAP authentication failed, falling back to Graph",
			"account_id", account.ID,
			"error", ierr,
		)
		msgs, gerr := c.graph.Fetch(ctx, token, folder, c.fetchLimit, httpClient)
		if gerr != nil {
			return 0, 0, models.ModeIMAP, fmt.Errorf("graph fallback: %w", gerr)
		}
		saved, err := c.saver.SaveAll(ctx, account.ID, msgs)
		if err != nil {
			return len(msgs), saved, models.ModeGraph, err
		}
		if uerr := c.store.UpdateAPIMode(ctx, account.ID, models.ModeGraph); uerr != nil {
			return len(msgs), saved, models.ModeGraph, fmt.Errorf("persist api mode: %w", uerr)
		}
		return len(msgs), saved, models.ModeGraph, nil

	default:
		// Auto is only reachable on a cache hit for an account whose last
		// persisted mode was auto. Prefer Graph, fall back to IMAP.
		msgs, gerr := c.graph.Fetch(ctx, token, folder, c.fetchLimit, httpClient)
		if gerr == nil {
			saved, err := c.saver.SaveAll(ctx, account.ID, msgs)
			if err != nil {
				return len(msgs), saved, models.ModeGraph, err
			}
			if uerr := c.store.UpdateAPIMode(ctx, account.ID, models.ModeGraph); uerr != nil {
				return len(msgs), saved, models.ModeGraph, fmt.Errorf("persist api mode: %w", uerr)
			}
			return len(msgs), saved, models.ModeGraph, nil
		}

		slog.Warn("graph fetch failed in auto mode, falling back to IMAP",
			"account_id", account.ID,
			"error", gerr,
		)
		msgs, ierr := c.mailbox.Fetch(ctx, account.Email, token, folder, account.LastCheckTime)
		if ierr != nil {
			return 0, 0, mode, fmt.Errorf("imap fallback: %w", ierr)
		}
		saved, err := c.saver.SaveAll(ctx, account.ID, msgs)
		if err != nil {
			return len(msgs), saved, models.ModeIMAP, err
		}
		if uerr := c.store.UpdateAPIMode(ctx, account.ID, models.ModeIMAP); uerr != nil {
			return len(msgs), saved, models.ModeIMAP, fmt.Errorf("persist api mode: %w", uerr)
		}
		return len(msgs), saved, models.ModeIMAP, nil
	}
}

// CheckMany checks the accounts strictly sequentially, isolating each
// account's failure as a failed result entry. Sequential processing keeps
// rate-limit pressure on the identity provider low and error isolation
// simple.
func (c *Checker) CheckMany(ctx context.Context, accountIDs []int64, folder string) models.BatchCheckResult {
	var batch models.BatchCheckResult
	for _, id := range accountIDs {
		res, err := c.Check(ctx, id, folder)
		if err != nil {
			slog.Error("account check failed", "account_id", id, "error", err)
			res.Success = false
			res.Message = fmt.Sprintf("check failed: %v", err)
			batch.FailedCount++
		} else {
			batch.SuccessCount++
		}
		batch.Results = append(batch.Results, res)
	}
	return batch
}

// IsAuthFailure reports whether an IMAP error is an authentication
// rejection. Upstream surfaces these as loosely typed strings, so this is
// a case-insensitive substring match kept behind a single predicate.
func IsAuthFailure(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "authenticate")
}
