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

// Package store provides the Postgres-backed persistence layer for
// accounts, mail records, and attachments. Retrieval is append-only:
// mail records are never updated or deleted by the check pipeline.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outboxlabs/mailcheck/internal/models"
)

// Store provides keyed read/write operations on the mailcheck tables.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool.
// It ensures the schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id              BIGSERIAL PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			password        TEXT NOT NULL DEFAULT '',
			mail_type       TEXT NOT NULL DEFAULT 'outlook',
			client_id       TEXT NOT NULL,
			refresh_token   TEXT NOT NULL,
			access_token    TEXT NOT NULL DEFAULT '',
			api_mode        TEXT NOT NULL DEFAULT 'auto',
			proxy_type      TEXT NOT NULL DEFAULT '',
			proxy_url       TEXT NOT NULL DEFAULT '',
			default_folder  TEXT NOT NULL DEFAULT '',
			last_check_time TIMESTAMPTZ,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS mail_records (
			id              BIGSERIAL PRIMARY KEY,
			email_id        BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			subject         TEXT NOT NULL DEFAULT '',
			sender          TEXT NOT NULL DEFAULT '',
			received_time   TIMESTAMPTZ,
			content         TEXT NOT NULL DEFAULT '',
			folder          TEXT NOT NULL DEFAULT '',
			has_attachments SMALLINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_mail_dedup
			ON mail_records(email_id, subject, sender, received_time);
		CREATE TABLE IF NOT EXISTS attachments (
			id           BIGSERIAL PRIMARY KEY,
			mail_id      BIGINT NOT NULL REFERENCES mail_records(id) ON DELETE CASCADE,
			filename     TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			size         BIGINT NOT NULL DEFAULT 0,
			content      BYTEA
		);
		CREATE INDEX IF NOT EXISTS idx_attachments_mail ON attachments(mail_id);
	`)
	return err
}

// --- Accounts ---

// AddAccount inserts a new account and returns its id.
func (s *Store) AddAccount(ctx context.Context, email, password, clientID, refreshToken, mailType string) (int64, error) {
	if mailType == "" {
		mailType = "outlook"
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password, client_id, refresh_token, mail_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, email, password, clientID, refreshToken, mailType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return id, nil
}

// AddOrUpdateAccount inserts an account or, if the email already exists,
// overwrites its credentials.
func (s *Store) AddOrUpdateAccount(ctx context.Context, email, password, clientID, refreshToken, mailType string) (int64, error) {
	if mailType == "" {
		mailType = "outlook"
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password, client_id, refresh_token, mail_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			password      = EXCLUDED.password,
			client_id     = EXCLUDED.client_id,
			refresh_token = EXCLUDED.refresh_token,
			mail_type     = EXCLUDED.mail_type,
			updated_at    = NOW()
		RETURNING id
	`, email, password, clientID, refreshToken, mailType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert account: %w", err)
	}
	return id, nil
}

// ImportAccounts bulk-imports accounts from newline-separated
// "email----password----client_id----refresh_token" lines. Malformed
// lines are reported per line and do not abort the import.
func (s *Store) ImportAccounts(ctx context.Context, input string) (*models.ImportResult, error) {
	result := &models.ImportResult{}

	for lineNo, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, "----")
		if len(parts) != 4 {
			result.FailedCount++
			result.FailedLines = append(result.FailedLines,
				fmt.Sprintf("line %d: malformed entry (expected 4 fields, got %d)", lineNo+1, len(parts)))
			continue
		}

		email := strings.TrimSpace(parts[0])
		password := strings.TrimSpace(parts[1])
		clientID := strings.TrimSpace(parts[2])
		refreshToken := strings.TrimSpace(parts[3])

		if email == "" || password == "" || clientID == "" || refreshToken == "" {
			result.FailedCount++
			result.FailedLines = append(result.FailedLines,
				fmt.Sprintf("line %d: empty field", lineNo+1))
			continue
		}

		if _, err := s.AddOrUpdateAccount(ctx, email, password, clientID, refreshToken, ""); err != nil {
			slog.Error("account import failed", "email", email, "error", err)
			result.FailedCount++
			result.FailedLines = append(result.FailedLines,
				fmt.Sprintf("line %d: %v", lineNo+1, err))
			continue
		}

		slog.Info("account imported", "email", email)
		result.SuccessCount++
	}

	return result, nil
}

// Account retrieves a single account by id. Returns nil when absent.
func (s *Store) Account(ctx context.Context, id int64) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password, mail_type, client_id, refresh_token,
		       access_token, api_mode, proxy_type, proxy_url, default_folder,
		       last_check_time
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

// ListAccounts returns all accounts, newest first.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, password, mail_type, client_id, refresh_token,
		       access_token, api_mode, proxy_type, proxy_url, default_folder,
		       last_check_time
		FROM accounts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account. Returns false when no row matched.
func (s *Store) DeleteAccount(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateAccessToken persists a freshly acquired access token.
func (s *Store) UpdateAccessToken(ctx context.Context, id int64, accessToken string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET access_token = $1, updated_at = NOW() WHERE id = $2
	`, accessToken, id)
	return err
}

// UpdateAPIMode persists the protocol mode for an account.
func (s *Store) UpdateAPIMode(ctx context.Context, id int64, mode models.APIMode) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET api_mode = $1, updated_at = NOW() WHERE id = $2
	`, string(mode), id)
	return err
}

// UpdateLastCheckTime records the completion time of a check.
func (s *Store) UpdateLastCheckTime(ctx context.Context, id int64, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE accounts SET last_check_time = $1, updated_at = NOW() WHERE id = $2
	`, t.UTC(), id)
	return err
}

// --- Mail records ---

// MailExists reports whether a fetched message is already stored for the
// account. The dedup identity is (email_id, subject, sender, received_time)
// with NULL-safe matching: a NULL received_time only matches other NULL rows.
func (s *Store) MailExists(ctx context.Context, emailID int64, msg *models.FetchedMessage) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM mail_records
		WHERE email_id = $1
		  AND subject = $2
		  AND sender = $3
		  AND received_time IS NOT DISTINCT FROM $4
		LIMIT 1
	`, emailID, msg.Subject, msg.Sender, msg.ReceivedTime).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mail exists query: %w", err)
	}
	return true, nil
}

// InsertMail stores a fetched message and returns the new mail id.
func (s *Store) InsertMail(ctx context.Context, emailID int64, msg *models.FetchedMessage) (int64, error) {
	hasAttachments := 0
	if len(msg.Attachments) > 0 {
		hasAttachments = 1
	}

	var mailID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO mail_records
			(email_id, subject, sender, received_time, content, folder, has_attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, emailID, msg.Subject, msg.Sender, msg.ReceivedTime, msg.Body, msg.Folder, hasAttachments).Scan(&mailID)
	if err != nil {
		return 0, fmt.Errorf("insert mail record: %w", err)
	}
	return mailID, nil
}

// InsertAttachments stores the attachment blobs of a newly inserted mail
// record, in extraction order.
func (s *Store) InsertAttachments(ctx context.Context, mailID int64, blobs []models.AttachmentBlob) error {
	for _, blob := range blobs {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO attachments (mail_id, filename, content_type, size, content)
			VALUES ($1, $2, $3, $4, $5)
		`, mailID, blob.Filename, blob.ContentType, len(blob.Content), blob.Content)
		if err != nil {
			return fmt.Errorf("insert attachment %q: %w", blob.Filename, err)
		}
	}
	return nil
}

// ListMailRecords returns the stored mail for an account, newest first.
func (s *Store) ListMailRecords(ctx context.Context, emailID int64) ([]models.MailRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email_id, subject, sender, received_time, content, folder, has_attachments
		FROM mail_records
		WHERE email_id = $1
		ORDER BY received_time DESC NULLS LAST, id DESC
	`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MailRecord
	for rows.Next() {
		var r models.MailRecord
		var hasAttachments int16
		if err := rows.Scan(&r.ID, &r.EmailID, &r.Subject, &r.Sender,
			&r.ReceivedTime, &r.Content, &r.Folder, &hasAttachments); err != nil {
			return nil, err
		}
		r.HasAttachments = hasAttachments != 0
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListAttachments returns attachment metadata for a mail record.
func (s *Store) ListAttachments(ctx context.Context, mailID int64) ([]models.AttachmentInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mail_id, filename, content_type, size
		FROM attachments
		WHERE mail_id = $1
		ORDER BY id
	`, mailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []models.AttachmentInfo
	for rows.Next() {
		var a models.AttachmentInfo
		if err := rows.Scan(&a.ID, &a.MailID, &a.Filename, &a.ContentType, &a.Size); err != nil {
			return nil, err
		}
		infos = append(infos, a)
	}
	return infos, rows.Err()
}

// AttachmentContent returns the raw bytes of a stored attachment.
// Returns nil when absent.
func (s *Store) AttachmentContent(ctx context.Context, attachmentID int64) (*models.AttachmentInfo, []byte, error) {
	var info models.AttachmentInfo
	var content []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, mail_id, filename, content_type, size, content
		FROM attachments
		WHERE id = $1
	`, attachmentID).Scan(&info.ID, &info.MailID, &info.Filename, &info.ContentType, &info.Size, &content)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &info, content, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var mode string
	err := row.Scan(
		&a.ID, &a.Email, &a.Password, &a.MailType, &a.ClientID, &a.RefreshToken,
		&a.AccessToken, &mode, &a.ProxyType, &a.ProxyURL, &a.DefaultFolder,
		&a.LastCheckTime,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.APIMode = models.ParseAPIMode(mode)
	return &a, nil
}
