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

// Package models defines the data structures shared across the mailcheck service.
package models

import "time"

// APIMode selects the retrieval protocol for an account.
type APIMode string

const (
	// ModeAuto lets the token refresh decide between Graph and IMAP.
	ModeAuto APIMode = "auto"
	// ModeIMAP forces the IMAP mailbox protocol.
	ModeIMAP APIMode = "imap"
	// ModeGraph forces the Graph REST API.
	ModeGraph APIMode = "graph"
)

// ParseAPIMode maps a persisted mode string onto an APIMode.
// Unknown or empty values fall back to auto.
func ParseAPIMode(s string) APIMode {
	switch s {
	case string(ModeGraph):
		return ModeGraph
	case string(ModeIMAP):
		return ModeIMAP
	default:
		return ModeAuto
	}
}

// Account is a stored mailbox account and its protocol credentials.
type Account struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Password      string     `json:"password"`
	MailType      string     `json:"mail_type"`
	ClientID      string     `json:"client_id"`
	RefreshToken  string     `json:"refresh_token"`
	AccessToken   string     `json:"access_token,omitempty"`
	APIMode       APIMode    `json:"api_mode"`
	ProxyType     string     `json:"proxy_type,omitempty"`
	ProxyURL      string     `json:"proxy_url,omitempty"`
	DefaultFolder string     `json:"default_folder,omitempty"`
	LastCheckTime *time.Time `json:"last_check_time,omitempty"`
}

// AttachmentBlob is an attachment extracted from a fetched message,
// not yet persisted.
type AttachmentBlob struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FetchedMessage is a normalized message produced by either retrieval
// protocol. ReceivedTime is nil when the Date header is absent or
// unparseable.
type FetchedMessage struct {
	Subject      string
	Sender       string
	ReceivedTime *time.Time
	Body         string
	Folder       string
	Attachments  []AttachmentBlob
}

// MailRecord is a persisted message row.
type MailRecord struct {
	ID             int64      `json:"id"`
	EmailID        int64      `json:"email_id"`
	Subject        string     `json:"subject"`
	Sender         string     `json:"sender"`
	ReceivedTime   *time.Time `json:"received_time,omitempty"`
	Content        string     `json:"content"`
	Folder         string     `json:"folder"`
	HasAttachments bool       `json:"has_attachments"`
}

// AttachmentInfo is attachment metadata without the raw bytes.
type AttachmentInfo struct {
	ID          int64  `json:"id"`
	MailID      int64  `json:"mail_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// AttachmentContent carries the raw bytes of a single stored attachment,
// base64-encoded for transport.
type AttachmentContent struct {
	ID            int64  `json:"id"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ContentBase64 string `json:"content_base64"`
}

// CheckResult is the outcome of a single account check.
type CheckResult struct {
	EmailID int64  `json:"email_id"`
	Success bool   `json:"success"`
	Fetched int    `json:"fetched"`
	Saved   int    `json:"saved"`
	Message string `json:"message"`
}

// BatchCheckResult aggregates per-account results of a batch check.
type BatchCheckResult struct {
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	Results      []CheckResult `json:"results"`
}

// ImportResult reports the outcome of a bulk account import.
type ImportResult struct {
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	FailedLines  []string `json:"failed_lines"`
}
