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

// Package dedup persists fetched messages with skip-on-duplicate
// semantics. A message's identity is the (account, subject, sender,
// received_time) tuple; duplicates are counted as fetched but never
// re-inserted, and their attachments are never re-written.
package dedup

import (
	"context"
	"fmt"

	"github.com/outboxlabs/mailcheck/internal/models"
)

// Store is the persistence contract the saver needs.
type Store interface {
	MailExists(ctx context.Context, emailID int64, msg *models.FetchedMessage) (bool, error)
	InsertMail(ctx context.Context, emailID int64, msg *models.FetchedMessage) (int64, error)
	InsertAttachments(ctx context.Context, mailID int64, blobs []models.AttachmentBlob) error
}

// Saver writes fetched messages through the dedup check.
type Saver struct {
	store Store
}

// NewSaver creates a saver on top of the given store.
func NewSaver(store Store) *Saver {
	return &Saver{store: store}
}

// SaveAll persists every non-duplicate message in order and returns the
// number inserted. A persistence error aborts the remaining messages and
// is returned with the partial count.
func (s *Saver) SaveAll(ctx context.Context, emailID int64, msgs []models.FetchedMessage) (int, error) {
	saved := 0
	for i := range msgs {
		msg := &msgs[i]

		exists, err := s.store.MailExists(ctx, emailID, msg)
		if err != nil {
			return saved, fmt.Errorf("dedup check: %w", err)
		}
		if exists {
			continue
		}

		mailID, err := s.store.InsertMail(ctx, emailID, msg)
		if err != nil {
			return saved, fmt.Errorf("save mail: %w", err)
		}
		if len(msg.Attachments) > 0 {
			if err := s.store.InsertAttachments(ctx, mailID, msg.Attachments); err != nil {
				return saved, fmt.Errorf("save attachments: %w", err)
			}
		}
		saved++
	}
	return saved, nil
}
