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

// Package mailbox implements the IMAP retrieval path: TLS connection to
// the provider's fixed mailbox host, XOAUTH2 authentication, folder
// select, date-bounded search, and raw message fetch. Fetching is
// blocking, synchronous network I/O.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/outboxlabs/mailcheck/internal/mailparse"
	"github.com/outboxlabs/mailcheck/internal/models"
)

// Client fetches messages over IMAP.
type Client struct {
	addr        string
	dialTimeout time.Duration
	limit       int
}

// NewClient creates an IMAP client for the given host:port. At most limit
// messages (the newest) are fetched per call.
func NewClient(addr string, dialTimeout time.Duration, limit int) *Client {
	return &Client{
		addr:        addr,
		dialTimeout: dialTimeout,
		limit:       limit,
	}
}

// Fetch opens a session, searches the folder for messages received since
// the given time (all messages when nil), and returns the parsed results.
// Messages that fail to parse are skipped rather than aborting the fetch.
//
// Authentication failures are wrapped so their message contains
// "authenticate"; the orchestrator's fallback check relies on that.
func (c *Client) Fetch(ctx context.Context, email, accessToken, folder string, since *time.Time) ([]models.FetchedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := client.DialWithDialerTLS(dialer, c.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}

	defer func() { _ = conn.Logout() }()

	if err := conn.Authenticate(newXoauth2Client(email, accessToken)); err != nil {
		return nil, fmt.Errorf("imap authenticate: %w", err)
	}

	mbox, err := conn.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("select folder %q: %w", folder, err)
	}

	ids, err := searchIDs(conn, mbox, since)
	if err != nil {
		return nil, err
	}
	ids = truncateNewest(ids, c.limit)
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, items, messages)
	}()

	var out []models.FetchedMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		parsed, err := mailparse.Extract(body)
		if err != nil {
			slog.Debug("skipping unparseable message",
				"folder", folder,
				"seq", msg.SeqNum,
				"error", err,
			)
			continue
		}
		parsed.Folder = folder
		out = append(out, *parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	return out, nil
}

// searchIDs returns the sequence numbers matching the since bound. The
// SINCE criterion is day-granular on the wire; without a bound every
// message in the folder matches.
func searchIDs(conn *client.Client, mbox *imap.MailboxStatus, since *time.Time) ([]uint32, error) {
	if since == nil {
		ids := make([]uint32, 0, mbox.Messages)
		for i := uint32(1); i <= mbox.Messages; i++ {
			ids = append(ids, i)
		}
		return ids, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = *since
	ids, err := conn.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search since %s: %w", since.Format("02-Jan-2006"), err)
	}
	return ids, nil
}

// truncateNewest sorts ids ascending and keeps only the highest max of them.
func truncateNewest(ids []uint32, max int) []uint32 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	return ids
}
