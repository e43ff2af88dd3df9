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

// Package graphapi retrieves mail through the Microsoft Graph REST API.
// The orchestrator treats every failure here as recoverable by falling
// back to IMAP, so errors carry context but no classification.
package graphapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/outboxlabs/mailcheck/internal/models"
)

// Client talks to the Graph API mail endpoints.
type Client struct {
	baseURL string
}

// NewClient creates a Graph mail client rooted at the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/")}
}

// graphMessage represents the relevant fields of a Graph message resource.
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	HasAttachments bool `json:"hasAttachments"`
}

// graphAttachment represents a fileAttachment resource.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// Fetch retrieves up to limit most-recent messages from the folder,
// pulling attachment bytes for messages that carry them. The base client
// (proxy-aware, bounded timeout) is wrapped with the bearer token.
func (c *Client) Fetch(ctx context.Context, accessToken, folder string, limit int, base *http.Client) ([]models.FetchedMessage, error) {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	listURL := fmt.Sprintf("%s/me/mailFolders/%s/messages?$top=%d&$orderby=receivedDateTime%%20desc&$select=id,subject,from,receivedDateTime,body,hasAttachments",
		c.baseURL, url.PathEscape(folderID(folder)), limit)

	var list struct {
		Value []graphMessage `json:"value"`
	}
	if err := c.getJSON(ctx, hc, listURL, &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]models.FetchedMessage, 0, len(list.Value))
	for _, gm := range list.Value {
		msg := models.FetchedMessage{
			Subject:      gm.Subject,
			Sender:       gm.From.EmailAddress.Address,
			ReceivedTime: parseGraphTime(gm.ReceivedDateTime),
			Body:         gm.Body.Content,
			Folder:       folder,
		}

		if gm.HasAttachments {
			blobs, err := c.fetchAttachments(ctx, hc, gm.ID)
			if err != nil {
				return nil, fmt.Errorf("fetch attachments for %s: %w", gm.ID, err)
			}
			msg.Attachments = blobs
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

// fetchAttachments pulls the file attachments of a single message.
// Non-file attachment types (item, reference) carry no bytes and are skipped.
func (c *Client) fetchAttachments(ctx context.Context, hc *http.Client, messageID string) ([]models.AttachmentBlob, error) {
	u := fmt.Sprintf("%s/me/messages/%s/attachments", c.baseURL, url.PathEscape(messageID))

	var list struct {
		Value []graphAttachment `json:"value"`
	}
	if err := c.getJSON(ctx, hc, u, &list); err != nil {
		return nil, err
	}

	var blobs []models.AttachmentBlob
	for _, att := range list.Value {
		if att.ContentBytes == "" {
			continue
		}
		content, err := base64.StdEncoding.DecodeString(att.ContentBytes)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %q: %w", att.Name, err)
		}
		name := att.Name
		if name == "" {
			name = "attachment"
		}
		blobs = append(blobs, models.AttachmentBlob{
			Filename:    name,
			ContentType: att.ContentType,
			Content:     content,
		})
	}
	return blobs, nil
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph API returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// folderID maps a display folder name onto a Graph well-known folder id.
// Graph accepts well-known names in lowercase; anything else passes through.
func folderID(folder string) string {
	switch strings.ToLower(folder) {
	case "", "inbox":
		return "inbox"
	case "junk", "junkemail", "junk email":
		return "junkemail"
	case "sent", "sentitems", "sent items":
		return "sentitems"
	case "drafts":
		return "drafts"
	case "archive":
		return "archive"
	case "deleteditems", "deleted items", "trash":
		return "deleteditems"
	default:
		return folder
	}
}

// parseGraphTime parses a Graph receivedDateTime; failures degrade to nil.
func parseGraphTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
