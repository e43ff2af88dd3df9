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

// Package mailparse turns a raw RFC 822 message stream into a normalized
// body plus attachment blobs. The body prefers the first text/plain leaf,
// falling back to the first text/html leaf, then to empty.
package mailparse

import (
	"io"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/outboxlabs/mailcheck/internal/models"
)

// defaultAttachmentName is used for attachment parts that declare no filename.
const defaultAttachmentName = "attachment"

// partContent is the result of walking one subtree of the MIME part tree.
// Plain and HTML hold at most one candidate each; the first leaf of a given
// type wins and later ones are ignored.
type partContent struct {
	plain       *string
	html        *string
	attachments []models.AttachmentBlob
}

// Extract parses a raw message into a FetchedMessage. The caller sets the
// Folder field. A Date header that fails to parse degrades to a nil
// ReceivedTime rather than an error.
func Extract(r io.Reader) (*models.FetchedMessage, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}

	msg := &models.FetchedMessage{
		Subject:      entity.Header.Get("Subject"),
		Sender:       entity.Header.Get("From"),
		ReceivedTime: parseReceivedTime(entity.Header),
	}

	content := walk(entity)
	switch {
	case content.plain != nil:
		msg.Body = *content.plain
	case content.html != nil:
		msg.Body = *content.html
	}
	msg.Attachments = content.attachments

	return msg, nil
}

// parseReceivedTime parses the Date header with internet-message date
// parsing. Any failure yields nil.
func parseReceivedTime(h message.Header) *time.Time {
	mh := mail.Header{Header: h}
	t, err := mh.Date()
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// walk traverses the MIME part tree depth first. A part with children is
// never itself a body or attachment leaf; nesting is recursed uniformly at
// every depth.
func walk(entity *message.Entity) partContent {
	mr := entity.MultipartReader()
	if mr == nil {
		return classifyLeaf(entity)
	}

	var content partContent
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// Malformed child part; keep what was extracted so far.
			break
		}
		content = content.merge(walk(part))
	}
	return content
}

// classifyLeaf inspects a leaf part. A leaf is an attachment when its
// disposition says so or when it carries a filename, from either the
// disposition params or the content-type name param; attachment leaves are
// never body candidates.
func classifyLeaf(entity *message.Entity) partContent {
	mediaType, typeParams, _ := entity.Header.ContentType()
	disposition, dispParams, _ := entity.Header.ContentDisposition()

	filename := dispParams["filename"]
	if filename == "" {
		filename = typeParams["name"]
	}

	body, _ := io.ReadAll(entity.Body)

	if disposition == "attachment" || filename != "" {
		if filename == "" {
			filename = defaultAttachmentName
		}
		return partContent{attachments: []models.AttachmentBlob{{
			Filename:    filename,
			ContentType: mediaType,
			Content:     body,
		}}}
	}

	text := string(body)
	switch mediaType {
	case "text/plain":
		return partContent{plain: &text}
	case "text/html":
		return partContent{html: &text}
	}
	return partContent{}
}

// merge combines a subtree result into the running result, preserving
// first-wins semantics for body candidates and extraction order for
// attachments.
func (c partContent) merge(other partContent) partContent {
	if c.plain == nil {
		c.plain = other.plain
	}
	if c.html == nil {
		c.html = other.html
	}
	c.attachments = append(c.attachments, other.attachments...)
	return c
}
