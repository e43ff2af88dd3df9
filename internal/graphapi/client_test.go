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

package graphapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestFetch verifies the list request shape, bearer auth, field mapping,
// and the attachment round trip.
func TestFetch(t *testing.T) {
	attachmentBytes := []byte("pdf-content-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasPrefix(r.URL.Path, "/me/mailFolders/inbox/messages"):
			if got := r.URL.Query().Get("$top"); got != "50" {
				t.Errorf("$top = %q, want 50", got)
			}
			fmt.Fprint(w, `{"value":[
				{"id":"m1","subject":"first","from":{"emailAddress":{"address":"a@x.com","name":"A"}},
				 "receivedDateTime":"2026-08-01T10:00:00Z",
				 "body":{"contentType":"text","content":"hello"},"hasAttachments":false},
				{"id":"m2","subject":"second","from":{"emailAddress":{"address":"b@x.com"}},
				 "receivedDateTime":"2026-08-02T11:30:00Z",
				 "body":{"contentType":"html","content":"<p>hi</p>"},"hasAttachments":true}
			]}`)
		case r.URL.Path == "/me/messages/m2/attachments":
			fmt.Fprintf(w, `{"value":[
				{"@odata.type":"#microsoft.graph.fileAttachment","name":"doc.pdf",
				 "contentType":"application/pdf","contentBytes":%q},
				{"@odata.type":"#microsoft.graph.itemAttachment","name":"nested","contentType":"","contentBytes":""}
			]}`, base64.StdEncoding.EncodeToString(attachmentBytes))
		default:
			t.Errorf("unexpected request path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.Fetch(context.Background(), "test-token", "INBOX", 50, srv.Client())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}

	first := msgs[0]
	if first.Subject != "first" || first.Sender != "a@x.com" {
		t.Errorf("first = %q from %q, want first from a@x.com", first.Subject, first.Sender)
	}
	if first.Body != "hello" {
		t.Errorf("body = %q, want hello", first.Body)
	}
	if first.Folder != "INBOX" {
		t.Errorf("folder = %q, want INBOX", first.Folder)
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if first.ReceivedTime == nil || !first.ReceivedTime.Equal(want) {
		t.Errorf("received time = %v, want %v", first.ReceivedTime, want)
	}
	if len(first.Attachments) != 0 {
		t.Errorf("first attachments = %d, want 0", len(first.Attachments))
	}

	second := msgs[1]
	if len(second.Attachments) != 1 {
		t.Fatalf("second attachments = %d, want 1 (byteless types skipped)", len(second.Attachments))
	}
	att := second.Attachments[0]
	if att.Filename != "doc.pdf" || att.ContentType != "application/pdf" {
		t.Errorf("attachment = %q (%q), want doc.pdf (application/pdf)", att.Filename, att.ContentType)
	}
	if string(att.Content) != string(attachmentBytes) {
		t.Errorf("attachment content = %q, want decoded bytes", att.Content)
	}
}

// TestFetch_HTTPError verifies non-200 responses surface with the status code.
func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":"ErrorAccessDenied"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Fetch(context.Background(), "tok", "INBOX", 10, srv.Client())
	if err == nil {
		t.Fatal("expected error, got none")
	}
	if !strings.Contains(err.Error(), "HTTP 403") {
		t.Errorf("error = %q, want HTTP 403 included", err)
	}
}

// TestFolderID exercises the well-known folder mapping.
func TestFolderID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "inbox"},
		{"INBOX", "inbox"},
		{"Junk", "junkemail"},
		{"junk email", "junkemail"},
		{"Sent Items", "sentitems"},
		{"Drafts", "drafts"},
		{"Archive", "archive"},
		{"Trash", "deleteditems"},
		{"Custom Folder", "Custom Folder"},
	}

	for _, tt := range tests {
		if got := folderID(tt.in); got != tt.want {
			t.Errorf("folderID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestParseGraphTime verifies failures degrade to nil.
func TestParseGraphTime(t *testing.T) {
	if got := parseGraphTime("2026-08-01T10:00:00Z"); got == nil {
		t.Error("valid timestamp parsed to nil")
	}
	if got := parseGraphTime("not-a-time"); got != nil {
		t.Errorf("invalid timestamp = %v, want nil", got)
	}
	if got := parseGraphTime(""); got != nil {
		t.Errorf("empty timestamp = %v, want nil", got)
	}
}
