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

package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/outboxlabs/mailcheck/internal/models"
)

type fakeStore struct {
	accounts    []models.Account
	records     []models.MailRecord
	attachments []models.AttachmentInfo
	content     []byte

	addedEmail   string
	importInput  string
	deletedID    int64
	deleteResult bool
}

func (f *fakeStore) AddOrUpdateAccount(ctx context.Context, email, password, clientID, refreshToken, mailType string) (int64, error) {
	f.addedEmail = email
	return 42, nil
}

func (f *fakeStore) ImportAccounts(ctx context.Context, input string) (*models.ImportResult, error) {
	f.importInput = input
	return &models.ImportResult{SuccessCount: 2, FailedCount: 1, FailedLines: []string{"line 3: expected 4 fields"}}, nil
}

func (f *fakeStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return f.accounts, nil
}

func (f *fakeStore) DeleteAccount(ctx context.Context, id int64) (bool, error) {
	f.deletedID = id
	return f.deleteResult, nil
}

func (f *fakeStore) ListMailRecords(ctx context.Context, emailID int64) ([]models.MailRecord, error) {
	return f.records, nil
}

func (f *fakeStore) ListAttachments(ctx context.Context, mailID int64) ([]models.AttachmentInfo, error) {
	return f.attachments, nil
}

func (f *fakeStore) AttachmentContent(ctx context.Context, attachmentID int64) (*models.AttachmentInfo, []byte, error) {
	if len(f.attachments) == 0 {
		return nil, nil, nil
	}
	return &f.attachments[0], f.content, nil
}

type fakeChecker struct {
	result  models.CheckResult
	err     error
	gotIDs  []int64
	folders []string
}

func (f *fakeChecker) Check(ctx context.Context, accountID int64, folder string) (models.CheckResult, error) {
	f.gotIDs = append(f.gotIDs, accountID)
	f.folders = append(f.folders, folder)
	if f.err != nil {
		return models.CheckResult{EmailID: accountID}, f.err
	}
	res := f.result
	res.EmailID = accountID
	return res, nil
}

func (f *fakeChecker) CheckMany(ctx context.Context, accountIDs []int64, folder string) models.BatchCheckResult {
	f.gotIDs = append(f.gotIDs, accountIDs...)
	batch := models.BatchCheckResult{}
	for _, id := range accountIDs {
		batch.Results = append(batch.Results, models.CheckResult{EmailID: id, Success: true})
		batch.SuccessCount++
	}
	return batch
}

func newTestServer(store *fakeStore, checker *fakeChecker) *httptest.Server {
	h := NewHandler(store, checker)
	mux := http.NewServeMux()
	h.Routes(mux)
	return httptest.NewServer(mux)
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// TestAddAccount verifies the create flow and required-field validation.
func TestAddAccount(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeChecker{})
	defer srv.Close()

	body := `{"email":"u@outlook.com","password":"pw","client_id":"cid","refresh_token":"rt"}`
	resp, err := http.Post(srv.URL+"/accounts", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	var out map[string]int64
	decode(t, resp, &out)
	if out["id"] != 42 {
		t.Errorf("id = %d, want 42", out["id"])
	}
	if store.addedEmail != "u@outlook.com" {
		t.Errorf("added email = %q, want u@outlook.com", store.addedEmail)
	}

	resp, err = http.Post(srv.URL+"/accounts", "application/json", strings.NewReader(`{"email":"x@y.com"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing fields", resp.StatusCode)
	}
}

// TestDeleteAccount verifies deletion and the 404 on unknown ids.
func TestDeleteAccount(t *testing.T) {
	store := &fakeStore{deleteResult: true}
	srv := newTestServer(store, &fakeChecker{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/accounts/7", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if store.deletedID != 7 {
		t.Errorf("deleted id = %d, want 7", store.deletedID)
	}

	store.deleteResult = false
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/accounts/8", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// TestImportAccounts verifies the bulk import passthrough.
func TestImportAccounts(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeChecker{})
	defer srv.Close()

	data := "a@x.com----pw----cid----rt\nb@x.com----pw----cid----rt"
	body := fmt.Sprintf(`{"data":%q}`, data)
	resp, err := http.Post(srv.URL+"/accounts/import", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var out models.ImportResult
	decode(t, resp, &out)
	if out.SuccessCount != 2 || out.FailedCount != 1 {
		t.Errorf("result = %+v, want 2 success 1 failed", out)
	}
	if store.importInput != data {
		t.Errorf("import input = %q, want raw data passed through", store.importInput)
	}
}

// TestCheckAccount verifies the single-check endpoint including the
// folder query parameter and error-to-result mapping.
func TestCheckAccount(t *testing.T) {
	checker := &fakeChecker{result: models.CheckResult{Success: true, Fetched: 5, Saved: 2, Message: "ok"}}
	srv := newTestServer(&fakeStore{}, checker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/accounts/3/check?folder=Junk", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var out models.CheckResult
	decode(t, resp, &out)
	if !out.Success || out.EmailID != 3 || out.Fetched != 5 {
		t.Errorf("result = %+v, want success for account 3", out)
	}
	if checker.folders[0] != "Junk" {
		t.Errorf("folder = %q, want Junk", checker.folders[0])
	}

	checker.err = fmt.Errorf("acquire token: refresh token rejected")
	resp, err = http.Post(srv.URL+"/accounts/3/check", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with failed result", resp.StatusCode)
	}
	decode(t, resp, &out)
	if out.Success {
		t.Error("result.Success = true, want false")
	}
	if !strings.Contains(out.Message, "check failed") {
		t.Errorf("message = %q, want check failed prefix", out.Message)
	}
}

// TestCheckBatch_DefaultsToAllAccounts verifies an empty id list expands
// to every stored account.
func TestCheckBatch_DefaultsToAllAccounts(t *testing.T) {
	store := &fakeStore{accounts: []models.Account{{ID: 1}, {ID: 2}, {ID: 3}}}
	checker := &fakeChecker{}
	srv := newTestServer(store, checker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/check", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var out models.BatchCheckResult
	decode(t, resp, &out)
	if out.SuccessCount != 3 || len(out.Results) != 3 {
		t.Errorf("batch = %+v, want 3 results", out)
	}
	if len(checker.gotIDs) != 3 {
		t.Errorf("checked ids = %v, want all three accounts", checker.gotIDs)
	}
}

// TestGetAttachment verifies base64 content delivery and the 404 path.
func TestGetAttachment(t *testing.T) {
	store := &fakeStore{
		attachments: []models.AttachmentInfo{{ID: 9, Filename: "doc.pdf", ContentType: "application/pdf", Size: 4}},
		content:     []byte("pdf!"),
	}
	srv := newTestServer(store, &fakeChecker{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/attachments/9")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var out models.AttachmentContent
	decode(t, resp, &out)
	if out.Filename != "doc.pdf" {
		t.Errorf("filename = %q, want doc.pdf", out.Filename)
	}
	if out.ContentBase64 != base64.StdEncoding.EncodeToString([]byte("pdf!")) {
		t.Errorf("content = %q, want base64 of raw bytes", out.ContentBase64)
	}

	empty := &fakeStore{}
	srv2 := newTestServer(empty, &fakeChecker{})
	defer srv2.Close()

	resp, err = http.Get(srv2.URL + "/attachments/9")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// TestHealth verifies the aggregate health check.
func TestHealth(t *testing.T) {
	h := NewHandler(&fakeStore{}, &fakeChecker{})
	h.HealthChecks = map[string]func(context.Context) error{
		"postgres": func(ctx context.Context) error { return nil },
	}
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	h.HealthChecks["redis"] = func(ctx context.Context) error { return fmt.Errorf("down") }
	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

// TestInvalidPathID verifies non-numeric ids get a 400.
func TestInvalidPathID(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeChecker{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/accounts/abc/messages")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
