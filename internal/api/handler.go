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

// Package api exposes the mailcheck HTTP surface: account management,
// bulk import, single and batch mail checks, and browsing of stored
// mail and attachments.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/outboxlabs/mailcheck/internal/models"
)

// Store is the persistence surface the API needs.
type Store interface {
	AddOrUpdateAccount(ctx context.Context, email, password, clientID, refreshToken, mailType string) (int64, error)
	ImportAccounts(ctx context.Context, input string) (*models.ImportResult, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	DeleteAccount(ctx context.Context, id int64) (bool, error)
	ListMailRecords(ctx context.Context, emailID int64) ([]models.MailRecord, error)
	ListAttachments(ctx context.Context, mailID int64) ([]models.AttachmentInfo, error)
	AttachmentContent(ctx context.Context, attachmentID int64) (*models.AttachmentInfo, []byte, error)
}

// Checker runs mail checks.
type Checker interface {
	Check(ctx context.Context, accountID int64, folder string) (models.CheckResult, error)
	CheckMany(ctx context.Context, accountIDs []int64, folder string) models.BatchCheckResult
}

// Handler serves the mailcheck REST endpoints.
type Handler struct {
	store   Store
	checker Checker

	// HealthChecks are pinged by /health; any failure reports unhealthy.
	HealthChecks map[string]func(context.Context) error
}

// NewHandler creates the API handler.
func NewHandler(store Store, checker Checker) *Handler {
	return &Handler{
		store:   store,
		checker: checker,
	}
}

// Routes registers all endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /accounts", h.addAccount)
	mux.HandleFunc("GET /accounts", h.listAccounts)
	mux.HandleFunc("DELETE /accounts/{id}", h.deleteAccount)
	mux.HandleFunc("POST /accounts/import", h.importAccounts)
	mux.HandleFunc("POST /accounts/{id}/check", h.checkAccount)
	mux.HandleFunc("POST /check", h.checkBatch)
	mux.HandleFunc("GET /accounts/{id}/messages", h.listMessages)
	mux.HandleFunc("GET /messages/{id}/attachments", h.listAttachments)
	mux.HandleFunc("GET /attachments/{id}", h.getAttachment)
	mux.HandleFunc("GET /health", h.health)
}

type addAccountRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
	MailType     string `json:"mail_type"`
}

func (h *Handler) addAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.ClientID == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "email, client_id and refresh_token are required")
		return
	}
	if req.MailType == "" {
		req.MailType = "outlook"
	}

	id, err := h.store.AddOrUpdateAccount(r.Context(), req.Email, req.Password, req.ClientID, req.RefreshToken, req.MailType)
	if err != nil {
		slog.Error("add account failed", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		slog.Error("list accounts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	deleted, err := h.store.DeleteAccount(r.Context(), id)
	if err != nil {
		slog.Error("delete account failed", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, fmt.Sprintf("account %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importRequest struct {
	Data string `json:"data"`
}

// importAccounts bulk-imports accounts from "----"-separated lines:
// email----password----client_id----refresh_token, one account per line.
func (h *Handler) importAccounts(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Data == "" {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	result, err := h.store.ImportAccounts(r.Context(), req.Data)
	if err != nil {
		slog.Error("import accounts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	slog.Info("accounts imported",
		"success", result.SuccessCount,
		"failed", result.FailedCount,
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) checkAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	folder := r.URL.Query().Get("folder")

	result, err := h.checker.Check(r.Context(), id, folder)
	if err != nil {
		slog.Error("account check failed", "account_id", id, "error", err)
		result.Success = false
		result.Message = fmt.Sprintf("check failed: %v", err)
	}
	writeJSON(w, http.StatusOK, result)
}

type batchCheckRequest struct {
	AccountIDs []int64 `json:"account_ids"`
	Folder     string  `json:"folder"`
}

// checkBatch runs a sequential check over the given accounts, or over
// every stored account when account_ids is empty.
func (h *Handler) checkBatch(w http.ResponseWriter, r *http.Request) {
	var req batchCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ids := req.AccountIDs
	if len(ids) == 0 {
		accounts, err := h.store.ListAccounts(r.Context())
		if err != nil {
			slog.Error("list accounts for batch check failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list accounts")
			return
		}
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
	}

	batch := h.checker.CheckMany(r.Context(), ids, req.Folder)
	if batch.Results == nil {
		batch.Results = []models.CheckResult{}
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	records, err := h.store.ListMailRecords(r.Context(), id)
	if err != nil {
		slog.Error("list messages failed", "account_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if records == nil {
		records = []models.MailRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) listAttachments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	atts, err := h.store.ListAttachments(r.Context(), id)
	if err != nil {
		slog.Error("list attachments failed", "mail_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list attachments")
		return
	}
	if atts == nil {
		atts = []models.AttachmentInfo{}
	}
	writeJSON(w, http.StatusOK, atts)
}

func (h *Handler) getAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	info, content, err := h.store.AttachmentContent(r.Context(), id)
	if err != nil {
		slog.Error("fetch attachment failed", "attachment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch attachment")
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("attachment %d not found", id))
		return
	}

	writeJSON(w, http.StatusOK, models.AttachmentContent{
		ID:            info.ID,
		Filename:      info.Filename,
		ContentType:   info.ContentType,
		ContentBase64: base64.StdEncoding.EncodeToString(content),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.HealthChecks {
		if err := check(r.Context()); err != nil {
			http.Error(w, name+" unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
