// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"log/slog"
	"net/http"

	"photostore/internal/catalog"
	"photostore/internal/models"
)

// AccountsList returns every storage account. Credentials are never
// serialised.
func (a *API) AccountsList(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.accounts.List(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []models.StorageAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// AccountCreate registers a storage account and queues its first refresh.
// The periodic refresh covers an account whose first refresh could not be
// queued.
func (a *API) AccountCreate(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewAccount
	if !decodeJSON(w, r, &in) {
		return
	}
	account, err := a.catalog.RegisterAccount(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.refresh.EnqueueOne(account.ID, account.Login); err != nil {
		slog.Warn("initial capacity refresh not queued", "account", account.Login, "error", err)
	}
	writeJSON(w, http.StatusCreated, account)
}

// AccountRefresh queues a capacity refresh for one account.
func (a *API) AccountRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	account, err := a.accounts.FindByID(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if account == nil {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	if err := a.refresh.EnqueueOne(account.ID, account.Login); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh queued"})
}
