// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"photostore/internal/catalog"
)

// ItemUpload accepts a multipart file for a category. The item is stored
// locally and answered with 202 while its transfer runs in the background.
func (a *API) ItemUpload(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	// Limit request body to maxUploadSize + some overhead for form fields.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "no file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		writeError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	var ts *time.Time
	if v := strings.TrimSpace(r.FormValue("original_timestamp")); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "original_timestamp must be RFC 3339", http.StatusBadRequest)
			return
		}
		ts = &parsed
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	item, err := a.catalog.Upload(r.Context(), catalog.UploadInput{
		CategoryID:        categoryID,
		Filename:          header.Filename,
		Name:              r.FormValue("name"),
		Data:              data,
		OriginalTimestamp: ts,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

// ItemImport registers a file that already lives in remote storage.
func (a *API) ItemImport(w http.ResponseWriter, r *http.Request) {
	var in catalog.ImportInput
	if !decodeJSON(w, r, &in) {
		return
	}
	item, err := a.catalog.Import(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ItemShow returns a single item.
func (a *API) ItemShow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := a.items.FindByID(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if item == nil {
		writeError(w, "item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ItemMove reassigns an item to another category.
func (a *API) ItemMove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		CategoryID uuid.UUID `json:"category_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	item, err := a.catalog.MoveItem(r.Context(), id, in.CategoryID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ItemDelete removes an item.
func (a *API) ItemDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.catalog.DeleteItem(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
