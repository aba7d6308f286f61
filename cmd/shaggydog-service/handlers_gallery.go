package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

func (st *appState) handleGenerations(w http.ResponseWriter, r *http.Request, u *User) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	perPage := parsePositiveInt(r.URL.Query().Get("per_page"), 20)
	offset := (page - 1) * perPage
	allItems := parseBoolParam(r.URL.Query().Get("all"))

	generations, err := st.store.ListGenerations(u.ID)
	if err != nil {
		logger.Error("failed to list generations", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	totalItems := len(generations)
	pageItems := generations
	if !allItems {
		start, end := pageBounds(offset, perPage, totalItems)
		pageItems = generations[start:end]
	}

	items := make([]any, 0, len(pageItems))
	for _, g := range pageItems {
		items = append(items, map[string]any{
			"id":         g.ID,
			"breed":      g.DetectedBreed,
			"status":     g.Status,
			"created_at": g.CreatedAt,
			"images":     generationImageURLs(g),
		})
	}

	respPerPage := perPage
	respCurrentPage := page
	respTotalPages := totalPages(totalItems, perPage)
	if allItems {
		respPerPage = totalItems
		respCurrentPage = 1
		if totalItems == 0 {
			respTotalPages = 0
		} else {
			respTotalPages = 1
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":        items,
		"total_items":  totalItems,
		"per_page":     respPerPage,
		"current_page": respCurrentPage,
		"total_pages":  respTotalPages,
	})
}

// generationImageURLs lists the deferred image sources a client should fetch
// on demand. Pending rows expose only the original upload.
func generationImageURLs(g GenerationSummary) map[string]string {
	urls := map[string]string{
		"original": fmt.Sprintf("/api/images/%d/original", g.ID),
	}
	if g.Status == genStatusComplete {
		urls["transition1"] = fmt.Sprintf("/api/images/%d/transition1", g.ID)
		urls["transition2"] = fmt.Sprintf("/api/images/%d/transition2", g.ID)
		urls["final"] = fmt.Sprintf("/api/images/%d/final", g.ID)
	}
	return urls
}

func (st *appState) handleGenerationsSubroutes(w http.ResponseWriter, r *http.Request, u *User) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/generations/"), "/")
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodDelete:
		st.deleteGeneration(w, r, u, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (st *appState) deleteGeneration(w http.ResponseWriter, r *http.Request, u *User, id int64) {
	deleted, err := st.store.DeleteGeneration(id, u.ID)
	if err != nil {
		logger.Error("failed to delete generation", "generation_id", id, "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Generation not found")
		return
	}
	logger.Info("generation deleted", "generation_id", id, "user_id", u.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (st *appState) handleImages(w http.ResponseWriter, r *http.Request, u *User) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/images/"), "/")
	idPart, imageType, found := strings.Cut(rest, "/")
	if !found || strings.Contains(imageType, "/") {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	if _, ok := generationImageColumns[imageType]; !ok {
		writeError(w, http.StatusBadRequest, "Invalid image type")
		return
	}

	ownerID, data, err := st.store.GetGenerationImage(id, imageType)
	if err != nil {
		if errors.Is(err, errNotFound) {
			writeError(w, http.StatusNotFound, "Generation not found")
			return
		}
		logger.Error("failed to load image", "generation_id", id, "image_type", imageType, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if ownerID != u.ID {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "Image not generated yet")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}
