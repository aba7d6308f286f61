package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func galleryGet(t *testing.T, st *appState, token, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w := httptest.NewRecorder()
	st.requireUser(st.handleGenerations)(w, req)
	return w
}

func TestGenerationsPagination(t *testing.T) {
	st, _, _ := newTestState(t)
	u, token := createTestUser(t, st, "alice")

	for i := 0; i < 25; i++ {
		_, err := st.store.CreatePendingGeneration(u.ID, []byte(fmt.Sprintf("img-%d", i)))
		require.NoError(t, err)
	}

	w := galleryGet(t, st, token, "/api/generations?page=1&per_page=10")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)

	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 10)
	total, _ := intFromAny(body["total_items"])
	assert.Equal(t, 25, total)
	pages, _ := intFromAny(body["total_pages"])
	assert.Equal(t, 3, pages)
	current, _ := intFromAny(body["current_page"])
	assert.Equal(t, 1, current)

	w = galleryGet(t, st, token, "/api/generations?page=3&per_page=10")
	body = decodeBody(t, w)
	items, _ = body["items"].([]any)
	assert.Len(t, items, 5)

	w = galleryGet(t, st, token, "/api/generations?all=1")
	body = decodeBody(t, w)
	items, _ = body["items"].([]any)
	assert.Len(t, items, 25)
	pages, _ = intFromAny(body["total_pages"])
	assert.Equal(t, 1, pages)
}

func TestGenerationsEmpty(t *testing.T) {
	st, _, _ := newTestState(t)
	_, token := createTestUser(t, st, "bob")

	w := galleryGet(t, st, token, "/api/generations")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Empty(t, items)
	pages, _ := intFromAny(body["total_pages"])
	assert.Equal(t, 0, pages)
}

func TestGenerationsImageURLsByStatus(t *testing.T) {
	st, _, _ := newTestState(t)
	u, token := createTestUser(t, st, "carol")

	pendingID, err := st.store.CreatePendingGeneration(u.ID, []byte("p"))
	require.NoError(t, err)
	completeID, err := st.store.CreatePendingGeneration(u.ID, []byte("c"))
	require.NoError(t, err)
	require.NoError(t, st.store.CompleteGeneration(completeID, "Corgi", "r", []byte("1"), []byte("2"), []byte("3")))

	w := galleryGet(t, st, token, "/api/generations")
	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	require.Len(t, items, 2)

	for _, raw := range items {
		item, _ := raw.(map[string]any)
		images, _ := item["images"].(map[string]any)
		id, _ := intFromAny(item["id"])
		switch int64(id) {
		case pendingID:
			assert.Len(t, images, 1)
			assert.Contains(t, images, "original")
		case completeID:
			assert.Len(t, images, 4)
			assert.Equal(t, fmt.Sprintf("/api/images/%d/final", completeID), images["final"])
		default:
			t.Fatalf("unexpected generation id %d", id)
		}
	}
}

func TestGenerationsScopedToUser(t *testing.T) {
	st, _, _ := newTestState(t)
	owner, _ := createTestUser(t, st, "owner")
	_, otherToken := createTestUser(t, st, "other")

	_, err := st.store.CreatePendingGeneration(owner.ID, []byte("x"))
	require.NoError(t, err)

	w := galleryGet(t, st, otherToken, "/api/generations")
	body := decodeBody(t, w)
	items, _ := body["items"].([]any)
	assert.Empty(t, items)
}

func TestDeleteGenerationEndpoint(t *testing.T) {
	st, _, _ := newTestState(t)
	u, token := createTestUser(t, st, "dave")
	_, intruderToken := createTestUser(t, st, "intruder")

	genID, err := st.store.CreatePendingGeneration(u.ID, []byte("x"))
	require.NoError(t, err)

	del := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/generations/%d", genID), nil)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
		w := httptest.NewRecorder()
		st.requireUser(st.handleGenerationsSubroutes)(w, req)
		return w
	}

	w := del(intruderToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = del(token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])

	w = del(token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func imageGet(t *testing.T, st *appState, token, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	w := httptest.NewRecorder()
	st.requireUser(st.handleImages)(w, req)
	return w
}

func TestImageServing(t *testing.T) {
	st, _, _ := newTestState(t)
	u, token := createTestUser(t, st, "erin")

	pngBytes := append([]byte("\x89PNG\r\n\x1a\n"), []byte("payload")...)
	genID, err := st.store.CreatePendingGeneration(u.ID, pngBytes)
	require.NoError(t, err)

	w := imageGet(t, st, token, fmt.Sprintf("/api/images/%d/original", genID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, w.Body.Bytes())
}

func TestImageServingNotGeneratedYet(t *testing.T) {
	st, _, _ := newTestState(t)
	u, token := createTestUser(t, st, "frank")
	genID, err := st.store.CreatePendingGeneration(u.ID, []byte("x"))
	require.NoError(t, err)

	w := imageGet(t, st, token, fmt.Sprintf("/api/images/%d/final", genID))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Image not generated yet", decodeBody(t, w)["error"])
}

func TestImageServingInvalidType(t *testing.T) {
	st, _, _ := newTestState(t)
	u, token := createTestUser(t, st, "gail")
	genID, err := st.store.CreatePendingGeneration(u.ID, []byte("x"))
	require.NoError(t, err)

	w := imageGet(t, st, token, fmt.Sprintf("/api/images/%d/thumbnail", genID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid image type", decodeBody(t, w)["error"])
}

func TestImageServingForbiddenForOtherUser(t *testing.T) {
	st, _, _ := newTestState(t)
	owner, _ := createTestUser(t, st, "owner2")
	_, intruderToken := createTestUser(t, st, "intruder2")

	genID, err := st.store.CreatePendingGeneration(owner.ID, []byte("secret"))
	require.NoError(t, err)

	w := imageGet(t, st, intruderToken, fmt.Sprintf("/api/images/%d/original", genID))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestImageServingMissingGeneration(t *testing.T) {
	st, _, _ := newTestState(t)
	_, token := createTestUser(t, st, "henry")

	w := imageGet(t, st, token, "/api/images/999/original")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Generation not found", decodeBody(t, w)["error"])
}
