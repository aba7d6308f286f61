package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlashReadOnce(t *testing.T) {
	st, _, _ := newTestState(t)
	ctx := context.Background()

	st.pushFlash(ctx, "tok", "info", "first")
	st.pushFlash(ctx, "tok", "success", "second")

	messages := st.popFlashes(ctx, "tok")
	require.Len(t, messages, 2)
	assert.Equal(t, flashMessage{Level: "info", Message: "first"}, messages[0])
	assert.Equal(t, flashMessage{Level: "success", Message: "second"}, messages[1])

	// Drained on read.
	assert.Empty(t, st.popFlashes(ctx, "tok"))
}

func TestFlashScopedToSession(t *testing.T) {
	st, _, _ := newTestState(t)
	ctx := context.Background()

	st.pushFlash(ctx, "tok-a", "info", "for a")
	assert.Empty(t, st.popFlashes(ctx, "tok-b"))
	assert.Len(t, st.popFlashes(ctx, "tok-a"), 1)
}

func TestHandleFlash(t *testing.T) {
	st, _, _ := newTestState(t)
	st.pushFlash(context.Background(), "tok", "info", "hello")

	req := httptest.NewRequest(http.MethodGet, "/api/flash", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	st.handleFlash(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)

	// No cookie means no messages, not an error.
	w = httptest.NewRecorder()
	st.handleFlash(w, httptest.NewRequest(http.MethodGet, "/api/flash", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
