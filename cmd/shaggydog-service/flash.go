package main

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// pushFlash queues a read-once notice for the session. Losing a notice on a
// redis hiccup is acceptable; flashes are advisory.
func (st *appState) pushFlash(ctx context.Context, token, level, message string) {
	if token == "" {
		return
	}
	key := flashPrefix + token
	if err := st.redis.RPush(ctx, key, level+"\t"+message).Err(); err != nil {
		logger.Warn("failed to push flash", "error", err)
		return
	}
	st.redis.Expire(ctx, key, time.Hour)
}

// popFlashes drains all pending notices for the session.
func (st *appState) popFlashes(ctx context.Context, token string) []flashMessage {
	messages := make([]flashMessage, 0)
	if token == "" {
		return messages
	}
	key := flashPrefix + token
	raw, err := st.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return messages
	}
	st.redis.Del(ctx, key)
	for _, entry := range raw {
		level, message, found := strings.Cut(entry, "\t")
		if !found {
			level, message = "info", entry
		}
		messages = append(messages, flashMessage{Level: level, Message: message})
	}
	return messages
}

func (st *appState) handleFlash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := ""
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		token = strings.TrimSpace(cookie.Value)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": st.popFlashes(r.Context(), token),
	})
}
