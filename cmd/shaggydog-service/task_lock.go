package main

import (
	"context"
	"strconv"
	"strings"
	"time"
)

func activeTaskKey(userID int64) string {
	return activeTaskKeyPrefix + strconv.FormatInt(userID, 10)
}

// hasActiveGeneration reports whether the user's tracked task is still
// pending or running. A tracked task with no state record yet counts as busy.
func (st *appState) hasActiveGeneration(ctx context.Context, userID int64) bool {
	taskID, err := st.redis.Get(ctx, activeTaskKey(userID)).Result()
	if err != nil || strings.TrimSpace(taskID) == "" {
		return false
	}
	rec, ok := getTaskState(ctx, st.redis, taskID)
	if !ok {
		return true
	}
	return rec.Status == "PENDING" || rec.Status == "PROGRESS"
}

func (st *appState) trackActiveGeneration(ctx context.Context, userID int64, taskID string) {
	if err := st.redis.Set(ctx, activeTaskKey(userID), taskID, time.Hour).Err(); err != nil {
		logger.Warn("failed to track active generation", "user_id", userID, "task_id", taskID, "error", err)
	}
}

func (st *appState) clearActiveGeneration(ctx context.Context, userID int64) {
	st.redis.Del(ctx, activeTaskKey(userID))
}
