package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func (st *appState) handleUpload(w http.ResponseWriter, r *http.Request, u *User) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	if st.hasActiveGeneration(ctx, u.ID) {
		writeError(w, http.StatusConflict, "A generation is already in progress. Please wait for it to finish.")
		return
	}

	// Multipart framing adds overhead beyond the image itself, so the body
	// limit leaves headroom and the exact size check happens on the part.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+512*1024)
	if err := r.ParseMultipartForm(maxUploadSize + 512*1024); err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !allowedImageName(header.Filename) {
		writeError(w, http.StatusBadRequest, "Invalid file type. Allowed: PNG, JPG, JPEG, GIF, WEBP")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	if !sizeWithinLimit(int64(len(data))) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size: %.1fMB", float64(maxUploadSize)/(1024*1024)))
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !allowedImageMIME(uploadContentType(header.Header.Get("Content-Type"), data)) {
		writeError(w, http.StatusBadRequest, "Invalid file type. Allowed: PNG, JPG, JPEG, GIF, WEBP")
		return
	}

	generationID, err := st.store.CreatePendingGeneration(u.ID, data)
	if err != nil {
		logger.Error("failed to create pending generation", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Error processing image")
		return
	}

	taskID := uuid.NewString()
	payload := generateTaskPayload{TaskID: taskID, GenerationID: generationID, UserID: u.ID}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(taskTypeGeneratePortraits, b)

	_, err = st.asynqCli.Enqueue(task,
		asynq.Queue(st.cfg.queueName),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
		asynq.Timeout(15*time.Minute),
	)
	if err != nil {
		logger.Error("failed to enqueue generation task",
			"task_type", taskTypeGeneratePortraits,
			"task_id", taskID,
			"generation_id", generationID,
			"user_id", u.ID,
			"error", err,
		)
		_ = st.store.DeletePendingGeneration(generationID)
		writeError(w, http.StatusInternalServerError, "Failed to queue generation")
		return
	}

	setTaskState(ctx, st.redis, taskID, "PENDING", map[string]any{"status": "Queued"})
	st.trackActiveGeneration(ctx, u.ID, taskID)
	if cookie, cerr := r.Cookie(sessionCookieName); cerr == nil {
		st.pushFlash(ctx, cookie.Value, "info", "Your portrait generation has started.")
	}

	logger.Info("generation task queued", "task_id", taskID, "generation_id", generationID, "user_id", u.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":       true,
		"task_id":       taskID,
		"generation_id": generationID,
	})
}

func (st *appState) handleTaskStatus(w http.ResponseWriter, r *http.Request, u *User) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("id"))
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	rec, ok := getTaskState(r.Context(), st.redis, taskID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "state": "PENDING", "message": "Queued or running"})
		return
	}
	resultMap, _ := rec.Result.(map[string]any)
	message := "Running"
	if s, ok := stringFromAny(resultMap["message"]); ok && s != "" {
		message = s
	} else if s, ok := stringFromAny(resultMap["status"]); ok && s != "" {
		message = s
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"state":   rec.Status,
		"message": message,
		"result":  resultMap,
	})
}
