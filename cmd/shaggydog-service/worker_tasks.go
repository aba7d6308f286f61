package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// portraitPrompts builds the three generation prompts: two transition stages
// and the final portrait.
func portraitPrompts(breed string) [transitionCount + 1]string {
	return [transitionCount + 1]string{
		fmt.Sprintf("Professional portrait photography of a human face with subtle %s dog characteristics - slightly elongated snout, pointier ears, and dog-like expressive eyes. The person still looks human but with gentle canine features. High quality, photorealistic, studio lighting.", breed),
		fmt.Sprintf("Portrait showing a person mid-transformation into a %s dog - more pronounced dog features with a longer snout, floppy or pointed ears matching the breed, and fur texture beginning to appear on the face and neck. Still maintains human-like proportions and expression. Photorealistic style.", breed),
		fmt.Sprintf("Beautiful professional portrait of a %s dog with expressive eyes and personality, captured in high quality photography. The dog has a friendly, approachable expression that would match a human portrait. Studio lighting, photorealistic, detailed fur texture.", breed),
	}
}

func (st *appState) processGeneratePortraitsTask(ctx context.Context, t *asynq.Task) error {
	var payload generateTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	taskID := payload.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	fail := func(msg string, err error) error {
		setTaskState(ctx, st.redis, taskID, "FAILURE", map[string]any{"message": msg})
		if payload.GenerationID > 0 {
			if derr := st.store.DeletePendingGeneration(payload.GenerationID); derr != nil {
				logger.Warn("failed to remove pending generation", "generation_id", payload.GenerationID, "error", derr)
			}
		}
		st.clearActiveGeneration(ctx, payload.UserID)
		return err
	}

	gen, err := st.store.GetGeneration(payload.GenerationID)
	if err != nil {
		return fail("Uploaded image not found", err)
	}
	if gen.Status != genStatusPending {
		setTaskState(ctx, st.redis, taskID, "SUCCESS", toMap(generateResult{
			GenerationID: gen.ID,
			Breed:        gen.DetectedBreed,
			Success:      true,
			Message:      "Already processed",
		}))
		st.clearActiveGeneration(ctx, payload.UserID)
		return nil
	}

	setTaskState(ctx, st.redis, taskID, "PROGRESS", toMap(progressResult{
		Current: 0, Total: 4, Stage: "analyzing", Status: "Analyzing your headshot...",
	}))

	breed, reasoning, err := st.ai.DetectBreed(ctx, gen.OriginalImage)
	if err != nil {
		logger.Error("breed detection failed", "task_id", taskID, "generation_id", gen.ID, "error", err)
		return fail(fmt.Sprintf("Error processing image: %v", err), err)
	}
	logger.Info("breed detected", "task_id", taskID, "generation_id", gen.ID, "breed", breed)

	setTaskState(ctx, st.redis, taskID, "PROGRESS", toMap(progressResult{
		Current: 1, Total: 4, Stage: "generating",
		Status: fmt.Sprintf("Matched %s, generating transition images...", breed),
	}))

	prompts := portraitPrompts(breed)
	urls := make([]string, len(prompts))
	genErrs := make([]error, len(prompts))
	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			urls[i], genErrs[i] = st.ai.GeneratePortrait(ctx, prompt)
		}(i, prompt)
	}
	wg.Wait()

	setTaskState(ctx, st.redis, taskID, "PROGRESS", toMap(progressResult{
		Current: 3, Total: 4, Stage: "generating", Status: "Downloading generated portraits...",
	}))

	reqs := make([]fetchRequest, 0, len(prompts))
	for i, u := range urls {
		if genErrs[i] != nil {
			logger.Warn("portrait generation failed", "task_id", taskID, "index", i, "error", genErrs[i])
			continue
		}
		reqs = append(reqs, fetchRequest{Src: u, Index: i})
	}
	if len(reqs) == 0 {
		err := errors.New("all portrait generations failed")
		return fail("Error processing image: image generation failed", err)
	}

	// Failed slots fall back to the uploaded image so the gallery sequence
	// stays complete.
	images := make([][]byte, len(prompts))
	for i := range images {
		images[i] = gen.OriginalImage
	}
	fetched := 0
	for _, res := range st.fetcher.FetchAll(ctx, reqs) {
		if res.Err != nil {
			logger.Warn("portrait download failed", "task_id", taskID, "index", res.Index, "src", res.OriginalSrc, "error", res.Err)
			continue
		}
		images[res.Index] = res.Data
		fetched++
	}
	if fetched == 0 {
		err := errors.New("all portrait downloads failed")
		return fail("Error processing image: could not download generated portraits", err)
	}

	if err := st.store.CompleteGeneration(gen.ID, breed, reasoning, images[0], images[1], images[2]); err != nil {
		logger.Error("failed to persist generation", "task_id", taskID, "generation_id", gen.ID, "error", err)
		return fail("Error saving generated images", err)
	}

	st.clearActiveGeneration(ctx, payload.UserID)
	setTaskState(ctx, st.redis, taskID, "SUCCESS", toMap(generateResult{
		GenerationID: gen.ID,
		Breed:        breed,
		Success:      true,
		Message:      fmt.Sprintf("Complete! Your inner dog is a %s.", breed),
	}))
	return nil
}
