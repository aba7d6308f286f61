package main

import (
	"time"
)

type config struct {
	redisAddr     string
	redisPassword string
	redisDB       int
	queueName     string
	dbPath        string
	apiAddr       string
	concurrency   int
	fetchWorkers  int
	openaiBaseURL string
	openaiAPIKey  string
	visionModel   string
	imageModel    string
	sessionTTL    time.Duration
	secureCookies bool
}

type appState struct {
	cfg       config
	redis     RedisClient
	asynqCli  AsynqClient
	store     Store
	inspector QueueInspector
	ai        PortraitAI
	fetcher   *imageFetcher
}

type queueTaskStatus struct {
	Status    string      `json:"status"`
	Result    interface{} `json:"result,omitempty"`
	UpdatedAt string      `json:"updated_at"`
}

type generateTaskPayload struct {
	TaskID       string `json:"task_id"`
	GenerationID int64  `json:"generation_id"`
	UserID       int64  `json:"user_id"`
}

type progressResult struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Stage   string `json:"stage"`
	Status  string `json:"status"`
}

type generateResult struct {
	GenerationID int64  `json:"generation_id"`
	Breed        string `json:"breed"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
}

// User is a row in the users table.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Generation is a full row in the generations table, image blobs included.
type Generation struct {
	ID               int64
	UserID           int64
	DetectedBreed    string
	BreedReasoning   string
	OriginalImage    []byte
	TransitionImage1 []byte
	TransitionImage2 []byte
	FinalDogImage    []byte
	Status           string
	CreatedAt        time.Time
}

// GenerationSummary is the blob-free listing view of a generation.
type GenerationSummary struct {
	ID            int64
	UserID        int64
	DetectedBreed string
	Status        string
	CreatedAt     time.Time
}

type flashMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
