package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RedisClient abstracts the redis operations used by sessions, flashes and
// task state flows.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// AsynqClient abstracts task enqueue operations.
type AsynqClient interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// QueueInspector abstracts queue info inspection.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Store abstracts persistent user/generation storage.
type Store interface {
	Close() error
	CreateUser(username, passwordHash string) (int64, error)
	GetUserByUsername(username string) (*User, error)
	GetUserByID(id int64) (*User, error)
	CreatePendingGeneration(userID int64, original []byte) (int64, error)
	CompleteGeneration(id int64, breed, reasoning string, transition1, transition2, final []byte) error
	GetGeneration(id int64) (*Generation, error)
	GetGenerationImage(id int64, imageType string) (int64, []byte, error)
	ListGenerations(userID int64) ([]GenerationSummary, error)
	DeleteGeneration(id, userID int64) (bool, error)
	DeletePendingGeneration(id int64) error
}

// PortraitAI abstracts the remote vision and image generation API.
type PortraitAI interface {
	DetectBreed(ctx context.Context, image []byte) (breed, reasoning string, err error)
	GeneratePortrait(ctx context.Context, prompt string) (resultURL string, err error)
}

var _ RedisClient = (*redis.Client)(nil)
var _ AsynqClient = (*asynq.Client)(nil)
var _ QueueInspector = (*asynq.Inspector)(nil)
var _ Store = (*store)(nil)
var _ PortraitAI = (*openAIClient)(nil)
