package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeRedis is a map-backed RedisClient for handler and worker tests.
type fakeRedis struct {
	mu    sync.Mutex
	data  map[string]string
	lists map[string][]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data:  make(map[string]string),
		lists: make(map[string][]string),
	}
}

func redisVal(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = redisVal(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(0)
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
		if _, ok := f.lists[key]; ok {
			delete(f.lists, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append(f.lists[key], redisVal(v))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals := append([]string(nil), f.lists[key]...)
	return redis.NewStringSliceResult(vals, nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Close() error { return nil }

type enqueuedTask struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeAsynq struct {
	mu       sync.Mutex
	enqueued []enqueuedTask
	err      error
}

func (f *fakeAsynq) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, enqueuedTask{task: task, opts: opts})
	return &asynq.TaskInfo{ID: "test", Type: task.Type()}, nil
}

func (f *fakeAsynq) Close() error { return nil }

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func (f *fakeInspector) Close() error { return nil }

type fakeAI struct {
	detectBreed      func(ctx context.Context, image []byte) (string, string, error)
	generatePortrait func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeAI) DetectBreed(ctx context.Context, image []byte) (string, string, error) {
	return f.detectBreed(ctx, image)
}

func (f *fakeAI) GeneratePortrait(ctx context.Context, prompt string) (string, error) {
	return f.generatePortrait(ctx, prompt)
}

func newTestStore(t *testing.T) *store {
	t.Helper()
	st, err := openStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestState(t *testing.T) (*appState, *fakeRedis, *fakeAsynq) {
	t.Helper()
	rdb := newFakeRedis()
	cli := &fakeAsynq{}
	st := &appState{
		cfg: config{
			queueName:    "default",
			fetchWorkers: 2,
			sessionTTL:   time.Hour,
		},
		redis:     rdb,
		asynqCli:  cli,
		store:     newTestStore(t),
		inspector: &fakeInspector{info: &asynq.QueueInfo{}},
		fetcher:   newImageFetcher(nil, 2),
	}
	return st, rdb, cli
}

// createTestUser registers a user and opens a session for them.
func createTestUser(t *testing.T, st *appState, username string) (*User, string) {
	t.Helper()
	hash, err := hashPassword("password123")
	require.NoError(t, err)
	id, err := st.store.CreateUser(username, hash)
	require.NoError(t, err)
	u, err := st.store.GetUserByID(id)
	require.NoError(t, err)

	token := "test-session-" + username
	require.NoError(t, st.redis.Set(context.Background(), sessionPrefix+token, fmt.Sprint(id), time.Hour).Err())
	return u, token
}
