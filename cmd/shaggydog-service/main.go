package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var errMissingAPIKey = errors.New("OPENAI_API_KEY is required")

func main() {
	mode := flag.String("mode", "all", "run mode: all|api|worker")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	st, err := newAppState(cfg)
	if err != nil {
		logger.Error("failed to initialize app state", "error", err)
		os.Exit(1)
	}
	defer st.redis.Close()
	defer st.asynqCli.Close()
	defer st.store.Close()
	defer st.inspector.Close()

	switch *mode {
	case "api":
		runAPI(st)
	case "worker":
		runWorker(st)
	case "all":
		go runWorker(st)
		runAPI(st)
	default:
		logger.Error("unknown run mode", "mode", *mode)
		os.Exit(1)
	}
}

func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not load .env file", "error", err)
	}

	cfg := config{
		redisAddr:     envOrDefault("REDIS_ADDR", "redis:6379"),
		redisPassword: os.Getenv("REDIS_PASSWORD"),
		redisDB:       envInt("REDIS_DB", 0),
		queueName:     envOrDefault("ASYNQ_QUEUE", "default"),
		dbPath:        envOrDefault("DB_PATH", "/app/shaggydog.db"),
		apiAddr:       envOrDefault("API_ADDR", ":8000"),
		concurrency:   envInt("ASYNQ_CONCURRENCY", 10),
		fetchWorkers:  envInt("FETCH_WORKERS", 3),
		openaiBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		openaiAPIKey:  os.Getenv("OPENAI_API_KEY"),
		visionModel:   envOrDefault("VISION_MODEL", "gpt-4o"),
		imageModel:    envOrDefault("IMAGE_MODEL", "dall-e-3"),
		sessionTTL:    time.Duration(envInt("SESSION_TTL_HOURS", 168)) * time.Hour,
		secureCookies: strings.EqualFold(envOrDefault("SECURE_COOKIES", "false"), "true"),
	}
	if strings.TrimSpace(cfg.openaiAPIKey) == "" {
		return config{}, errMissingAPIKey
	}
	return cfg, nil
}

func newAppState(cfg config) (*appState, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.dbPath)
	if err != nil {
		return nil, err
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.redisAddr, Password: cfg.redisPassword, DB: cfg.redisDB}
	return &appState{
		cfg:       cfg,
		redis:     rdb,
		asynqCli:  asynq.NewClient(redisOpt),
		store:     store,
		inspector: asynq.NewInspector(redisOpt),
		ai:        newOpenAIClient(cfg.openaiBaseURL, cfg.openaiAPIKey, cfg.visionModel, cfg.imageModel),
		fetcher:   newImageFetcher(nil, cfg.fetchWorkers),
	}, nil
}

func runAPI(st *appState) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/register", st.handleRegister)
	mux.HandleFunc("/login", st.handleLogin)
	mux.HandleFunc("/logout", st.requireUser(st.handleLogout))
	mux.HandleFunc("/api/me", st.requireUser(st.handleMe))
	mux.HandleFunc("/api/flash", st.handleFlash)
	mux.HandleFunc("/upload", st.requireUser(st.handleUpload))
	mux.HandleFunc("/api/tasks/status", st.requireUser(st.handleTaskStatus))
	mux.HandleFunc("/api/queue/status", st.requireUser(st.handleQueueStatus))
	mux.HandleFunc("/api/generations", st.requireUser(st.handleGenerations))
	mux.HandleFunc("/api/generations/", st.requireUser(st.handleGenerationsSubroutes))
	mux.HandleFunc("/api/images/", st.requireUser(st.handleImages))

	logger.Info("api listening", "addr", st.cfg.apiAddr)
	if err := http.ListenAndServe(st.cfg.apiAddr, loggingMiddleware(mux)); err != nil {
		logger.Error("api server stopped", "error", err)
		os.Exit(1)
	}
}

func runWorker(st *appState) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: st.cfg.redisAddr, Password: st.cfg.redisPassword, DB: st.cfg.redisDB},
		asynq.Config{
			Concurrency: st.cfg.concurrency,
			Queues: map[string]int{
				st.cfg.queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeGeneratePortraits, st.processGeneratePortraitsTask)

	logger.Info("worker started", "queue", st.cfg.queueName, "concurrency", st.cfg.concurrency)
	if err := srv.Run(mux); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

// handleQueueStatus reports how deep the generation queue currently is.
func (st *appState) handleQueueStatus(w http.ResponseWriter, r *http.Request, _ *User) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	queueDepth := 0
	if q, err := st.inspector.GetQueueInfo(st.cfg.queueName); err == nil {
		queueDepth = q.Pending + q.Active + q.Scheduled + q.Retry
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue_depth": queueDepth})
}
