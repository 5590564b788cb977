package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"JamFM/config"
	"JamFM/core/cache"
	"JamFM/core/event"
	"JamFM/core/ingest"
	"JamFM/core/jam"
	"JamFM/db"
	"JamFM/logger"
	"JamFM/model"
	"JamFM/repository"
	"JamFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes every subsystem and runs the HTTP server until a
// shutdown signal arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(getLogLevel()),
		OutputPath: "logs/jamfm.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		logger.Fatal("failed to create cache directory", logger.ErrorField(err))
	}

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize MinIO", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	if err := db.AutoMigrateModels(
		&model.Track{},
		&model.JamSession{},
		&model.QueueEntry{},
		&model.SessionReaction{},
	); err != nil {
		logger.Fatal("failed to migrate schema", logger.ErrorField(err))
	}

	trackRepo := repository.NewTrackRepository(db.GormDB)
	sessionRepo := repository.NewSessionRepository(db.GormDB)

	ttl := time.Duration(cfg.CacheTTL) * time.Second
	artifactIndex := cache.NewRedisArtifactIndex(db.RedisClient)
	transcoder := cache.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.OpusBitrate)
	engine := cache.NewEngine(cache.Options{
		CacheDir:      cfg.CacheDir,
		TTL:           ttl,
		ObjectPrimary: cfg.MinioPrimary,
	}, transcoder, objectStoreOrNil(cfg), artifactIndex)

	reaper := cache.NewReaper(cfg.CacheDir, ttl, time.Duration(cfg.ReapInterval)*time.Second, artifactIndex)

	hub := event.NewHub()
	manager := jam.NewManager(hub, jam.Stores{
		Sessions:  sessionRepo,
		Queue:     sessionRepo,
		Reactions: sessionRepo,
	}, cfg.DefaultUserLimit)
	defer manager.Close()

	// No voice transport attached in server mode; playback consumers pull
	// artifacts over /stream instead.
	player := jam.NewPlayer(manager, trackRepo, engine, nil)
	ingestSvc := ingest.NewService(ingest.NewPageFetcher(), trackRepo)

	apiHandler := NewAPIHandler(cfg, trackRepo, ingestSvc, manager, player, engine, hub)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Track ingestion and delivery.
	router.HandleFunc("/api/tracks", apiHandler.IngestTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.GetTrackHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/stream", apiHandler.StreamTrackHandler).Methods(http.MethodGet)

	// Session lifecycle.
	router.HandleFunc("/api/sessions", apiHandler.OpenSessionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}", apiHandler.SessionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/end", apiHandler.EndSessionHandler).Methods(http.MethodPost)

	// Queue operations.
	router.HandleFunc("/api/sessions/{id}/queue", apiHandler.EnqueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/queue", apiHandler.QueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/sessions/{id}/queue/clear", apiHandler.ClearQueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/queue/{position}", apiHandler.RemoveEntryHandler).Methods(http.MethodDelete)

	// Playback control.
	router.HandleFunc("/api/sessions/{id}/play", apiHandler.PlayNextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/advance", apiHandler.AdvanceHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/skip", apiHandler.SkipHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/pause", apiHandler.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/resume", apiHandler.ResumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/mode", apiHandler.SetModeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/submissions", apiHandler.SubmissionsHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/limit", apiHandler.SetLimitHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/sessions/{id}/reactions", apiHandler.ReactHandler).Methods(http.MethodPost)

	// Dashboard event stream.
	router.HandleFunc("/ws/sessions/{id}", apiHandler.SessionEventsHandler)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reaper.Run(rootCtx)

	go func() {
		logger.Info("server listening", logger.String("addr", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

// objectStoreOrNil keeps the engine's nil check honest: a disabled tier must
// be a nil interface, not a typed nil.
func objectStoreOrNil(cfg *config.Config) cache.ObjectStore {
	store := storage.NewOpusStore(cfg)
	if store == nil {
		return nil
	}
	return store
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getLogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
