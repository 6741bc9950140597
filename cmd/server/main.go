// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/arena"
	"github.com/knightwatch/arena/internal/auth"
	"github.com/knightwatch/arena/internal/cache"
	"github.com/knightwatch/arena/internal/database"
	"github.com/knightwatch/arena/internal/game"
	"github.com/knightwatch/arena/internal/handlers"
	"github.com/knightwatch/arena/internal/hub"
	"github.com/knightwatch/arena/internal/match"
	"github.com/knightwatch/arena/internal/queue"
	"github.com/knightwatch/arena/internal/rating"
	"github.com/knightwatch/arena/internal/rules"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, in-memory otherwise.
	var store database.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := database.Connect(ctx, dsn)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("failed to apply schema")
		}
		store = pg
		logger.Info("using postgres store")
	} else {
		store = database.NewMemStore()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	authSvc, err := buildAuthService()
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize auth keys")
	}

	h := hub.New(logger)

	var notifier game.Notifier = h
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db := getEnvInt("REDIS_DB", 0)
		pub, err := cache.Connect(addr, db, os.Getenv("RESULT_QUEUE_NAME"))
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer pub.Close()
		notifier = cache.NewTap(h, pub, arena.EventSessionEnd, logger)
		logger.Info("session results mirrored to redis")
	}

	registry := game.NewStore()
	settler := rating.NewEngine(store, logger)
	adapter := rules.NewChessAdapter()
	engine := game.NewEngine(registry, store, adapter, settler, notifier, logger)
	engine.SetSuggester(&rules.RandomSuggester{Adapter: adapter})
	h.SetResolver(registry.SeatUsers)

	creator := match.NewCreator(store, engine, notifier, logger)
	manager := queue.NewManager(store, creator, notifier, logger)

	scheduler := queue.NewScheduler(manager, 5*time.Second, logger)
	scheduler.AddHook(func(context.Context) {
		registry.EvictFinished(time.Now(), 10*time.Minute)
	})
	go scheduler.Run(ctx)
	go engine.RunClockSweep(ctx, time.Second)

	srv := handlers.NewArenaServer(store, manager, engine, creator, h, authSvc, logger)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	httpSrv := &http.Server{Addr: addr, Handler: srv.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("arena listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("server exited")
	}
}

func buildAuthService() (*auth.Service, error) {
	ttl := 72 * time.Hour
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		if raw == "never" || raw == "0" {
			ttl = 0
		} else if d, err := time.ParseDuration(raw); err == nil {
			ttl = d
		}
	}
	priv, pub := os.Getenv("JWT_PRIVATE_KEY_PATH"), os.Getenv("JWT_PUBLIC_KEY_PATH")
	if priv != "" && pub != "" {
		return auth.NewServiceFromFiles(priv, pub, ttl)
	}
	return auth.NewService(ttl)
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
