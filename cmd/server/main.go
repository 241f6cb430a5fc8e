package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/clock"
	"github.com/juju/loggo"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/polteknik/kompen/internal/config"
	"github.com/polteknik/kompen/internal/database"
	"github.com/polteknik/kompen/internal/handler"
	"github.com/polteknik/kompen/internal/metrics"
	"github.com/polteknik/kompen/internal/queue"
	"github.com/polteknik/kompen/internal/repository"
	"github.com/polteknik/kompen/internal/router"
	"github.com/polteknik/kompen/internal/service"
	"github.com/polteknik/kompen/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	cfg := config.Load()
	if err := loggo.ConfigureLoggers(cfg.LogLevel); err != nil {
		log.Fatalf("invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.WallClock
	var (
		st     store.Store
		tokens store.Tokens
		db     *sql.DB
	)
	switch cfg.StoreMode {
	case config.StoreMemory:
		st, tokens = store.NewMemory(clk), store.NewMemoryTokens(clk)
		log.Printf("using in-memory store; data is lost on exit")
	default:
		var err error
		db, err = database.Open(ctx, database.Options{
			User:            cfg.DBUser,
			Pass:            cfg.DBPass,
			Host:            cfg.DBHost,
			Port:            cfg.DBPort,
			Name:            cfg.DBName,
			MaxOpenConns:    cfg.DBMaxOpen,
			ConnMaxLifetime: cfg.DBConnLifetime,
		})
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		st = repository.NewStore(db, clk, repository.RetryPolicy{
			Attempts: cfg.TxRetries,
			Delay:    cfg.TxRetryDelay,
			MaxDelay: time.Second,
		})
		tokens = repository.NewTokenRepo(db, clk)
	}

	broker := config.LoadBrokerConfig()
	var notifier service.Notifier = queue.LogNotifier{}
	if broker.URL != "" {
		pub := queue.NewPublisher(broker.URL, broker.Queue, clk)
		defer pub.Close()
		notifier = pub
	}

	rec := metrics.New()
	svc := service.New(service.Deps{
		Store:      st,
		Clock:      clk,
		Notifier:   notifier,
		Metrics:    rec,
		BcryptCost: cfg.BcryptCost,
	})
	if cfg.AdminUsername != "" {
		if _, err := svc.Users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminName, cfg.AdminPassword); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and report cache disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.BodyLimit("8M"))

	deps := router.Deps{
		Auth:      handler.NewAuthHandler(cfg, st, tokens, svc.Users, clk),
		API:       handler.NewHandler(svc),
		JWTSecret: cfg.JWTSecret,
		Users:     st,
		Metrics:   rec.Handler(),
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Clock:     clk,
	}
	if db != nil {
		deps.DB = db
	}
	router.Register(e, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.StoreMode)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if broker.URL != "" && broker.Consume {
		g.Go(func() error {
			return queue.StartNotificationConsumer(gctx, broker, clk)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("shut down")
}
