package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"

	"github.com/mtgban/go-buyback/buyback"
	"github.com/mtgban/go-buyback/idempotency"
	"github.com/mtgban/go-buyback/search"
	"github.com/mtgban/go-buyback/server"
	"github.com/mtgban/go-buyback/submission"
)

const shutdownTimeout = 15 * time.Second

var Commit = func() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}
	return ""
}()

func run() int {
	addrOpt := flag.String("addr", "", "Address to listen on, overrides LISTEN_ADDR")
	versionOpt := flag.Bool("v", false, "Print version information")
	flag.Parse()

	log.Println("buybackd version", Commit)
	if *versionOpt {
		return 0
	}

	cfg, err := buyback.ConfigFromEnv()
	if err != nil {
		log.Println(err)
		return 1
	}
	if *addrOpt != "" {
		cfg.ListenAddr = *addrOpt
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store submission.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Println("cannot create database pool:", err)
			return 1
		}
		defer pool.Close()

		err = pool.Ping(ctx)
		if err != nil {
			log.Println("cannot connect to database:", err)
			return 1
		}
		store = submission.NewPostgresStore(pool, 0)
		log.Println("Using postgres submission store")
	} else {
		store = submission.NewMemoryStore()
		log.Println("DATABASE_URL not set, submissions are kept in memory")
	}

	var keys idempotency.Store
	if cfg.RedisURL != "" {
		client, err := idempotency.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Println("cannot connect to redis:", err)
			return 1
		}
		defer client.Close()
		keys = idempotency.NewRedisStore(client)
		log.Println("Using redis idempotency store")
	} else {
		keys = idempotency.NewMemoryStore()
	}

	engine := search.NewEngine(cfg, log.Printf)
	log.Println("Serving games", engine.Games())

	api := server.New(engine, store, cfg.AllowedOrigins)
	api.LogCallback = log.Printf
	api.Idempotency = keys
	api.IdempotencyTTL = cfg.IdempotencyTTL

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Println("Listening on", cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Println(err)
			return 1
		}
	case <-ctx.Done():
		log.Println("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		log.Println(err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(run())
}
