package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolbridge.org/internal/auth"
	"schoolbridge.org/internal/config"
	"schoolbridge.org/internal/httpapi"
	"schoolbridge.org/internal/migrate"
	"schoolbridge.org/internal/obs"
	"schoolbridge.org/internal/school"
	"schoolbridge.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("SCHOOLBRIDGE_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	if cfg.Database.AutoMigrate {
		runner := migrate.NewRunner(store.DB(), cfg.Database.Migrations, cfg.Database.Seeds)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := runner.Up(ctx); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		if err := runner.Seed(ctx); err != nil {
			cancel()
			log.Fatalf("seed: %v", err)
		}
		cancel()
	}

	tokens, err := auth.NewTokens([]byte(cfg.Auth.Secret),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	authSvc, err := auth.NewService(store, tokens)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	schoolSvc, err := school.NewService(store)
	if err != nil {
		log.Fatalf("school service: %v", err)
	}

	api := httpapi.New(authSvc, schoolSvc, httpapi.ReadyProbe{DB: store.DB()}, version)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, cfg.Server.MaxBodyBytes)
	if cfg.RateLimit.Enabled {
		handler = httpapi.RateLimit(handler, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	handler = httpapi.CORS(handler, cfg.Server.CORSOrigin)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting schoolbridge-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
