package main

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/zyhibook/filelist/internal/account"
	"github.com/zyhibook/filelist/internal/api"
	"github.com/zyhibook/filelist/internal/bootstrap"
	"github.com/zyhibook/filelist/internal/config"
	"github.com/zyhibook/filelist/internal/counter"
	"github.com/zyhibook/filelist/internal/fsindex"
	"github.com/zyhibook/filelist/internal/logging"
	"github.com/zyhibook/filelist/internal/metrics"
	"github.com/zyhibook/filelist/internal/notify"
	"github.com/zyhibook/filelist/internal/sharing"
	"github.com/zyhibook/filelist/internal/taskpool"
)

func main() {
	// In development a .env file stands in for real environment wiring.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		panic("logging: " + err.Error())
	}
	defer logging.Sync()

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logging.Fatal("ping database", zap.Error(err))
	}

	accounts := account.NewStore(db, cfg.JWTSecret)
	if err := accounts.EnsureSchema(ctx); err != nil {
		logging.Fatal("account schema", zap.Error(err))
	}
	if err := accounts.EnsureAdmin(ctx, cfg.AdminPassword, cfg.AdminEmail); err != nil {
		logging.Fatal("ensure admin", zap.Error(err))
	}

	shares := sharing.NewPostgresStore(db)
	if err := shares.EnsureSchema(ctx); err != nil {
		logging.Fatal("share schema", zap.Error(err))
	}

	var counters *counter.Store
	if cfg.Development {
		counters, err = counter.OpenInMemory()
	} else {
		counters, err = counter.Open(cfg.CounterDBPath)
	}
	if err != nil {
		logging.Fatal("open counter store", zap.Error(err))
	}
	defer counters.Close()

	var sender notify.Sender
	if cfg.SMTPAddr != "" {
		sender = notify.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPSender, cfg.SMTPUser, cfg.SMTPPass)
	}

	pool := taskpool.New(cfg.ScanWorkers)
	pool.Start(ctx)

	resolver := fsindex.NewResolver(cfg.RootDir)

	// Each worker gets its own directory cache so a rescan in one
	// worker never blocks listings in another.
	newHandler := func(worker int) http.Handler {
		cache := fsindex.NewDirectoryCache(resolver, counters)
		listing := fsindex.NewListing(cache, resolver)
		srv := api.NewServer(cfg, worker, resolver, listing, counters, shares, accounts, sender, pool)
		return srv.Routes()
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logging.Error("metrics server", zap.Error(err))
		}
	}()

	boot := bootstrap.New(cfg.ListenAddr, cfg.Workers, cfg.ShutdownGrace, newHandler)
	boot.CancelPendingWith(pool.CancelPending)
	boot.OnStop(func(ctx context.Context) error {
		logging.Info("draining", zap.Int("workers", cfg.Workers))
		return nil
	})

	logging.Info("starting",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("workers", cfg.Workers),
		zap.String("root", cfg.RootDir))
	if err := boot.Run(ctx); err != nil {
		logging.Fatal("serve", zap.Error(err))
	}
	pool.Stop()
	logging.Info("stopped")
}
