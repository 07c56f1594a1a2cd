package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"radiochat/internal/chat"
	"radiochat/internal/config"
	"radiochat/internal/db"
	clog "radiochat/internal/log"
	"radiochat/internal/media"
	"radiochat/internal/mw"
	"radiochat/internal/server"
	"radiochat/internal/store"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// main 负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("load .env")
	}
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := chat.Options{HistoryLimit: cfg.HistoryLimit, InviteTTL: cfg.InviteTTL}
	if cfg.S3.Bucket != "" {
		ms, err := media.NewS3Store(ctx, cfg.S3, cfg.MediaMaxBytes)
		if err != nil {
			log.Fatal().Err(err).Msg("media store")
		}
		opts.Media = ms
	} else {
		log.Info().Msg("S3_BUCKET not set, image messages disabled")
	}
	chatSvc := chat.NewService(store.New(gdb), opts)

	limiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute).Start()
	defer limiter.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, gdb, chatSvc, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
	log.Info().Msg("server stopped")
}
