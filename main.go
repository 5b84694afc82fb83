package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/hoolgg/hool/gateway/api/rest"
	"github.com/hoolgg/hool/gateway/audit"
	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/config"
	"github.com/hoolgg/hool/gateway/editor"
	"github.com/hoolgg/hool/gateway/guild"
	"github.com/hoolgg/hool/gateway/logging"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/scheduler"
	"github.com/hoolgg/hool/gateway/session"
	"github.com/hoolgg/hool/gateway/status"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	logger, err := logging.New(cfg.Log, cfg.Server.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Upstream services ----
	// Every service refreshes through the guild service, which owns auth.
	guildClient, err := upstream.New("guild", cfg.Upstream.GuildURL,
		upstream.WithTimeout(cfg.Upstream.Timeout), upstream.WithLogger(logger))
	if err != nil {
		log.Fatalf("upstream: %v", err)
	}
	progressClient, err := upstream.New("progress", cfg.Upstream.ProgressURL,
		upstream.WithTimeout(cfg.Upstream.Timeout), upstream.WithLogger(logger), upstream.WithRefresher(guildClient))
	if err != nil {
		log.Fatalf("upstream: %v", err)
	}
	recruitmentClient, err := upstream.New("recruitment", cfg.Upstream.RecruitmentURL,
		upstream.WithTimeout(cfg.Upstream.Timeout), upstream.WithLogger(logger), upstream.WithRefresher(guildClient))
	if err != nil {
		log.Fatalf("upstream: %v", err)
	}

	// ---- Resolvers ----
	cookies := session.DefaultCookies
	if len(cfg.Security.AccessCookies) > 0 {
		cookies.Access = cfg.Security.AccessCookies
	}
	if len(cfg.Security.RefreshCookies) > 0 {
		cookies.Refresh = cfg.Security.RefreshCookies
	}
	sessions := session.NewResolver(guildClient, c, cookies, cfg.Cache.IdentityTTL, logger)
	guilds := guild.NewResolver(guildClient, logger)

	// ---- Editors ----
	ed := editor.New(progressClient, recruitmentClient, c, editor.Options{
		Window:       cfg.Editor.DebounceWindow,
		WriteTimeout: cfg.Editor.WriteTimeout,
		CrestCap:     cfg.Editor.CrestCap,
		StateTTL:     cfg.Editor.StateTTL,
	}, logger)

	// ---- Audit ----
	auditSvc := audit.New(c, logger)

	// ---- Scheduler / upstream status ----
	sched := scheduler.New(logger)
	prober := status.New(c, []status.Target{guildClient, progressClient, recruitmentClient}, status.Options{
		Interval: cfg.Status.ProbeInterval,
		Timeout:  cfg.Status.ProbeTimeout,
	}, logger)
	prober.Start(sched)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.CORS(cfg.Security.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	apirest.Register(r, apirest.Deps{
		Guild:       guildClient,
		Progress:    progressClient,
		Recruitment: recruitmentClient,
		Sessions:    sessions,
		Guilds:      guilds,
		Editor:      ed,
		Audit:       auditSvc,
		PubSub:      pubsub,
		Prober:      prober,
		Scheduler:   sched,
		LoginURL:    cfg.Security.LoginURL,
		AdminKey:    cfg.Server.AdminKey,
		InternalIPs: cfg.Security.InternalIPs,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Pending edits are written before the process exits.
	ed.Close()
	sched.Stop()
	auditSvc.Stop(shutdownCtx)
	logger.Info("server stopped")
}
