package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/database"
	"github.com/wastetrack/wastetrack/internal/email"
	"github.com/wastetrack/wastetrack/internal/handler"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/metrics"
	"github.com/wastetrack/wastetrack/internal/middleware"
	"github.com/wastetrack/wastetrack/internal/ratelimit"
	"github.com/wastetrack/wastetrack/internal/repository"
	"github.com/wastetrack/wastetrack/internal/repository/memory"
	"github.com/wastetrack/wastetrack/internal/router"
	"github.com/wastetrack/wastetrack/internal/service"
)

type stores struct {
	accounts service.AccountStore
	tokens   service.TokenStore
	audit    service.AuditStore
	states   service.StateStore
	limiter  ratelimit.Limiter
	checks   map[string]handler.HealthChecker
	closers  []func() error
}

func main() {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Msg("starting WasteTrack auth server")

	ctx := context.Background()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer func() {
		for _, c := range st.closers {
			_ = c()
		}
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Crypto
	hasher, err := auth.NewPasswordHasher(auth.NewParams(
		cfg.Security.Password.Argon2Memory,
		cfg.Security.Password.Argon2Iterations,
		cfg.Security.Password.Argon2Parallelism,
	))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize password hasher")
	}
	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}

	// Notifications
	sender, err := email.NewSender(ctx, cfg.Email, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email sender")
	}
	notifier := email.NewNotifier(sender, cfg.Email.AppName, log)

	// Initialize services
	audit := service.NewAuditRecorder(st.audit, cfg.Audit, log, m)
	verifier := service.NewCredentialVerifier(st.accounts, hasher, audit, log, m)
	issuer := service.NewTokenIssuer(st.tokens, st.accounts, tokenSvc, audit, log, m)
	accounts := service.NewAccountService(st.accounts, hasher, issuer, notifier, cfg.Security.Password, log)

	var bridge *service.OAuthBridge
	if cfg.OAuth.Google.Enabled {
		provider := service.NewGoogleProvider(cfg.OAuth.Google)
		bridge = service.NewOAuthBridge(provider, st.states, st.accounts, hasher, issuer, audit, cfg.OAuth.Google.StateTTL, log, m)
		log.Info().Msg("google sign in enabled")
	}

	// Initialize handlers and middleware
	h := handler.New(log, cfg, handler.Services{
		Accounts: accounts,
		Issuer:   issuer,
		Audit:    audit,
		OAuth:    bridge,
	}, st.checks)

	mw := middleware.New(cfg, log, middleware.Deps{
		Limiter:  st.limiter,
		Tokens:   tokenSvc,
		Accounts: st.accounts,
		Verifier: verifier,
		Audit:    audit,
	})

	// Set up router
	r := router.New(cfg, h, mw, m)

	// Create HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Bool("tls", cfg.Server.TLS.Enabled).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drain the audit queue after the last request has finished
	if err := audit.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("audit queue not fully drained")
	}
	notifier.Wait()

	log.Info().Msg("server stopped")
}

// openStores connects the configured backends. The memory driver and a
// disabled Redis fall back to in-process implementations.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handler.HealthChecker)}

	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		st.accounts = memory.NewAccountStore()
		st.tokens = memory.NewTokenStore()
		st.audit = memory.NewAuditStore()
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().Msg("connected to PostgreSQL")
		st.closers = append(st.closers, db.Close)
		st.checks["postgres"] = db
		st.accounts = repository.NewAccountRepository(db)
		st.tokens = repository.NewTokenRepository(db)
		st.audit = repository.NewAuditRepository(db)
	}

	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Msg("connected to Redis")
		st.closers = append(st.closers, rdb.Close)
		st.checks["redis"] = rdb
		st.states = repository.NewOAuthStateRepository(rdb)
		st.limiter = ratelimit.NewRedisLimiter(rdb)
	} else {
		st.states = memory.NewStateStore()
		st.limiter = ratelimit.NewLocalLimiter()
	}

	return st, nil
}
