package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/http/handlers"
	authmw "github.com/avms/gatepass/internal/http/middleware"
	"github.com/avms/gatepass/internal/issuer"
	"github.com/avms/gatepass/internal/mailer"
	"github.com/avms/gatepass/internal/platform/auth"
	"github.com/avms/gatepass/internal/query"
	"github.com/avms/gatepass/internal/store"
	"github.com/avms/gatepass/internal/store/memory"
	pgstore "github.com/avms/gatepass/internal/store/postgres"
	"github.com/avms/gatepass/internal/verify"
	"github.com/avms/gatepass/pkg/config"
	"github.com/avms/gatepass/pkg/database"
	"github.com/avms/gatepass/pkg/events"
	"github.com/avms/gatepass/pkg/logger"
	mw "github.com/avms/gatepass/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	auth.Configure(cfg.Auth.JWTSecret)
	ctx := context.Background()

	var (
		passes   store.PassStore
		users    store.UserStore
		frequent store.FrequentVisitorStore
		alerts   store.AlertStore
	)
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		passes = pgstore.NewPassRepo(pool)
		users = pgstore.NewUserRepo(pool)
		frequent = pgstore.NewFrequentVisitorRepo(pool)
		alerts = pgstore.NewAlertRepo(pool)
	case "memory":
		userStore := memory.NewUserStore()
		if err := seedUsers(ctx, userStore, cfg); err != nil {
			logger.Error("Failed to seed demo users", "error", err)
			os.Exit(1)
		}
		passes = memory.NewPassStore()
		users = userStore
		frequent = memory.NewFrequentVisitorStore()
		alerts = memory.NewAlertStore()
	default:
		logger.Error("Unknown store driver", "driver", cfg.Store.Driver)
		os.Exit(1)
	}

	var bus events.EventBus
	if natsBus, err := events.NewNATSEventBus(cfg.NATS.URL); err != nil {
		logger.Warn("Event bus unavailable, events disabled", "error", err)
		bus = events.NopBus{}
	} else {
		bus = natsBus
	}
	defer bus.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var mail mailer.Service
	switch {
	case cfg.Email.DevMode:
		mail = mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		mail = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		mail = mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom,
			cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}

	iss := issuer.New(passes, mail, bus, nil, nil, cfg.Issue.OTPMaxAttempts)
	engine := verify.New(passes, bus, nil)
	view := query.New(passes)

	authHandler := handlers.NewAuthHandler(users, cfg.Auth.AccessTokenTTL)
	residentHandler := handlers.NewResidentHandler(iss, view, frequent, alerts, bus, nil)
	securityHandler := handlers.NewSecurityHandler(engine, view, alerts, bus, nil)
	securityHandler.VerifyOTPLimiter = authmw.NewRateLimiter(rdb, cfg.Issue.VerifyRateLimit, cfg.Issue.VerifyRateWindow).Middleware()

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gatepass"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", authHandler.Login)
	r.Route("/resident", func(r chi.Router) {
		r.Use(authmw.RequireRole(domain.RoleResident))
		r.Mount("/", residentHandler.Routes())
	})
	r.Route("/security", func(r chi.Router) {
		r.Use(authmw.RequireRole(domain.RoleSecurity))
		r.Mount("/", securityHandler.Routes())
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("Starting gatepass service", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gatepass service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gatepass service error", "error", err)
		os.Exit(1)
	}
}

// seedUsers provisions the demo accounts the memory store starts with.
func seedUsers(ctx context.Context, users *memory.UserStore, cfg *config.Config) error {
	hash, err := argon2id.CreateHash(cfg.Auth.SeedPassword, argon2id.DefaultParams)
	if err != nil {
		return err
	}

	now := time.Now()
	resident := &domain.User{
		ID:           uuid.NewString(),
		Role:         domain.RoleResident,
		Email:        cfg.Auth.SeedResidentEmail,
		PasswordHash: hash,
		Name:         "Demo Resident",
		Flat:         cfg.Auth.SeedResidentFlat,
		CreatedAt:    now,
	}
	security := &domain.User{
		ID:           uuid.NewString(),
		Role:         domain.RoleSecurity,
		Email:        cfg.Auth.SeedSecurityEmail,
		PasswordHash: hash,
		Name:         "Demo Security",
		CreatedAt:    now,
	}
	if err := users.Create(ctx, resident); err != nil {
		return err
	}
	return users.Create(ctx, security)
}
