package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/akoun-dev/montoit-sub002/handler"
	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/akoun-dev/montoit-sub002/infra/conn"
	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/infra/middle"
	"github.com/akoun-dev/montoit-sub002/infra/opensearch"
	"github.com/akoun-dev/montoit-sub002/infra/response"
	"github.com/akoun-dev/montoit-sub002/infra/store"
	"github.com/akoun-dev/montoit-sub002/infra/validate"
	"github.com/akoun-dev/montoit-sub002/provider"
	"github.com/akoun-dev/montoit-sub002/router"
	"github.com/akoun-dev/montoit-sub002/settlement"
	"github.com/akoun-dev/montoit-sub002/webhook"
)

var openSearchLogger *opensearch.Logger

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	// init conf
	_ = config.App()
	validate.CustomValidate()

	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	logger.InitGlobalLogger(openSearchLogger)
}

func main() {
	cfg := config.GetAppConfig()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", err)
	}
	defer closeStore()

	ledger := provider.NewUsageLedger(st, 1024)
	defer ledger.Close()
	if openSearchLogger != nil {
		ledger.ShipEventsTo(openSearchLogger)
	}

	executor := provider.NewExecutor(st, provider.DefaultRegistry, ledger)
	executor.SetAttemptTimeout(cfg.AttemptTimeout)

	settlementService := settlement.NewService(st, executor, config.App().Validator)
	verifier := webhook.NewVerifier(config.WebhookSecret)
	audit := webhook.NewAuditLog(st, 1024)
	defer audit.Close()
	if openSearchLogger != nil {
		audit.ShipEventsTo(openSearchLogger)
	}

	handlers := router.Handlers{
		Webhook:   handler.NewWebhookHandler(verifier, settlementService, audit),
		Notify:    handler.NewNotifyHandler(executor, config.App().Validator),
		Providers: handler.NewProvidersHandler(st, ledger, config.App().Validator),
		Health:    handler.NewHealthHandler(),
	}

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	rateLimiter := middle.NewRateLimiter(100, time.Minute)
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RateLimitMiddleware(rateLimiter))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300, // Preflight cache time (second)
	}))

	router.Routes(r, handlers)

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusNotFound, response.Response{Code: http.StatusNotFound, Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HealthTickerOn {
		go healthTicker(ctx, ledger, executor, cfg)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{"port": cfg.Port}})

	// Block until a signal is received
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err)
	}
}

// openStore picks the persistence backend from configuration. SQLite is
// the default for single-node deployments; Postgres shares the pool
// opened by infra/conn.
func openStore(cfg *config.AppConfig) (store.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := conn.Open()
		if err != nil {
			return nil, nil, err
		}
		pg, err := store.NewPostgresStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return pg, func() { _ = db.Close() }, nil
	default:
		sq, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sq, func() { _ = sq.Close() }, nil
	}
}

// healthTicker periodically checks provider success rates and alerts the
// operations phone through the SMS failover chain. It stands in for an
// external scheduler in single-binary deployments.
func healthTicker(ctx context.Context, ledger *provider.UsageLedger, executor *provider.Executor, cfg *config.AppConfig) {
	ticker := time.NewTicker(cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		failing, err := ledger.GetFailingProviders(ctx, cfg.HealthThresholdPct, cfg.HealthWindow)
		if err != nil {
			logger.Error("Health check failed", err)
			continue
		}
		if len(failing) == 0 {
			continue
		}

		logger.Warn("Providers below health threshold", logger.LogContext{
			Fields: map[string]any{"count": len(failing), "threshold": cfg.HealthThresholdPct},
		})

		if cfg.OpsAlertPhone == "" {
			continue
		}

		message := fmt.Sprintf("montoit: %d fournisseur(s) sous le seuil de %.0f%%:", len(failing), cfg.HealthThresholdPct)
		for _, f := range failing {
			message += fmt.Sprintf(" %s/%s %.1f%%", f.Capability, f.Provider, f.SuccessRate)
		}

		if _, err := executor.ExecuteWithFallback(ctx, provider.CapabilitySMS, provider.SendParams{
			To:      cfg.OpsAlertPhone,
			Message: message,
		}); err != nil {
			logger.Error("Failed to send health alert", err)
		}
	}
}
