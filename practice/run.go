// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"lingopilot/platform/practice/billing"
	"lingopilot/platform/practice/entitlement"
	"lingopilot/platform/practice/limiter"
	"lingopilot/platform/practice/provider"
	"lingopilot/platform/practice/provider/azurespeech"
	"lingopilot/platform/practice/provider/openai"
	"lingopilot/platform/practice/session"
	"lingopilot/platform/practice/usage"
	"lingopilot/platform/shared/logger"
)

// Application readiness state for health checks. The health endpoint
// responds immediately while initialization happens.
var appReady atomic.Bool

// Global router and CORS handler - allows health checks to pass immediately
// while initialization happens
var (
	globalRouter *mux.Router
	globalCORS   *cors.Cors
)

// initServerImmediately starts the HTTP server with just /health so load
// balancer health checks pass during the potentially slow initialization
// phase (database connections, Redis). Other routes are added after
// initialization completes; the server never shuts down.
func initServerImmediately(port string) {
	globalRouter = mux.NewRouter()

	globalCORS = cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	globalRouter.HandleFunc("/health", readinessAwareHealthHandler).Methods("GET")

	go func() {
		handler := globalCORS.Handler(globalRouter)
		log.Printf("🚀 LingoPilot practice service starting on port %s (status: starting)", port)
		if err := http.ListenAndServe(":"+port, handler); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Small delay to ensure server is ready to accept connections
	time.Sleep(50 * time.Millisecond)
	log.Println("✅ Health endpoint ready - initialization can proceed safely")
}

// readinessAwareHealthHandler returns health status based on initialization
// state
func readinessAwareHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "starting"
	if appReady.Load() {
		status = "healthy"
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"service":   "lingopilot-practice",
		"timestamp": time.Now().UTC(),
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// Run is the exported entry point for the practice service
func Run() {
	cfg := LoadConfig()
	initServerImmediately(cfg.Port)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// Redis is optional: without it the rate limiter uses its in-memory
	// fallback
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		log.Println("✅ Redis rate limiting enabled")
	} else {
		log.Println("⚠️  REDIS_URL not set - using in-memory rate limiting")
	}

	entitlements := entitlement.NewResolver(
		entitlement.NewPostgresRepository(db), logger.New("entitlement"))

	meter := usage.NewMeter(usage.NewPostgresRepository(db), logger.New("usage-meter"))
	sessions := session.NewManager(session.NewPostgresRepository(db), logger.New("session-manager"))

	rateLimiter := limiter.NewRateLimiter(redisClient, logger.New("rate-limiter"))
	marginGuard := limiter.NewMarginGuard(meter, cfg.MonthlyCap)

	chat, speech, biller := buildProviders(cfg)
	bridge := billing.NewBridge(biller, usage.NewPostgresRepository(db), logger.New("billing-bridge"))

	service := NewService(entitlements, meter, sessions, rateLimiter, marginGuard,
		bridge, chat, speech, NewPostgresAssessmentStore(db), logger.New("practice-service"))
	handlers := NewHandlers(service, cfg.MaxAudioBytes, logger.New("practice-http"))

	secret := []byte(cfg.JWTSecret)

	// /health was registered in initServerImmediately() - now add all other
	// routes
	globalRouter.Handle("/metrics", promhttp.Handler()).Methods("GET")
	globalRouter.HandleFunc("/api/v1/practice/chat",
		authMiddleware(secret, handlers.HandleChat)).Methods("POST")
	globalRouter.HandleFunc("/api/v1/practice/audio",
		authMiddleware(secret, handlers.HandleAudio)).Methods("POST")
	globalRouter.HandleFunc("/api/v1/practice/audio/budget",
		authMiddleware(secret, handlers.HandleAudioBudget)).Methods("GET")

	appReady.Store(true)
	log.Printf("✅ Practice service ready on port %s (chat: %s, speech: %s, billing: %s)",
		cfg.Port, chat.Name(), speech.Name(), biller.Name())

	// Block forever - the server runs in its goroutine
	select {}
}

// buildProviders selects the external provider implementations once at
// startup. Missing credentials fall back to mocks so local development
// works without accounts.
func buildProviders(cfg Config) (provider.ChatProvider, provider.SpeechProvider, billing.Biller) {
	var chat provider.ChatProvider
	var speech provider.SpeechProvider
	var biller billing.Biller

	if cfg.UseMockProviders || cfg.OpenAIAPIKey == "" {
		log.Println("⚠️  Using mock chat provider")
		chat = provider.NewMockChatProvider()
	} else {
		p, err := openai.NewProvider(openai.Config{APIKey: cfg.OpenAIAPIKey})
		if err != nil {
			log.Fatalf("Failed to create chat provider: %v", err)
		}
		chat = p
	}

	if cfg.UseMockProviders || cfg.AzureSpeechKey == "" || cfg.AzureSpeechRegion == "" {
		log.Println("⚠️  Using mock speech provider")
		speech = provider.NewMockSpeechProvider()
	} else {
		p, err := azurespeech.NewProvider(azurespeech.Config{
			APIKey: cfg.AzureSpeechKey,
			Region: cfg.AzureSpeechRegion,
		})
		if err != nil {
			log.Fatalf("Failed to create speech provider: %v", err)
		}
		speech = p
	}

	if cfg.UseMockProviders || cfg.BillingAPIKey == "" {
		log.Println("⚠️  Using mock biller - overage blocks are not billed")
		biller = billing.NewMockBiller()
	} else {
		b, err := billing.NewAPIBiller(billing.Config{APIKey: cfg.BillingAPIKey})
		if err != nil {
			log.Fatalf("Failed to create biller: %v", err)
		}
		biller = b
	}

	return chat, speech, biller
}
