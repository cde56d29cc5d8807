package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-sync/internal/ai"
	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/config"
	"go-pos-sync/internal/database"
	"go-pos-sync/internal/handlers"
	"go-pos-sync/internal/middleware"
	"go-pos-sync/internal/reconcile"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/telemetry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm/logger"
)

func main() {
	config.Load()
	cfg := config.LoadServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN, database.Options{Attempts: 10, Wait: 2 * time.Second, LogLevel: logger.Warn})
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	repo := repository.NewGormRepository(db)
	engine := reconcile.NewEngine(repo, reconcile.WithLowStockPolicy(cfg.LowStock))
	issuer := auth.NewIssuer(cfg.JWTSecret, auth.DefaultTTL)

	// The assistant route answers 503 unless a key is configured.
	var assistant handlers.Assistant
	if cfg.GeminiAPIKey != "" {
		assistant = ai.NewAgent(cfg.GeminiAPIKey, repo, db, cfg.LowStock)
	} else {
		log.Println("🔒 Assistant route is DISABLED (no GEMINI_API_KEY).")
	}

	r := gin.Default()
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	var guard gin.HandlerFunc
	if cfg.RequireAuth {
		guard = middleware.AuthMiddleware(issuer)
	} else {
		log.Println("⚠️ WARNING: /api is open. Set REQUIRE_AUTH=true to require bearer tokens.")
	}
	handlers.New(engine, repo, db, issuer, assistant).Register(r, guard)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("🚀 Remote store listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
