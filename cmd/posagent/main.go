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

	"go-pos-sync/internal/agent"
	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/catalog"
	"go-pos-sync/internal/config"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/pipeline"
	"go-pos-sync/internal/session"
	"go-pos-sync/internal/shift"
	"go-pos-sync/internal/syncer"
	"go-pos-sync/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	config.Load()
	cfg := config.LoadAgent()
	if cfg.DeviceID == "" {
		cfg.DeviceID = utils.DeviceID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.OpenSQLite(cfg.CachePath)
	if err != nil {
		log.Fatalf("Cache open failed: %v", err)
	}
	defer store.Close()
	c := cache.New(store)

	password := cfg.OperatorPassword
	if password == "" {
		log.Println("⚠️ SEED_PASSWORD not set, operators use the placeholder password")
		password = session.DefaultPassword
	}
	users, err := session.PlaceholderUsers(password, bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Operator setup failed: %v", err)
	}

	clk := clock.WallClock
	gw := gateway.New(gateway.NewHTTPRemote(cfg.RemoteURL, cfg.RequestTimeout), c)
	sess := session.New(c, users, gw)
	gw.SetReauthenticator(sess.Reauthenticate)
	sales := pipeline.New(c, gw)
	shifts := shift.New(c, gw, clk)
	products := catalog.New(c, gw, clk, cfg.LowStock)
	sweeper := syncer.NewSweeper(clk, gw, sales, shifts, products, syncer.Options{
		Interval:       cfg.SyncInterval,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		Jitter:         0.2,
	})
	monitor := syncer.NewMonitor(clk, gw, cfg.ProbeInterval, sweeper.Notify)

	go func() {
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Monitor stopped: %v", err)
		}
	}()
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Sweeper stopped: %v", err)
		}
	}()

	r := gin.Default()
	agent.New(agent.Deps{
		DeviceID: cfg.DeviceID,
		Clock:    clk,
		Session:  sess,
		Gateway:  gw,
		Pipeline: sales,
		Shifts:   shifts,
		Catalog:  products,
		Sweeper:  sweeper,
		Monitor:  monitor,
	}).Register(r)

	// The till UI runs on the same machine.
	srv := &http.Server{Addr: "127.0.0.1:" + cfg.Port, Handler: r}
	go func() {
		log.Printf("🚀 Device %s agent on port %s, remote %s", cfg.DeviceID, cfg.Port, cfg.RemoteURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Agent failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
