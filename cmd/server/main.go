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

	"ledgerdesk/backend/internal/analytics"
	"ledgerdesk/backend/internal/config"
	"ledgerdesk/backend/internal/events"
	"ledgerdesk/backend/internal/httpapi"
	"ledgerdesk/backend/internal/ledger"
	"ledgerdesk/backend/internal/service"
	"ledgerdesk/backend/internal/store"
	"ledgerdesk/backend/internal/store/memory"
	pgstore "ledgerdesk/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var bus events.Bus = events.NewMemoryBus()
	if cfg.RedisAddr != "" {
		redisBus := events.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.EventChannel)
		if err := redisBus.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process event bus", err)
		} else {
			bus = redisBus
			log.Println("event bus: redis")
		}
	} else {
		log.Println("event bus: in-process")
	}
	closers = append(closers, bus.Close)

	policy := analytics.DefaultPolicy()
	policy.DebtAttributionRate = cfg.DebtAttributionRate
	policy.TrendLimit = cfg.TrendLimit

	reader := ledger.NewReader(repo)
	agg := analytics.New(policy)
	svc := service.New(repo, reader, agg, bus)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.OwnerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	unsubscribe := bus.Subscribe(func(e events.Event) {
		log.Printf("[events] %s for %s at %s", e.Kind, e.EntityID, e.At.Format(time.RFC3339))
	})
	defer unsubscribe()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.OwnerPIN) < 6 {
		return fmt.Errorf("OWNER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.OwnerPIN); err != nil {
		return fmt.Errorf("OWNER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	// Reject all-same-digit PINs.
	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	// Reject ascending or descending sequential PINs (e.g. 123456, 987654).
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
