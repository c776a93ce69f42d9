package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadline.io/internal/auth"
	"leadline.io/internal/config"
	"leadline.io/internal/crm"
	"leadline.io/internal/httpapi"
	"leadline.io/internal/leads"
	"leadline.io/internal/mail"
	"leadline.io/internal/notify"
	"leadline.io/internal/obs"
	"leadline.io/internal/store/pg"
	"leadline.io/internal/stream"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Without a DSN the service runs on the in-memory store; useful for
	// local development, useless for anything else.
	var (
		store crm.Store
		probe httpapi.ReadyProbe
	)
	if cfg.Database.DSN != "" {
		pgStore, err := pg.Open(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute,
		)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("no database DSN configured, using in-memory store")
		store = crm.NewInMemory()
	}

	router := stream.NewRouter(func() { obs.LiveEventsDropped.Inc() })
	mailer := mail.New(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	authSvc, err := auth.NewService(store)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	leadSvc, err := leads.NewService(store, router, mailer)
	if err != nil {
		log.Fatalf("lead service: %v", err)
	}
	notifySvc, err := notify.NewService(store)
	if err != nil {
		log.Fatalf("notify service: %v", err)
	}

	api := httpapi.New(probe, version, authSvc, leadSvc, notifySvc, router)
	api.SetLimits(cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec, cfg.HTTP.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE connections outlive any sane write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting leadline-api %s (%s) on %s", version, cfg.Server.Environment, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
