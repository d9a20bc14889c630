package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mbolis/formpipe/app"
	"github.com/mbolis/formpipe/config"
	"github.com/mbolis/formpipe/database"
	"github.com/mbolis/formpipe/events"
	"github.com/mbolis/formpipe/httpx"
	"github.com/mbolis/formpipe/log"
	"github.com/mbolis/formpipe/report"
	"github.com/mbolis/formpipe/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	bearerServer := httpx.NewBearerServer(db, cfg)

	var bus events.Bus
	if cfg.NatsURL != "" {
		natsBus, err := events.ConnectNats(cfg.NatsURL)
		if err != nil {
			log.Fatal("main.nats:", err)
		}
		defer natsBus.Close()
		bus = natsBus
	} else {
		bus = events.NewInProcBus()
	}

	app := app.App{
		DB:           db,
		BearerServer: bearerServer,
		Config:       cfg,
		Bus:          bus,
		Now:          time.Now,
	}

	go mailSubscriberReports(app)

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

// mailSubscriberReports mails each unexpired subscriber their pipeline
// report once a day.
func mailSubscriberReports(app app.App) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		err := report.SendSubscriberReports(context.Background(), app.DB, report.LogMailer{}, app.Now())
		if err != nil {
			log.Errorf("main.subscriber_reports: %s", err)
		}
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
