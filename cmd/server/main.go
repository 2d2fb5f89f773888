package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nandanugg/geotrack/config"
	"github.com/nandanugg/geotrack/module/core"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	sessionCfg, err := config.LoadSession(cfg.SessionFile)
	if err != nil {
		log.Fatalf("session config: %v", err)
	}
	updates, err := sessionCfg.UpdateConfig()
	if err != nil {
		log.Fatalf("location updates: %v", err)
	}
	geofences, err := sessionCfg.GeofenceSpecs()
	if err != nil {
		log.Fatalf("geofences: %v", err)
	}

	db, err := config.NewPostgres(cfg)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer func() { _ = db.Close() }()

	amqpConn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer func() { _ = amqpConn.Close() }()

	rdb, err := config.NewRedis(cfg)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	coreModule, err := core.Build(ctx, db, amqpConn, rdb, config.NewMQTTOptions(cfg), core.Options{
		DeviceID:     cfg.DeviceID,
		Capability:   cfg.LocationCapability,
		HandleTarget: cfg.HandleTarget,
		LastFixTTL:   cfg.LastFixTTL,
		MaxWSClients: cfg.MaxWSClients,
		Updates:      updates,
		Geofences:    geofences,
		Titles:       sessionCfg.Titles(),
		Registry:     reg,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("core module: %v", err)
	}

	r := gin.Default()

	health := config.NewHealthChecker(db, amqpConn, rdb, coreModule.Backend)
	health.Register(r)

	coreModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coreModule.Run(gctx)
	})
	g.Go(func() error {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := coreModule.Session.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Println("shut down")
}
