package core

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nandanugg/geotrack/module/core/domain"
	handler "github.com/nandanugg/geotrack/module/core/internal/handler/http"
	"github.com/nandanugg/geotrack/module/core/internal/handler/subscriber"
	"github.com/nandanugg/geotrack/module/core/internal/handler/ws"
	"github.com/nandanugg/geotrack/module/core/internal/metrics"
	"github.com/nandanugg/geotrack/module/core/internal/repository/cache/redis"
	"github.com/nandanugg/geotrack/module/core/internal/repository/database/postgres"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform"
	"github.com/nandanugg/geotrack/module/core/internal/repository/platform/geofencing"
	platformmqtt "github.com/nandanugg/geotrack/module/core/internal/repository/platform/mqtt"
	"github.com/nandanugg/geotrack/module/core/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/geotrack/module/core/service"
)

type Options struct {
	DeviceID     string
	Capability   string
	HandleTarget string
	LastFixTTL   time.Duration
	MaxWSClients int

	Updates   domain.LocationUpdateConfig
	Geofences []domain.GeofenceSpec
	// Titles labels the marker placed at each geofence center.
	Titles map[string]string

	Registry *prometheus.Registry
	Logger   *slog.Logger
}

type Module struct {
	Session  *service.Session
	Backend  *platformmqtt.LocationBackend
	Engine   *geofencing.Engine
	Location *service.LocationService

	locationHandler *handler.LocationHandler
	sessionHandler  *handler.SessionHandler
	wsHandler       *ws.Handler
	metrics         *metrics.Metrics
}

func Build(ctx context.Context, db *sql.DB, amqpConn *amqp.Connection, rdb goredis.Cmdable,
	mqttOpts *mqtt.ClientOptions, opts Options) (*Module, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	locationRepo := postgres.NewLocationRepo(db)
	geofenceRepo := postgres.NewGeofenceRepo(db)
	lastFix := redis.NewLastFixCache(rdb, opts.LastFixTTL)

	pub, err := rabbitmq.NewPublisher(amqpConn)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	locationSvc := service.NewLocationService(locationRepo, lastFix, logger.With("component", "location"))

	// Backends are built before the session they report to.
	var session *service.Session
	dispatch := platform.DispatcherFunc(func(cb domain.Callback) {
		session.Dispatch(cb)
	})

	engine := geofencing.NewEngine(geofenceRepo, pub, dispatch, logger.With("component", "engine"))
	if err := engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("load geofences: %w", err)
	}

	backend := platformmqtt.NewLocationBackend(mqttOpts, opts.DeviceID, dispatch, locationSvc, logger.With("component", "mqtt"))
	perms := platformmqtt.NewPermissionSubsystem(backend, dispatch, logger.With("component", "mqtt"))

	broadcaster := ws.NewBroadcaster(opts.MaxWSClients, logger.With("component", "ws"))
	m := metrics.New(opts.Registry)
	sink := service.Fanout{
		service.NewViewSync(broadcaster, opts.Titles),
		m,
		service.NewPublishingSink(pub, logger.With("component", "publisher")),
	}

	session = service.NewSession(backend, engine, perms, service.SessionConfig{
		Capability:   opts.Capability,
		HandleTarget: opts.HandleTarget,
		Updates:      opts.Updates,
		Geofences:    opts.Geofences,
	}, sink, logger)

	sub := subscriber.NewLocationSubscriber(locationSvc, backend, engine, logger.With("component", "subscriber"))
	sub.Register(backend, opts.DeviceID)

	return &Module{
		Session:         session,
		Backend:         backend,
		Engine:          engine,
		Location:        locationSvc,
		locationHandler: handler.NewLocationHandler(locationSvc),
		sessionHandler:  handler.NewSessionHandler(session),
		wsHandler:       ws.NewHandler(broadcaster, logger.With("component", "ws")),
		metrics:         m,
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.locationHandler.Register(r)
	m.sessionHandler.Register(r)
	m.wsHandler.Register(r)
	m.metrics.Register(r)
}

// Run drives the session until ctx is cancelled and waits for in-flight
// geofence registrations.
func (m *Module) Run(ctx context.Context) error {
	err := m.Session.Run(ctx)
	m.Engine.Wait()
	return err
}
