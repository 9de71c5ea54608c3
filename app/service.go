package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/twpayne/go-geom"

	"github.com/kilianp07/provision/config"
	"github.com/kilianp07/provision/core/isochrone"
	coremetrics "github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/core/model"
	coremon "github.com/kilianp07/provision/core/monitoring"
	"github.com/kilianp07/provision/core/provision"
	"github.com/kilianp07/provision/core/provision/history"
	"github.com/kilianp07/provision/core/provision/reference"
	"github.com/kilianp07/provision/core/territory"
	"github.com/kilianp07/provision/infra/logger"
	"github.com/kilianp07/provision/infra/metrics"
	"github.com/kilianp07/provision/infra/monitoring"
	"github.com/kilianp07/provision/infra/mqtt"
	"github.com/kilianp07/provision/infra/postgres"
	"github.com/kilianp07/provision/infra/redis"
	_ "github.com/kilianp07/provision/infra/routing"
	"github.com/kilianp07/provision/internal/eventbus"
)

// Service wires the stores, the resolver and the engine.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	db       *sql.DB
	redis    *goredis.Client
	sink     coremetrics.MetricsSink
	bus      *eventbus.Bus
	history  history.LogStore
	resolver *isochrone.Resolver
	store    *territory.Store
	engine   *provision.Engine
}

// New creates a Service from the configuration. Resources opened before a
// failure are released.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	logger.SetLevel(cfg.Log.Level)
	s := &Service{cfg: cfg, log: logger.New("service"), bus: eventbus.New()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	var (
		repo territory.Repository
		cold isochrone.Store
	)
	switch cfg.Database.Driver {
	case "postgres":
		s.db, err = postgres.Open(ctx, postgres.Options{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, s.db); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		repo = postgres.NewRepository(s.db)
		cold = postgres.NewIsochroneStore(s.db)
	default:
		s.log.Warnf("database driver %s keeps data in memory only", cfg.Database.Driver)
		repo = territory.NewMemoryRepository()
		cold = isochrone.NewMemoryStore()
	}

	geoms := cold
	if cfg.Redis.Enabled() {
		opts := redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Prefix:   cfg.Redis.Prefix,
		}
		if s.redis, err = redis.Open(ctx, opts); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		geoms = redis.NewTieredStore(s.redis, cold, opts, logger.New("isochrone-cache"))
	}

	provider, err := isochrone.NewProvider(cfg.Isochrone.Provider)
	if err != nil {
		return nil, fmt.Errorf("isochrone provider: %w", err)
	}
	isoRec, _ := s.sink.(coremetrics.IsochroneRecorder)
	if s.resolver, err = isochrone.NewResolver(cfg.Isochrone.Resolver, geoms, provider, logger.New("isochrone"), isoRec); err != nil {
		return nil, fmt.Errorf("isochrone resolver: %w", err)
	}

	aggRec, _ := s.sink.(coremetrics.AggregateRecorder)
	s.store = territory.NewStore(repo, territory.NewCityCache(),
		territory.WithLogger(logger.New("territory")),
		territory.WithRecorder(aggRec),
		territory.WithBus(s.bus),
	)

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("reference data: %w", err)
	}
	if s.history, err = history.NewLogStore(cfg.History); err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	s.engine, err = provision.NewEngine(catalog, s.store,
		provision.WithLogger(logger.New("provision")),
		provision.WithMetrics(s.sink),
		provision.WithBus(s.bus),
		provision.WithHistory(s.history),
	)
	if err != nil {
		return nil, fmt.Errorf("provision engine: %w", err)
	}
	return s, nil
}

func (s *Service) loadCatalog(ctx context.Context) (*provision.Catalog, error) {
	if s.cfg.Reference.Source == "database" {
		tables, err := postgres.LoadReference(ctx, s.db)
		if err != nil {
			return nil, err
		}
		return tables.Catalog()
	}
	return reference.LoadCatalog(s.cfg.Reference.Path)
}

// Aggregate scores one target unit.
func (s *Service) Aggregate(ctx context.Context, q provision.Query) (provision.Result, error) {
	return s.engine.Aggregate(ctx, q)
}

// AggregateLevel scores every unit of a level on the configured pool.
func (s *Service) AggregateLevel(ctx context.Context, level model.Level, q provision.Query) (provision.BatchResult, error) {
	return s.engine.AggregateLevel(ctx, level, q, provision.BatchConfig{
		Workers:    s.cfg.Pool.Workers,
		QueueSlack: s.cfg.Pool.QueueSlack,
		Recorder:   s.taskRecorder(),
	})
}

// Resolve returns the isochrone around a point. With strict set, timeouts
// and upstream failures are returned instead of degraded.
func (s *Service) Resolve(ctx context.Context, lat, lon float64, minutes int, mode model.Mode, strict bool) (geom.T, error) {
	var opts []isochrone.ResolveOption
	if strict {
		opts = append(opts, isochrone.WithTimeoutError(), isochrone.WithUpstreamError())
	}
	return s.resolver.Resolve(ctx, lat, lon, minutes, mode, opts...)
}

// Precompute rebuilds the aggregates of the whole hierarchy.
func (s *Service) Precompute(ctx context.Context) (territory.PrecomputeReport, error) {
	return s.store.Precompute(ctx, s.precomputeConfig())
}

// Run serves the Prometheus endpoint and, when a broker is configured,
// bridges invalidations and updates over MQTT. It blocks until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.cfg.MQTT.Broker == "" {
		s.log.Warnf("no mqtt broker configured, waiting for shutdown")
		<-ctx.Done()
		return nil
	}

	client, err := newBroker(s.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	refresher, err := s.store.NewRefresher(ctx, s.precomputeConfig())
	if err != nil {
		return fmt.Errorf("refresh pool: %w", err)
	}
	defer func() {
		if err := refresher.Close(); err != nil {
			s.log.Warnf("refresh pool close: %v", err)
		}
	}()

	pub := mqtt.NewPublisher(client, s.bus, s.cfg.MQTT.TopicPrefix, logger.New("mqtt-publisher"))
	forwarding := pub.Start(ctx)

	listener := mqtt.NewListener(client, s.cfg.MQTT.InvalidateTopic, refresher.Submit, logger.New("mqtt-listener"))
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("mqtt listener: %w", err)
	}
	s.log.Infow("listening for invalidations", map[string]any{"topic": s.cfg.MQTT.InvalidateTopic})
	<-ctx.Done()
	<-forwarding
	return nil
}

// broker is the part of the MQTT client used by Run.
type broker interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, h mqtt.MessageHandler) error
	Disconnect()
}

var newBroker = func(cfg mqtt.Config) (broker, error) {
	c, err := mqtt.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) precomputeConfig() territory.PrecomputeConfig {
	return territory.PrecomputeConfig{
		Workers:      s.cfg.Pool.Workers,
		QueueSlack:   s.cfg.Pool.QueueSlack,
		PollInterval: s.cfg.Pool.PollInterval,
		Recorder:     s.taskRecorder(),
	}
}

func (s *Service) taskRecorder() coremetrics.TaskRecorder {
	rec, _ := s.sink.(coremetrics.TaskRecorder)
	return rec
}

// Close cancels background isochrone retries and releases resources held by
// the service.
func (s *Service) Close() error {
	var errs []error
	if s.resolver != nil {
		s.resolver.Close()
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	s.bus.Close()
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
