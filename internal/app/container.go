package app

import (
	"context"
	"log"
	"time"

	"grid-pulse/internal/config"
	"grid-pulse/internal/database"
	dbpostgres "grid-pulse/internal/database/postgres"
	"grid-pulse/internal/infrastructure/cache"
	"grid-pulse/internal/infrastructure/source"
	"grid-pulse/internal/poller"
	"grid-pulse/internal/repository"
	"grid-pulse/internal/usecase"
	"grid-pulse/internal/ws"
)

// Container owns the application-lifetime instances: the connection pool,
// both polling workers, the aggregator and the caches. There is exactly one
// of each per process, but none of them are package globals; everything that
// needs one gets it from here.
type Container struct {
	Config config.Config
	DB     database.DB
	Cache  *cache.Redis
	Hub    *ws.Hub

	MeterWorker *poller.Worker
	VRMWorker   *poller.Worker
	Aggregator  *usecase.HealthAggregator
	StatusCache *usecase.StatusCache
	History     *usecase.HistoryUsecase

	logger *log.Logger
	cancel context.CancelFunc
}

func NewContainer(cfg config.Config) (*Container, error) {
	logger := log.Default()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	redisCache := cache.NewRedis(logger)

	readingRepo := repository.NewPostgresReadingRepository(db)
	statusRepo := repository.NewPostgresPollingStatusRepository(db)
	qualityRepo := repository.NewPostgresQualityRepository(db)
	snapshotRepo := repository.NewPostgresSnapshotRepository(db)

	meterClient := source.NewMeterClient(cfg.Meter, logger)
	vrmClient := source.NewVRMClient(cfg.VRM, logger)

	limiter := poller.NewRateLimiter(logger)
	meterWorker := poller.NewWorker(meterClient, readingRepo, cfg.Meter.PollInterval, logger)
	vrmWorker := poller.NewRateLimitedWorker(
		vrmClient, readingRepo, statusRepo, cfg.VRM.InstallationID,
		cfg.VRM.PollInterval, limiter, logger,
	)

	hub := ws.NewHub(logger)

	aggregator := usecase.NewHealthAggregator(
		db, qualityRepo, snapshotRepo,
		meterWorker, vrmWorker, limiter, hub, redisCache,
		cfg.Monitoring.AggregatorInterval, logger,
	)

	return &Container{
		Config:      cfg,
		DB:          db,
		Cache:       redisCache,
		Hub:         hub,
		MeterWorker: meterWorker,
		VRMWorker:   vrmWorker,
		Aggregator:  aggregator,
		StatusCache: usecase.NewStatusCache(aggregator, logger),
		History:     usecase.NewHistoryUsecase(snapshotRepo, redisCache, logger),
		logger:      logger,
	}, nil
}

// StartBackground launches the hub, both pollers and the aggregator. A
// worker that refuses to start (missing credentials) is logged and skipped;
// the rest of the service keeps running without it.
func (c *Container) StartBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.Hub.Run()

	if err := c.MeterWorker.Start(ctx); err != nil {
		c.logger.Printf("container worker=meter status=skipped err=%v", err)
	}
	if err := c.VRMWorker.Start(ctx); err != nil {
		c.logger.Printf("container worker=vrm status=skipped err=%v", err)
	}

	go c.Aggregator.Run(ctx)
}

// StopBackground cancels the loops and waits for in-flight cycles.
func (c *Container) StopBackground() {
	if c == nil || c.cancel == nil {
		return
	}
	c.cancel()
	c.MeterWorker.Stop()
	c.VRMWorker.Stop()
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
