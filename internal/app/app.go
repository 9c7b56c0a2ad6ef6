package app

import (
	"context"
	"fmt"
	"os"

	"queuemigrate/internal/config"
	"queuemigrate/internal/metrics"
	"queuemigrate/internal/progress"
	"queuemigrate/internal/queue"
	"queuemigrate/internal/snapshot"
	"queuemigrate/internal/storage"
	"queuemigrate/internal/worker"

	"go.uber.org/zap"
)

// Migrator wires stores, queue and workers for one action
type Migrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	srcClient storage.Source
	dstClient storage.Destination
	queue     queue.Queue
	ownsQueue bool
	metrics   *metrics.Collector
}

// Option overrides a collaborator that would otherwise be built from config
type Option func(*Migrator)

// WithSource uses client as the source store
func WithSource(client storage.Source) Option {
	return func(m *Migrator) { m.srcClient = client }
}

// WithDestination uses client as the destination store
func WithDestination(client storage.Destination) Option {
	return func(m *Migrator) { m.dstClient = client }
}

// WithQueue uses q as the work queue. The caller keeps ownership.
func WithQueue(q queue.Queue) Option {
	return func(m *Migrator) { m.queue = q }
}

// New creates a new migrator instance. Nothing is dialled until Run.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Migrator {
	m := &Migrator{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run validates the configuration for action and performs it
func (m *Migrator) Run(ctx context.Context, action config.Action) error {
	if err := m.cfg.ValidateFor(action); err != nil {
		return err
	}

	m.logger.Info("Starting action", zap.String("action", string(action)))

	switch action {
	case config.ActionEnumerate:
		return m.enumerate(ctx)
	case config.ActionLoad:
		return m.load(ctx)
	default:
		return m.migrate(ctx)
	}
}

func (m *Migrator) enumerate(ctx context.Context) error {
	src, err := m.source(ctx)
	if err != nil {
		return err
	}

	path := m.cfg.Migration.Snapshot
	w, err := snapshot.Create(path)
	if err != nil {
		return err
	}

	lister := NewObjectLister(src, m.cfg.Source.Bucket, m.cfg.Source.Prefix, m.logger)
	total, err := lister.Each(ctx, w.Add)
	if err != nil {
		w.Close()
		return fmt.Errorf("enumeration failed, snapshot %s is incomplete: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	m.logger.Info("Snapshot written", zap.String("snapshot", path), zap.Int64("total_objects", total))
	return nil
}

func (m *Migrator) load(ctx context.Context) error {
	q, err := m.openQueue(ctx)
	if err != nil {
		return err
	}

	_, err = NewLoader(q, m.logger).Load(ctx, m.cfg.Migration.Snapshot)
	return err
}

func (m *Migrator) migrate(ctx context.Context) error {
	src, err := m.source(ctx)
	if err != nil {
		return err
	}
	dst, err := m.destination(ctx)
	if err != nil {
		return err
	}
	q, err := m.openQueue(ctx)
	if err != nil {
		return err
	}

	if addr := m.cfg.Migration.MetricsAddr; addr != "" {
		serverCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := m.metrics.StartServer(serverCtx, addr); err != nil {
				m.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	var display *progress.Display
	if m.cfg.Migration.ShowProgress && m.cfg.Migration.StatusInterval > 0 && progress.IsTerminalSupported() {
		display = progress.NewDisplay(m.metrics.GetProgressTracker(), m.cfg.Migration.StatusInterval, os.Stdout)
		display.Start()
	}

	pool := worker.NewPool(m.cfg.Migration.Workers, worker.Config{
		SourceBucket:   m.cfg.Source.Bucket,
		TargetBucket:   m.cfg.Target.Bucket,
		AccessKey:      m.cfg.Target.AccessKey,
		SecretKey:      m.cfg.Target.SecretKey,
		RetryDelay:     m.cfg.Migration.RetryDelay,
		StatusInterval: m.cfg.Migration.StatusInterval,
	}, q, src, dst, m.metrics, m.logger)

	summary, err := pool.Run(ctx, &worker.StopSignal{})

	if display != nil {
		display.Stop()
	}

	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if n := summary.Count(worker.StateStopped); n > 0 {
		m.logger.Info("Migration interrupted, run migrate again to resume", zap.Int("stopped_workers", n))
		return nil
	}

	m.logger.Info("Migration completed", zap.Int64("migrated", summary.Migrated))
	return nil
}

func (m *Migrator) source(ctx context.Context) (storage.Source, error) {
	if m.srcClient != nil {
		return m.srcClient, nil
	}
	client, err := storage.Open(ctx, m.cfg.Source.Driver, storeConfig(m.cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}
	m.srcClient = client
	return client, nil
}

func (m *Migrator) destination(ctx context.Context) (storage.Destination, error) {
	if m.dstClient != nil {
		return m.dstClient, nil
	}
	client, err := storage.Open(ctx, m.cfg.Target.Driver, storeConfig(m.cfg.Target))
	if err != nil {
		return nil, fmt.Errorf("failed to create destination client: %w", err)
	}
	m.dstClient = client
	return client, nil
}

func (m *Migrator) openQueue(ctx context.Context) (queue.Queue, error) {
	if m.queue != nil {
		return m.queue, nil
	}

	qc := m.cfg.Queue
	var (
		q   queue.Queue
		err error
	)
	switch qc.Backend {
	case config.QueueSQLite:
		q, err = queue.NewSQLite(qc.SQLitePath, qc.Key)
	default:
		q, err = queue.NewRedis(ctx, queue.RedisOptions{
			Addr:     qc.RedisAddr,
			Password: qc.Password,
			DB:       qc.RedisDB,
			Key:      qc.Key,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	m.queue = q
	m.ownsQueue = true
	return q, nil
}

func storeConfig(sc config.StoreConfig) storage.Config {
	return storage.Config{
		Endpoint:  sc.Endpoint,
		Region:    sc.Region,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
		Secure:    sc.Secure,
	}
}

// Close cleans up resources
func (m *Migrator) Close() error {
	if m.ownsQueue && m.queue != nil {
		return m.queue.Close()
	}
	return nil
}
