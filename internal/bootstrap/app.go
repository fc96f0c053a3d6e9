// Package bootstrap builds the object graph shared by the server and the
// admin CLI from one Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	docservice "kycvault/internal/document/service"
	docmemory "kycvault/internal/document/store/memory"
	docpostgres "kycvault/internal/document/store/postgres"
	"kycvault/internal/encryption"
	kycmodels "kycvault/internal/kyc/models"
	kycservice "kycvault/internal/kyc/service"
	"kycvault/internal/platform/config"
	"kycvault/internal/platform/httpserver"
	"kycvault/internal/platform/kafka"
	"kycvault/internal/platform/metrics"
	"kycvault/internal/platform/postgres"
	redisclient "kycvault/internal/platform/redis"
	rlmetrics "kycvault/internal/ratelimit/metrics"
	rlmodels "kycvault/internal/ratelimit/models"
	rlservice "kycvault/internal/ratelimit/service"
	"kycvault/internal/ratelimit/store/bucket"
	"kycvault/internal/scan"
	"kycvault/internal/scan/scanners/clamd"
	"kycvault/internal/scan/scanners/signature"
	scanmemory "kycvault/internal/scan/store/memory"
	scanpostgres "kycvault/internal/scan/store/postgres"
	"kycvault/internal/storage"
	"kycvault/internal/storage/objectstore"
	"kycvault/internal/storage/objectstore/local"
	"kycvault/internal/storage/objectstore/s3"
	"kycvault/internal/storage/orphans"
	"kycvault/internal/validation"
	"kycvault/pkg/domain"
	"kycvault/pkg/platform/audit"
	"kycvault/pkg/platform/audit/outbox"
	"kycvault/pkg/platform/audit/publishers/buffered"
	auditmemory "kycvault/pkg/platform/audit/store/memory"
	auditpostgres "kycvault/pkg/platform/audit/store/postgres"
)

const (
	orphanRegistryKey = "kycvault:orphans"
	poolStatsInterval = time.Minute
)

// App holds the wired services and the infrastructure they share.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Registry

	DB       *sqlx.DB
	Redis    *redisclient.Client
	Producer *kafka.Producer

	Audit     *buffered.Publisher
	Relay     *outbox.Relay
	Engine    *encryption.Engine
	Storage   *storage.Manager
	Scanner   *scan.Orchestrator
	Validator *validation.Pipeline
	Limiter   *rlservice.UploadLimiter
	Documents *docservice.Service
	KYC       *kycservice.Service
	Catalog   domain.Catalog

	Checks map[string]httpserver.Check
}

// Build connects to every configured backend and wires the services. Without
// DATABASE_URL or REDIS_URL the in-memory stores are used.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (app *App, err error) {
	app = &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Checks:  map[string]httpserver.Check{},
	}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	catalog, requirements, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return app, err
	}
	app.Catalog = catalog

	if err := app.connect(ctx); err != nil {
		return app, err
	}
	app.buildAudit()

	if app.Engine, err = app.buildEngine(); err != nil {
		return app, err
	}
	if app.Storage, err = app.buildStorage(ctx); err != nil {
		return app, err
	}
	if app.Scanner, err = app.buildScanner(); err != nil {
		return app, err
	}
	app.Validator = validation.New(validationConfig(cfg.Validation),
		validation.WithLogger(logger),
		validation.WithMetrics(validation.NewMetrics(app.Metrics)))
	if app.Limiter, err = app.buildLimiter(); err != nil {
		return app, err
	}

	repo := app.documentRepository()
	app.Documents, err = docservice.New(repo, catalog, app.Scanner, app.Validator, app.Engine, app.Storage,
		docservice.WithLimiter(app.Limiter),
		docservice.WithMaxInFlight(cfg.Limits.MaxInFlight),
		docservice.WithMaxUploadSize(cfg.Validation.HardMaxSize),
		docservice.WithSink(app.Audit),
		docservice.WithLogger(logger),
		docservice.WithMetrics(docservice.NewMetrics(app.Metrics)),
	)
	if err != nil {
		return app, fmt.Errorf("document service: %w", err)
	}
	app.KYC, err = kycservice.New(repo, requirements,
		kycservice.WithSink(app.Audit),
		kycservice.WithLogger(logger),
		kycservice.WithMetrics(kycservice.NewMetrics(app.Metrics)),
	)
	if err != nil {
		return app, fmt.Errorf("kyc service: %w", err)
	}
	return app, nil
}

// Run drives the background workers until ctx is cancelled. The audit
// publisher drains its buffer before returning.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Audit.Run(ctx) })
	if a.Relay != nil {
		g.Go(func() error { return a.Relay.Run(ctx) })
	}
	if a.DB != nil {
		g.Go(func() error {
			ticker := time.NewTicker(poolStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					postgres.LogStats(ctx, a.Logger, a.DB)
				}
			}
		})
	}
	return g.Wait()
}

// Flush persists buffered audit events. Short-lived CLI commands call it
// before exiting since they never start Run.
func (a *App) Flush(ctx context.Context) error {
	for a.Audit != nil && a.Audit.Pending() > 0 {
		if _, err := a.Audit.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Close() {
	if a.Producer != nil {
		a.Producer.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("database close failed", "error", err)
		}
	}
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.DB = db
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		a.Checks["postgres"] = postgres.Health(db)
	} else {
		a.Logger.Warn("DATABASE_URL not set; documents, scans and audit events are kept in memory")
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		a.Redis = rdb
		a.Checks["redis"] = rdb.Health
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if a.DB == nil {
			return errors.New("KAFKA_BROKERS requires DATABASE_URL for the audit outbox")
		}
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		a.Producer = producer
		a.Checks["kafka"] = producer.Health
	}
	return nil
}

func (a *App) buildAudit() {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if a.DB != nil {
		store = auditpostgres.New(a.DB)
	}
	a.Audit = buffered.New(store,
		buffered.WithLogger(a.Logger),
		buffered.WithMetrics(buffered.NewMetrics(a.Metrics)))
	if a.Producer != nil {
		a.Relay = outbox.NewRelay(a.DB, a.Producer, a.Config.Kafka.TopicPrefix, outbox.WithLogger(a.Logger))
	}
}

// EnsureTopics creates one audit topic per event category.
func (a *App) EnsureTopics(ctx context.Context) error {
	if a.Producer == nil {
		return errors.New("kafka is not configured")
	}
	prefix := a.Config.Kafka.TopicPrefix
	return a.Producer.EnsureTopics(ctx, a.Config.Kafka.Partitions, a.Config.Kafka.ReplicationFactor,
		outbox.TopicForCategory(prefix, audit.CategoryCompliance),
		outbox.TopicForCategory(prefix, audit.CategorySecurity),
		outbox.TopicForCategory(prefix, audit.CategoryOperations),
	)
}

func (a *App) buildEngine() (*encryption.Engine, error) {
	if a.Config.Encryption.MasterKey == "" {
		return nil, errors.New("ENCRYPTION_MASTER_KEY is required")
	}
	key, err := encryption.ParseMasterKey(a.Config.Encryption.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_MASTER_KEY: %w", err)
	}
	return encryption.New(key,
		encryption.WithIterations(a.Config.Encryption.Iterations),
		encryption.WithLogger(a.Logger),
		encryption.WithMetrics(encryption.NewMetrics(a.Metrics)))
}

func (a *App) buildStorage(ctx context.Context) (*storage.Manager, error) {
	cfg := a.Config.Storage
	var primary, backup objectstore.ObjectStore
	switch cfg.Backend {
	case "s3":
		opts := s3.Options{
			Region:          cfg.Region,
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Endpoint:        cfg.Endpoint,
			ForcePathStyle:  cfg.ForcePathStyle,
			SSE:             cfg.SSE,
			KMSKeyID:        cfg.KMSKeyID,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}
		p, err := s3.New(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("primary bucket: %w", err)
		}
		primary = p
		if cfg.BackupEnabled && cfg.BackupBucket != "" {
			opts.Bucket = cfg.BackupBucket
			b, err := s3.New(ctx, opts)
			if err != nil {
				return nil, fmt.Errorf("backup bucket: %w", err)
			}
			backup = b
		}
	case "local", "":
		p, err := local.New(filepath.Join(cfg.LocalRoot, "primary"))
		if err != nil {
			return nil, err
		}
		primary = p
		if cfg.BackupEnabled {
			b, err := local.New(filepath.Join(cfg.LocalRoot, "backup"))
			if err != nil {
				return nil, err
			}
			backup = b
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Backend)
	}

	var registry orphans.Registry = orphans.NewInMemory()
	if a.Redis != nil {
		registry = orphans.NewRedis(a.Redis.Client, orphanRegistryKey)
	}
	opts := []storage.Option{
		storage.WithCipher(a.Engine),
		storage.WithOrphanRegistry(registry),
		storage.WithSink(a.Audit),
		storage.WithLogger(a.Logger),
		storage.WithMetrics(storage.NewMetrics(a.Metrics)),
		storage.WithOpTimeout(cfg.OpTimeout),
		storage.WithMaxRetries(cfg.MaxRetries),
	}
	if backup != nil {
		opts = append(opts, storage.WithBackup(backup))
	}
	return storage.New(primary, opts...)
}

func (a *App) buildScanner() (*scan.Orchestrator, error) {
	cfg := a.Config.Scan
	var scanners []scan.Scanner
	if cfg.SignatureEnable {
		var hashes []string
		if cfg.BlocklistFile != "" {
			loaded, err := signature.LoadBlocklist(cfg.BlocklistFile)
			if err != nil {
				return nil, err
			}
			hashes = loaded
		}
		scanners = append(scanners, signature.New(signature.WithBlocklist(hashes...)))
	}
	if cfg.ClamdAddr != "" {
		c, err := clamd.New(cfg.ClamdAddr, clamd.WithSink(a.Audit), clamd.WithLogger(a.Logger))
		if err != nil {
			return nil, err
		}
		scanners = append(scanners, c)
		a.Checks["clamd"] = c.Ping
	}
	if len(scanners) == 0 {
		a.Logger.Warn("no malware scanners configured; uploads will be marked assumed clean")
	}

	var results scan.ResultStore = scanmemory.New()
	if a.DB != nil {
		results = scanpostgres.New(a.DB)
	}
	return scan.New(scanners, results,
		scan.WithTimeout(cfg.Timeout),
		scan.WithSink(a.Audit),
		scan.WithLogger(a.Logger),
		scan.WithMetrics(scan.NewMetrics(a.Metrics)))
}

func (a *App) buildLimiter() (*rlservice.UploadLimiter, error) {
	var buckets rlservice.BucketStore = bucket.New()
	if a.Redis != nil {
		buckets = bucket.NewRedis(a.Redis.Client, "")
	}
	limit := rlmodels.Limit{Requests: a.Config.Limits.UploadsPerWindow, Window: a.Config.Limits.UploadWindow}
	return rlservice.New(buckets, limit,
		rlservice.WithSink(a.Audit),
		rlservice.WithLogger(a.Logger),
		rlservice.WithMetrics(rlmetrics.New(a.Metrics)))
}

func (a *App) documentRepository() docservice.Repository {
	if a.DB != nil {
		return docpostgres.New(a.DB)
	}
	return docmemory.New()
}

func loadCatalog(path string) (domain.Catalog, kycmodels.Requirements, error) {
	catalog := domain.DefaultCatalog()
	if path == "" {
		return catalog, kycmodels.DefaultRequirements(), nil
	}
	cf, err := config.LoadCatalog(path, catalog)
	if err != nil {
		return nil, nil, err
	}
	requirements, err := kycmodels.FromConfig(cf.Requirements)
	if err != nil {
		return nil, nil, err
	}
	return cf.Merge(catalog), requirements, nil
}

// validationConfig overlays environment settings on the defaults, which
// carry the MIME and extension allow-lists.
func validationConfig(v config.Validation) validation.Config {
	c := validation.DefaultConfig()
	c.PassThreshold = v.PassThreshold
	c.MinSize = v.MinSize
	c.MaxSize = v.MaxSize
	c.HardMaxSize = v.HardMaxSize
	c.SizeTolerance = v.SizeTolerance
	c.ExtractionEnabled = v.ExtractionEnabled
	c.MinConfidence = v.MinConfidence
	c.MinImageWidth = v.MinImageWidth
	c.MinImageHeight = v.MinImageHeight
	c.MaxImageWidth = v.MaxImageWidth
	c.MaxImageHeight = v.MaxImageHeight
	return c
}
