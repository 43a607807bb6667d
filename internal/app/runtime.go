package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"

	"qero/api/internal/config"
	"qero/api/internal/dedupe"
	"qero/api/internal/metrics"
	"qero/api/internal/previewcache"
	"qero/api/internal/report"
	"qero/api/internal/search"
	"qero/api/internal/store"
)

var (
	_ dedupe.Store        = (*store.PostgresStore)(nil)
	_ dedupe.Indexer      = (*search.Service)(nil)
	_ dedupe.PreviewCache = (*previewcache.RedisStore)(nil)
	_ dedupe.ReportSink   = (*report.MinioSink)(nil)
	_ dedupe.Recorder     = (*metrics.Recorder)(nil)
	_ dedupe.Authorizer   = Authorizer{}
)

// Runtime holds the wired backends shared by the API server and the CLI.
type Runtime struct {
	DB      *sql.DB
	Store   *store.PostgresStore
	Engine  *dedupe.Service
	Search  *search.Service
	Metrics *metrics.Recorder
	Checks  map[string]Pinger

	closers []func()
}

// NewLogger builds a JSON production logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	parsed, err := zap.ParseAtomicLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg.Level = parsed
	return cfg.Build()
}

// Open connects to every configured backend and wires the dedupe engine.
// Redis, Meilisearch and object storage are optional.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt := &Runtime{DB: db}
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	rt.Store = store.NewPostgresStore(db)
	rt.Metrics = metrics.New()
	rt.Checks = map[string]Pinger{"database": rt.Store}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		rt.closers = append(rt.closers, meiliClient.Close)
	}
	rt.Search = search.NewService(meiliClient, search.NewPgFTS(db))

	opts := []dedupe.Option{
		dedupe.WithIndexer(rt.Search),
		dedupe.WithRecorder(rt.Metrics),
		dedupe.WithLogger(logger),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := previewcache.NewRedisStore(cfg.RedisURL, cfg.PreviewTTL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = cache.Close() })
		rt.Checks["redis"] = cache
		opts = append(opts, dedupe.WithPreviewCache(cache))
	} else {
		log.Printf("REDIS_URL not set, dedupe previews are not cached")
	}

	if strings.TrimSpace(cfg.ReportBucket) != "" {
		sink, err := report.NewMinioSink(report.Config{
			Endpoint:  cfg.ReportEndpoint,
			AccessKey: cfg.ReportAccessKey,
			SecretKey: cfg.ReportSecretKey,
			Bucket:    cfg.ReportBucket,
			Region:    cfg.ReportRegion,
			Prefix:    cfg.ReportPrefix,
			UseSSL:    cfg.ReportUseSSL,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("report storage: %w", err)
		}
		if err := sink.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: report bucket unavailable, uploads will be retried per run: %v", err)
		}
		opts = append(opts, dedupe.WithReportSink(sink))
	}

	rt.Engine = dedupe.NewService(rt.Store, Authorizer{}, opts...)
	return rt, nil
}

// Close releases backends in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
