package cli

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/app"
	"scorm-quiz-service/internal/config"
	"scorm-quiz-service/internal/infra/memory"
	pgstore "scorm-quiz-service/internal/infra/postgres"
	redisstore "scorm-quiz-service/internal/infra/redis"
	"scorm-quiz-service/internal/infra/web"
	"scorm-quiz-service/internal/logging"
	"scorm-quiz-service/internal/scorm"
	"scorm-quiz-service/internal/storage"
)

// runtime holds the stores every command shares. Redis and Postgres are
// optional; without them everything stays in process memory.
type runtime struct {
	cfg config.Config
	log *zap.Logger

	pool        *pgxpool.Pool
	redisClient *redis.Client

	docs     app.DocumentStore
	store    *app.QuizDocuments
	quizzes  app.QuizRepository
	state    app.StateStore
	sessions app.SessionRepository
	blobs    storage.BlobStore
	fetcher  app.Fetcher
}

func loadRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newRuntime(ctx, cfg)
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{
		cfg: cfg,
		log: logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}),
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		rt.pool = pool
		rt.docs = pgstore.NewDocumentStore(pool)
	} else {
		rt.log.Warn("postgres url not configured, documents are kept in memory")
		rt.docs = memory.NewDocumentStore()
	}
	rt.store = app.NewQuizDocuments(rt.docs)

	if cfg.Redis.Addr != "" {
		rt.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if rt.redisClient != nil {
		instance, _ := os.Hostname()
		rt.quizzes = redisstore.NewQuizRepository(rt.redisClient, rt.store, quizTTL, rt.log)
		rt.state = redisstore.NewStateStore(rt.redisClient, config.TTLDuration(cfg.Redis.StateTTL, 7*24*time.Hour))
		rt.sessions = redisstore.NewSessionStore(rt.redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute), instance)
	} else {
		rt.quizzes = memory.NewQuizRepository(rt.store, quizTTL)
		rt.state = memory.NewStateStore()
		rt.sessions = memory.NewSessionStore()
	}

	blobs, err := storage.New(ctx, storage.Options{
		Type:      cfg.Storage.Type,
		LocalPath: cfg.Storage.LocalPath,
		Minio: storage.MinioOptions{
			Endpoint:  cfg.Storage.Minio.Endpoint,
			AccessKey: cfg.Storage.Minio.AccessKey,
			SecretKey: cfg.Storage.Minio.SecretKey,
			Bucket:    cfg.Storage.Minio.Bucket,
			UseSSL:    cfg.Storage.Minio.UseSSL,
		},
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.blobs = blobs
	if cfg.Storage.SeedTemplates {
		n, err := scorm.SeedTemplates(ctx, blobs, false)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.log.Info("templates seeded", zap.Int("written", n))
	}

	rt.fetcher = web.NewBlobFirstFetcher(blobs, web.NewHTTPFetcher(rt.prefetchTimeout()))
	return rt, nil
}

func (rt *runtime) prefetchTimeout() time.Duration {
	return config.TTLDuration(rt.cfg.Prefetch.Timeout, 30*time.Second)
}

func (rt *runtime) builder() *scorm.Builder {
	return scorm.NewBuilder(rt.blobs, rt.fetcher, rt.cfg.Package.Concurrency, rt.log)
}

func (rt *runtime) Close() {
	if rt.redisClient != nil {
		_ = rt.redisClient.Close()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
	_ = rt.log.Sync()
}
