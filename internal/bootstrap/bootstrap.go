// Package bootstrap provides dependency initialization for the artstyle API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/artstyle-api/internal/config"
	"github.com/maauso/artstyle-api/internal/job"
	"github.com/maauso/artstyle-api/internal/media"
	"github.com/maauso/artstyle-api/internal/render"
	"github.com/maauso/artstyle-api/internal/server"
	"github.com/maauso/artstyle-api/internal/storage"
	"github.com/maauso/artstyle-api/internal/style"
)

// Manual cleanup limits applied by POST /cleanup.
const (
	manualUploadMaxAge = time.Hour
	manualResultMaxAge = 24 * time.Hour
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	StyleService *job.StyleService
	Dispatcher   *style.Dispatcher
	Sweeper      *storage.Sweeper
	Dirs         storage.Dirs
	// Cleanup is the policy of the manual cleanup endpoint.
	Cleanup server.CleanupPolicy
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	dirs := storage.Dirs{
		Upload: cfg.UploadDir,
		Result: cfg.ResultDir,
		Temp:   cfg.TempDir,
	}

	// Initialize storage
	store, err := initStorage(cfg, dirs, logger)
	if err != nil {
		return nil, err
	}

	// Build and self-check the style pipelines
	dispatcher, report := style.NewDispatcher(
		style.WithSeed(cfg.KMeansSeed),
		style.WithLogger(logger),
	)
	logInitReport(logger, report)

	// Initialize media processor and pipeline runner
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	runner := render.NewRunner(dispatcher, processor, store,
		render.WithFrameWorkers(cfg.FrameWorkers),
		render.WithLogger(logger),
	)

	// Initialize job repository and service
	repo := job.NewMemoryRepository()
	svc := job.NewStyleService(repo, runner, store, logger,
		job.WithPublishToS3(cfg.S3Enabled()),
	)

	sweeper := storage.NewSweeper(cfg.CleanupInterval,
		[]storage.SweepRule{
			{Dir: dirs.Upload, MaxAge: cfg.UploadRetention},
			{Dir: dirs.Result, MaxAge: cfg.ResultRetention},
		},
		storage.WithSweepLogger(logger),
		storage.WithPruner(func(ctx context.Context) (int, error) {
			return svc.PruneJobs(ctx, cfg.ResultRetention)
		}),
	)

	return &Dependencies{
		StyleService: svc,
		Dispatcher:   dispatcher,
		Sweeper:      sweeper,
		Dirs:         dirs,
		Cleanup: server.CleanupPolicy{
			Rules: []storage.SweepRule{
				{Dir: dirs.Upload, MaxAge: manualUploadMaxAge},
				{Dir: dirs.Result, MaxAge: manualResultMaxAge},
			},
			JobMaxAge: manualResultMaxAge,
		},
	}, nil
}

// HandlerOptions returns the server options matching the dependencies.
func (d *Dependencies) HandlerOptions(cfg *config.Config) []server.HandlerOption {
	return []server.HandlerOption{
		server.WithStyleReporter(d.Dispatcher),
		server.WithSweeper(d.Sweeper, d.Cleanup),
		server.WithResultDir(d.Dirs.Result),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	}
}

func logInitReport(logger *slog.Logger, report style.InitReport) {
	for _, s := range report.Ready {
		logger.Info("style pipeline ready", slog.String("style", string(s)))
	}
	for s, err := range report.Degraded {
		logger.Warn("style pipeline degraded",
			slog.String("style", string(s)),
			slog.String("error", err.Error()),
		)
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, dirs storage.Dirs, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(dirs, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(dirs)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("upload_dir", dirs.Upload),
		slog.String("result_dir", dirs.Result),
		slog.String("temp_dir", dirs.Temp),
	)
	return localStore, nil
}
