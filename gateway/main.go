package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/lensworks/mediagate/internal/archive"
	"github.com/lensworks/mediagate/internal/dispatch"
	"github.com/lensworks/mediagate/internal/journal"
	"github.com/lensworks/mediagate/internal/platform/env"
	"github.com/lensworks/mediagate/internal/platform/httpserver"
	"github.com/lensworks/mediagate/internal/platform/objectstore"
	"github.com/lensworks/mediagate/internal/platform/postgres"
	"github.com/lensworks/mediagate/internal/registry"
	"github.com/lensworks/mediagate/internal/slots"
	"github.com/lensworks/mediagate/internal/staging"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("MEDIAGATE_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("MEDIAGATE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	slotCapacity, err := env.Int("MEDIAGATE_SLOT_CAPACITY", 5)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	jobTimeout, err := env.Duration("MEDIAGATE_JOB_TIMEOUT", 5*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	batchTimeout, err := env.Duration("MEDIAGATE_BATCH_TIMEOUT", 5*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	batchMaxSize, err := env.Int("MEDIAGATE_BATCH_MAX_SIZE", 5)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	batchMaxWait, err := env.Duration("MEDIAGATE_BATCH_MAX_WAIT", 100*time.Millisecond)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	fetchTimeout, err := env.Duration("MEDIAGATE_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	fetchMaxBytes, err := env.Int64("MEDIAGATE_FETCH_MAX_BYTES", 64<<20)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	opsFile := env.String("MEDIAGATE_OPS_FILE", "")

	stagingCfg, err := staging.DirConfigFromEnv()
	if err != nil {
		logger.Error("invalid staging config", "error", err)
		os.Exit(2)
	}
	store, err := staging.NewDirStore(stagingCfg)
	if err != nil {
		logger.Error("staging dir unavailable", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	if opsFile != "" {
		if err := registry.LoadFile(reg, opsFile); err != nil {
			logger.Error("invalid operations file", "path", opsFile, "error", err)
			os.Exit(2)
		}
	} else {
		if err := registry.RegisterBuiltins(reg); err != nil {
			logger.Error("builtin operations failed", "error", err)
			os.Exit(2)
		}
	}
	logger.Info("operations registered", "operations", reg.Names())

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	var db *sql.DB
	if dbCfg.Enabled() {
		db, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := journal.EnsureSchema(startupCtx, db); err != nil {
			cancel()
			logger.Error("journal schema failed", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	var objects *minio.Client
	if storeCfg.Enabled() {
		objects, err = objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := objectstore.EnsureOutputsBucket(startupCtx, objects, storeCfg); err != nil {
			cancel()
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	pool, err := slots.NewPool(slotCapacity)
	if err != nil {
		logger.Error("invalid slot capacity", "error", err)
		os.Exit(2)
	}

	runner := &dispatch.Runner{
		Registry: reg,
		Staging:  store,
		Materializer: &staging.Materializer{
			Store:    store,
			Client:   &http.Client{Timeout: fetchTimeout},
			Objects:  objects,
			MaxBytes: fetchMaxBytes,
		},
		Slots:      pool,
		JobTimeout: jobTimeout,
		Logger:     logger,
	}
	coord := &dispatch.Coordinator{
		Runner:       runner,
		BatchTimeout: batchTimeout,
		Logger:       logger,
	}
	if db != nil {
		coord.Journal = &journal.Writer{DB: db, Logger: logger}
	}
	if objects != nil {
		coord.Archive = &archive.Writer{Client: objects, Bucket: storeCfg.BucketOutputs, Logger: logger}
	}

	assembler, err := dispatch.NewAssembler(ctx, coord, dispatch.AssemblerConfig{
		MaxSize: batchMaxSize,
		MaxWait: batchMaxWait,
	}, logger)
	if err != nil {
		logger.Error("invalid batch window config", "error", err)
		os.Exit(2)
	}

	checks := []httpserver.ReadinessCheck{
		{
			Name: "staging",
			Check: func(ctx context.Context) error {
				_, err := os.Stat(store.Root())
				return err
			},
		},
	}
	if db != nil {
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	}
	if objects != nil {
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckOutputsBucket(checkCtx, objects, storeCfg)
			},
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("mediagate"))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("mediagate", checks...))

	api := newGatewayAPI(logger, reg, coord, assembler)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "mediagate",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	logger.Info("gateway starting",
		"addr", addr,
		"slot_capacity", slotCapacity,
		"batch_max_size", batchMaxSize,
		"batch_max_wait", batchMaxWait.String(),
		"journal", db != nil,
		"archive", objects != nil)

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "mediagate", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
