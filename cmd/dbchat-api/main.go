package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbchat/dbchat/internal/api"
	"github.com/dbchat/dbchat/internal/audit"
	"github.com/dbchat/dbchat/internal/auth"
	"github.com/dbchat/dbchat/internal/config"
	"github.com/dbchat/dbchat/internal/database"
	"github.com/dbchat/dbchat/internal/nl2sql"
	"github.com/dbchat/dbchat/internal/observability"
	"github.com/dbchat/dbchat/internal/pipeline"
	s3store "github.com/dbchat/dbchat/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("dbchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := database.Open(context.Background(), database.DBConfig{
		Descriptor: database.Descriptor{
			Driver:   cfg.Database.Driver,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Name:     cfg.Database.Name,
			Params:   cfg.Database.Params,
		},
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
		SchemaSampleRows: cfg.Database.SchemaSampleRows,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	completer, err := newCompleter(cfg.Completion)
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cancelled by drain, after in-flight requests finish.
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()

	readiness := []api.ReadinessCheck{api.CheckHealth(db)}
	sinks := audit.Sinks{audit.LogSink{Logger: logger}}
	var archiveDone sync.WaitGroup
	if cfg.Audit.ArchiveEnabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archive := &audit.Archive{
			Store: objectStore,
			Config: audit.ArchiveConfig{
				FlushInterval:  cfg.Audit.FlushInterval,
				FlushThreshold: cfg.Audit.FlushThreshold,
				MaxPending:     cfg.Audit.MaxPending,
			},
			Logger: logger,
		}
		sinks = append(sinks, archive)
		readiness = append(readiness, api.CheckHealth(objectStore))

		archiveDone.Add(1)
		go func() {
			defer archiveDone.Done()
			logger.Info("starting audit archive", slog.String("bucket", objectStore.Bucket()))
			if err := archive.Run(archiveCtx); err != nil {
				logger.Error("audit archive stopped", slog.Any("error", err))
			}
		}()
	}

	orchestrator := pipeline.NewOrchestrator(
		nl2sql.NewQuerySynthesizer(completer, cfg.Completion.Model),
		pipeline.NewExecutor(logger, sinks),
		nl2sql.NewAnswerSynthesizer(completer, cfg.Completion.Model),
		logger,
	)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
		Database:          db,
		Chat:              orchestrator,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", db.Driver()),
			slog.String("completion_provider", cfg.Completion.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := drain(shutdownCtx, server, stopArchive, &archiveDone); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain waits for in-flight requests before stopping the audit archive, so
// the archive's final flush sees every record those requests wrote.
func drain(ctx context.Context, server shutdowner, stopArchive context.CancelFunc, archiveDone *sync.WaitGroup) error {
	err := server.Shutdown(ctx)
	stopArchive()
	archiveDone.Wait()
	return err
}

func newCompleter(cfg config.CompletionConfig) (nl2sql.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return nl2sql.NewOpenAICompleter(nl2sql.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case config.ProviderAnthropic:
		return nl2sql.NewAnthropicCompleter(nl2sql.AnthropicConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}
