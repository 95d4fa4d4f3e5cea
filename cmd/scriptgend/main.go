// Command scriptgend is the script generator server daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/K-Arthur/script-generator/chunker"
	"github.com/K-Arthur/script-generator/config"
	"github.com/K-Arthur/script-generator/events"
	"github.com/K-Arthur/script-generator/generation"
	"github.com/K-Arthur/script-generator/ingest"
	"github.com/K-Arthur/script-generator/internal/version"
	"github.com/K-Arthur/script-generator/orchestrator"
	"github.com/K-Arthur/script-generator/server"
	"github.com/K-Arthur/script-generator/server/api"
	"github.com/K-Arthur/script-generator/task"
	"github.com/K-Arthur/script-generator/telemetry"
	"github.com/K-Arthur/script-generator/templates"
	"github.com/K-Arthur/script-generator/validation"
)

const shutdownTimeout = 30 * time.Second

var configPath = flag.String("config", "", "path to YAML config file (defaults apply when empty)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting scriptgend",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scriptgend exited", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	metrics := telemetry.New()

	providers, err := buildProviders(cfg.Generation)
	if err != nil {
		return err
	}
	gen, err := generation.NewClient(providers,
		generation.WithLogger(logger),
		generation.WithTemplates(reg),
		generation.WithSystemPrompt(cfg.Generation.SystemPrompt),
		generation.WithMinWordCount(cfg.Generation.MinWordCount),
		generation.WithRetryConfig(generation.RetryConfig{
			MaxAttempts:       cfg.Generation.Retry.MaxAttempts,
			BackoffBase:       cfg.Generation.Retry.BackoffBase,
			BackoffMultiplier: cfg.Generation.Retry.BackoffMultiplier,
			MaxBackoff:        cfg.Generation.Retry.MaxBackoff,
		}),
		generation.WithObserver(metrics),
	)
	if err != nil {
		return err
	}

	chunks, err := chunker.New(chunker.Config{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap})
	if err != nil {
		return err
	}

	validator := validation.New(reg, thresholds(cfg.Quality))

	bus := events.NewInMemoryBus()
	if cfg.Events.NATSURL != "" {
		fwd, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer fwd.Close() //nolint:errcheck
		bus.Subscribe(fwd.Handle)
		logger.Info("forwarding task events to nats", slog.String("url", cfg.Events.NATSURL))
	}

	orch := orchestrator.New(store, gen, validator,
		orchestrator.WithLogger(logger),
		orchestrator.WithChunker(chunks),
		orchestrator.WithEvents(bus),
		orchestrator.WithObserver(metrics),
		orchestrator.WithTaskTimeout(cfg.TaskTimeout),
	)

	var pruner *task.Pruner
	if cfg.Retention.TTL > 0 {
		pruner, err = task.NewPruner(store, cfg.Retention.TTL, cfg.Retention.Schedule, logger)
		if err != nil {
			return err
		}
		pruner.Start()
	}

	srv := server.New(cfg.Server, logger)
	srv.SetHandlers(&api.Handlers{
		Tasks:     orch,
		Checker:   validator,
		Templates: reg,
		Uploads:   ingest.NewDecoder(),
		Logger:    logger,
		Version:   version.Version,
		StartAt:   time.Now(),
	})
	srv.SetEvents(bus)
	srv.SetMetrics(metrics.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Int("in_flight", orch.Running()))

		// Each phase gets its own deadline.
		var errs []error
		withTimeout(func(ctx context.Context) {
			if err := srv.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop server: %w", err))
			}
		})
		withTimeout(func(ctx context.Context) {
			if err := orch.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		})
		if pruner != nil {
			withTimeout(pruner.Stop)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	fn(ctx)
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func thresholds(q config.QualityConfig) validation.Thresholds {
	return validation.Thresholds{
		MinFleschScore:     q.MinFleschScore,
		MaxGradeLevel:      q.MaxGradeLevel,
		MaxSentenceLength:  q.MaxSentenceLength,
		MinWordCount:       float64(q.MinWordCount),
		MinParagraphCount:  float64(q.MinParagraphCount),
		MinQuestionCount:   float64(q.MinQuestionCount),
		MinTransitionWords: float64(q.MinTransitionWords),
	}
}
