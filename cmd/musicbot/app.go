package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/orhanxakarsu/music-agent/internal/api/http"
	"github.com/orhanxakarsu/music-agent/internal/application/dedup"
	"github.com/orhanxakarsu/music-agent/internal/application/inbound"
	"github.com/orhanxakarsu/music-agent/internal/application/workflow"
	"github.com/orhanxakarsu/music-agent/internal/config"
	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/bolt"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/evolution"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/ffmpeg"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/gemini"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/media"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/memory"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/messaging"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/metrics"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/openai"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/postgres"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/sqlite"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/suno"
	"github.com/orhanxakarsu/music-agent/internal/infrastructure/telegram"
)

const dbMaxConns = 10

// openStore opens the configured conversation store.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (conversation.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, dbMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("db error: %w", err)
		}
		return postgres.NewCheckpointRepository(pool), pool.Close, nil
	case config.StoreBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o755); err != nil {
			return nil, nil, err
		}
		repo, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("bolt error: %w", err)
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close bolt store")
			}
		}, nil
	default:
		logger.Warn().Msg("using the in-memory conversation store; conversations are lost on restart")
		return memory.NewCheckpointRepository(), func() {}, nil
	}
}

func migrate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (int, error) {
	if cfg.StoreDriver != config.StorePostgres {
		return 0, fmt.Errorf("migrations apply to the postgres store only (STORE_DRIVER=%s)", cfg.StoreDriver)
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	defer pool.Close()
	return postgres.RunMigrations(ctx, pool, cfg.MigrationsDir, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StoreDriver == config.StorePostgres {
		if _, err := migrate(ctx, cfg, logger); err != nil {
			return fmt.Errorf("migration error: %w", err)
		}
	}
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	roots := media.NewRoots(cfg.ArtifactsDir)
	if err := roots.Ensure(); err != nil {
		return fmt.Errorf("failed to create artifact directories: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PersonaDBPath), 0o755); err != nil {
		return err
	}
	personas, err := sqlite.OpenPersonaRepository(ctx, cfg.PersonaDBPath)
	if err != nil {
		return fmt.Errorf("persona db error: %w", err)
	}
	defer personas.Close()

	// providers
	decisions, err := openai.NewDecisionMaker(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Repairs: cfg.OpenAI.Repairs,
	}, logger)
	if err != nil {
		return err
	}
	music := suno.NewClient(suno.Config{
		BaseURL:      cfg.Suno.BaseURL,
		APIKey:       cfg.Suno.APIKey,
		Model:        cfg.Suno.Model,
		CallbackURL:  cfg.Suno.CallbackURL,
		MusicDir:     roots.Music,
		PollInterval: cfg.Suno.PollInterval,
		MaxWait:      cfg.Suno.MaxWait,
	}, logger)
	images, err := gemini.NewImageGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.ImageModel, roots.Images, logger)
	if err != nil {
		return err
	}
	video := ffmpeg.NewMuxer(cfg.FFmpegPath, roots.Videos, logger)

	// transports
	whatsapp := evolution.NewClient(evolution.Config{
		BaseURL:  cfg.Evolution.BaseURL,
		APIKey:   cfg.Evolution.APIKey,
		Instance: cfg.Evolution.Instance,
	}, logger)
	var tg workflow.Messenger
	if cfg.Telegram.Token != "" {
		m, err := telegram.NewMessenger(cfg.Telegram.Token, logger)
		if err != nil {
			return err
		}
		tg = m
	}
	messenger := messaging.NewRouter(whatsapp, tg)

	collector := metrics.NewCollector()
	steps := workflow.NewSteps(workflow.Deps{
		Decisions:  decisions,
		Music:      music,
		Images:     images,
		Video:      video,
		Messenger:  messenger,
		Personas:   personas,
		Links:      media.NewLinks(cfg.PublicBaseURL),
		MaxRetries: cfg.MaxRetries,
	}, logger)
	engine, err := workflow.NewEngine(store, steps.Registry(), workflow.Options{
		MaxRetries: cfg.MaxRetries,
		RunLease:   cfg.RunLease,
		Metrics:    collector,
		// bolt and memory stores are opened by this process alone.
		SoleWriter: cfg.StoreDriver != config.StorePostgres,
	}, logger)
	if err != nil {
		return err
	}
	filter := dedup.NewFilter(cfg.DuplicateWindow, logger)
	inboundSvc := inbound.NewService(engine, filter, messenger, cfg.AllowedNumbers, collector, logger)

	apiServer := httpapi.NewServer(inboundSvc, engine, roots, collector.Handler(), httpapi.Config{
		AdminToken:     cfg.AdminToken,
		TelegramSecret: cfg.Telegram.WebhookSecret,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	jobs, err := newJobs(cfg, engine, filter, store, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.StoreDriver).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		jobs.Start()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		jobs.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
