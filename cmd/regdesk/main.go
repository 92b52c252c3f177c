// Package main is the entry point for the registration backend: the
// conversational service that signs players up to the club, takes the signing
// fee and direct debit mandate, and stores the player photo.
//
// Start the server:
//
//	regdesk --config regdesk.yaml
//
// Configuration can also come from environment variables; see
// internal/config. The process exits with code 1 on a fatal
// misconfiguration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/regdesk/regdesk/internal/adapters/addresslookup"
	"github.com/regdesk/regdesk/internal/adapters/objectstore"
	"github.com/regdesk/regdesk/internal/adapters/payments"
	"github.com/regdesk/regdesk/internal/adapters/sms"
	"github.com/regdesk/regdesk/internal/agent"
	"github.com/regdesk/regdesk/internal/agent/providers"
	"github.com/regdesk/regdesk/internal/config"
	"github.com/regdesk/regdesk/internal/dispatch"
	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/photo"
	"github.com/regdesk/regdesk/internal/records"
	"github.com/regdesk/regdesk/internal/regcode"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/internal/tools"
	"github.com/regdesk/regdesk/internal/web"
	"github.com/regdesk/regdesk/internal/webhook"
)

func main() {
	configPath := flag.String("config", os.Getenv("REGDESK_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "regdesk:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Record table.
	var recordStore records.Store
	if cfg.Records.DatabaseURL != "" {
		pg, err := records.NewPostgresStoreFromDSN(cfg.Records.DatabaseURL, records.DefaultPostgresConfig())
		if err != nil {
			return fmt.Errorf("records: %w", err)
		}
		defer pg.Close()
		recordStore = pg
	} else {
		if !cfg.DevMode {
			return fmt.Errorf("records database url is required outside dev mode")
		}
		logger.Warn("no records database configured, using in-memory store")
		recordStore = records.NewMemoryStore(nil)
	}

	// External adapters.
	paymentClient, err := payments.NewHTTPClient(payments.Config{
		AccessToken: cfg.Payments.AccessToken,
		Environment: cfg.Payments.Environment,
		BaseURL:     cfg.Payments.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("payments: %w", err)
	}
	smsSender, err := sms.NewHTTPSender(sms.Config{
		APIKey:  cfg.SMS.APIKey,
		Sender:  cfg.SMS.Sender,
		BaseURL: cfg.SMS.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	lookup, err := addresslookup.NewHTTPLookup(addresslookup.Config{
		APIKey:  cfg.AddressLookup.APIKey,
		BaseURL: cfg.AddressLookup.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("address lookup: %w", err)
	}
	photoStore, err := objectstore.NewS3Store(ctx, objectstore.Config{
		Bucket:          cfg.ObjectStore.Bucket,
		Region:          cfg.ObjectStore.Region,
		Endpoint:        cfg.ObjectStore.Endpoint,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UsePathStyle:    cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	// Model provider.
	var provider agent.Provider
	switch cfg.Model.Provider {
	case "anthropic":
		provider, err = providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Model.APIKey,
			BaseURL:      cfg.Model.BaseURL,
			DefaultModel: cfg.Model.Model,
		})
	case "openai":
		provider, err = providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.Model.APIKey,
			BaseURL:      cfg.Model.BaseURL,
			DefaultModel: cfg.Model.Model,
		})
	default:
		err = fmt.Errorf("unknown provider %q", cfg.Model.Provider)
	}
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}

	// Tool registry.
	registry := agent.NewToolRegistry()
	if err := tools.RegisterAll(registry, tools.Deps{
		Records:              recordStore,
		Payments:             paymentClient,
		SMS:                  smsSender,
		Lookup:               lookup,
		Photos:               photoStore,
		Logger:               logger,
		Season:               cfg.Season.Current,
		SeasonStartYear:      cfg.Season.StartYear(),
		MonthlyPounds:        cfg.Pricing.MonthlyPounds,
		SigningFeePounds:     cfg.Pricing.SigningFeePounds,
		AllowedPostcodeAreas: cfg.Season.PostcodeAreas,
	}); err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// Sessions and turn handling.
	sessionStore := sessions.NewMemoryStore(cfg.Sessions.MaxHistory)
	janitor := sessions.NewJanitor(sessionStore, cfg.Sessions.IdleTimeout, time.Minute, logger)
	go janitor.Run(ctx)

	dispatcher := dispatch.New(dispatch.Config{
		Sessions: sessionStore,
		Locker:   sessions.NewLocker(4),
		Parser:   regcode.NewParser(cfg.Season.Current, recordStore),
		Loop: agent.NewLoop(agent.LoopConfig{
			Provider:    provider,
			Model:       cfg.Model.Model,
			MaxTokens:   2048,
			CallTimeout: cfg.Model.CallTimeout,
			Logger:      logger,
			Metrics:     metrics,
		}),
		Registry:    registry,
		Logger:      logger,
		Metrics:     metrics,
		TurnTimeout: cfg.Model.TurnTimeout,
		DevMode:     cfg.DevMode,
	})

	pipeline := photo.NewPipeline(photo.PipelineConfig{
		Sessions: sessionStore,
		Turn: func(ctx context.Context, sessionID, tempPath string) (string, error) {
			reply, err := dispatcher.PhotoTurn(ctx, sessionID, tempPath)
			if err != nil {
				return "", err
			}
			return reply.Reply, nil
		},
		Logger:  logger,
		Metrics: metrics,
		Workers: cfg.Photo.Workers,
	})
	defer pipeline.Close()

	processor, err := webhook.New(webhook.Config{
		Secret:   cfg.Payments.WebhookSecret,
		Records:  recordStore,
		Payments: paymentClient,
		Logger:   logger,
		Metrics:  metrics,
		DevMode:  cfg.DevMode,
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}

	server := web.NewServer(web.Config{
		Dispatcher: dispatcher,
		Sessions:   sessionStore,
		Pipeline:   pipeline,
		Webhooks:   processor,
		Payments:   paymentClient,
		Probes: map[string]web.HealthProbe{
			"records":        recordStore,
			"payments":       paymentClient,
			"sms":            smsSender,
			"address_lookup": lookup,
			"object_store":   photoStore,
		},
		AsyncPhoto: cfg.Photo.Async,
		Logger:     logger,
		Metrics:    metrics,
		DevMode:    cfg.DevMode,
		ModelName:  cfg.Model.Model,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		"addr", addr,
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Model,
		"season", cfg.Season.Current,
		"dev_mode", cfg.DevMode,
	)
	return server.ListenAndServe(ctx, addr)
}
