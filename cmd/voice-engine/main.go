// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/voice-engine/config"
	internal_generation "github.com/rapidaai/voice-engine/internal/generation"
	internal_normalizers "github.com/rapidaai/voice-engine/internal/normalizers"
	internal_retrieval "github.com/rapidaai/voice-engine/internal/retrieval"
	internal_server "github.com/rapidaai/voice-engine/internal/server"
	internal_session "github.com/rapidaai/voice-engine/internal/session"
	internal_transformer "github.com/rapidaai/voice-engine/internal/transformer"
	internal_transformer_deepgram "github.com/rapidaai/voice-engine/internal/transformer/deepgram"
	internal_transformer_google "github.com/rapidaai/voice-engine/internal/transformer/google"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	internal_usage "github.com/rapidaai/voice-engine/internal/usage"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/connectors"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("unable to initialize config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("unable to read application config: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Path(cfg.LogPath),
		commons.Level(cfg.LogLevel),
	)
	if err != nil {
		log.Fatalf("unable to create logger: %v", err)
	}
	defer logger.Sync()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("unable to wire call engine: %v", err)
		os.Exit(1)
	}

	engine := internal_session.NewEngine(logger, internal_session.Config{
		SystemPrompt:  cfg.SystemPrompt,
		HistoryWindow: cfg.HistoryWindow,
		TurnTimeout:   time.Duration(cfg.TurnTimeoutSec) * time.Second,
	}, deps)

	srv := internal_server.NewServer(cfg, logger, engine)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
	logger.Infof("%s stopped", cfg.Name)
}

// buildDeps wires the per-call collaborators from configured providers.
// Speech recognition, synthesis, retrieval and usage handoff are optional;
// generation is not, the engine cannot take a turn without an LLM.
func buildDeps(ctx context.Context, cfg *config.AppConfig, logger commons.Logger) (internal_session.Deps, error) {
	deps := internal_session.Deps{
		Normalizers: internal_normalizers.BuildNormalizerPipeline(logger,
			[]string{"currency", "number", "symbol"}),
		NewRecorder: func() (internal_type.Recorder, error) {
			return internal_session.NewCallRecorder(logger)
		},
	}

	if cfg.RecordingPath != "" {
		store, err := internal_usage.NewFileRecordingStore(logger, cfg.RecordingPath)
		if err != nil {
			return deps, err
		}
		deps.Recordings = store
	}

	generateOpts := utils.Option{"generate.model": cfg.GenerationModel}
	var providers []internal_generation.Provider
	if cfg.OpenAIApiKey != "" {
		provider, err := internal_generation.NewOpenAIProvider(logger,
			utils.Option{"key": cfg.OpenAIApiKey}, generateOpts)
		if err != nil {
			return deps, err
		}
		providers = append(providers, provider)
	}
	if cfg.AnthropicApiKey != "" {
		provider, err := internal_generation.NewAnthropicProvider(logger,
			utils.Option{"key": cfg.AnthropicApiKey}, generateOpts)
		if err != nil {
			return deps, err
		}
		providers = append(providers, provider)
	}
	generator, err := internal_generation.NewGenerator(logger, providers...)
	if err != nil {
		return deps, err
	}
	deps.Generator = generator

	if cfg.DeepgramApiKey != "" {
		dgOption, err := internal_transformer_deepgram.NewDeepgramOption(logger,
			utils.Option{"key": cfg.DeepgramApiKey}, utils.Option{})
		if err != nil {
			return deps, err
		}
		deps.STTFactory = func(ctx context.Context) (internal_transformer.SpeechToTextTransformer, error) {
			return internal_transformer_deepgram.NewSpeechToText(logger, dgOption), nil
		}
	} else {
		logger.Warn("no deepgram key configured, speech recognition disabled")
	}

	if cfg.GoogleApiKey != "" {
		googleOption, err := internal_transformer_google.NewGoogleOption(logger,
			utils.Option{"key": cfg.GoogleApiKey}, utils.Option{})
		if err != nil {
			return deps, err
		}
		tts, err := internal_transformer_google.NewTextToSpeech(ctx, logger, googleOption)
		if err != nil {
			return deps, err
		}
		deps.TTS = tts
	} else {
		logger.Warn("no google key configured, speech synthesis disabled")
	}

	if cfg.OpenSearchURL != "" {
		opensearch, err := connectors.NewOpenSearchConnector(connectors.OpenSearchConfig{
			URL:      cfg.OpenSearchURL,
			Username: cfg.OpenSearchUsername,
			Password: cfg.OpenSearchPassword,
		}, logger)
		if err != nil {
			return deps, err
		}
		deps.Retriever = internal_retrieval.NewRetriever(logger, opensearch, cfg.KnowledgeIndex, nil)
	}

	redis := connectors.NewRedisConnector(cfg.RedisConfig, logger)
	reporters := []internal_usage.Reporter{
		internal_usage.NewRedisReporter(logger, redis),
	}
	if cfg.UsageWebhookURL != "" {
		reporters = append(reporters, internal_usage.NewWebhookReporter(logger, cfg.UsageWebhookURL))
	}
	deps.Usage = internal_usage.NewMultiReporter(logger, reporters...)

	return deps, nil
}
