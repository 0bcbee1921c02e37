package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/support-agent/server/internal/agent/classifier"
	"github.com/support-agent/server/internal/agent/machine"
	"github.com/support-agent/server/internal/agent/model"
	"github.com/support-agent/server/internal/agent/repo"
	"github.com/support-agent/server/internal/agent/tools"
	"github.com/support-agent/server/internal/core"
	"github.com/support-agent/server/internal/history"
	"github.com/support-agent/server/internal/knowledge"
	"github.com/support-agent/server/internal/llm"
	"github.com/support-agent/server/internal/server"
	logx "github.com/support-agent/server/pkg/logger"
	pkgredis "github.com/support-agent/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Response     model.ResponseModelConfig
	Conversation model.ConversationConfig
	Knowledge    model.KnowledgeConfig
	History      model.HistoryConfig
	Server       model.ServerConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	env := core.ParseEnvironment(envCfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", envCfg.Conversation.TTL).Msg("invalid CONVERSATION_TTL")
	}

	rdb, err := envCfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("connected to redis")

	histStore, err := history.Open(envCfg.History.Path)
	if err != nil {
		logx.Fatal().Err(err).Str("path", envCfg.History.Path).Msg("failed to open history store")
	}
	defer histStore.Close()

	client, err := llm.NewClient(ctx, envCfg.APIKey, envCfg.BaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create gemini client")
	}

	classifierModel := llm.NewClassifierModel(client, envCfg.Classifier)
	responseModel := llm.NewResponseModel(client, envCfg.Response)

	embedder := knowledge.NewGeminiEmbedder(client, envCfg.Knowledge.EmbedModel)
	kstore, err := knowledge.NewStore(embedder, envCfg.Knowledge)
	if err != nil {
		logx.Fatal().Err(err).Str("dir", envCfg.Knowledge.DataDir).Msg("failed to open knowledge store")
	}

	engine, err := machine.NewEngine(
		classifier.New(classifierModel, envCfg.Conversation),
		responseModel,
		tools.NewKnowledgeSearch(kstore, envCfg.Knowledge.Collection, envCfg.Knowledge.TopK),
		tools.NewHandoff(),
		repo.NewRedisCheckpointStore(rdb, ttl),
		histStore,
	)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build turn engine")
	}

	checks := map[string]server.HealthCheck{
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		"history": histStore.Ping,
		"knowledge": func(ctx context.Context) error {
			_, err := kstore.Count(envCfg.Knowledge.Collection)
			return err
		},
	}

	srv := server.New(envCfg.Server, engine, kstore, envCfg.Knowledge.Collection, checks)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logx.Fatal().Err(err).Msg("http server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("graceful shutdown failed")
	}
	logx.Info().Msg("server stopped")
}
