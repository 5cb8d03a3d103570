package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/logging"
	"github.com/zhouzirui/serene/backend/internal/metrics"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/service/ai"
	"github.com/zhouzirui/serene/backend/internal/service/memory"
)

var envFile string

// rootCmd runs the server when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:           "serene",
	Short:         "Serene companion backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, memoryCmd)
}

// app holds what every subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func bootstrap() (*app, error) {
	// Load .env file
	envErr := godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Warn("failed to load env file, continuing with system environment only",
			zap.String("path", envFile), zap.Error(envErr))
	}

	return &app{cfg: cfg, logger: logger, metrics: metrics.New()}, nil
}

// openBackend returns the configured fact backend and a close func.
func (a *app) openBackend(ctx context.Context) (memory.Backend, func(), error) {
	switch a.cfg.Memory.Backend {
	case config.MemoryBackendSQLite:
		b, err := memory.OpenSQLiteBackend(ctx, a.cfg.Memory.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("memory backend ready", zap.String("backend", "sqlite"), zap.String("path", b.Path()))
		return b, func() {
			if err := b.Close(); err != nil {
				a.logger.Warn("failed to close memory backend", zap.Error(err))
			}
		}, nil
	default:
		b := memory.NewFileBackend(a.cfg.Memory.File)
		a.logger.Info("memory backend ready", zap.String("backend", "file"), zap.String("path", b.Path()))
		return b, func() {}, nil
	}
}

// newGenerator builds the configured model client. Without credentials it
// returns an offline generator so the rest of the surface still serves.
func (a *app) newGenerator(ctx context.Context) ai.Generator {
	switch a.cfg.AI.Provider {
	case config.ProviderGemini:
		if !a.cfg.AI.Gemini.Enabled() {
			break
		}
		gen, err := ai.NewGeminiGenerator(ctx, ai.GeminiConfig{
			APIKey:      a.cfg.AI.Gemini.APIKey,
			Model:       a.cfg.AI.Gemini.Model,
			Temperature: a.cfg.AI.Temperature,
		}, a.logger)
		if err != nil {
			a.logger.Warn("failed to initialize gemini generator", zap.Error(err))
			break
		}
		a.logger.Info("AI generator initialized", zap.String("provider", "gemini"), zap.String("model", a.cfg.AI.Gemini.Model))
		return gen
	case config.ProviderArk:
		if !a.cfg.AI.Ark.Enabled() {
			break
		}
		cm, err := a.cfg.AI.NewChatModel(ctx)
		if err != nil {
			a.logger.Warn("failed to initialize ark chat model", zap.Error(err))
			break
		}
		gen, err := ai.NewChatModelGenerator(ctx, cm, a.logger)
		if err != nil {
			a.logger.Warn("failed to initialize ark generator", zap.Error(err))
			break
		}
		a.logger.Info("AI generator initialized", zap.String("provider", "ark"), zap.String("model", a.cfg.AI.Ark.Model))
		return gen
	}

	a.logger.Warn("model credentials missing, continuing without AI functionality",
		zap.String("provider", a.cfg.AI.Provider))
	return offlineGenerator{}
}

var errOffline = errors.New("no model provider configured")

// offlineGenerator fails every call as a generation error.
type offlineGenerator struct{}

func (offlineGenerator) Generate(context.Context, string, []chat.Message) (string, error) {
	return "", ai.Fail("generate", errOffline)
}

func (offlineGenerator) GenerateJSON(context.Context, string) (string, error) {
	return "", ai.Fail("generate json", errOffline)
}
