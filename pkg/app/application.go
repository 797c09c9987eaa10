package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/obralink/oraculo/internal/metrics"
	"github.com/obralink/oraculo/internal/middleware"
	"github.com/obralink/oraculo/internal/oracle"
	"github.com/obralink/oraculo/internal/providers"
	"github.com/obralink/oraculo/internal/ratelimit"
	"github.com/obralink/oraculo/internal/services"
	"github.com/obralink/oraculo/internal/tracing"
	"github.com/obralink/oraculo/pkg/auth"
	"github.com/obralink/oraculo/pkg/config"
	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Pipeline        services.PipelineService
	Store           persistence.PluginPersistence
	Oracle          services.MilestoneOracle
	Escrow          *oracle.EscrowReader
	Logger          *slog.Logger
	ClientValidator auth.Validator
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithClientValidator sets a custom client validator
func WithClientValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.ClientValidator = validator
		return nil
	}
}

// WithStore sets a custom persistence backend (tests use the memory plugin).
func WithStore(store persistence.PluginPersistence) ApplicationOption {
	return func(app *Application) error {
		app.Store = store
		return nil
	}
}

// WithOracle sets a custom milestone oracle, bypassing the chain client that
// would otherwise be dialed from config.
func WithOracle(o services.MilestoneOracle) ApplicationOption {
	return func(app *Application) error {
		app.Oracle = o
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	limiter := ratelimit.NewTokenBucketLimiter(redisClient)

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "oraculo", "env", cfg.Env)
	slog.SetDefault(logger)

	metrics.RegisterLedgerCollector(redisClient, logger)

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggerMiddleware(logger))

	var tracingShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(context.Background(), tracing.Config{
			Enabled:      true,
			ServiceName:  cfg.Tracing.ServiceName,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			OTLPInsecure: cfg.Tracing.OTLPInsecure,
			SampleRatio:  cfg.Tracing.SampleRatio,
		}, logger)
		if err != nil {
			return nil, err
		}
		tracingShutdown = shutdown
		engine.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName))
	}

	app := &Application{
		Config:          cfg,
		Engine:          engine,
		Logger:          logger,
		RateLimiter:     limiter,
		TracingShutdown: tracingShutdown,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Store == nil {
		providerCfg, err := json.Marshal(map[string]string{
			"addr":     cfg.RedisAddr,
			"password": cfg.RedisPassword,
		})
		if err != nil {
			return nil, err
		}
		store, err := persistence.NewPersistence(persistence.ProviderConfig{
			Type:   "redis",
			Config: providerCfg,
		}, persistence.PluginConfig{})
		if err != nil {
			return nil, err
		}
		app.Store = store
	}

	if app.Oracle == nil && cfg.Oracle.Enabled {
		chain, err := providers.NewChainProvider(context.Background(), cfg.Oracle.RPCURL)
		if err != nil {
			return nil, err
		}
		contract := common.HexToAddress(cfg.Oracle.ContractAddress)
		submitter, err := oracle.NewSubmitter(chain, app.Store.Ledger(), app.Store.Nonces(), cfg.Oracle.PrivateKey, oracle.Options{
			Contract:       contract,
			ChainID:        big.NewInt(cfg.Oracle.ChainID),
			GasLimit:       cfg.Oracle.GasLimit,
			MaxAttempts:    cfg.Oracle.MaxAttempts,
			FeeBumpPercent: cfg.Oracle.FeeBumpPercent,
			ReceiptWait:    time.Duration(cfg.Oracle.ReceiptWaitSeconds) * time.Second,
			PollBase:       time.Duration(cfg.Oracle.PollBaseMillis) * time.Millisecond,
			PollMax:        time.Duration(cfg.Oracle.PollMaxMillis) * time.Millisecond,
			BackoffPolicy:  cfg.Oracle.BackoffPolicy,
		}, logger)
		if err != nil {
			return nil, err
		}
		app.Oracle = submitter
		app.Escrow = oracle.NewEscrowReader(chain, contract)
	}

	var uploader providers.Uploader
	if cfg.Storage.Enabled {
		up, err := providers.NewMinioUploader(cfg.Storage)
		if err != nil {
			return nil, err
		}
		if err := providers.EnsureBucket(context.Background(), up); err != nil {
			logger.Warn("object storage bucket check failed", "bucket", cfg.Storage.Bucket, "error", err)
		}
		uploader = up
	}

	ocr := services.NewTextExtractor(cfg.OCR, logger)
	ner := services.NewEntityExtractor(cfg.NER, logger)
	validator := services.NewValidationService()
	app.Pipeline = services.NewPipelineService(ocr, ner, validator, app.Oracle, uploader, cfg.Oracle.KeyIncludesDocument, logger, time.Now)

	if app.ClientValidator == nil && cfg.APIAuthProvider != "" {
		validator, err := auth.NewValidator(auth.ProviderConfig{
			Type:   cfg.APIAuthProvider,
			Config: cfg.APIAuthConfig,
		})
		if err != nil {
			return nil, err
		}
		app.ClientValidator = validator
	}

	return app, nil
}
