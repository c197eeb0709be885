package service

import (
	"fmt"
	"time"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
	"github.com/MimeLyc/subtitle-batch-translator/internal/cache"
	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/llm"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// NewEngine wires the backends, key set and cache described by cfg. store
// may be nil for a memory-only cache.
func NewEngine(cfg *config.Config, store cache.Store) (*translator.Engine, error) {
	client, err := llm.NewClient(&llm.Config{
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		return nil, NewErrorWithCause(ErrConfig, "invalid LLM configuration", err)
	}

	retry := backend.DefaultRetryConfig()
	retry.Attempts = cfg.LLM.Retries
	primary := backend.WithRetry(backend.NewChatBackend("", client), retry)

	opts := []translator.Option{
		translator.WithCredentials(cfg.Credentials()),
		translator.WithPlan(translator.PlanConfig{
			BatchSize:    cfg.Translate.BatchSize,
			SingleUnit:   cfg.Translate.SingleUnit,
			TokenCeiling: cfg.Translate.TokenCeiling,
		}),
	}

	if cfg.Cache.Size > 0 {
		if !cfg.Cache.Persistent {
			store = nil
		}
		opts = append(opts, translator.WithCache(cache.New(cfg.Cache.Size, store)))
	}

	if cfg.Fallback.Enabled() {
		switch cfg.Fallback.Provider {
		case "deepl":
			opts = append(opts, translator.WithFallback(backend.NewBulkBackend(backend.BulkConfig{
				APIURL:  cfg.Fallback.APIURL,
				APIKey:  cfg.Fallback.APIKey,
				Timeout: time.Duration(cfg.Fallback.Timeout) * time.Second,
			})))
		default:
			return nil, NewError(ErrConfig, fmt.Sprintf("unsupported fallback provider %q", cfg.Fallback.Provider))
		}
	}

	engine, err := translator.NewEngine(primary, opts...)
	if err != nil {
		return nil, NewErrorWithCause(ErrConfig, "failed to create engine", err)
	}
	log.Info("Engine ready: backend=%s keys=%d fallback=%q cache=%d",
		engine.Primary(), cfg.Credentials().Len(), cfg.Fallback.Provider, cfg.Cache.Size)
	return engine, nil
}
