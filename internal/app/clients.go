package app

import (
	"fmt"

	"github.com/igasovic/PKM-sub000/internal/clients/redis"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
	"github.com/igasovic/PKM-sub000/internal/platform/openai"
)

// Clients holds external clients. OpenAI is nil when no API key is set.
type Clients struct {
	OpenAI openai.Client
	Lease  redis.Lease
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var oa openai.Client
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY not set; Tier-1 enrichment disabled")
	} else {
		var err error
		oa, err = openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.Tier1Timeout,
		}, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
	}
	lease, err := redis.NewLease(cfg.RedisAddr, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis lease: %w", err)
	}
	return Clients{OpenAI: oa, Lease: lease}, nil
}

func (c Clients) Close() {
	if c.Lease != nil {
		_ = c.Lease.Close()
	}
}
