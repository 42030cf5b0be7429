package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/embed"
	"github.com/sells-group/leads-cli/internal/persona"
	"github.com/sells-group/leads-cli/internal/pipeline"
	"github.com/sells-group/leads-cli/internal/scrape"
	"github.com/sells-group/leads-cli/internal/store"
	anthropicpkg "github.com/sells-group/leads-cli/pkg/anthropic"
	"github.com/sells-group/leads-cli/pkg/openai"
	"github.com/sells-group/leads-cli/pkg/tavily"
)

// pipelineEnv holds the store and processor shared by the ingest, rerank,
// and serve commands.
type pipelineEnv struct {
	Store     store.Store
	Processor *pipeline.Processor
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "workorders.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store and the enrichment pipeline. Callers should
// defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// Website discovery is optional. Without a Tavily key, leads missing a
	// website column simply produce no text.
	var locator scrape.Locator
	if cfg.Tavily.Key != "" {
		opts := []tavily.Option{}
		if cfg.Tavily.BaseURL != "" {
			opts = append(opts, tavily.WithBaseURL(cfg.Tavily.BaseURL))
		}
		locator = tavily.NewClient(cfg.Tavily.Key, opts...)
	} else {
		zap.L().Debug("LEADS_TAVILY_KEY not set, website discovery disabled")
	}

	light := scrape.NewLocalFetcher(time.Duration(cfg.Scrape.FetchTimeoutSecs) * time.Second)
	rendered := scrape.NewRenderedFetcher(
		time.Duration(cfg.Scrape.RenderSettleSecs)*time.Second,
		time.Duration(cfg.Scrape.RenderTimeoutSecs)*time.Second,
	)
	chain := scrape.NewChain(light, rendered, locator, cfg.Scrape.MinWords)

	var aiClient anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		aiClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("LEADS_ANTHROPIC_KEY not set, persona synthesis disabled")
	}
	personas := persona.NewSynthesizer(aiClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)

	var embedClient openai.Client
	if cfg.Embed.Key != "" {
		embedOpts := []openai.Option{openai.WithModel(cfg.Embed.Model)}
		if cfg.Embed.BaseURL != "" {
			embedOpts = append(embedOpts, openai.WithBaseURL(cfg.Embed.BaseURL))
		}
		embedClient = openai.NewClient(cfg.Embed.Key, embedOpts...)
	} else {
		zap.L().Warn("LEADS_EMBED_KEY not set, embeddings disabled")
	}
	embedder := embed.NewEmbedder(embedClient)

	return &pipelineEnv{
		Store:     st,
		Processor: pipeline.New(st, chain, personas, embedder),
	}, nil
}
