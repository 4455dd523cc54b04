package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"

	"github.com/mythos-ai/mythos-core/internal/agent"
	"github.com/mythos-ai/mythos-core/internal/config"
	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/llm"
	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
	"github.com/mythos-ai/mythos-core/internal/store"
	"github.com/mythos-ai/mythos-core/internal/telemetry"
	"github.com/mythos-ai/mythos-core/internal/vector"
)

// openStore opens the project database under the configured data directory.
func openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(GetConfig().DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// newRecorder builds the telemetry recorder; it is disabled without an API key.
func newRecorder() *telemetry.Recorder {
	rec, err := telemetry.NewRecorder(telemetry.Config{
		APIKey:   GetConfig().Telemetry.APIKey,
		Endpoint: GetConfig().Telemetry.Endpoint,
		Version:  version,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning: telemetry disabled:", err)
		rec, _ = telemetry.NewRecorder(telemetry.Config{Version: version})
	}
	return rec
}

// buildEngine wires the retrieval pipeline from configuration. Providers that
// fail to construct are left nil; the engine degrades instead of failing.
func buildEngine(ctx context.Context, s *store.SQLiteStore, rec *telemetry.Recorder) *retrieval.Engine {
	cfg := config.LoadRetrievalConfig()

	var embedder retrieval.Embedder
	if e, err := newQueryEmbedder(ctx, cfg); err != nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Warning: dense search disabled:", err)
		}
	} else {
		embedder = e
	}

	var searcher vector.Searcher
	if q, err := vector.NewQdrantClient(&vector.QdrantConfig{
		BaseURL:    cfg.QdrantBaseURL,
		Collection: cfg.QdrantCollection,
		Timeout:    cfg.QdrantTimeout,
	}); err == nil {
		searcher = q
	}

	var reranker retrieval.Reranker
	if cfg.RerankingEnabled {
		if r, err := llm.NewTeiReranker(ctx, &llm.TeiRerankerConfig{
			BaseURL: cfg.RerankBaseURL,
			Model:   cfg.RerankModelName,
			Timeout: cfg.RerankTimeout,
		}); err == nil {
			reranker = r
		}
	}

	return retrieval.NewEngine(cfg, embedder, searcher, reranker, s, s, rec)
}

// buildLoop assembles the orchestration loop on top of the store.
func buildLoop(ctx context.Context, s *store.SQLiteStore, rec *telemetry.Recorder) (*agent.Loop, error) {
	chatModel, err := newChatModel(ctx)
	if err != nil {
		return nil, err
	}

	engine := buildEngine(ctx, s, rec)
	executor := graph.NewExecutor(s, s)
	classifier := policy.NewClassifier(s, s, config.LoadPolicyConfig())
	return agent.NewLoop(chatModel, executor, engine, classifier, s, s, rec), nil
}

func newChatModel(ctx context.Context) (model.BaseChatModel, error) {
	llmCfg := GetConfig().LLM
	return llm.NewChatModel(ctx, llm.Config{
		Provider: llm.Provider(llmCfg.Provider),
		Model:    llmCfg.Model,
		APIKey:   llmCfg.APIKey,
		BaseURL:  llmCfg.BaseURL,
	})
}

// newQueryEmbedder adapts the configured embedding provider to the retrieval
// engine's task-aware interface.
func newQueryEmbedder(ctx context.Context, retrievalCfg config.RetrievalConfig) (retrieval.Embedder, error) {
	llmCfg := GetConfig().LLM
	provider := llm.Provider(llmCfg.EmbeddingProvider)

	if provider == llm.ProviderTEI {
		tei, err := llm.NewTeiEmbedder(ctx, &llm.TeiConfig{
			BaseURL: retrievalCfg.TEIBaseURL,
			Model:   retrievalCfg.TEIModelName,
			Timeout: retrievalCfg.TEITimeout,
		})
		if err != nil {
			return nil, err
		}
		return teiEmbedderAdapter{tei}, nil
	}

	inner, err := llm.NewEmbedder(ctx, llm.Config{
		Provider:       provider,
		EmbeddingModel: llmCfg.EmbeddingModel,
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return einoEmbedderAdapter{inner}, nil
}

// teiEmbedderAdapter forwards the query/document task hint to TEI.
type teiEmbedderAdapter struct {
	inner *llm.TeiEmbedder
}

func (a teiEmbedderAdapter) Embed(ctx context.Context, text string, task retrieval.EmbedTask) ([]float64, error) {
	return a.inner.EmbedWithTask(ctx, text, llm.EmbedTask(task))
}

// einoEmbedderAdapter wraps a task-agnostic eino embedder.
type einoEmbedderAdapter struct {
	inner embedding.Embedder
}

func (a einoEmbedderAdapter) Embed(ctx context.Context, text string, _ retrieval.EmbedTask) ([]float64, error) {
	vecs, err := a.inner.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return vecs[0], nil
}
