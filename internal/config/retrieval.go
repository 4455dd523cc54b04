// Package config loads engine configuration from Viper with code defaults.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// RetrievalConfig holds tuning for the retrieval-fusion pipeline. The RRF
// constant and the caps are tunables, not values with intrinsic meaning; the
// defaults match the shipped product behavior.
type RetrievalConfig struct {
	// CandidateLimit caps how many nearest neighbors the dense search fetches
	// and how many fused candidates survive ranking.
	CandidateLimit int `mapstructure:"candidate_limit"`

	// RRFConstant is the k in 1/(k + rank + 1) during Reciprocal Rank Fusion.
	RRFConstant int `mapstructure:"rrf_constant"`

	// Reranking settings
	RerankingEnabled bool          `mapstructure:"reranking_enabled"`
	RerankLimit      int           `mapstructure:"rerank_limit"`
	RerankTextLimit  int           `mapstructure:"rerank_text_limit"`
	RerankBaseURL    string        `mapstructure:"rerank_base_url"`
	RerankModelName  string        `mapstructure:"rerank_model_name"`
	RerankTimeout    time.Duration `mapstructure:"rerank_timeout"`

	// Chunk-context expansion window
	ChunksBefore int `mapstructure:"chunks_before"`
	ChunksAfter  int `mapstructure:"chunks_after"`

	// Projection caps for the final RAGContext
	DocumentLimit     int `mapstructure:"document_limit"`
	ChunksPerDocument int `mapstructure:"chunks_per_document"`
	EntityLimit       int `mapstructure:"entity_limit"`
	MemoryLimit       int `mapstructure:"memory_limit"`

	// Vector store (Qdrant) settings
	QdrantBaseURL    string        `mapstructure:"qdrant_base_url"`
	QdrantCollection string        `mapstructure:"qdrant_collection"`
	QdrantTimeout    time.Duration `mapstructure:"qdrant_timeout"`

	// Embedding (TEI) settings
	TEIBaseURL   string        `mapstructure:"tei_base_url"`
	TEIModelName string        `mapstructure:"tei_model_name"`
	TEITimeout   time.Duration `mapstructure:"tei_timeout"`
}

// DefaultRetrievalConfig returns the default retrieval configuration.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		CandidateLimit: 30,
		RRFConstant:    60,

		RerankingEnabled: false, // Off until a reranker endpoint is configured
		RerankLimit:      15,
		RerankTextLimit:  1200,
		RerankBaseURL:    "http://localhost:8081",
		RerankModelName:  "BAAI/bge-reranker-v2-m3",
		RerankTimeout:    5 * time.Second,

		ChunksBefore: 2,
		ChunksAfter:  1,

		DocumentLimit:     10,
		ChunksPerDocument: 2,
		EntityLimit:       10,
		MemoryLimit:       10,

		QdrantBaseURL:    "http://localhost:6333",
		QdrantCollection: "mythos",
		QdrantTimeout:    10 * time.Second,

		TEIBaseURL:   "http://localhost:8080",
		TEIModelName: "Qwen/Qwen3-Embedding-8B",
		TEITimeout:   30 * time.Second,
	}
}

// LoadRetrievalConfig loads retrieval configuration from Viper with defaults.
func LoadRetrievalConfig() RetrievalConfig {
	defaults := DefaultRetrievalConfig()

	return RetrievalConfig{
		CandidateLimit: getIntWithDefault("retrieval.candidate_limit", defaults.CandidateLimit),
		RRFConstant:    getIntWithDefault("retrieval.rrf_constant", defaults.RRFConstant),

		RerankingEnabled: getBoolWithDefault("retrieval.reranking.enabled", defaults.RerankingEnabled),
		RerankLimit:      getIntWithDefault("retrieval.reranking.limit", defaults.RerankLimit),
		RerankTextLimit:  getIntWithDefault("retrieval.reranking.text_limit", defaults.RerankTextLimit),
		RerankBaseURL:    getStringWithDefault("retrieval.reranking.base_url", defaults.RerankBaseURL),
		RerankModelName:  getStringWithDefault("retrieval.reranking.model_name", defaults.RerankModelName),
		RerankTimeout:    getDurationWithDefault("retrieval.reranking.timeout", defaults.RerankTimeout),

		ChunksBefore: getIntWithDefault("retrieval.context.chunks_before", defaults.ChunksBefore),
		ChunksAfter:  getIntWithDefault("retrieval.context.chunks_after", defaults.ChunksAfter),

		DocumentLimit:     getIntWithDefault("retrieval.limits.documents", defaults.DocumentLimit),
		ChunksPerDocument: getIntWithDefault("retrieval.limits.chunks_per_document", defaults.ChunksPerDocument),
		EntityLimit:       getIntWithDefault("retrieval.limits.entities", defaults.EntityLimit),
		MemoryLimit:       getIntWithDefault("retrieval.limits.memories", defaults.MemoryLimit),

		QdrantBaseURL:    getStringWithDefault("retrieval.qdrant.base_url", defaults.QdrantBaseURL),
		QdrantCollection: getStringWithDefault("retrieval.qdrant.collection", defaults.QdrantCollection),
		QdrantTimeout:    getDurationWithDefault("retrieval.qdrant.timeout", defaults.QdrantTimeout),

		TEIBaseURL:   getStringWithDefault("retrieval.tei.base_url", defaults.TEIBaseURL),
		TEIModelName: getStringWithDefault("retrieval.tei.model_name", defaults.TEIModelName),
		TEITimeout:   getDurationWithDefault("retrieval.tei.timeout", defaults.TEITimeout),
	}
}

// Helper functions for Viper with defaults

func getIntWithDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getBoolWithDefault(key string, defaultVal bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultVal
}

func getStringWithDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

func getFloat64WithDefault(key string, defaultVal float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return defaultVal
}

func getDurationWithDefault(key string, defaultVal time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return defaultVal
}
