package store

import (
	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

// Compile-time interface checks.
var (
	_ graph.Store               = (*SQLiteStore)(nil)
	_ graph.RegistrySource      = (*SQLiteStore)(nil)
	_ policy.EntityResolver     = (*SQLiteStore)(nil)
	_ retrieval.LexicalSearcher = (*SQLiteStore)(nil)
	_ retrieval.ChunkSource     = (*SQLiteStore)(nil)
)
