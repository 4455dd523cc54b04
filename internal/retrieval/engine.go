package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mythos-ai/mythos-core/internal/config"
	"github.com/mythos-ai/mythos-core/internal/vector"
)

// EmbedTask hints whether a text is a search query or an indexed document.
type EmbedTask string

const (
	EmbedTaskQuery    EmbedTask = "query"
	EmbedTaskDocument EmbedTask = "document"
)

// Embedder turns text into a vector. The task hint lets asymmetric models
// distinguish query from document embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string, task EmbedTask) ([]float64, error)
}

// Reranker scores texts against a query with a cross-encoder. Scores are
// aligned by index with the input texts.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// LexicalSearcher provides keyword search over the project's content.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, projectID, query string, limit int) ([]LexicalHit, error)
}

// Chunk is one slice of a chunked document.
type Chunk struct {
	Index int
	Text  string
}

// ChunkSource fetches neighboring chunks for context expansion.
type ChunkSource interface {
	GetDocumentChunks(ctx context.Context, projectID, documentID string, from, to int) ([]Chunk, error)
}

// Recorder receives retrieval telemetry. Implementations must not fail the
// pipeline; the engine ignores all recording errors.
type Recorder interface {
	RecordRetrieval(distinctID string, stats Stats)
}

// Stats is per-stage retrieval telemetry.
type Stats struct {
	VectorCandidates  int
	LexicalCandidates int
	FusedCandidates   int
	Reranked          int
	Expanded          int
	VectorLatency     time.Duration
	LexicalLatency    time.Duration
	RerankLatency     time.Duration
	TotalLatency      time.Duration
}

// Scope restricts retrieval to one content category.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeDocuments Scope = "documents"
	ScopeEntities  Scope = "entities"
	ScopeMemories  Scope = "memories"
)

// Options tunes one retrieval call.
type Options struct {
	Scope Scope

	// LexicalHits lets the caller supply pre-computed keyword results. When
	// nil and a LexicalSearcher is configured, the engine runs its own
	// lexical search concurrently with the dense search.
	LexicalHits []LexicalHit

	// IncludeMemories widens the default type exclusion.
	IncludeMemories bool

	// DistinctID keys the telemetry emission. Empty disables telemetry.
	DistinctID string
}

// Engine combines dense search, lexical search, RRF, optional reranking, and
// chunk-context expansion into one ranked RAGContext. Any provider may be nil;
// the pipeline degrades instead of failing.
type Engine struct {
	cfg      config.RetrievalConfig
	embedder Embedder
	searcher vector.Searcher
	reranker Reranker
	lexical  LexicalSearcher
	chunks   ChunkSource
	recorder Recorder
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine. Nil providers disable their stage.
func NewEngine(cfg config.RetrievalConfig, embedder Embedder, searcher vector.Searcher, reranker Reranker, lexical LexicalSearcher, chunks ChunkSource, recorder Recorder) *Engine {
	return &Engine{
		cfg:      cfg,
		embedder: embedder,
		searcher: searcher,
		reranker: reranker,
		lexical:  lexical,
		chunks:   chunks,
		recorder: recorder,
		logger:   slog.Default(),
	}
}

// Retrieve runs the full pipeline for one query within a project scope.
func (e *Engine) Retrieve(ctx context.Context, query, projectID string, opts Options) (*RAGContext, error) {
	start := time.Now()
	var stats Stats

	denseAvailable := e.embedder != nil && e.searcher != nil
	lexicalAvailable := opts.LexicalHits != nil || e.lexical != nil

	// Graceful degradation: nothing to search with is an empty context, not
	// an error.
	if !denseAvailable && !lexicalAvailable {
		return &RAGContext{}, nil
	}

	var vectorCandidates []*Candidate
	var lexicalHits []LexicalHit

	g, gctx := errgroup.WithContext(ctx)
	if denseAvailable {
		g.Go(func() error {
			t := time.Now()
			candidates, err := e.denseSearch(gctx, query, projectID, opts)
			stats.VectorLatency = time.Since(t)
			if err != nil {
				// Dense failures degrade to lexical-only.
				e.logger.Warn("dense search unavailable, degrading", "error", err, "project", projectID)
				return nil
			}
			vectorCandidates = candidates
			return nil
		})
	}
	if opts.LexicalHits != nil {
		lexicalHits = opts.LexicalHits
	} else if e.lexical != nil {
		g.Go(func() error {
			t := time.Now()
			hits, err := e.lexical.SearchLexical(gctx, projectID, query, e.cfg.CandidateLimit)
			stats.LexicalLatency = time.Since(t)
			if err != nil {
				e.logger.Warn("lexical search failed, degrading", "error", err, "project", projectID)
				return nil
			}
			lexicalHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Dense hits arrive pre-filtered by Qdrant; lexical hits do not.
	lexicalHits = filterLexicalScope(lexicalHits, opts)

	stats.VectorCandidates = len(vectorCandidates)
	stats.LexicalCandidates = len(lexicalHits)

	// Merge lexical hits into the candidate set, preferring existing vector
	// candidates for everything but the lexical score.
	byKey := make(map[string]*Candidate, len(vectorCandidates))
	for _, c := range vectorCandidates {
		byKey[c.Key] = c
	}
	lexicalRanked := make([]*Candidate, 0, len(lexicalHits))
	all := append([]*Candidate(nil), vectorCandidates...)
	for i := range lexicalHits {
		hit := lexicalHits[i]
		key := CandidateKey(hit.Kind, hit.ID, hit.ChunkIndex)
		if existing, ok := byKey[key]; ok {
			score := hit.Score
			existing.LexicalScore = &score
			lexicalRanked = append(lexicalRanked, existing)
			continue
		}
		c := candidateFromLexical(hit)
		byKey[key] = c
		all = append(all, c)
		lexicalRanked = append(lexicalRanked, c)
	}

	fuseRRF(vectorCandidates, lexicalRanked, e.cfg.RRFConstant)
	sortByEffectiveScore(all)
	if len(all) > e.cfg.CandidateLimit {
		all = all[:e.cfg.CandidateLimit]
	}
	stats.FusedCandidates = len(all)

	if e.cfg.RerankingEnabled && e.reranker != nil {
		t := time.Now()
		stats.Reranked = e.rerank(ctx, query, all)
		stats.RerankLatency = time.Since(t)
		sortByEffectiveScore(all)
	}

	stats.Expanded = e.expandChunkContext(ctx, projectID, all)

	ragCtx := e.project(all)

	stats.TotalLatency = time.Since(start)
	if e.recorder != nil && opts.DistinctID != "" {
		e.recorder.RecordRetrieval(opts.DistinctID, stats)
	}

	return ragCtx, nil
}

// denseSearch embeds the query and fetches nearest neighbors scoped to the
// project and the requested content kinds.
func (e *Engine) denseSearch(ctx context.Context, query, projectID string, opts Options) ([]*Candidate, error) {
	vec, err := e.embedder.Embed(ctx, query, EmbedTaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := buildFilter(projectID, opts)
	hits, err := e.searcher.Search(ctx, vec, e.cfg.CandidateLimit, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]*Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, candidateFromVector(hit))
	}
	return candidates, nil
}

// buildFilter produces the payload filter: project scoping plus either a kind
// restriction or a memory exclusion.
func buildFilter(projectID string, opts Options) *vector.Filter {
	filter := &vector.Filter{
		Must: []vector.Condition{{Key: "project_id", Value: projectID}},
	}
	switch opts.Scope {
	case ScopeDocuments:
		filter.Must = append(filter.Must, vector.Condition{Key: "type", Value: string(KindDocument)})
	case ScopeEntities:
		filter.Must = append(filter.Must, vector.Condition{Key: "type", Value: string(KindEntity)})
	case ScopeMemories:
		filter.Must = append(filter.Must, vector.Condition{Key: "type", Value: string(KindMemory)})
	default:
		if !opts.IncludeMemories {
			filter.MustNot = append(filter.MustNot, vector.Condition{Key: "type", Value: string(KindMemory)})
		}
	}
	return filter
}

// filterLexicalScope applies the same kind restriction to lexical hits that
// buildFilter enforces server-side for the dense path.
func filterLexicalScope(hits []LexicalHit, opts Options) []LexicalHit {
	if len(hits) == 0 {
		return hits
	}
	keep := func(kind Kind) bool {
		switch opts.Scope {
		case ScopeDocuments:
			return kind == KindDocument
		case ScopeEntities:
			return kind == KindEntity
		case ScopeMemories:
			return kind == KindMemory
		default:
			return opts.IncludeMemories || kind != KindMemory
		}
	}
	out := make([]LexicalHit, 0, len(hits))
	for _, hit := range hits {
		if keep(hit.Kind) {
			out = append(out, hit)
		}
	}
	return out
}

// rerank sends the top candidates' text through the cross-encoder and replaces
// their ordering scores. Failures fall back to the fused ranking. Returns how
// many candidates were reranked.
func (e *Engine) rerank(ctx context.Context, query string, candidates []*Candidate) int {
	window := e.cfg.RerankLimit
	if window > len(candidates) {
		window = len(candidates)
	}
	if window == 0 {
		return 0
	}

	rerankCtx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	defer cancel()

	texts := make([]string, window)
	for i := 0; i < window; i++ {
		text := candidates[i].RerankText
		if text == "" {
			text = candidates[i].Preview
		}
		if len(text) > e.cfg.RerankTextLimit {
			text = cutAtRuneBoundary(text, e.cfg.RerankTextLimit)
		}
		texts[i] = text
	}

	scores, err := e.reranker.Rerank(rerankCtx, query, texts)
	if err != nil {
		e.logger.Warn("reranking failed, using fused ranking",
			"error", err,
			"candidates", window)
		return 0
	}

	for i := 0; i < window && i < len(scores); i++ {
		score := scores[i]
		candidates[i].RerankScore = &score
	}
	return window
}

// project caps the fused candidates into the final RAGContext, preserving
// order: documents limited overall and per source document, entities and
// memories limited per category.
func (e *Engine) project(candidates []*Candidate) *RAGContext {
	ragCtx := &RAGContext{}
	chunksPerDoc := make(map[string]int)

	for _, c := range candidates {
		item := RAGContextItem{
			ID:         c.ID,
			Type:       c.Type,
			Preview:    c.Preview,
			ChunkIndex: c.ChunkIndex,
			Source:     c.Source,
		}
		if score := c.EffectiveScore(); score != 0 {
			s := score
			item.Score = &s
		}

		switch c.Kind {
		case KindDocument:
			if len(ragCtx.Documents) >= e.cfg.DocumentLimit {
				continue
			}
			if chunksPerDoc[c.ID] >= e.cfg.ChunksPerDocument {
				continue
			}
			chunksPerDoc[c.ID]++
			item.Title = c.Title
			ragCtx.Documents = append(ragCtx.Documents, item)
		case KindEntity:
			if len(ragCtx.Entities) >= e.cfg.EntityLimit {
				continue
			}
			item.Name = c.Title
			ragCtx.Entities = append(ragCtx.Entities, item)
		case KindMemory:
			if len(ragCtx.Memories) >= e.cfg.MemoryLimit {
				continue
			}
			item.Category = c.Type
			ragCtx.Memories = append(ragCtx.Memories, item)
		}
	}

	return ragCtx
}

// candidateFromVector maps a vector hit payload onto a candidate.
func candidateFromVector(hit vector.Hit) *Candidate {
	kind := Kind(payloadString(hit.Payload, "type"))
	if kind == "" {
		kind = KindDocument
	}

	var chunkIndex *int
	if v, ok := payloadInt(hit.Payload, "chunk_index"); ok {
		chunkIndex = &v
	}

	score := hit.Score
	title := payloadString(hit.Payload, "title")
	if title == "" {
		title = payloadString(hit.Payload, "name")
	}
	preview := payloadString(hit.Payload, "text")
	subtype := payloadString(hit.Payload, "document_type")
	if subtype == "" {
		subtype = payloadString(hit.Payload, "entity_type")
	}
	if subtype == "" {
		subtype = payloadString(hit.Payload, "category")
	}

	id := payloadString(hit.Payload, "source_id")
	if id == "" {
		id = hit.ID
	}

	return &Candidate{
		Key:         CandidateKey(kind, id, chunkIndex),
		ID:          id,
		Kind:        kind,
		Type:        subtype,
		Title:       title,
		Preview:     preview,
		RerankText:  preview,
		Source:      SourceQdrant,
		VectorScore: &score,
		ChunkIndex:  chunkIndex,
	}
}

func candidateFromLexical(hit LexicalHit) *Candidate {
	score := hit.Score
	return &Candidate{
		Key:          CandidateKey(hit.Kind, hit.ID, hit.ChunkIndex),
		ID:           hit.ID,
		Kind:         hit.Kind,
		Type:         hit.Type,
		Title:        hit.Title,
		Preview:      hit.Preview,
		RerankText:   hit.Preview,
		Source:       SourceLexical,
		LexicalScore: &score,
		ChunkIndex:   hit.ChunkIndex,
	}
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func payloadInt(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
