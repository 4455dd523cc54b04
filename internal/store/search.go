package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

// Document is one chunked piece of project writing.
type Document struct {
	ID        string
	ProjectID string
	Title     string
	DocType   string
	Chunks    []string
	CreatedAt time.Time
}

// Memory is one persistent preference or canon note.
type Memory struct {
	ID        string
	ProjectID string
	Category  string
	Content   string
	CreatedAt time.Time
}

// SaveDocument inserts a document and its chunks; FTS rows follow via
// triggers. An existing document with the same id is replaced.
func (s *SQLiteStore) SaveDocument(ctx context.Context, d Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", d.ID); err != nil {
		return fmt.Errorf("delete old document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, project_id, title, doc_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Title, d.DocType, formatTime(d.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	for i, text := range d.Chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_chunks (document_id, project_id, chunk_index, text)
			VALUES (?, ?, ?, ?)`,
			d.ID, d.ProjectID, i, text,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// SaveMemory inserts one memory record.
func (s *SQLiteStore) SaveMemory(ctx context.Context, m Memory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, project_id, category, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Category, m.Content, formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// GetDocumentChunks returns chunks with index in [from, to], ordered by index.
// Negative from is clamped to zero.
func (s *SQLiteStore) GetDocumentChunks(ctx context.Context, projectID, documentID string, from, to int) ([]retrieval.Chunk, error) {
	if from < 0 {
		from = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, text FROM document_chunks
		WHERE document_id = ? AND project_id = ? AND chunk_index BETWEEN ? AND ?
		ORDER BY chunk_index`,
		documentID, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []retrieval.Chunk
	for rows.Next() {
		var c retrieval.Chunk
		if err := rows.Scan(&c.Index, &c.Text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SearchLexical runs BM25 keyword search over document chunks, entities, and
// memories, merged into one descending-score list.
func (s *SQLiteStore) SearchLexical(ctx context.Context, projectID, query string, limit int) ([]retrieval.LexicalHit, error) {
	if limit <= 0 {
		limit = 10
	}
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	var hits []retrieval.LexicalHit

	chunkHits, err := s.searchChunksFTS(ctx, projectID, match, limit)
	if err != nil {
		return nil, err
	}
	hits = append(hits, chunkHits...)

	entityHits, err := s.searchEntitiesFTS(ctx, projectID, match, limit)
	if err != nil {
		return nil, err
	}
	hits = append(hits, entityHits...)

	memoryHits, err := s.searchMemoriesFTS(ctx, projectID, match, limit)
	if err != nil {
		return nil, err
	}
	hits = append(hits, memoryHits...)

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *SQLiteStore) searchChunksFTS(ctx context.Context, projectID, match string, limit int) ([]retrieval.LexicalHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.document_id, f.chunk_index, snippet(chunks_fts, 3, '', '', '...', 24),
		       d.title, d.doc_type, bm25(chunks_fts) AS rank
		FROM chunks_fts f
		JOIN documents d ON d.id = f.document_id
		WHERE chunks_fts MATCH ? AND f.project_id = ?
		ORDER BY rank LIMIT ?`,
		match, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("chunk FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []retrieval.LexicalHit
	for rows.Next() {
		var h retrieval.LexicalHit
		var chunkIndex int
		var rank float64
		if err := rows.Scan(&h.ID, &chunkIndex, &h.Preview, &h.Title, &h.Type, &rank); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		h.Kind = retrieval.KindDocument
		h.ChunkIndex = &chunkIndex
		h.Score = bm25Score(rank)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) searchEntitiesFTS(ctx context.Context, projectID, match string, limit int) ([]retrieval.LexicalHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, e.name, e.type, e.notes, bm25(entities_fts) AS rank
		FROM entities_fts f
		JOIN entities e ON e.id = f.id
		WHERE entities_fts MATCH ? AND f.project_id = ?
		ORDER BY rank LIMIT ?`,
		match, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("entity FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []retrieval.LexicalHit
	for rows.Next() {
		var h retrieval.LexicalHit
		var rank float64
		if err := rows.Scan(&h.ID, &h.Title, &h.Type, &h.Preview, &rank); err != nil {
			return nil, fmt.Errorf("scan entity hit: %w", err)
		}
		h.Kind = retrieval.KindEntity
		h.Score = bm25Score(rank)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) searchMemoriesFTS(ctx context.Context, projectID, match string, limit int) ([]retrieval.LexicalHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, m.category, m.content, bm25(memories_fts) AS rank
		FROM memories_fts f
		JOIN memories m ON m.id = f.id
		WHERE memories_fts MATCH ? AND f.project_id = ?
		ORDER BY rank LIMIT ?`,
		match, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []retrieval.LexicalHit
	for rows.Next() {
		var h retrieval.LexicalHit
		var category sql.NullString
		var rank float64
		if err := rows.Scan(&h.ID, &category, &h.Preview, &rank); err != nil {
			return nil, fmt.Errorf("scan memory hit: %w", err)
		}
		h.Kind = retrieval.KindMemory
		h.Type = category.String
		h.Score = bm25Score(rank)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// bm25Score converts SQLite's lower-is-better bm25 rank (negative for real
// matches) into a positive higher-is-better score.
func bm25Score(rank float64) float64 {
	if rank >= 0 {
		return 0
	}
	return -rank
}
