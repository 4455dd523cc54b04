package retrieval

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// expandChunkContext splices neighboring chunks into the previews of document
// candidates that carry a chunk index. Expansions run concurrently per
// candidate; a failed expansion leaves that candidate's original preview in
// place. Returns how many candidates were expanded.
func (e *Engine) expandChunkContext(ctx context.Context, projectID string, candidates []*Candidate) int {
	if e.chunks == nil || (e.cfg.ChunksBefore == 0 && e.cfg.ChunksAfter == 0) {
		return 0
	}

	var g errgroup.Group
	expanded := make([]bool, len(candidates))
	for i, c := range candidates {
		if c.Kind != KindDocument || c.ChunkIndex == nil {
			continue
		}
		i, c := i, c
		g.Go(func() error {
			preview, ok := e.expandOne(ctx, projectID, c)
			if ok {
				c.Preview = preview
				expanded[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range expanded {
		if ok {
			count++
		}
	}
	return count
}

func (e *Engine) expandOne(ctx context.Context, projectID string, c *Candidate) (string, bool) {
	idx := *c.ChunkIndex
	from := idx - e.cfg.ChunksBefore
	if from < 0 {
		from = 0
	}
	to := idx + e.cfg.ChunksAfter

	chunks, err := e.chunks.GetDocumentChunks(ctx, projectID, c.ID, from, to)
	if err != nil {
		e.logger.Debug("chunk expansion failed", "document", c.ID, "chunk", idx, "error", err)
		return "", false
	}

	var before, after []string
	for _, chunk := range chunks {
		switch {
		case chunk.Index < idx:
			before = append(before, chunk.Text)
		case chunk.Index > idx:
			after = append(after, chunk.Text)
		}
	}
	if len(before) == 0 && len(after) == 0 {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString(c.Preview)
	if len(before) > 0 {
		sb.WriteString("\n\nContext before:\n")
		sb.WriteString(strings.Join(before, "\n"))
	}
	if len(after) > 0 {
		sb.WriteString("\n\nContext after:\n")
		sb.WriteString(strings.Join(after, "\n"))
	}
	return sb.String(), true
}
