package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Mode selects the assistant's role preamble.
type Mode string

const (
	ModeWrite Mode = "write"
	ModeAsk   Mode = "ask"
)

// EditorContext carries what the author currently has open.
type EditorContext struct {
	CurrentDocumentTitle string
	CurrentDocumentText  string
	SelectedText         string
}

// Prompt construction limits. Projection caps bound what retrieval returns;
// these bound what goes into the system prompt.
const (
	promptDocumentLimit = 5
	promptEntityLimit   = 10
	promptMemoryLimit   = 5
	promptDocPreviewLen = 200
	promptEntPreviewLen = 100
	promptMemPreviewLen = 150
)

const writePreamble = `You are a collaborative writing assistant for a fiction author.
You can read and write story documents and maintain the project's knowledge graph of
characters, locations, factions, and the relationships between them. Use the provided
story context to stay consistent with established canon. When you change the knowledge
graph, prefer small precise mutations over sweeping rewrites.`

const askPreamble = `You are a story consultant for a fiction author. Answer questions
about the project using the provided story context. Do not invent canon that the
context does not support; say when you are unsure.`

// BuildSystemPrompt renders the system prompt from a resolved RAG context and
// the author's editor state. Pure formatting, no ranking logic.
func BuildSystemPrompt(mode Mode, ragCtx *RAGContext, editor *EditorContext) string {
	var sb strings.Builder

	if mode == ModeAsk {
		sb.WriteString(askPreamble)
	} else {
		sb.WriteString(writePreamble)
	}

	if ragCtx != nil {
		if len(ragCtx.Documents) > 0 {
			sb.WriteString("\n\n## Story documents\n")
			for i, doc := range ragCtx.Documents {
				if i >= promptDocumentLimit {
					break
				}
				sb.WriteString(fmt.Sprintf("- %s: %s\n", doc.Title, truncate(doc.Preview, promptDocPreviewLen)))
			}
		}
		if len(ragCtx.Entities) > 0 {
			sb.WriteString("\n## Known entities\n")
			for i, ent := range ragCtx.Entities {
				if i >= promptEntityLimit {
					break
				}
				sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", ent.Name, ent.Type, truncate(ent.Preview, promptEntPreviewLen)))
			}
		}
		if len(ragCtx.Memories) > 0 {
			sb.WriteString("\n## Project memories\n")
			for i, mem := range ragCtx.Memories {
				if i >= promptMemoryLimit {
					break
				}
				sb.WriteString(fmt.Sprintf("- [%s] %s\n", mem.Category, truncate(mem.Preview, promptMemPreviewLen)))
			}
		}
	}

	if editor != nil {
		if editor.CurrentDocumentText != "" {
			sb.WriteString("\n## Current document")
			if editor.CurrentDocumentTitle != "" {
				sb.WriteString(": " + editor.CurrentDocumentTitle)
			}
			sb.WriteString("\n")
			sb.WriteString(editor.CurrentDocumentText)
			sb.WriteString("\n")
		}
		if editor.SelectedText != "" {
			sb.WriteString("\n## Selected text\n")
			sb.WriteString(editor.SelectedText)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= limit {
		return s
	}
	return cutAtRuneBoundary(s, limit) + "..."
}

// cutAtRuneBoundary shortens s to at most max bytes without splitting a
// multi-byte rune.
func cutAtRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
