package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPromptPreambles(t *testing.T) {
	write := BuildSystemPrompt(ModeWrite, nil, nil)
	assert.Contains(t, write, "collaborative writing assistant")

	ask := BuildSystemPrompt(ModeAsk, nil, nil)
	assert.Contains(t, ask, "story consultant")

	// Unknown modes fall back to the write preamble.
	assert.Contains(t, BuildSystemPrompt(Mode("review"), nil, nil), "collaborative writing assistant")
}

func TestBuildSystemPromptSections(t *testing.T) {
	idx := 0
	ragCtx := &RAGContext{
		Documents: []RAGContextItem{
			{ID: "d1", Title: "Chapter One", Preview: "Elara rides\nnorth.", ChunkIndex: &idx},
		},
		Entities: []RAGContextItem{
			{ID: "e1", Name: "Elara Voss", Type: "character", Preview: "Exiled heir."},
		},
		Memories: []RAGContextItem{
			{ID: "m1", Category: "style", Preview: "Keep chapters short."},
		},
	}

	prompt := BuildSystemPrompt(ModeWrite, ragCtx, nil)

	assert.Contains(t, prompt, "## Story documents")
	// Newlines inside previews are flattened to keep list items one line.
	assert.Contains(t, prompt, "- Chapter One: Elara rides north.")
	assert.Contains(t, prompt, "## Known entities")
	assert.Contains(t, prompt, "- Elara Voss (character): Exiled heir.")
	assert.Contains(t, prompt, "## Project memories")
	assert.Contains(t, prompt, "- [style] Keep chapters short.")
}

func TestBuildSystemPromptOmitsEmptySections(t *testing.T) {
	prompt := BuildSystemPrompt(ModeAsk, &RAGContext{}, nil)
	assert.NotContains(t, prompt, "## Story documents")
	assert.NotContains(t, prompt, "## Known entities")
	assert.NotContains(t, prompt, "## Project memories")
}

func TestBuildSystemPromptTruncatesPreviews(t *testing.T) {
	long := strings.Repeat("x", promptDocPreviewLen+50)
	ragCtx := &RAGContext{
		Documents: []RAGContextItem{{ID: "d1", Title: "Long", Preview: long}},
	}

	prompt := BuildSystemPrompt(ModeWrite, ragCtx, nil)
	assert.Contains(t, prompt, strings.Repeat("x", promptDocPreviewLen)+"...")
	assert.NotContains(t, prompt, strings.Repeat("x", promptDocPreviewLen+1))
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// A two-byte rune straddles the byte limit; the cut must back off instead
	// of emitting half a rune.
	s := strings.Repeat("x", promptDocPreviewLen-1) + "é" + strings.Repeat("y", 10)
	got := truncate(s, promptDocPreviewLen)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", promptDocPreviewLen-1)+"...", got)
}

func TestCutAtRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short string unchanged", in: "héllo", max: 10, want: "héllo"},
		{name: "ascii cut exact", in: "hello", max: 3, want: "hel"},
		{name: "mid-rune cut backs off", in: "héllo", max: 2, want: "h"},
		{name: "rune boundary cut kept", in: "héllo", max: 3, want: "hé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cutAtRuneBoundary(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestBuildSystemPromptCapsListLengths(t *testing.T) {
	ragCtx := &RAGContext{}
	for i := 0; i < promptEntityLimit+5; i++ {
		ragCtx.Entities = append(ragCtx.Entities, RAGContextItem{
			Name: "Entity", Type: "character", Preview: "p",
		})
	}

	prompt := BuildSystemPrompt(ModeWrite, ragCtx, nil)
	assert.Equal(t, promptEntityLimit, strings.Count(prompt, "- Entity (character)"))
}

func TestBuildSystemPromptEditorContext(t *testing.T) {
	editor := &EditorContext{
		CurrentDocumentTitle: "Chapter Three",
		CurrentDocumentText:  "The gates of Vireth stood open.",
		SelectedText:         "gates of Vireth",
	}

	prompt := BuildSystemPrompt(ModeWrite, nil, editor)
	assert.Contains(t, prompt, "## Current document: Chapter Three")
	assert.Contains(t, prompt, "The gates of Vireth stood open.")
	assert.Contains(t, prompt, "## Selected text\ngates of Vireth")

	// No selection, no section.
	prompt = BuildSystemPrompt(ModeWrite, nil, &EditorContext{CurrentDocumentText: "body"})
	assert.NotContains(t, prompt, "## Selected text")
}
