package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mythos-ai/mythos-core/internal/store"
	"github.com/mythos-ai/mythos-core/internal/ui"
)

// chunkTargetSize is the soft upper bound for one document chunk. Paragraphs
// are packed until the next one would cross it.
const chunkTargetSize = 1200

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage story documents",
}

var docAddCmd = &cobra.Command{
	Use:          "add <project> <file>",
	Short:        "Import a document, chunked for retrieval",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(2),
	RunE:         runDocAdd,
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage project memories",
}

var memoryAddCmd = &cobra.Command{
	Use:          "add <project> <category> <content>",
	Short:        "Save a persistent preference or canon note",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(3),
	RunE:         runMemoryAdd,
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docAddCmd)
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryAddCmd)

	docAddCmd.Flags().String("title", "", "Document title (default: file name)")
	docAddCmd.Flags().String("type", "chapter", "Document type (chapter, note, outline, ...)")
}

func runDocAdd(cmd *cobra.Command, args []string) error {
	projectID, path := args[0], args[1]

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	title, _ := cmd.Flags().GetString("title")
	docType, _ := cmd.Flags().GetString("type")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	chunks := chunkText(string(raw))
	if len(chunks) == 0 {
		return fmt.Errorf("document %s is empty", path)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	doc := store.Document{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     title,
		DocType:   docType,
		Chunks:    chunks,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveDocument(cmd.Context(), doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if err := s.EnqueueEmbed(cmd.Context(), projectID, "document", doc.ID); err != nil {
		return fmt.Errorf("enqueue embedding: %w", err)
	}

	fmt.Println(ui.StyleSuccess.Render(fmt.Sprintf("Imported %q as %d chunks (%s)", title, len(chunks), doc.ID)))
	return nil
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	m := store.Memory{
		ID:        uuid.NewString(),
		ProjectID: args[0],
		Category:  args[1],
		Content:   args[2],
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveMemory(cmd.Context(), m); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	if err := s.EnqueueEmbed(cmd.Context(), args[0], "memory", m.ID); err != nil {
		return fmt.Errorf("enqueue embedding: %w", err)
	}

	fmt.Println(ui.StyleSuccess.Render("Saved memory " + m.ID))
	return nil
}

// chunkText splits text on blank lines and packs paragraphs into chunks of
// roughly chunkTargetSize characters. A single oversized paragraph becomes its
// own chunk rather than being split mid-sentence.
func chunkText(text string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > chunkTargetSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
