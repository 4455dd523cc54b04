// Package agent drives one conversational turn: retrieve context, stream
// model output, partition tool calls by policy, execute auto calls, pause on
// approval-gated ones, and resume when the user decides.
package agent

import (
	"sync"

	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

// ChunkKind discriminates stream chunks.
type ChunkKind string

const (
	ChunkContext         ChunkKind = "context"
	ChunkDelta           ChunkKind = "delta"
	ChunkTool            ChunkKind = "tool"
	ChunkApprovalRequest ChunkKind = "tool-approval-request"
	ChunkComplete        ChunkKind = "complete"
	ChunkFail            ChunkKind = "fail"
)

// Chunk is one ordered, append-only unit of a response stream.
type Chunk struct {
	Kind     ChunkKind `json:"kind"`
	StreamID string    `json:"streamId"`
	Seq      int       `json:"seq"`

	// context
	Context *retrieval.RAGContext `json:"context,omitempty"`

	// delta
	Text string `json:"text,omitempty"`

	// tool: an executed call and its result.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	ToolResult string `json:"toolResult,omitempty"`

	// tool-approval-request
	ApprovalID   string              `json:"approvalId,omitempty"`
	ApprovalType policy.ApprovalType `json:"approvalType,omitempty"`
	Danger       policy.Danger       `json:"danger,omitempty"`
	Args         map[string]any      `json:"args,omitempty"`

	// fail
	Error string `json:"error,omitempty"`
}

// Sink receives stream chunks in order. Implementations must not block for
// long; the loop emits synchronously.
type Sink interface {
	Emit(Chunk)
}

// ChunkRecorder is a Sink that retains every chunk. Used in tests and by
// callers that replay a stream after the turn ends.
type ChunkRecorder struct {
	mu     sync.Mutex
	chunks []Chunk
}

func (r *ChunkRecorder) Emit(c Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
}

// Chunks returns a copy of everything emitted so far.
func (r *ChunkRecorder) Chunks() []Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// emitter stamps stream id and sequence numbers onto outgoing chunks.
type emitter struct {
	sink     Sink
	streamID string
	seq      int
}

func (e *emitter) emit(c Chunk) {
	if e.sink == nil {
		return
	}
	c.StreamID = e.streamID
	c.Seq = e.seq
	e.seq++
	e.sink.Emit(c)
}
