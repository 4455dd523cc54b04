package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/mythos-ai/mythos-core/internal/graph"
	"github.com/mythos-ai/mythos-core/internal/policy"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

// TurnState is the terminal state of one Run or Resume call.
type TurnState string

const (
	TurnComplete         TurnState = "complete"
	TurnAwaitingApproval TurnState = "awaiting-approval"
	TurnFailed           TurnState = "failed"
)

// TurnRequest describes one user turn.
type TurnRequest struct {
	ProjectID string
	Actor     string
	ThreadID  string
	StreamID  string
	Prompt    string
	Mode      retrieval.Mode
	Editor    *retrieval.EditorContext

	// History carries prior turns of the thread, oldest first.
	History []*schema.Message
}

// TurnResult reports how the turn ended.
type TurnResult struct {
	State            TurnState
	PendingApprovals []string
	Messages         []*schema.Message
}

// SuggestionStore persists approval-gated tool calls.
type SuggestionStore interface {
	SaveSuggestion(ctx context.Context, s policy.Suggestion) error
	ResolveSuggestion(ctx context.Context, id string, status policy.SuggestionStatus) (bool, error)
}

// MutationRecorder receives graph-mutation telemetry. Nil disables it.
type MutationRecorder interface {
	RecordMutation(distinctID, action, kind string, gated bool)
}

// Loop drives conversational turns against the language model.
type Loop struct {
	model       model.BaseChatModel
	executor    *graph.Executor
	engine      *retrieval.Engine
	classifier  *policy.Classifier
	entities    policy.EntityResolver
	suggestions SuggestionStore
	recorder    MutationRecorder
	logger      *slog.Logger
	maxSteps    int

	mu     sync.Mutex
	paused map[string]*pausedTurn
}

// pausedTurn is a turn stopped on pending approvals, resumable per approval.
type pausedTurn struct {
	req      TurnRequest
	messages []*schema.Message
	tools    []tool.InvokableTool
	seq      int

	// pending maps approvalID to the gated tool call.
	pending map[string]pendingCall
}

type pendingCall struct {
	toolCall schema.ToolCall
	mutation *policy.Mutation
}

// NewLoop creates an orchestration loop.
func NewLoop(chatModel model.BaseChatModel, executor *graph.Executor, engine *retrieval.Engine, classifier *policy.Classifier, entities policy.EntityResolver, suggestions SuggestionStore, recorder MutationRecorder) *Loop {
	return &Loop{
		model:       chatModel,
		executor:    executor,
		engine:      engine,
		classifier:  classifier,
		entities:    entities,
		suggestions: suggestions,
		recorder:    recorder,
		logger:      slog.Default(),
		maxSteps:    8,
	}
}

// Run executes one turn: retrieve, generate, execute auto tools, repeat until
// the model stops calling tools or an approval is pending. Model failures end
// the stream with a fail chunk; they never corrupt already-emitted chunks.
func (l *Loop) Run(ctx context.Context, req TurnRequest, sink Sink) (*TurnResult, error) {
	em := &emitter{sink: sink, streamID: req.StreamID}

	ragCtx, err := l.engine.Retrieve(ctx, req.Prompt, req.ProjectID, retrieval.Options{
		IncludeMemories: true,
		DistinctID:      req.Actor,
	})
	if err != nil {
		// Retrieval degrades to an empty context, never fails the turn.
		l.logger.Warn("retrieval failed, continuing without context", "error", err)
		ragCtx = &retrieval.RAGContext{}
	}
	em.emit(Chunk{Kind: ChunkContext, Context: ragCtx})

	messages := []*schema.Message{
		schema.SystemMessage(retrieval.BuildSystemPrompt(req.Mode, ragCtx, req.Editor)),
	}
	messages = append(messages, req.History...)
	messages = append(messages, schema.UserMessage(req.Prompt))

	tools := buildTurnTools(l.executor, l.engine, req.ProjectID, req.Actor)
	return l.generate(ctx, req, em, messages, tools)
}

// generate runs model steps until completion or a pending approval.
func (l *Loop) generate(ctx context.Context, req TurnRequest, em *emitter, messages []*schema.Message, tools []tool.InvokableTool) (*TurnResult, error) {
	toolInfos := make([]*schema.ToolInfo, 0, len(tools))
	byName := make(map[string]tool.InvokableTool, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			continue
		}
		toolInfos = append(toolInfos, info)
		byName[info.Name] = t
	}

	for step := 0; step < l.maxSteps; step++ {
		select {
		case <-ctx.Done():
			em.emit(Chunk{Kind: ChunkFail, Error: ctx.Err().Error()})
			return &TurnResult{State: TurnFailed, Messages: messages}, ctx.Err()
		default:
		}

		resp, err := l.modelStep(ctx, em, messages, toolInfos)
		if err != nil {
			em.emit(Chunk{Kind: ChunkFail, Error: err.Error()})
			return &TurnResult{State: TurnFailed, Messages: messages}, fmt.Errorf("model step %d: %w", step+1, err)
		}
		messages = append(messages, resp)

		if len(resp.ToolCalls) == 0 {
			em.emit(Chunk{Kind: ChunkComplete})
			return &TurnResult{State: TurnComplete, Messages: messages}, nil
		}

		pending := make(map[string]pendingCall)
		executed := 0
		for _, tc := range resp.ToolCalls {
			args := parseArgs(tc.Function.Arguments)
			decision, derr := l.classifier.Classify(ctx, req.ProjectID, tc.Function.Name, args)
			if derr != nil {
				l.logger.Warn("classification degraded", "tool", tc.Function.Name, "error", derr)
			}

			if decision.AutoExecute {
				result := l.runTool(ctx, byName, tc)
				l.recordMutation(req.Actor, decision.Mutation, false)
				em.emit(Chunk{Kind: ChunkTool, ToolCallID: tc.ID, ToolName: tc.Function.Name, ToolResult: result})
				messages = append(messages, schema.ToolMessage(result, tc.ID))
				executed++
				continue
			}

			approvalID := l.createSuggestion(ctx, req, tc, decision, args)
			pending[approvalID] = pendingCall{toolCall: tc, mutation: decision.Mutation}
			em.emit(Chunk{
				Kind:         ChunkApprovalRequest,
				ToolCallID:   tc.ID,
				ToolName:     tc.Function.Name,
				ApprovalID:   approvalID,
				ApprovalType: decision.ApprovalType,
				Danger:       decision.Danger,
				Args:         args,
			})
		}

		if len(pending) > 0 {
			// Stop generating; the user decides next.
			l.park(req, messages, tools, pending, em.seq)
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			return &TurnResult{State: TurnAwaitingApproval, PendingApprovals: ids, Messages: messages}, nil
		}
		if executed == 0 {
			em.emit(Chunk{Kind: ChunkComplete})
			return &TurnResult{State: TurnComplete, Messages: messages}, nil
		}
	}

	em.emit(Chunk{Kind: ChunkComplete})
	return &TurnResult{State: TurnComplete, Messages: messages}, nil
}

// modelStep streams one model response, emitting text deltas. Models that do
// not support streaming fall back to a blocking generate.
func (l *Loop) modelStep(ctx context.Context, em *emitter, messages []*schema.Message, toolInfos []*schema.ToolInfo) (*schema.Message, error) {
	stream, err := l.model.Stream(ctx, messages, model.WithTools(toolInfos))
	if err != nil || stream == nil {
		resp, gerr := l.model.Generate(ctx, messages, model.WithTools(toolInfos))
		if gerr != nil {
			return nil, gerr
		}
		if resp.Content != "" {
			em.emit(Chunk{Kind: ChunkDelta, Text: resp.Content})
		}
		return resp, nil
	}
	defer stream.Close()

	var parts []*schema.Message
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("recv stream: %w", err)
		}
		if chunk.Content != "" {
			em.emit(Chunk{Kind: ChunkDelta, Text: chunk.Content})
		}
		parts = append(parts, chunk)
	}
	if len(parts) == 0 {
		return &schema.Message{Role: schema.Assistant}, nil
	}
	return schema.ConcatMessages(parts)
}

func (l *Loop) runTool(ctx context.Context, byName map[string]tool.InvokableTool, tc schema.ToolCall) string {
	t, ok := byName[tc.Function.Name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", tc.Function.Name)
	}
	result, err := t.InvokableRun(ctx, tc.Function.Arguments)
	if err != nil {
		// Tool failures become normal results the model can react to.
		return fmt.Sprintf("Error executing %s: %v", tc.Function.Name, err)
	}
	return result
}

func (l *Loop) createSuggestion(ctx context.Context, req TurnRequest, tc schema.ToolCall, decision policy.Decision, args map[string]any) string {
	approvalID := uuid.NewString()
	preview := policy.BuildApprovalPreview(ctx, l.entities, req.ProjectID, decision.Mutation)
	suggestion := policy.Suggestion{
		ID:            approvalID,
		ProjectID:     req.ProjectID,
		ToolCallID:    tc.ID,
		ToolName:      tc.Function.Name,
		ApprovalType:  decision.ApprovalType,
		Danger:        decision.Danger,
		RiskLevel:     decision.RiskLevel,
		Reasons:       decision.Reasons,
		Preview:       preview,
		ProposedPatch: args,
		Actor:         req.Actor,
		StreamID:      req.StreamID,
		ThreadID:      req.ThreadID,
		Status:        policy.SuggestionPending,
		CreatedAt:     time.Now().UTC(),
	}
	if l.suggestions != nil {
		if err := l.suggestions.SaveSuggestion(ctx, suggestion); err != nil {
			l.logger.Warn("persist suggestion failed", "approval", approvalID, "error", err)
		}
	}
	return approvalID
}

func (l *Loop) park(req TurnRequest, messages []*schema.Message, tools []tool.InvokableTool, pending map[string]pendingCall, seq int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused == nil {
		l.paused = make(map[string]*pausedTurn)
	}
	turn := &pausedTurn{req: req, messages: messages, tools: tools, pending: pending, seq: seq}
	for id := range pending {
		l.paused[id] = turn
	}
}

// ResumeWithApproval resolves one pending approval. Approved mutations
// execute now; rejections become a tool result telling the model the user
// declined. Generation resumes only once every approval of the turn is
// resolved.
func (l *Loop) ResumeWithApproval(ctx context.Context, approvalID string, approve bool, sink Sink) (*TurnResult, error) {
	l.mu.Lock()
	turn, ok := l.paused[approvalID]
	if ok {
		delete(l.paused, approvalID)
	}
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no pending approval %s", approvalID)
	}

	call, ok := turn.pending[approvalID]
	if !ok {
		return nil, fmt.Errorf("approval %s is not pending on its turn", approvalID)
	}
	delete(turn.pending, approvalID)

	status := policy.SuggestionRejected
	if approve {
		status = policy.SuggestionApplied
	}
	if l.suggestions != nil {
		if _, err := l.suggestions.ResolveSuggestion(ctx, approvalID, status); err != nil {
			l.logger.Warn("resolve suggestion failed", "approval", approvalID, "error", err)
		}
	}

	em := &emitter{sink: sink, streamID: turn.req.StreamID, seq: turn.seq}

	var result string
	if approve {
		byName := make(map[string]tool.InvokableTool, len(turn.tools))
		for _, t := range turn.tools {
			if info, err := t.Info(ctx); err == nil {
				byName[info.Name] = t
			}
		}
		result = l.runTool(ctx, byName, call.toolCall)
		l.recordMutation(turn.req.Actor, call.mutation, true)
	} else {
		result = "The user rejected this change."
	}
	em.emit(Chunk{Kind: ChunkTool, ToolCallID: call.toolCall.ID, ToolName: call.toolCall.Function.Name, ToolResult: result})
	turn.messages = append(turn.messages, schema.ToolMessage(result, call.toolCall.ID))

	if len(turn.pending) > 0 {
		// Other approvals from the same step are still open; keep waiting.
		turn.seq = em.seq
		l.mu.Lock()
		for id := range turn.pending {
			l.paused[id] = turn
		}
		l.mu.Unlock()
		ids := make([]string, 0, len(turn.pending))
		for id := range turn.pending {
			ids = append(ids, id)
		}
		return &TurnResult{State: TurnAwaitingApproval, PendingApprovals: ids, Messages: turn.messages}, nil
	}

	return l.generate(ctx, turn.req, em, turn.messages, turn.tools)
}

// recordMutation emits mutation telemetry for graph tool calls; reads and
// other non-graph tools carry no mutation and are skipped.
func (l *Loop) recordMutation(actor string, m *policy.Mutation, gated bool) {
	if l.recorder == nil || m == nil {
		return
	}
	l.recorder.RecordMutation(actor, string(m.Action), string(m.Target), gated)
}

func parseArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	return args
}
