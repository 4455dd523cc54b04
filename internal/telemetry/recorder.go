// Package telemetry reports anonymous retrieval and mutation metrics to
// PostHog. Recording never fails the pipeline that emits it.
package telemetry

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/posthog/posthog-go"

	"github.com/mythos-ai/mythos-core/internal/agent"
	"github.com/mythos-ai/mythos-core/internal/retrieval"
)

// enqueuer is the slice of the PostHog client we use; mockable in tests.
type enqueuer interface {
	io.Closer
	Enqueue(msg posthog.Message) error
}

// Recorder forwards retrieval stats to PostHog. A zero-config Recorder is a
// no-op, so callers never need to branch on whether telemetry is on.
type Recorder struct {
	mu      sync.RWMutex
	client  enqueuer
	version string
	enabled bool
}

// Config configures the telemetry recorder.
type Config struct {
	// APIKey is the PostHog project API key. Empty disables telemetry.
	APIKey string

	// Endpoint overrides the PostHog cloud endpoint (self-hosted).
	Endpoint string

	Version string
}

// NewRecorder creates a recorder. An empty API key yields a disabled
// recorder, not an error.
func NewRecorder(cfg Config) (*Recorder, error) {
	if cfg.APIKey == "" {
		return &Recorder{version: cfg.Version}, nil
	}

	phConfig := posthog.Config{
		BatchSize: 10,
		Interval:  time.Second,
		Logger:    quietLogger{},
	}
	if cfg.Endpoint != "" {
		phConfig.Endpoint = cfg.Endpoint
	}
	client, err := posthog.NewWithConfig(cfg.APIKey, phConfig)
	if err != nil {
		return nil, err
	}
	return &Recorder{client: client, version: cfg.Version, enabled: true}, nil
}

// newRecorderWithEnqueuer builds an enabled recorder on a custom enqueuer,
// for tests.
func newRecorderWithEnqueuer(enq enqueuer, version string) *Recorder {
	return &Recorder{client: enq, version: version, enabled: true}
}

// RecordRetrieval emits one retrieval event. Failures are swallowed; the
// retrieval pipeline must never notice telemetry trouble.
func (r *Recorder) RecordRetrieval(distinctID string, stats retrieval.Stats) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.enabled || distinctID == "" {
		return
	}

	props := posthog.NewProperties().
		Set("vector_candidates", stats.VectorCandidates).
		Set("lexical_candidates", stats.LexicalCandidates).
		Set("fused_candidates", stats.FusedCandidates).
		Set("reranked", stats.Reranked).
		Set("expanded_chunks", stats.Expanded).
		Set("vector_latency_ms", stats.VectorLatency.Milliseconds()).
		Set("lexical_latency_ms", stats.LexicalLatency.Milliseconds()).
		Set("rerank_latency_ms", stats.RerankLatency.Milliseconds()).
		Set("total_latency_ms", stats.TotalLatency.Milliseconds()).
		Set("os", runtime.GOOS).
		Set("arch", runtime.GOARCH).
		Set("version", r.version).
		Set("$process_person_profile", false)

	_ = r.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      "retrieval_completed",
		Properties: props,
	})
}

// RecordMutation emits one graph-mutation event.
func (r *Recorder) RecordMutation(distinctID, action, kind string, gated bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.enabled || distinctID == "" {
		return
	}
	_ = r.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      "graph_mutation",
		Properties: posthog.NewProperties().
			Set("action", action).
			Set("kind", kind).
			Set("gated", gated).
			Set("version", r.version).
			Set("$process_person_profile", false),
	})
}

// Close flushes pending events.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

var (
	_ retrieval.Recorder     = (*Recorder)(nil)
	_ agent.MutationRecorder = (*Recorder)(nil)
)

// quietLogger keeps PostHog transport noise out of normal output.
type quietLogger struct{}

func (quietLogger) Debugf(string, ...interface{}) {}
func (quietLogger) Logf(string, ...interface{})   {}
func (quietLogger) Warnf(string, ...interface{})  {}
func (quietLogger) Errorf(string, ...interface{}) {}
