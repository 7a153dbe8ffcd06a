package coa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/chunker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const logModule = "ORCHESTRATOR"

// ChunkWorker analyzes a single chunk. Implemented by agent.Worker.
type ChunkWorker interface {
	Process(ctx context.Context, chunk chunker.Chunk, query string, previous *string) (string, error)
}

// ContextManager merges worker output. Implemented by agent.Manager.
type ContextManager interface {
	Synthesize(ctx context.Context, workerOutputs []string, query string) (string, error)
	UpdateContext(ctx context.Context, currentContext, workerResponse, query string) (string, error)
}

// Observer is called with a snapshot of the session after every transition.
type Observer func(Session)

type Config struct {
	ChunkSize int
	Policy    ContextPolicy
}

type Option func(*Orchestrator)

func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// Orchestrator drives chunks through the worker in order and hands the
// result to the manager. It runs one pipeline at a time.
type Orchestrator struct {
	cfg      Config
	worker   ChunkWorker
	manager  ContextManager
	logger   logger.ILogger
	tracer   trace.Tracer
	observer Observer

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewOrchestrator(cfg Config, worker ChunkWorker, manager ContextManager, log logger.ILogger, opts ...Option) (*Orchestrator, error) {
	if cfg.ChunkSize <= 0 {
		return nil, &ValidationError{Field: "chunk size", Reason: fmt.Sprintf("must be positive, got %d", cfg.ChunkSize)}
	}
	policy, err := ParseContextPolicy(string(cfg.Policy))
	if err != nil {
		return nil, &ValidationError{Field: "context policy", Reason: err.Error()}
	}
	cfg.Policy = policy

	o := &Orchestrator{
		cfg:     cfg,
		worker:  worker,
		manager: manager,
		logger:  log,
		tracer:  otel.Tracer("chain-of-agents-be/pkg/coa"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) Policy() ContextPolicy { return o.cfg.Policy }

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Abort cancels the in-flight run, if any. Results that arrive afterwards
// are discarded without touching the session or emitting events.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// acquire claims the single run slot and installs its cancel func under the
// same lock Abort takes, so an Abort seen after Running is never lost.
func (o *Orchestrator) acquire(ctx context.Context) (context.Context, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running.CompareAndSwap(false, true) {
		return nil, false
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	return runCtx, true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.running.Store(false)
}

// Run executes the pipeline for req and streams events to sink.
//
// Validation failures return a nil session. Any later failure returns the
// failed session together with the error; events already emitted stay
// valid, and no manager event is produced.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink Sink) (*Session, error) {
	runCtx, ok := o.acquire(ctx)
	if !ok {
		o.logger.Warn(logModule, "Rejected run while another is in progress", nil)
		return nil, ErrRunInProgress
	}
	defer o.release()

	if err := validate(req); err != nil {
		return nil, err
	}

	session := newSession(req, o.cfg.Policy)

	runCtx, span := o.tracer.Start(runCtx, "coa.Run", trace.WithAttributes(
		attribute.String("run.id", session.ID.String()),
		attribute.String("run.policy", string(o.cfg.Policy)),
		attribute.Int("run.chunk_size", o.cfg.ChunkSize),
	))
	defer span.End()

	r := &run{
		Orchestrator: o,
		ctx:          runCtx,
		span:         span,
		session:      session,
		query:        req.Query,
		sink:         sink,
	}
	return r.execute(req.Document)
}

func validate(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if req.Document.Text == "" {
		return &ValidationError{Field: "document", Reason: "no text could be read"}
	}
	if req.Document.PageCount < 0 {
		return &ValidationError{Field: "document", Reason: "page count must not be negative"}
	}
	return nil
}

// run holds the state of one pipeline execution.
type run struct {
	*Orchestrator
	ctx     context.Context
	span    trace.Span
	session *Session
	query   string
	sink    Sink
}

func (r *run) execute(doc Document) (*Session, error) {
	started := time.Now()

	r.transition(StateChunking)
	chunks, err := chunker.Split(doc.Text, r.cfg.ChunkSize)
	if err != nil {
		return r.fail(&ValidationError{Field: "chunk size", Reason: err.Error()})
	}
	r.session.TotalChunks = len(chunks)
	r.span.SetAttributes(attribute.Int("run.total_chunks", len(chunks)))

	r.logger.Info(logModule, "Document chunked", map[string]interface{}{
		"run_id":       r.session.ID.String(),
		"total_chunks": len(chunks),
		"total_pages":  doc.PageCount,
		"policy":       string(r.cfg.Policy),
	})

	if err := r.emit(MetadataEvent{TotalChunks: len(chunks), TotalPages: doc.PageCount}); err != nil {
		return r.fail(err)
	}

	outputs := make([]string, 0, len(chunks))
	var previous *string

	for i, chunk := range chunks {
		r.transition(StateProcessing)

		analysis, err := r.processChunk(chunk, previous)
		if err != nil {
			return r.fail(err)
		}

		outputs = append(outputs, analysis)

		result := WorkerResult{
			ChunkIndex: chunk.Index,
			Analysis:   analysis,
			Progress:   Progress{Current: i + 1, Total: len(chunks)},
		}
		if err := r.emit(WorkerEvent{Result: result}); err != nil {
			return r.fail(err)
		}
		r.session.ChunksProcessed = i + 1

		switch r.cfg.Policy {
		case PolicyManagerAccumulate:
			updated, err := r.updateContext(chunk.Index, analysis)
			if err != nil {
				return r.fail(err)
			}
			r.session.RunningContext = updated
		default:
			r.session.RunningContext = analysis
		}
		carried := r.session.RunningContext
		previous = &carried
		r.notify()
	}

	r.transition(StateSynthesizing)

	var answer string
	if r.cfg.Policy == PolicyManagerAccumulate && len(chunks) > 0 {
		answer = r.session.RunningContext
	} else {
		answer, err = r.synthesize(outputs)
		if err != nil {
			return r.fail(err)
		}
	}

	if err := r.emit(ManagerEvent{Answer: answer}); err != nil {
		return r.fail(err)
	}

	r.session.FinalAnswer = &answer
	r.session.finish(StateDone, nil)
	r.notify()
	r.span.SetStatus(codes.Ok, "")

	r.logger.Info(logModule, "Run completed", map[string]interface{}{
		"run_id":      r.session.ID.String(),
		"chunks":      len(chunks),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return r.session, nil
}

func (r *run) processChunk(chunk chunker.Chunk, previous *string) (string, error) {
	ctx, span := r.tracer.Start(r.ctx, "coa.Worker", trace.WithAttributes(
		attribute.Int("chunk.index", chunk.Index),
		attribute.Int("chunk.words", chunk.WordCount),
	))
	defer span.End()

	analysis, err := r.worker.Process(ctx, chunk, r.query, previous)
	if abortErr := r.aborted(); abortErr != nil {
		return "", abortErr
	}
	if err != nil {
		span.RecordError(err)
		return "", &InferenceError{Stage: "worker", ChunkIndex: chunk.Index, Err: err}
	}
	return analysis, nil
}

func (r *run) updateContext(chunkIndex int, analysis string) (string, error) {
	ctx, span := r.tracer.Start(r.ctx, "coa.UpdateContext", trace.WithAttributes(
		attribute.Int("chunk.index", chunkIndex),
	))
	defer span.End()

	updated, err := r.manager.UpdateContext(ctx, r.session.RunningContext, analysis, r.query)
	if abortErr := r.aborted(); abortErr != nil {
		return "", abortErr
	}
	if err != nil {
		span.RecordError(err)
		return "", &InferenceError{Stage: "context_update", ChunkIndex: chunkIndex, Err: err}
	}
	return updated, nil
}

func (r *run) synthesize(outputs []string) (string, error) {
	ctx, span := r.tracer.Start(r.ctx, "coa.Synthesize", trace.WithAttributes(
		attribute.Int("worker.outputs", len(outputs)),
	))
	defer span.End()

	answer, err := r.manager.Synthesize(ctx, outputs, r.query)
	if abortErr := r.aborted(); abortErr != nil {
		return "", abortErr
	}
	if err != nil {
		span.RecordError(err)
		return "", &InferenceError{Stage: "synthesis", ChunkIndex: -1, Err: err}
	}
	return answer, nil
}

func (r *run) aborted() error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, context.Cause(r.ctx))
	}
	return nil
}

func (r *run) emit(event Event) error {
	if err := r.aborted(); err != nil {
		return err
	}
	if err := r.sink.Emit(r.ctx, event); err != nil {
		return &EmitError{Event: event.Type(), Err: err}
	}
	return nil
}

func (r *run) transition(state State) {
	r.session.State = state
	r.span.AddEvent(string(state))
	r.notify()
}

func (r *run) notify() {
	if r.observer != nil {
		r.observer(*r.session)
	}
}

func (r *run) fail(err error) (*Session, error) {
	r.session.finish(StateFailed, err)
	r.notify()

	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())

	details := map[string]interface{}{
		"run_id":           r.session.ID.String(),
		"chunks_processed": r.session.ChunksProcessed,
		"total_chunks":     r.session.TotalChunks,
		"error":            err.Error(),
	}
	if errors.Is(err, ErrAborted) {
		r.logger.Warn(logModule, "Run aborted", details)
	} else {
		r.logger.Error(logModule, "Run failed", details)
	}
	return r.session, err
}
