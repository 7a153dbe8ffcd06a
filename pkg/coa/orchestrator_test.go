package coa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/chunker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioText = "Intro paragraph.\n\nSecond paragraph with five words here."

type fakeWorker struct {
	mu        sync.Mutex
	previous  []*string
	chunks    []chunker.Chunk
	processFn func(ctx context.Context, chunk chunker.Chunk) (string, error)
}

func (w *fakeWorker) Process(ctx context.Context, chunk chunker.Chunk, query string, previous *string) (string, error) {
	w.mu.Lock()
	w.chunks = append(w.chunks, chunk)
	if previous != nil {
		p := *previous
		w.previous = append(w.previous, &p)
	} else {
		w.previous = append(w.previous, nil)
	}
	w.mu.Unlock()

	if w.processFn != nil {
		return w.processFn(ctx, chunk)
	}
	return fmt.Sprintf("analysis %d", chunk.Index), nil
}

type fakeManager struct {
	synthesizeCalls [][]string
	updateCalls     []string
	synthesizeErr   error
	updateErr       error
}

func (m *fakeManager) Synthesize(ctx context.Context, outputs []string, query string) (string, error) {
	m.synthesizeCalls = append(m.synthesizeCalls, outputs)
	if m.synthesizeErr != nil {
		return "", m.synthesizeErr
	}
	return fmt.Sprintf("answer from %d outputs", len(outputs)), nil
}

func (m *fakeManager) UpdateContext(ctx context.Context, current, response, query string) (string, error) {
	m.updateCalls = append(m.updateCalls, current)
	if m.updateErr != nil {
		return "", m.updateErr
	}
	if current == "" {
		return response, nil
	}
	return current + " | " + response, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	failOn EventType // empty fails every event when err is set
}

func (s *recordingSink) Emit(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && (s.failOn == "" || s.failOn == event.Type()) {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type()
	}
	return out
}

func newTestOrchestrator(t *testing.T, cfg Config, w ChunkWorker, m ContextManager, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(cfg, w, m, logger.NewNopLogger(), opts...)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(Config{ChunkSize: 0}, &fakeWorker{}, &fakeManager{}, logger.NewNopLogger())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "chunk size", vErr.Field)

	_, err = NewOrchestrator(Config{ChunkSize: 10, Policy: "sometimes"}, &fakeWorker{}, &fakeManager{}, logger.NewNopLogger())
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "context policy", vErr.Field)

	o, err := NewOrchestrator(Config{ChunkSize: 10}, &fakeWorker{}, &fakeManager{}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, PolicyRawCarry, o.Policy())
}

func TestRun_ScenarioEventOrder(t *testing.T) {
	w := &fakeWorker{}
	m := &fakeManager{}
	o := newTestOrchestrator(t, Config{ChunkSize: 6}, w, m)
	sink := &recordingSink{}

	session, err := o.Run(context.Background(), Request{
		Document: Document{Text: scenarioText, PageCount: 1},
		Query:    "What is discussed?",
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventMetadata, EventWorker, EventWorker, EventManager}, sink.types())

	meta := sink.events[0].(MetadataEvent)
	assert.Equal(t, 2, meta.TotalChunks)
	assert.Equal(t, 1, meta.TotalPages)

	for i, e := range sink.events[1:3] {
		we := e.(WorkerEvent)
		assert.Equal(t, i, we.Result.ChunkIndex)
		assert.Equal(t, Progress{Current: i + 1, Total: 2}, we.Result.Progress)
	}

	assert.Equal(t, "Intro paragraph.", w.chunks[0].Text)
	assert.Equal(t, "Second paragraph with five words here.", w.chunks[1].Text)

	assert.Equal(t, StateDone, session.State)
	assert.Equal(t, 2, session.ChunksProcessed)
	require.NotNil(t, session.FinalAnswer)
	assert.Equal(t, "answer from 2 outputs", *session.FinalAnswer)
	assert.Equal(t, *session.FinalAnswer, sink.events[3].(ManagerEvent).Answer)
	assert.NotNil(t, session.FinishedAt)
	assert.False(t, o.Running())
}

func TestRun_RawCarryPolicy(t *testing.T) {
	w := &fakeWorker{}
	m := &fakeManager{}
	o := newTestOrchestrator(t, Config{ChunkSize: 2, Policy: PolicyRawCarry}, w, m)

	_, err := o.Run(context.Background(), Request{
		Document: Document{Text: "one two\n\nthree four\n\nfive six"},
		Query:    "q",
	}, &recordingSink{})
	require.NoError(t, err)

	require.Len(t, w.previous, 3)
	assert.Nil(t, w.previous[0])
	assert.Equal(t, "analysis 0", *w.previous[1])
	assert.Equal(t, "analysis 1", *w.previous[2])

	assert.Empty(t, m.updateCalls)
	require.Len(t, m.synthesizeCalls, 1)
	assert.Equal(t, []string{"analysis 0", "analysis 1", "analysis 2"}, m.synthesizeCalls[0])
}

func TestRun_ManagerAccumulatePolicy(t *testing.T) {
	w := &fakeWorker{}
	m := &fakeManager{}
	o := newTestOrchestrator(t, Config{ChunkSize: 2, Policy: PolicyManagerAccumulate}, w, m)
	sink := &recordingSink{}

	session, err := o.Run(context.Background(), Request{
		Document: Document{Text: "one two\n\nthree four\n\nfive six"},
		Query:    "q",
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "analysis 0", "analysis 0 | analysis 1"}, m.updateCalls)
	assert.Empty(t, m.synthesizeCalls)

	require.Len(t, w.previous, 3)
	assert.Nil(t, w.previous[0])
	assert.Equal(t, "analysis 0", *w.previous[1])
	assert.Equal(t, "analysis 0 | analysis 1", *w.previous[2])

	want := "analysis 0 | analysis 1 | analysis 2"
	assert.Equal(t, want, session.RunningContext)
	assert.Equal(t, want, *session.FinalAnswer)
	assert.Equal(t, want, sink.events[len(sink.events)-1].(ManagerEvent).Answer)
}

func TestRun_WhitespaceDocumentSkipsWorkers(t *testing.T) {
	for _, policy := range []ContextPolicy{PolicyRawCarry, PolicyManagerAccumulate} {
		t.Run(string(policy), func(t *testing.T) {
			w := &fakeWorker{}
			m := &fakeManager{}
			o := newTestOrchestrator(t, Config{ChunkSize: 5, Policy: policy}, w, m)
			sink := &recordingSink{}

			session, err := o.Run(context.Background(), Request{
				Document: Document{Text: " \n\n \t"},
				Query:    "q",
			}, sink)
			require.NoError(t, err)

			assert.Equal(t, []EventType{EventMetadata, EventManager}, sink.types())
			assert.Equal(t, 0, sink.events[0].(MetadataEvent).TotalChunks)
			assert.Empty(t, w.chunks)
			require.Len(t, m.synthesizeCalls, 1)
			assert.Empty(t, m.synthesizeCalls[0])
			assert.Equal(t, StateDone, session.State)
		})
	}
}

func TestRun_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "empty query", req: Request{Document: Document{Text: "text"}, Query: "  "}, field: "query"},
		{name: "empty document", req: Request{Document: Document{Text: ""}, Query: "q"}, field: "document"},
		{name: "negative pages", req: Request{Document: Document{Text: "t", PageCount: -1}, Query: "q"}, field: "document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var observed int
			w := &fakeWorker{}
			o := newTestOrchestrator(t, Config{ChunkSize: 5}, w, &fakeManager{},
				WithObserver(func(Session) { observed++ }))
			sink := &recordingSink{}

			session, err := o.Run(context.Background(), tt.req, sink)
			assert.Nil(t, session)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)

			assert.Empty(t, sink.events)
			assert.Empty(t, w.chunks)
			assert.Zero(t, observed)
			assert.False(t, o.Running())
		})
	}
}

func TestRun_WorkerFailure(t *testing.T) {
	backendErr := errors.New("backend unavailable")
	w := &fakeWorker{processFn: func(ctx context.Context, chunk chunker.Chunk) (string, error) {
		if chunk.Index == 1 {
			return "", backendErr
		}
		return "ok", nil
	}}
	m := &fakeManager{}
	o := newTestOrchestrator(t, Config{ChunkSize: 2}, w, m)
	sink := &recordingSink{}

	session, err := o.Run(context.Background(), Request{
		Document: Document{Text: "one two\n\nthree four\n\nfive six"},
		Query:    "q",
	}, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)

	var iErr *InferenceError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, "worker", iErr.Stage)
	assert.Equal(t, 1, iErr.ChunkIndex)

	assert.Equal(t, []EventType{EventMetadata, EventWorker}, sink.types())
	assert.Empty(t, m.synthesizeCalls)

	require.NotNil(t, session)
	assert.Equal(t, StateFailed, session.State)
	assert.Equal(t, 1, session.ChunksProcessed)
	assert.Nil(t, session.FinalAnswer)
	assert.NotEmpty(t, session.Error)
}

func TestRun_ManagerFailures(t *testing.T) {
	t.Run("synthesis", func(t *testing.T) {
		m := &fakeManager{synthesizeErr: errors.New("boom")}
		o := newTestOrchestrator(t, Config{ChunkSize: 5}, &fakeWorker{}, m)
		sink := &recordingSink{}

		_, err := o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "q"}, sink)
		var iErr *InferenceError
		require.ErrorAs(t, err, &iErr)
		assert.Equal(t, "synthesis", iErr.Stage)
		assert.NotContains(t, sink.types(), EventManager)
	})

	t.Run("context update", func(t *testing.T) {
		m := &fakeManager{updateErr: errors.New("boom")}
		o := newTestOrchestrator(t, Config{ChunkSize: 5, Policy: PolicyManagerAccumulate}, &fakeWorker{}, m)
		sink := &recordingSink{}

		_, err := o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "q"}, sink)
		var iErr *InferenceError
		require.ErrorAs(t, err, &iErr)
		assert.Equal(t, "context_update", iErr.Stage)
		assert.Equal(t, []EventType{EventMetadata, EventWorker}, sink.types())
	})
}

func TestRun_SinkFailureStopsRun(t *testing.T) {
	w := &fakeWorker{}
	o := newTestOrchestrator(t, Config{ChunkSize: 5}, w, &fakeManager{})
	sinkErr := errors.New("client went away")

	session, err := o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "q"}, &recordingSink{err: sinkErr})
	var eErr *EmitError
	require.ErrorAs(t, err, &eErr)
	assert.Equal(t, EventMetadata, eErr.Event)
	assert.ErrorIs(t, err, sinkErr)
	assert.Empty(t, w.chunks)
	assert.Equal(t, StateFailed, session.State)
}

func TestRun_WorkerEventFailureLeavesChunkUncounted(t *testing.T) {
	o := newTestOrchestrator(t, Config{ChunkSize: 5}, &fakeWorker{}, &fakeManager{})
	sink := &recordingSink{err: errors.New("client went away"), failOn: EventWorker}

	session, err := o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "q"}, sink)
	var eErr *EmitError
	require.ErrorAs(t, err, &eErr)
	assert.Equal(t, EventWorker, eErr.Event)
	assert.Equal(t, []EventType{EventMetadata}, sink.types())
	assert.Equal(t, StateFailed, session.State)
	assert.Equal(t, 1, session.TotalChunks)
	assert.Equal(t, 0, session.ChunksProcessed)
}

func TestRun_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	w := &fakeWorker{processFn: func(ctx context.Context, chunk chunker.Chunk) (string, error) {
		close(entered)
		<-release
		return "first", nil
	}}
	m := &fakeManager{}
	o := newTestOrchestrator(t, Config{ChunkSize: 5}, w, m)

	firstSink := &recordingSink{}
	type result struct {
		session *Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "first"}, firstSink)
		done <- result{s, err}
	}()

	<-entered
	assert.True(t, o.Running())

	secondSink := &recordingSink{}
	session, err := o.Run(context.Background(), Request{Document: Document{Text: "x y z"}, Query: "second"}, secondSink)
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, secondSink.events)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "first", res.session.Query)
	assert.Equal(t, StateDone, res.session.State)
	assert.Equal(t, []EventType{EventMetadata, EventWorker, EventManager}, firstSink.types())
	require.Len(t, w.chunks, 1)
	assert.Equal(t, "a b c", w.chunks[0].Text)
	assert.False(t, o.Running())
}

func TestRun_AbortDiscardsLateResults(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	w := &fakeWorker{processFn: func(ctx context.Context, chunk chunker.Chunk) (string, error) {
		close(entered)
		<-release
		return "late analysis", nil
	}}
	m := &fakeManager{}
	o := newTestOrchestrator(t, Config{ChunkSize: 5}, w, m)
	sink := &recordingSink{}

	done := make(chan error, 1)
	var session *Session
	go func() {
		var err error
		session, err = o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "q"}, sink)
		done <- err
	}()

	<-entered
	o.Abort()
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after abort")
	}

	assert.Equal(t, []EventType{EventMetadata}, sink.types())
	assert.Empty(t, m.synthesizeCalls)
	assert.Equal(t, StateFailed, session.State)
	assert.Equal(t, 0, session.ChunksProcessed)
	assert.Empty(t, session.RunningContext)
}

func TestRun_AbortRightAfterStartIsHonoured(t *testing.T) {
	w := &fakeWorker{processFn: func(ctx context.Context, chunk chunker.Chunk) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "not cancelled", nil
		}
	}}
	o := newTestOrchestrator(t, Config{ChunkSize: 5}, w, &fakeManager{})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), Request{Document: Document{Text: "a b c"}, Query: "q"}, &recordingSink{})
		done <- err
	}()

	require.Eventually(t, o.Running, time.Second, time.Millisecond)
	o.Abort()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("abort issued while running was lost")
	}
	assert.False(t, o.Running())
}

func TestRun_AbortWithoutRunIsNoop(t *testing.T) {
	o := newTestOrchestrator(t, Config{ChunkSize: 5}, &fakeWorker{}, &fakeManager{})
	o.Abort()

	_, err := o.Run(context.Background(), Request{Document: Document{Text: "a b"}, Query: "q"}, &recordingSink{})
	assert.NoError(t, err)
}

func TestRun_ObserverSnapshots(t *testing.T) {
	var states []State
	var snapshots []Session
	o := newTestOrchestrator(t, Config{ChunkSize: 2}, &fakeWorker{}, &fakeManager{},
		WithObserver(func(s Session) {
			states = append(states, s.State)
			snapshots = append(snapshots, s)
		}))

	_, err := o.Run(context.Background(), Request{Document: Document{Text: "one two\n\nthree four"}, Query: "q"}, &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, StateChunking, states[0])
	assert.Contains(t, states, StateProcessing)
	assert.Contains(t, states, StateSynthesizing)
	assert.Equal(t, StateDone, states[len(states)-1])

	// Snapshots are copies, later transitions must not rewrite earlier ones.
	assert.Nil(t, snapshots[0].FinalAnswer)
	assert.NotNil(t, snapshots[len(snapshots)-1].FinalAnswer)

	prev := 0
	for _, s := range snapshots {
		assert.GreaterOrEqual(t, s.ChunksProcessed, prev)
		prev = s.ChunksProcessed
	}
}
