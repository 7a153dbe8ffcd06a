package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chain-of-agents-be/internal/dto"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/cache"
	"chain-of-agents-be/pkg/coa"
	"chain-of-agents-be/pkg/llm"

	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("run not found")

type IChainService interface {
	// Stream runs the pipeline and writes every event to sink.
	Stream(ctx context.Context, doc coa.Document, query string, sink coa.Sink) (*coa.Session, error)
	// Process runs the pipeline and returns only the final answer.
	Process(ctx context.Context, doc coa.Document, query string) (string, error)
	Busy() bool
	Health(ctx context.Context) error
	GetRun(ctx context.Context, id uuid.UUID) (*coa.Session, error)
	Models() (worker, manager string)
}

// RunOrchestrator is the part of coa.Orchestrator the service drives.
type RunOrchestrator interface {
	Run(ctx context.Context, req coa.Request, sink coa.Sink) (*coa.Session, error)
	Running() bool
	Policy() coa.ContextPolicy
}

type RunStore interface {
	Get(id uuid.UUID) (coa.Session, bool)
}

type ChainServiceConfig struct {
	WorkerModel   string
	ManagerModel  string
	ChunkSize     int
	HealthTimeout time.Duration
}

type chainService struct {
	orchestrator RunOrchestrator
	runs         RunStore
	health       llm.HealthChecker
	answerCache  cache.AnswerCache
	publisher    IPublisherService
	cfg          ChainServiceConfig
	logger       logger.ILogger
}

func NewChainService(
	orchestrator RunOrchestrator,
	runs RunStore,
	health llm.HealthChecker,
	answerCache cache.AnswerCache,
	publisher IPublisherService,
	cfg ChainServiceConfig,
	log logger.ILogger,
) IChainService {
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	return &chainService{
		orchestrator: orchestrator,
		runs:         runs,
		health:       health,
		answerCache:  answerCache,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

func (s *chainService) Stream(ctx context.Context, doc coa.Document, query string, sink coa.Sink) (*coa.Session, error) {
	return s.run(ctx, doc, query, sink)
}

func (s *chainService) Process(ctx context.Context, doc coa.Document, query string) (string, error) {
	key := s.cacheKey(doc, query)
	answer, hit, err := s.answerCache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("CHAIN", "Answer cache unavailable", map[string]interface{}{"error": err.Error()})
	}
	if hit {
		s.logger.Info("CHAIN", "Answer served from cache", map[string]interface{}{"query": query})
		return answer, nil
	}

	discard := coa.SinkFunc(func(context.Context, coa.Event) error { return nil })
	session, err := s.run(ctx, doc, query, discard)
	if err != nil {
		return "", err
	}
	return *session.FinalAnswer, nil
}

func (s *chainService) run(ctx context.Context, doc coa.Document, query string, sink coa.Sink) (*coa.Session, error) {
	session, err := s.orchestrator.Run(ctx, coa.Request{ID: uuid.New(), Document: doc, Query: query}, sink)
	if session != nil {
		s.publishFinished(ctx, session, s.cacheKey(doc, query))
	}
	return session, err
}

func (s *chainService) Busy() bool {
	return s.orchestrator.Running()
}

func (s *chainService) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		return fmt.Errorf("inference backend not ready: %w", err)
	}
	return nil
}

func (s *chainService) GetRun(ctx context.Context, id uuid.UUID) (*coa.Session, error) {
	session, ok := s.runs.Get(id)
	if !ok {
		return nil, ErrRunNotFound
	}
	return &session, nil
}

func (s *chainService) Models() (string, string) {
	return s.cfg.WorkerModel, s.cfg.ManagerModel
}

func (s *chainService) cacheKey(doc coa.Document, query string) string {
	return cache.Fingerprint(
		string(s.orchestrator.Policy()),
		fmt.Sprint(s.cfg.ChunkSize),
		s.cfg.WorkerModel,
		s.cfg.ManagerModel,
		doc.Text,
		query,
	)
}

func (s *chainService) publishFinished(ctx context.Context, session *coa.Session, cacheKey string) {
	msg := dto.RunFinishedMessage{
		RunId:       session.ID,
		State:       string(session.State),
		Query:       session.Query,
		Error:       session.Error,
		TotalChunks: session.TotalChunks,
		TotalPages:  session.TotalPages,
		CacheKey:    cacheKey,
		FinishedAt:  time.Now(),
	}
	if session.FinalAnswer != nil {
		msg.Answer = *session.FinalAnswer
	}
	if session.FinishedAt != nil {
		msg.FinishedAt = *session.FinishedAt
		msg.DurationMs = session.FinishedAt.Sub(session.StartedAt).Milliseconds()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("CHAIN", "Failed to marshal run message", map[string]interface{}{"error": err.Error()})
		return
	}
	// The bus is auxiliary; the caller already has its result.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), payload); err != nil {
		s.logger.Warn("CHAIN", "Failed to publish run message", map[string]interface{}{
			"run_id": session.ID.String(),
			"error":  err.Error(),
		})
	}
}
