package bootstrap

import (
	"context"
	"fmt"
	"log"

	"chain-of-agents-be/internal/config"
	"chain-of-agents-be/internal/controller"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/internal/repository/memory"
	"chain-of-agents-be/internal/service"
	"chain-of-agents-be/pkg/agent"
	"chain-of-agents-be/pkg/cache"
	"chain-of-agents-be/pkg/coa"
	"chain-of-agents-be/pkg/events"
	"chain-of-agents-be/pkg/llm"
	"chain-of-agents-be/pkg/llm/factory"

	pktNats "chain-of-agents-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const runFinishedTopic = "chain.run.finished"

type Container struct {
	ChainController controller.IChainController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger

	closers []func()
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	prompts := agent.DefaultPrompts()
	if cfg.Chain.PromptsFile != "" {
		loaded, err := agent.LoadPrompts(cfg.Chain.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		prompts = loaded
	}

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)

	// 3. Inference capability, created on first use and shared by both agents
	provider := llm.NewLazy(func() (llm.LLMProvider, error) {
		p, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.WorkerModel, cfg.Ai.BaseURL, cfg.Ai.APIKey)
		if err != nil {
			return nil, err
		}
		sysLogger.Info("BOOTSTRAP", "LLM provider initialized", map[string]interface{}{
			"provider":      cfg.Ai.LLMProvider,
			"worker_model":  cfg.Ai.WorkerModel,
			"manager_model": cfg.Ai.ManagerModel,
		})
		return p, nil
	})

	runRepo := memory.NewRunRepository(cfg.App.RunSnapshotTTL)

	// Run audit trail: file only
	var runLogger logger.ILogger = sysLogger
	if cfg.App.RunLogFilePath != "" {
		runLogger = logger.NewIsolatedLogger(cfg.App.RunLogFilePath)
	}

	orchestrator, err := coa.NewOrchestrator(
		coa.Config{ChunkSize: cfg.Chain.ChunkSize, Policy: coa.ContextPolicy(cfg.Chain.ContextPolicy)},
		agent.NewWorker(provider, prompts, cfg.Ai.WorkerModel, sysLogger),
		agent.NewManager(provider, prompts, cfg.Ai.ManagerModel, sysLogger),
		runLogger,
		coa.WithObserver(runRepo.Save),
	)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	c := &Container{Logger: sysLogger}
	c.closers = append(c.closers, func() { _ = runLogger.Sync() })
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 4. Infrastructure
	// Redis
	var answerCache cache.AnswerCache = cache.NopAnswerCache{}
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		answerCache = cache.NewRedisAnswerCache(rdb, cfg.App.AnswerCacheTTL)
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// NATS
	var eventPublisher events.Publisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// 5. Services
	publisherService := service.NewPublisherService(runFinishedTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(pubSub, runFinishedTopic, answerCache, eventPublisher, sysLogger)

	chainService := service.NewChainService(
		orchestrator,
		runRepo,
		provider,
		answerCache,
		publisherService,
		service.ChainServiceConfig{
			WorkerModel:   cfg.Ai.WorkerModel,
			ManagerModel:  cfg.Ai.ManagerModel,
			ChunkSize:     cfg.Chain.ChunkSize,
			HealthTimeout: cfg.Ai.HealthTimeout,
		},
		sysLogger,
	)

	// 6. Controllers
	c.ChainController = controller.NewChainController(chainService, sysLogger)
	return c, nil
}

// Close releases external connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
