package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/xiaolang/backend/internal/config"
	"github.com/zhouzirui/xiaolang/backend/internal/handler"
	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/model/persona"
	"github.com/zhouzirui/xiaolang/backend/internal/service/agent"
	"github.com/zhouzirui/xiaolang/backend/internal/service/ai"
	emotionservice "github.com/zhouzirui/xiaolang/backend/internal/service/emotion"
	"github.com/zhouzirui/xiaolang/backend/internal/service/feishu"
	"github.com/zhouzirui/xiaolang/backend/internal/service/memory"
	"github.com/zhouzirui/xiaolang/backend/internal/service/pipeline"
	"github.com/zhouzirui/xiaolang/backend/internal/service/tools"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Warn("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	personaStore, err := persona.NewMemoryStore(persona.Seed())
	if err != nil {
		return err
	}
	assembler, err := ai.NewAssembler(personaStore, cfg.PersonaID)
	if err != nil {
		return err
	}

	llm, err := newLLM(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, ready, closeStore, err := newStore(ctx, cfg.Memory, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	memoryManager := memory.NewManager(store, llm, memory.Config{
		SummaryThreshold:   cfg.Memory.SummaryThreshold,
		SummaryInstruction: assembler.SummaryInstruction(),
	}, logger)

	emotionSvc, err := emotionservice.NewService(ctx, llm, emotionservice.Config{
		Enabled: cfg.Emotion.LLMEnabled,
		Timeout: cfg.Emotion.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init emotion service: %w", err)
	}
	if emotionSvc.Enabled() {
		logger.Info("emotion classifier enabled")
	} else {
		logger.Info("emotion classifier disabled, using keyword heuristics")
	}

	larkClient := feishu.NewClient(cfg.Feishu, cfg.Tools.HTTPTimeout, logger)
	calendar := feishu.NewCalendar(larkClient, cfg.Feishu.CalendarID)
	httpClient := &http.Client{Timeout: cfg.Tools.HTTPTimeout}

	registry, err := tools.NewRegistry(logger, tools.Default(tools.Deps{
		Calendar:        calendar,
		Tasks:           calendar,
		Knowledge:       tools.NewHTTPKnowledge(cfg.Tools.KnowledgeEndpoint, httpClient),
		Picker:          llm,
		HTTPClient:      httpClient,
		SerpAPIKey:      cfg.Tools.SerpAPIKey,
		SerpAPIEndpoint: cfg.Tools.SerpAPIEndpoint,
	})...)
	if err != nil {
		return fmt.Errorf("init tools: %w", err)
	}
	logger.Info("tools registered", zap.Strings("tools", registry.Names()))

	executor := agent.NewExecutor(llm, registry, memoryManager, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		RunTimeout:    cfg.Agent.RunTimeout,
		TokenLimit:    cfg.Memory.TokenLimit,
	}, logger)

	pipe, err := pipeline.New(pipeline.Options{
		Estimator:   emotionSvc,
		Prompts:     assembler,
		Runner:      executor,
		Sender:      feishu.NewSender(larkClient),
		BotID:       cfg.Feishu.BotOpenID,
		Apology:     cfg.Pipeline.Apology,
		MemoryKey:   cfg.Memory.Key,
		DedupSize:   cfg.Pipeline.DedupSize,
		DedupWindow: cfg.Pipeline.DedupWindow,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var webhook http.Handler
	if cfg.Feishu.Mode == config.FeishuModeWebhook {
		webhook = feishu.WebhookHandler(cfg.Feishu, pipe, logger)
	}
	router := handler.NewRouter(handler.Deps{
		Personas: personaStore,
		Chat:     pipe,
		Webhook:  webhook,
		Ready:    ready,
		Logger:   logger,
	})

	addr, err := cfg.Server.Addr()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("xiaolang backend listening", zap.String("addr", addr), zap.String("feishu_mode", cfg.Feishu.Mode))
		return runServer(gctx, srv)
	})
	if cfg.Feishu.Mode == config.FeishuModeWebsocket {
		g.Go(func() error {
			logger.Info("starting feishu long connection")
			return feishu.RunLongConn(gctx, feishu.NewLongConnClient(cfg.Feishu, pipe, logger))
		})
	}
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := pipe.Shutdown(shutdownCtx); err != nil {
		logger.Warn("in-flight messages abandoned at shutdown", zap.Error(err))
	}
	return runErr
}

func newLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.FallbackModel, error) {
	primary, err := cfg.Primary.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("init primary model: %w", err)
	}
	opts := ai.Options{
		Primary: ai.Endpoint{Name: cfg.Primary.Provider + "/" + cfg.Primary.Model, Model: primary, Timeout: cfg.Primary.Timeout},
		Cache:   ai.NewResponseCache(cfg.Cache.Size, cfg.Cache.TTL),
		Logger:  logger,
	}
	if cfg.Fallback.Enabled() {
		fallback, err := cfg.Fallback.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("init fallback model: %w", err)
		}
		opts.Fallback = ai.Endpoint{Name: cfg.Fallback.Provider + "/" + cfg.Fallback.Model, Model: fallback, Timeout: cfg.Fallback.Timeout}
	} else {
		logger.Warn("fallback model not configured, primary failures will surface directly")
	}
	return ai.NewFallbackModel(opts)
}

func newStore(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (memory.Store, func(context.Context) error, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, chat history is kept in process memory")
		return memory.NewMemoryStore(), nil, func() {}, nil
	}

	client, err := memory.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	store := memory.NewRedisStore(client, memory.WithKeyPrefix(cfg.KeyPrefix), memory.WithTTL(cfg.TTL), memory.WithLogger(logger))
	ready := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	closeFn := func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.Warn("close redis client", zap.Error(err))
		}
	}
	return store, ready, closeFn, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
