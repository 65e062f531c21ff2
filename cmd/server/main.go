package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillforge/engine/internal/config"
	"github.com/quillforge/engine/internal/db"
	"github.com/quillforge/engine/internal/executor"
	"github.com/quillforge/engine/internal/generate"
	"github.com/quillforge/engine/internal/httpapi"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/llm"
	"github.com/quillforge/engine/internal/logger"
	"github.com/quillforge/engine/internal/queue"
	"github.com/quillforge/engine/internal/queue/rabbitmq"
	"github.com/quillforge/engine/internal/research"
	"github.com/quillforge/engine/internal/search"
	"github.com/quillforge/engine/internal/store/redisstore"
	"github.com/quillforge/engine/internal/worker"
)

func buildProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	reg := llm.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (llm.Provider, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return llm.NewOllamaProvider(cfg.OllamaBaseURL, model, cfg.ProviderTimeout), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (llm.Provider, error) {
		if model == "" {
			model = cfg.OpenRouterModel
		}
		return llm.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.ProviderTimeout), nil
	})
	return reg.Get(ctx, cfg.LLMProvider, "")
}

func buildSearchers(cfg config.Config) (search.WebSearcher, search.NarrativeSearcher, search.AcademicSearcher) {
	var web search.WebSearcher
	if cfg.BraveAPIKey != "" {
		web = search.NewBraveClient(cfg.BraveBaseURL, cfg.BraveAPIKey, cfg.ProviderTimeout)
	}
	var narrative search.NarrativeSearcher
	if cfg.PerplexityAPIKey != "" {
		narrative = search.NewPerplexityClient(cfg.PerplexityBaseURL, cfg.PerplexityAPIKey, cfg.PerplexityModel, cfg.ProviderTimeout)
	}
	academic := search.NewSemanticScholarClient(cfg.SemanticScholarBase, cfg.ProviderTimeout)
	return web, narrative, academic
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open", "error", err)
	}
	if err := gdb.AutoMigrate(&job.Job{}); err != nil {
		log.Fatal("db migrate", "error", err)
	}
	repo := job.NewRepo(gdb)

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatal("llm provider", "error", err)
	}
	web, narrative, academic := buildSearchers(cfg)

	gen := generate.NewGenerator(repo, provider, log, cfg.SectionBatchSize)
	orch := research.NewOrchestrator(repo, provider, web, narrative, academic, log, cfg.SectionDelay)
	exec := executor.New(repo, gen, orch, log)

	var cache job.StatusCache
	if cfg.RedisAddr != "" {
		cache = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 2*time.Second)
	}

	var enqueuer job.Enqueuer
	var pool *worker.Pool
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal("rabbit publisher", "error", err)
		}
		defer pub.Close()
		enqueuer = pub
		log.Info("publishing jobs to rabbitmq", "queue", cfg.RabbitQueue)
	} else {
		mem := queue.NewMemory(0)
		pool = worker.NewPool(mem, exec, log, cfg.WorkerConcurrency)
		pool.Start(ctx)
		enqueuer = mem
		log.Info("running in-process worker pool", "concurrency", cfg.WorkerConcurrency)
	}

	manager := job.NewManager(repo, enqueuer, cache, log, cfg.OwnerJobCap, cfg.RetentionTTL)
	manager.StartRetention(ctx, time.Hour)

	// The in-memory queue died with the last process; re-drive whatever the
	// store says was still in flight. With rabbit the broker redelivers.
	if cfg.RabbitURL == "" {
		if err := manager.ResumeInterrupted(ctx); err != nil {
			log.Warn("resume interrupted jobs", "error", err)
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(manager, cfg, log),
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if pool != nil {
		pool.Stop()
	}
}
