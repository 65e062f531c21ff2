package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quillforge/engine/internal/config"
	"github.com/quillforge/engine/internal/db"
	"github.com/quillforge/engine/internal/executor"
	"github.com/quillforge/engine/internal/generate"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/llm"
	"github.com/quillforge/engine/internal/logger"
	"github.com/quillforge/engine/internal/research"
	"github.com/quillforge/engine/internal/search"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the worker binary")
	}

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

	// Provider registry (route by configured provider name)
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
	provider, err := reg.Get(ctx, cfg.LLMProvider, "")
	if err != nil {
		log.Fatal("llm provider", "error", err)
	}

	var web search.WebSearcher
	if cfg.BraveAPIKey != "" {
		web = search.NewBraveClient(cfg.BraveBaseURL, cfg.BraveAPIKey, cfg.ProviderTimeout)
	}
	var narrative search.NarrativeSearcher
	if cfg.PerplexityAPIKey != "" {
		narrative = search.NewPerplexityClient(cfg.PerplexityBaseURL, cfg.PerplexityAPIKey, cfg.PerplexityModel, cfg.ProviderTimeout)
	}
	academic := search.NewSemanticScholarClient(cfg.SemanticScholarBase, cfg.ProviderTimeout)

	gen := generate.NewGenerator(repo, provider, log, cfg.SectionBatchSize)
	orch := research.NewOrchestrator(repo, provider, web, narrative, academic, log, cfg.SectionDelay)
	exec := executor.New(repo, gen, orch, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", "error", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", "error", err)
	}
	defer ch.Close()

	// Must match the publisher's declaration.
	_, err = ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	})
	if err != nil {
		log.Fatal("queue declare", "error", err)
	}

	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", "error", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", "error", err)
	}

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Warn("bad message", "worker", workerID, "error", err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := exec.Execute(ctx, m.JobID); err != nil {
					log.Warn("job failed", "worker", workerID, "job_id", m.JobID,
						"cost", time.Since(start).String(), "error", err)
					// Terminal state is already recorded; no requeue.
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Warn("ack failed", "worker", workerID, "job_id", m.JobID, "error", err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
