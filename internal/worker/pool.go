package worker

import (
	"context"
	"sync"

	"github.com/quillforge/engine/internal/executor"
	"github.com/quillforge/engine/internal/logger"
	"github.com/quillforge/engine/internal/queue"
)

// Pool drains the in-process queue with bounded concurrency. Accepting a
// request and doing the work stay cleanly separated: Submit enqueues, these
// loops execute.
type Pool struct {
	queue *queue.Memory
	exec  *executor.Executor
	log   *logger.Logger
	n     int
	wg    sync.WaitGroup
}

func NewPool(q *queue.Memory, exec *executor.Executor, log *logger.Logger, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Pool{
		queue: q,
		exec:  exec,
		log:   log.With("component", "WorkerPool"),
		n:     concurrency,
	}
}

// Start launches the worker loops. They exit when the queue closes; ctx
// bounds the work of in-flight jobs.
func (p *Pool) Start(ctx context.Context) {
	p.log.Info("worker pool started", "concurrency", p.n)
	p.wg.Add(p.n)
	for i := 0; i < p.n; i++ {
		go func(workerID int) {
			defer p.wg.Done()
			for jobID := range p.queue.Jobs() {
				if err := p.exec.Execute(ctx, jobID); err != nil {
					p.log.Warn("job execution failed", "worker", workerID, "job_id", jobID, "error", err)
				}
			}
		}(i)
	}
}

// Stop closes the queue and waits for in-flight jobs to settle.
func (p *Pool) Stop() {
	p.queue.Close()
	p.wg.Wait()
}
