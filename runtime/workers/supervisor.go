package workers

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/errors"
	"market-chat/observability"
	"sync"
	"time"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor runs every background worker of the chat node in its own
// goroutine. A worker that panics or returns an error is restarted after
// restartInterval, a worker that returns nil is done for good, and
// cancelling the parent context stops them all.
type Supervisor struct {
	mu              sync.Mutex
	cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	metrics         *observability.Metrics
	restartInterval time.Duration
	workers         []contract.Worker
}

var _ contract.ISupervisor = (*Supervisor)(nil)

func NewSupervisor(log *slog.Logger, metrics *observability.Metrics, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{
		wg:              &sync.WaitGroup{},
		log:             log,
		metrics:         metrics,
		restartInterval: restartInterval,
	}
}

// Run blocks until every worker has returned. If the parent context is
// cancelled, or Stop is called, the workers are cancelled too.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs one worker under supervision. A failure in one worker never
// stops the supervisor or the other workers.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		for ctx.Err() == nil {
			err := runOnce(ctx, worker)
			switch {
			case err == nil:
				s.log.Info("Worker finished", "worker", name)
				return
			case ctx.Err() != nil:
				s.log.Debug("Worker stopped", "worker", name, "reason", ctx.Err())
				return
			}

			s.metrics.WorkerRestarted(name)
			s.log.Warn("Worker crashed, restarting", "worker", name, "error", err, "in", s.restartInterval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
		s.log.Debug("Worker not restarted, supervisor stopping", "worker", name)
	}()
}

// runOnce turns a panic into ErrWorkerPanic so the worker can be restarted.
func runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels every supervised worker. Run returns once they are all done.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
