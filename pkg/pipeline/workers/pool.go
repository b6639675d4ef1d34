package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meetbrief/meetbrief/pkg/logging"
	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/queues"
)

// MessageHandler processes one decoded work item. A nil return acknowledges
// the message; an error returns it for redelivery.
type MessageHandler func(ctx context.Context, msg queues.Message) error

// Config configures one worker pool.
type Config struct {
	Stage           meeting.Stage `yaml:"stage"`
	Count           int           `yaml:"count"`
	BatchSize       int           `yaml:"batch_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfigs returns pool settings per stage. Transcription and
// diarization wait on GPU services, analysis on the LLM endpoint.
func DefaultConfigs() map[meeting.Stage]Config {
	return map[meeting.Stage]Config{
		meeting.StageTranscribe: {
			Stage:           meeting.StageTranscribe,
			Count:           2,
			BatchSize:       1,
			PollInterval:    time.Second,
			HandlerTimeout:  30 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		meeting.StageDiarize: {
			Stage:           meeting.StageDiarize,
			Count:           2,
			BatchSize:       1,
			PollInterval:    time.Second,
			HandlerTimeout:  30 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		meeting.StageAnalysis: {
			Stage:           meeting.StageAnalysis,
			Count:           4,
			BatchSize:       1,
			PollInterval:    time.Second,
			HandlerTimeout:  10 * time.Minute,
			ShutdownTimeout: 60 * time.Second,
		},
	}
}

// Worker pulls messages from one queue and runs the handler on them.
type Worker struct {
	ID      string
	Config  Config
	Queue   queues.Queue
	Handler MessageHandler

	ProcessedCount atomic.Int64
	FailedCount    atomic.Int64

	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker; call Start to begin processing.
func NewWorker(config Config, queue queues.Queue, handler MessageHandler, logger logging.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ID:      uuid.New().String(),
		Config:  config,
		Queue:   queue,
		Handler: handler,
		logger:  logger.With(logging.F("queue", queue.Name())),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the processing loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processLoop()
	}()
}

// Stop drains the worker, waiting up to the shutdown timeout.
func (w *Worker) Stop() {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.Config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timed out", logging.F("worker_id", w.ID))
	}
}

func (w *Worker) processLoop() {
	for {
		if w.ctx.Err() != nil {
			return
		}

		messages, err := w.Queue.Dequeue(w.ctx, w.Config.BatchSize, w.Config.PollInterval)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue failed", logging.Err(err))
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(w.Config.PollInterval):
			}
			continue
		}

		for _, qm := range messages {
			if w.ctx.Err() != nil {
				return
			}
			w.processMessage(qm)
		}
	}
}

func (w *Worker) processMessage(qm *queues.QueuedMessage) {
	msg, err := qm.ParseMessage()
	if err != nil {
		w.logger.Error("undecodable message", logging.F("message_id", qm.ID), logging.Err(err))
		if dlqErr := w.Queue.MoveToDeadLetter(w.ctx, qm.ID, "parse error: "+err.Error()); dlqErr != nil {
			w.logger.Error("dead-letter move failed", logging.F("message_id", qm.ID), logging.Err(dlqErr))
		}
		w.FailedCount.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.handlerBudget(msg))
	err = w.Handler(ctx, msg)
	cancel()

	if err != nil {
		w.logger.Warn("handler failed, redelivering",
			logging.F("message_id", qm.ID),
			logging.F("job_id", msg.GetJobID()),
			logging.Err(err))
		if nackErr := w.Queue.Nack(w.ctx, qm.ID); nackErr != nil {
			w.logger.Error("nack failed", logging.F("message_id", qm.ID), logging.Err(nackErr))
		}
		w.FailedCount.Add(1)
		return
	}

	if ackErr := w.Queue.Ack(w.ctx, qm.ID); ackErr != nil {
		w.logger.Error("ack failed", logging.F("message_id", qm.ID), logging.Err(ackErr))
	}
	w.ProcessedCount.Add(1)
}

// handlerBudget caps the handler at the configured timeout, tightened to
// the message's own deadline when that comes sooner.
func (w *Worker) handlerBudget(msg queues.Message) time.Duration {
	budget := w.Config.HandlerTimeout
	if deadline := msg.GetDeadline(); !deadline.IsZero() {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	if budget < time.Second {
		budget = time.Second
	}
	return budget
}

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	Config  Config
	Queue   queues.Queue
	Handler MessageHandler

	mu      sync.Mutex
	workers []*Worker
	logger  logging.Logger
}

// NewPool creates a pool; call Start to spin up the workers.
func NewPool(config Config, queue queues.Queue, handler MessageHandler, logger logging.Logger) *Pool {
	return &Pool{
		Config:  config,
		Queue:   queue,
		Handler: handler,
		logger:  logger,
	}
}

// Start launches the configured number of workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.Config.Count; i++ {
		worker := NewWorker(p.Config, p.Queue, p.Handler, p.logger)
		worker.Start()
		p.workers = append(p.workers, worker)
	}
	p.logger.Info("worker pool started",
		logging.F("stage", string(p.Config.Stage)),
		logging.F("count", p.Config.Count))
}

// Stop drains all workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()
	p.logger.Info("worker pool stopped", logging.F("stage", string(p.Config.Stage)))
}

// Stats summarizes pool activity.
type Stats struct {
	Stage       meeting.Stage
	WorkerCount int
	Processed   int64
	Failed      int64
}

// Stats returns the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Stage: p.Config.Stage, WorkerCount: len(p.workers)}
	for _, w := range p.workers {
		stats.Processed += w.ProcessedCount.Load()
		stats.Failed += w.FailedCount.Load()
	}
	return stats
}
