// Package sender runs outbound Telegram calls on a worker pool with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/reservebot/core/logger"
	"github.com/m3rciful/reservebot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, all steps included.
	MaxDuration time.Duration
	// ShouldRetry decides whether a failed step is retried; defaults to netutil.ShouldRetry.
	ShouldRetry func(error) bool
}

// Step is one outbound call. Steps of a job run in order.
type Step func() error

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	steps    []Step
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// The steps of one job never interleave with each other, so a multi-message
// reply keeps its order even with several workers.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	mu   sync.RWMutex
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 20 * time.Second
	}
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = netutil.ShouldRetry
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules a single call.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	return d.EnqueueBatch(ctx, action, endpoint, []Step{run})
}

// EnqueueBatch schedules steps to run in order on one worker. A failed step
// is retried on its own; steps already sent are not repeated.
func (d *Dispatcher) EnqueueBatch(ctx context.Context, action, endpoint string, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	for _, s := range steps {
		if s == nil {
			return errors.New("telegram sender: nil step")
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, steps: steps}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		close(d.stop)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Detached from the update context: the handler returns before sends finish.
	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, logger.CompTGSender, "send.start",
		append(sendLogAttrs(j), slog.Int("steps", len(j.steps)))...)

	for i, step := range j.steps {
		attempts, err := d.runStep(deadlineCtx, ctx, j, i, step)
		if err != nil {
			d.errs.Add(1)
			logSendFailure(ctx, j, i, err, attempts, time.Since(start))
			return
		}
	}
	logger.Debug(ctx, logger.CompTGSender, "send.success",
		append(sendLogAttrs(j),
			slog.Int("steps", len(j.steps)),
			slog.Duration("elapsed", time.Since(start)),
		)...)
}

// runStep retries one step with linear backoff until it succeeds, the error is
// not retryable, attempts run out or the job deadline passes.
func (d *Dispatcher) runStep(deadlineCtx, logCtx context.Context, j job, index int, step Step) (int, error) {
	attempts := d.opts.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = step()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info(logCtx, logger.CompTGSender, "send.retry.success",
					append(sendLogAttrs(j), slog.Int("step", index), slog.Int("attempt", attempt))...)
			}
			return attempt, nil
		}
		if !d.opts.ShouldRetry(lastErr) || attempt == attempts {
			return attempt, lastErr
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			return attempt, deadlineCtx.Err()
		case <-timer.C:
		}
		logger.Debug(logCtx, logger.CompTGSender, "send.retry.backoff",
			append(sendLogAttrs(j),
				slog.Int("step", index),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)...)
	}
	return attempts, lastErr
}

func sendLogAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

func logSendFailure(ctx context.Context, j job, step int, err error, attempts int, elapsed time.Duration) {
	attrs := append(sendLogAttrs(j),
		slog.String("status", "fail"),
		slog.Int("step", step),
		slog.Int("steps", len(j.steps)),
		slog.String("err", netutil.Redact(err)),
		slog.String("err_kind", netutil.Classify(err)),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", elapsed),
	)
	logger.Error(ctx, logger.CompTGSender, "send.fail", attrs...)
}
