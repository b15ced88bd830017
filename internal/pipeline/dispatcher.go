package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meishihq/meishi/internal/platform"
)

// Runner executes one update to its terminal outcome.
type Runner interface {
	Run(ctx context.Context, update platform.Update) Outcome
}

// DispatcherConfig sizes the intake queue and the dedup window.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	DedupWindow time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 10 * time.Minute
	}
	return c
}

// Dispatcher decouples webhook acknowledgement from processing: Enqueue
// never blocks, a fixed worker set drains the queue, and updates seen
// within the dedup window are dropped so platform retries cannot
// double-process.
type Dispatcher struct {
	logger *slog.Logger
	runner Runner
	cfg    DispatcherConfig

	queue chan platform.Update
	wg    sync.WaitGroup
	sweep *cron.Cron

	mu   sync.Mutex
	seen map[string]time.Time

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher around the runner.
func NewDispatcher(log *slog.Logger, runner Runner, cfg DispatcherConfig) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		logger: log.With(slog.String("component", "dispatcher")),
		runner: runner,
		cfg:    cfg,
		queue:  make(chan platform.Update, cfg.QueueSize),
		sweep:  cron.New(),
		seen:   make(map[string]time.Time),
	}
}

// Start launches the workers and the periodic dedup-window sweep.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		_, err := d.sweep.AddFunc("@every 1m", d.pruneSeen)
		if err != nil {
			d.logger.Error("failed to schedule dedup sweep", slog.Any("error", err))
		}
		d.sweep.Start()
		d.logger.Info("dispatcher started",
			slog.Int("workers", d.cfg.Workers),
			slog.Int("queue_size", d.cfg.QueueSize),
		)
	})
}

// Enqueue hands an update to the workers. It returns false, without
// blocking, when the update is a duplicate within the dedup window or
// the queue is full.
func (d *Dispatcher) Enqueue(update platform.Update) bool {
	if !d.markSeen(update.DedupKey()) {
		d.logger.Info("duplicate update dropped", slog.String("update_id", update.UpdateID))
		return false
	}
	select {
	case d.queue <- update:
		return true
	default:
		// The update never ran, so forget the key: a platform retry of
		// the same update must not be swallowed as a duplicate.
		d.unmark(update.DedupKey())
		d.logger.Warn("intake queue full, update dropped",
			slog.String("update_id", update.UpdateID),
		)
		return false
	}
}

// Shutdown stops intake, waits for in-flight runs to finish, and
// returns early when ctx expires first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		d.sweep.Stop()
		close(d.queue)
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for update := range d.queue {
		d.runner.Run(context.Background(), update)
	}
}

// markSeen records the key and reports whether it was new within the
// dedup window.
func (d *Dispatcher) markSeen(key string) bool {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.cfg.DedupWindow {
		return false
	}
	d.seen[key] = now
	return true
}

func (d *Dispatcher) unmark(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

func (d *Dispatcher) pruneSeen() {
	cutoff := time.Now().Add(-d.cfg.DedupWindow)
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, key)
		}
	}
}
