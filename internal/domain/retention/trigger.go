package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithRetryDelays sets the waits between attempts. One attempt is made per
// delay plus the initial one.
func WithRetryDelays(d ...time.Duration) TriggerOption {
	return func(t *Trigger) { t.retryDelays = d }
}

// WithQueueSize sets the number of pending users buffered before Notify
// starts dropping.
func WithQueueSize(n int) TriggerOption {
	return func(t *Trigger) { t.queue = make(chan string, n) }
}

type pruneFunc func(ctx context.Context, userID string) (int, error)

// job is one prune attempt for a user. attempt counts prior failures.
type job struct {
	userID  string
	attempt int
}

// Trigger runs the pruner for a user on a background goroutine after each
// report creation. Failed attempts are re-queued after a delay so one failing
// user never holds up the others.
type Trigger struct {
	prune       pruneFunc
	queue       chan job
	retryDelays []time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	timers  map[*time.Timer]struct{}
	retries sync.WaitGroup
}

// NewTrigger creates a stopped Trigger that prunes through p. By default it
// buffers 256 users and retries after 1s, 30s and 5m.
func NewTrigger(p *Pruner, logger zerolog.Logger, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		prune:       p.Prune,
		queue:       make(chan job, 256),
		retryDelays: []time.Duration{1 * time.Second, 30 * time.Second, 5 * time.Minute},
		timers:      make(map[*time.Timer]struct{}),
		logger:      logger.With().Str("component", "retention-trigger").Logger(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start launches the worker. It is a no-op if the worker is running.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
}

// Stop cancels the worker and any pending retries, then waits for them to
// exit. Queued users that were not processed are left to the sweeper.
func (t *Trigger) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	if cancel == nil {
		t.mu.Unlock()
		return
	}
	cancel()
	pending := t.timers
	t.cancel, t.done = nil, nil
	t.timers = make(map[*time.Timer]struct{})
	t.mu.Unlock()

	for tm := range pending {
		if tm.Stop() {
			t.retries.Done()
		}
	}
	<-done
	t.retries.Wait()
}

// Notify queues userID for pruning without blocking. It reports false when
// the queue is full and the request was dropped.
func (t *Trigger) Notify(userID string) bool {
	select {
	case t.queue <- job{userID: userID}:
		return true
	default:
		t.logger.Warn().Str("user_id", userID).Msg("retention queue full, prune deferred to sweep")
		return false
	}
}

func (t *Trigger) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-t.queue:
			t.attempt(ctx, j)
		}
	}
}

func (t *Trigger) attempt(ctx context.Context, j job) {
	_, err := t.prune(ctx, j.userID)
	if err == nil {
		return
	}
	if j.attempt >= len(t.retryDelays) {
		t.logger.Error().Err(err).Str("user_id", j.userID).Int("attempts", j.attempt+1).Msg("prune failed, giving up")
		return
	}
	delay := t.retryDelays[j.attempt]
	t.logger.Warn().Err(err).Str("user_id", j.userID).Int("attempt", j.attempt+1).Dur("retry_in", delay).Msg("prune failed, retrying")
	t.retryLater(ctx, job{userID: j.userID, attempt: j.attempt + 1}, delay)
}

// retryLater puts next back on the queue once delay has passed. The send
// blocks while the queue is full rather than dropping a retry.
func (t *Trigger) retryLater(ctx context.Context, next job, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	t.retries.Add(1)
	var tm *time.Timer
	tm = time.AfterFunc(delay, func() {
		defer t.retries.Done()
		t.mu.Lock()
		delete(t.timers, tm)
		t.mu.Unlock()
		select {
		case t.queue <- next:
		case <-ctx.Done():
		}
	})
	t.timers[tm] = struct{}{}
}
