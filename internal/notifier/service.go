package notifier

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"kwbot/internal/eventbus"
	rtsup "kwbot/internal/runtime/supervisor"
	kit "kwbot/internal/transport"
	logx "kwbot/pkg/logx"
	"kwbot/pkg/tgui"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoAdapter = errors.New("notifier has no adapter")
)

type job struct {
	name string
	fn   func(ctx context.Context)
}

// Service runs delivery jobs on a bounded queue and a worker pool.
//
// It implements alert.Runner (Submit) and alert.Sender (SendPrivate) and is
// safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus
	cfg     Config

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	completed atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply updates the configuration. Workers and QueueSize take effect on the
// next Start; SendTimeout and HistorySize apply immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s.cfg = cfg
}

// SetAdapter swaps the transport used by SendPrivate.
func (s *Service) SetAdapter(a kit.Adapter) {
	s.mu.Lock()
	s.adapter = a
	s.mu.Unlock()
}

// Supervisor returns the pool's supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// A previous Stop may still be draining.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop stops intake and drains the queue until ctx is done. Jobs still
// queued at the deadline are abandoned.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Submits must finish before the queue closes.
		s.sendWG.Wait()
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Submit enqueues fn without blocking. It returns ErrStopped when the pool
// is not running and ErrQueueFull when the queue is at capacity.
func (s *Service) Submit(name string, fn func(ctx context.Context)) error {
	if fn == nil {
		return nil
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- job{name: name, fn: fn}:
		eventbus.Emit(s.bus, eventbus.TypeAlertQueued, JobEvent{Job: name, At: time.Now()})
		return nil
	default:
		s.dropped.Add(1)
		eventbus.Emit(s.bus, eventbus.TypeAlertDropped, JobEvent{Job: name, At: time.Now(), Error: ErrQueueFull.Error()})
		return ErrQueueFull
	}
}

// SendPrivate delivers an HTML message to the user's private chat.
func (s *Service) SendPrivate(ctx context.Context, userID int64, html string) error {
	s.mu.Lock()
	ad := s.adapter
	s.mu.Unlock()
	if ad == nil {
		return ErrNoAdapter
	}
	_, err := ad.SendText(ctx, kit.Private(userID), html, &kit.SendOptions{ParseMode: tgui.ModeHTML, DisablePreview: true})
	return err
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{Workers: s.cfg.Workers, Capacity: s.cfg.QueueSize}
	if s.queue != nil {
		st.Queued = len(s.queue)
		st.Capacity = cap(s.queue)
	}
	s.mu.Unlock()
	st.Completed = s.completed.Load()
	st.Dropped = s.dropped.Load()
	st.Panics = s.panics.Load()
	return st
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.run(ctx, j)
		}
	}
}

// run executes one job with the configured timeout. A panic is logged and
// counted; it does not restart the worker.
func (s *Service) run(ctx context.Context, j job) {
	s.mu.Lock()
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	start := time.Now()
	item := HistoryItem{At: start, Job: j.name}
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.panics.Add(1)
				item.Error = fmt.Sprintf("panic: %v", r)
				s.log.Error("delivery job panicked", logx.String("job", j.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				eventbus.Emit(s.bus, eventbus.TypeAlertFailed, JobEvent{Job: j.name, At: time.Now(), Error: item.Error})
			}
		}()
		jctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		j.fn(jctx)
	}()
	item.Took = time.Since(start)
	s.appendHistory(item)
	s.completed.Add(1)
}
