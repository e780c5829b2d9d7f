package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kwbot/internal/eventbus"
	logx "kwbot/pkg/logx"
)

const (
	JobResync  = "resync"
	JobCompact = "compact"
)

type Config struct {
	Enabled  bool
	Resync   string // cron spec; empty disables the job
	Compact  string // cron spec; empty disables the job
	Timezone string

	// JobTimeout bounds one run. 0 means 2m.
	JobTimeout time.Duration
}

// Loader rebuilds in-memory state from storage.
type Loader interface {
	Load(ctx context.Context) error
}

type Compactor interface {
	Compact(ctx context.Context) error
}

// Observer is told about every finished job.
type Observer func(job string, took time.Duration, err error)

type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	parser cron.Parser

	loader    Loader
	compactor Compactor
	observe   Observer

	ctx context.Context
	c   *cron.Cron
	loc *time.Location
}

func New(cfg Config, loader Loader, compactor Compactor, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		loader:    loader,
		compactor: compactor,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SetObserver installs a hook called after each job. Call before Start.
func (s *Service) SetObserver(fn Observer) {
	s.mu.Lock()
	s.observe = fn
	s.mu.Unlock()
}

// Start registers the configured jobs and starts triggering. It is a no-op
// when maintenance is disabled or already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	cur := s.cfg
	if !cur.Enabled {
		s.log.Debug("maintenance disabled")
		return nil
	}
	loc, err := loadLocation(cur.Timezone)
	if err != nil {
		return err
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{JobResync, cur.Resync, s.Resync},
		{JobCompact, cur.Compact, s.Compact},
	}
	n := 0
	for _, j := range jobs {
		if strings.TrimSpace(j.spec) == "" {
			continue
		}
		if _, err := c.AddFunc(j.spec, func() { s.runJob(j.name, j.run) }); err != nil {
			return fmt.Errorf("maintenance.%s: invalid schedule %q: %w", j.name, j.spec, err)
		}
		n++
	}
	c.Start()
	s.c = c
	s.loc = loc
	s.log.Info("maintenance started", logx.String("tz", loc.String()), logx.Int("jobs", n))
	return nil
}

// Stop stops triggering and waits for running jobs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("maintenance stopped")
}

// Apply swaps the config and reschedules when anything changed.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	if s.ctx == nil || prev == cfg {
		s.mu.Unlock()
		return nil
	}
	c := s.c
	s.c = nil
	s.mu.Unlock()

	// Running jobs take s.mu, so wait for them unlocked.
	if c != nil {
		<-c.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	return s.startLocked()
}

// Entries returns the next run time of every scheduled job.
func (s *Service) Entries() []time.Time {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	var out []time.Time
	for _, e := range c.Entries() {
		out = append(out, e.Next)
	}
	return out
}

// Resync rebuilds the registry indexes from storage.
func (s *Service) Resync(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}
	if err := s.loader.Load(ctx); err != nil {
		return err
	}
	eventbus.Emit(s.bus, eventbus.TypeRegistryReload, nil)
	return nil
}

// Compact runs store housekeeping.
func (s *Service) Compact(ctx context.Context) error {
	if s.compactor == nil {
		return nil
	}
	return s.compactor.Compact(ctx)
}

func (s *Service) runJob(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	parent := s.ctx
	timeout := s.cfg.JobTimeout
	observe := s.observe
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	took := time.Since(start)
	if observe != nil {
		observe(name, took, err)
	}
	switch {
	case err == nil:
		s.log.Debug("maintenance job done", logx.String("job", name), logx.Duration("took", took))
	case errors.Is(err, context.Canceled):
	default:
		s.log.Warn("maintenance job failed", logx.String("job", name), logx.Duration("took", took), logx.Err(err))
	}
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("maintenance.timezone: %w", err)
	}
	return loc, nil
}

// cronLogger routes cron's own messages through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
