package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kwbot/internal/eventbus"
	logx "kwbot/pkg/logx"
)

type countingLoader struct {
	mu  sync.Mutex
	n   int
	err error
}

func (l *countingLoader) Load(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	return l.err
}

func (l *countingLoader) Compact(context.Context) error { return l.Load(context.Background()) }

func TestResyncEmitsReload(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	l := &countingLoader{}
	s := New(Config{}, l, nil, logx.Nop(), bus)
	if err := s.Resync(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-ch:
		if ev.Type != eventbus.TypeRegistryReload {
			t.Fatalf("event = %q", ev.Type)
		}
	default:
		t.Fatal("no reload event")
	}

	l.err = errors.New("db down")
	if err := s.Resync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q after failed resync", ev.Type)
	default:
	}
	if err := s.Compact(context.Background()); err != nil {
		t.Fatal("nil compactor should be a no-op")
	}
}

func TestRunJobObserves(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, nil, logx.Nop(), nil)
	var got []string
	s.SetObserver(func(job string, _ time.Duration, err error) {
		if err != nil {
			job += ":err"
		}
		got = append(got, job)
	})
	s.runJob(JobResync, func(context.Context) error { return nil })
	s.runJob(JobCompact, func(context.Context) error { return errors.New("boom") })
	if len(got) != 2 || got[0] != "resync" || got[1] != "compact:err" {
		t.Fatalf("observed %v", got)
	}
}

func TestStartSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		entries int
		wantErr bool
	}{
		{name: "disabled", cfg: Config{Resync: "@every 1m"}, entries: 0},
		{name: "both", cfg: Config{Enabled: true, Resync: "@every 10m", Compact: "@daily"}, entries: 2},
		{name: "resync only", cfg: Config{Enabled: true, Resync: "*/5 * * * *"}, entries: 1},
		{name: "with seconds", cfg: Config{Enabled: true, Compact: "0 30 3 * * *"}, entries: 1},
		{name: "bad spec", cfg: Config{Enabled: true, Resync: "sometimes"}, wantErr: true},
		{name: "bad timezone", cfg: Config{Enabled: true, Resync: "@hourly", Timezone: "Nowhere/Special"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s := New(tt.cfg, &countingLoader{}, nil, logx.Nop(), nil)
			err := s.Start(ctx)
			defer s.Stop(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := len(s.Entries()); got != tt.entries {
				t.Fatalf("entries = %d, want %d", got, tt.entries)
			}
		})
	}
}

func TestApplyReschedules(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(Config{Enabled: true, Resync: "@every 10m"}, &countingLoader{}, nil, logx.Nop(), nil)
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	if err := s.Apply(Config{Enabled: true, Resync: "@every 10m", Compact: "@daily"}); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Entries()); got != 2 {
		t.Fatalf("entries after apply = %d", got)
	}
	if err := s.Apply(Config{}); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Entries()); got != 0 {
		t.Fatalf("entries after disable = %d", got)
	}
}
