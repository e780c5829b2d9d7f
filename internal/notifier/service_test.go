package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kwbot/internal/eventbus"
	kit "kwbot/internal/transport"
	logx "kwbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []kit.ChatTarget
	opts []*kit.SendOptions
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                        { return nil }
func (f *fakeAdapter) ResolveMember(ctx context.Context, chatID, userID int64) (kit.Member, error) {
	return kit.Member{UserID: userID}, nil
}
func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitRunsJobs(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 2, QueueSize: 8}, nil, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		if err := s.Submit("job", func(ctx context.Context) { n.Add(1) }); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	waitFor(t, func() bool { return n.Load() == 5 })
	waitFor(t, func() bool { return s.Stats().Completed == 5 })
	if got := len(s.Snapshot()); got != 5 {
		t.Fatalf("history=%d", got)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil)
	if err := s.Submit("x", func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v want ErrStopped", err)
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(Config{Workers: 1, QueueSize: 1}, nil, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	_ = s.Submit("block", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started
	_ = s.Submit("queued", func(context.Context) {})
	err := s.Submit("overflow", func(context.Context) {})
	close(release)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
	if s.Stats().Dropped != 1 {
		t.Fatalf("stats=%+v", s.Stats())
	}

	var sawDrop bool
	for !sawDrop {
		select {
		case e := <-events:
			sawDrop = e.Type == eventbus.TypeAlertDropped
		case <-time.After(time.Second):
			t.Fatal("no drop event")
		}
	}
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 4}, nil, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var ran atomic.Bool
	_ = s.Submit("boom", func(context.Context) { panic("boom") })
	_ = s.Submit("after", func(context.Context) { ran.Store(true) })
	waitFor(t, ran.Load)
	if s.Stats().Panics != 1 {
		t.Fatalf("stats=%+v", s.Stats())
	}
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 1, SendTimeout: 20 * time.Millisecond}, nil, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	done := make(chan error, 1)
	_ = s.Submit("slow", func(ctx context.Context) {
		<-ctx.Done()
		done <- ctx.Err()
	})
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job context never expired")
	}
}

func TestStopDrainsAndRejects(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, QueueSize: 16}, nil, logx.Nop(), nil)
	s.Start(context.Background())
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		_ = s.Submit("j", func(context.Context) { n.Add(1) })
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if n.Load() != 10 {
		t.Fatalf("drained %d of 10", n.Load())
	}
	if err := s.Submit("late", func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v", err)
	}
}

func TestSendPrivate(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{}, ad, logx.Nop(), nil)
	if err := s.SendPrivate(context.Background(), 77, "<b>hi</b>"); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.sent[0] != kit.Private(77) {
		t.Fatalf("sent=%v", ad.sent)
	}
	if ad.opts[0].ParseMode != "HTML" || !ad.opts[0].DisablePreview {
		t.Fatalf("opts=%+v", ad.opts[0])
	}

	s.SetAdapter(nil)
	if err := s.SendPrivate(context.Background(), 77, "x"); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("err=%v", err)
	}
}
