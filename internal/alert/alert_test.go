package alert_test

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"kwbot/internal/alert"
	"kwbot/internal/storage"
)

type sentAlert struct {
	UserID int64
	HTML   string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentAlert
	fail  map[int64]error
	calls int
}

func (f *fakeSender) SendPrivate(ctx context.Context, userID int64, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentAlert{UserID: userID, HTML: html})
	return nil
}

func (f *fakeSender) recipients() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, s := range f.sent {
		out = append(out, s.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type results struct {
	mu  sync.Mutex
	all []alert.Result
}

func (r *results) report(res alert.Result) {
	r.mu.Lock()
	r.all = append(r.all, res)
	r.mu.Unlock()
}

func (r *results) count(o alert.Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.all {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// gatedRepo blocks the first full-table read until release is closed.
type gatedRepo struct {
	storage.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{Store: storage.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (r *gatedRepo) gate() {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
}

func (r *gatedRepo) AllKeywords(ctx context.Context) ([]alert.KeywordEntry, error) {
	r.gate()
	return r.Store.AllKeywords(ctx)
}

func (r *gatedRepo) AllExclusions(ctx context.Context) ([]alert.ExclusionEntry, error) {
	r.gate()
	return r.Store.AllExclusions(ctx)
}

type panickySender struct {
	fakeSender
	panicFor int64
}

func (p *panickySender) SendPrivate(ctx context.Context, userID int64, html string) error {
	if userID == p.panicFor {
		panic("send exploded")
	}
	return p.fakeSender.SendPrivate(ctx, userID, html)
}

type refusingRunner struct{}

func (refusingRunner) Submit(string, func(context.Context)) error { return errors.New("queue full") }

func newEngine(t *testing.T, cached bool, sender alert.Sender, rep *results) *alert.Engine {
	t.Helper()
	st := storage.NewMemory()
	opt := alert.Options{Cache: cached, Sender: sender}
	if rep != nil {
		opt.Reporter = rep.report
	}
	e := alert.NewEngine(st, st, opt)
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return e
}

func trackedMsg(text string, ch alert.ChannelID) alert.Message {
	return alert.Message{
		AuthorID:       999,
		InTrackedSpace: true,
		SpaceID:        ch.SpaceID,
		SpaceName:      "Deals",
		Channel:        ch,
		ChannelRef:     "#general",
		Text:           text,
		Link:           "https://t.me/c/1/10",
	}
}

func sortHits(h []alert.Hit) []alert.Hit {
	sort.Slice(h, func(i, j int) bool {
		if h[i].UserID != h[j].UserID {
			return h[i].UserID < h[j].UserID
		}
		return h[i].Keyword < h[j].Keyword
	})
	return h
}

func TestKeywordRoundTrip(t *testing.T) {
	t.Parallel()
	for _, cached := range []bool{true, false} {
		ctx := context.Background()
		reg := newEngine(t, cached, nil, nil).Keywords()

		if err := reg.Add(ctx, 1, "  Sale "); err != nil {
			t.Fatal(err)
		}
		got, _ := reg.List(ctx, 1)
		if !reflect.DeepEqual(got, []string{"sale"}) {
			t.Fatalf("cached=%v list=%v", cached, got)
		}
		if err := reg.Remove(ctx, 1, "SALE"); err != nil {
			t.Fatal(err)
		}
		got, _ = reg.List(ctx, 1)
		if len(got) != 0 {
			t.Fatalf("cached=%v after remove list=%v", cached, got)
		}
		if err := reg.Remove(ctx, 1, "never-added"); err != nil {
			t.Fatalf("remove unknown: %v", err)
		}
	}
}

func TestEmptyKeywordIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, true, nil, nil)
	if err := e.Keywords().Add(ctx, 1, "   "); err != nil {
		t.Fatal(err)
	}
	all, _ := e.Keywords().All(ctx)
	if len(all) != 0 {
		t.Fatalf("empty keyword stored: %v", all)
	}
	hits, _ := e.Keywords().Match(ctx, "anything at all")
	if len(hits) != 0 {
		t.Fatalf("hits=%v", hits)
	}
}

func TestDuplicatesPreserved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, true, nil, nil)
	_ = e.Keywords().Add(ctx, 1, "sale")
	_ = e.Keywords().Add(ctx, 1, "Sale")
	if n := e.Keywords().Size(); n != 2 {
		t.Fatalf("size=%d want 2", n)
	}
	hits, _ := e.Keywords().Match(ctx, "big sale")
	if len(hits) != 2 {
		t.Fatalf("hits=%v want two", hits)
	}
	_ = e.Keywords().Remove(ctx, 1, "sale")
	if n := e.Keywords().Size(); n != 0 {
		t.Fatalf("size after remove=%d", n)
	}
}

func TestMatchIsCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	e := newEngine(t, true, sender, nil)
	_ = e.Keywords().Add(ctx, 1, "Foo ")

	sum := e.EvaluateAndNotify(ctx, trackedMsg("a FOO bar", alert.ChannelID{SpaceID: -100}))
	if sum.Hits != 1 || sum.Dispatched != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if got := sender.recipients(); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("recipients=%v", got)
	}
	if !strings.Contains(sender.sent[0].HTML, "<code>foo</code>") {
		t.Fatalf("alert body=%q", sender.sent[0].HTML)
	}

	sum = e.EvaluateAndNotify(ctx, trackedMsg("seafood", alert.ChannelID{SpaceID: -100}))
	if sum.Hits != 1 {
		t.Fatalf("substring match expected, summary=%+v", sum)
	}
}

func TestExclusionIsPerChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	rep := &results{}
	e := newEngine(t, true, sender, rep)
	topic := alert.ChannelID{SpaceID: -100, ThreadID: 55}
	other := alert.ChannelID{SpaceID: -100, ThreadID: 56}

	_ = e.Keywords().Add(ctx, 1001, "urgent")
	_ = e.Exclusions().Add(ctx, 1001, topic)

	sum := e.EvaluateAndNotify(ctx, trackedMsg("This is URGENT", topic))
	if sum.Hits != 1 || sum.Excluded != 1 || sum.Dispatched != 0 {
		t.Fatalf("excluded summary=%+v", sum)
	}
	if sender.calls != 0 {
		t.Fatalf("sender called %d times for excluded channel", sender.calls)
	}
	if rep.count(alert.OutcomeExcluded) != 1 {
		t.Fatalf("results=%v", rep.all)
	}

	sum = e.EvaluateAndNotify(ctx, trackedMsg("urgent again", other))
	if sum.Dispatched != 1 {
		t.Fatalf("other channel summary=%+v", sum)
	}

	_ = e.Exclusions().Remove(ctx, 1001, topic)
	sum = e.EvaluateAndNotify(ctx, trackedMsg("urgent", topic))
	if sum.Dispatched != 1 {
		t.Fatalf("after unexclude summary=%+v", sum)
	}
}

func TestExcludeAfterAlert(t *testing.T) {
	t.Parallel()
	for _, cached := range []bool{true, false} {
		cached := cached
		t.Run(map[bool]string{true: "indexed", false: "scan"}[cached], func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			sender := &fakeSender{}
			e := newEngine(t, cached, sender, nil)
			ch := alert.ChannelID{SpaceID: 55}

			_ = e.Keywords().Add(ctx, 1001, "urgent")
			e.EvaluateAndNotify(ctx, trackedMsg("This is Urgent!!", ch))
			if got := sender.recipients(); !reflect.DeepEqual(got, []int64{1001}) {
				t.Fatalf("recipients=%v", got)
			}
			if !strings.Contains(sender.sent[0].HTML, "urgent") {
				t.Fatalf("alert does not name keyword: %q", sender.sent[0].HTML)
			}

			_ = e.Exclusions().Add(ctx, 1001, ch)
			e.EvaluateAndNotify(ctx, trackedMsg("This is Urgent!!", ch))
			if sender.calls != 1 {
				t.Fatalf("sender calls=%d after exclude", sender.calls)
			}
		})
	}
}

func TestTwoUsersSameKeyword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	e := newEngine(t, true, sender, nil)
	_ = e.Keywords().Add(ctx, 1, "sale")
	_ = e.Keywords().Add(ctx, 2, "sale")

	sum := e.EvaluateAndNotify(ctx, trackedMsg("Flash SALE today", alert.ChannelID{SpaceID: -100}))
	if sum.Hits != 2 || sum.Dispatched != 2 {
		t.Fatalf("summary=%+v", sum)
	}
	if got := sender.recipients(); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("recipients=%v", got)
	}
}

func TestIgnoredMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	e := newEngine(t, true, sender, nil)
	_ = e.Keywords().Add(ctx, 1, "sale")

	bot := trackedMsg("sale", alert.ChannelID{SpaceID: -1})
	bot.IsBot = true
	untracked := trackedMsg("sale", alert.ChannelID{SpaceID: -1})
	untracked.InTrackedSpace = false
	blank := trackedMsg("   ", alert.ChannelID{SpaceID: -1})

	for _, m := range []alert.Message{bot, untracked, blank} {
		if sum := e.EvaluateAndNotify(ctx, m); sum != (alert.Summary{}) {
			t.Fatalf("summary=%+v for %+v", sum, m)
		}
	}
	if sender.calls != 0 {
		t.Fatalf("sender called")
	}
}

func TestFailingSendDoesNotBlockOtherHits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{fail: map[int64]error{1: errors.New("blocked by user")}}
	rep := &results{}
	e := newEngine(t, true, sender, rep)
	_ = e.Keywords().Add(ctx, 1, "sale")
	_ = e.Keywords().Add(ctx, 2, "sale")

	e.EvaluateAndNotify(ctx, trackedMsg("sale", alert.ChannelID{SpaceID: -1}))
	if got := sender.recipients(); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("recipients=%v", got)
	}
	if rep.count(alert.OutcomeFailed) != 1 || rep.count(alert.OutcomeSent) != 1 {
		t.Fatalf("results=%v", rep.all)
	}
}

func TestUnresolvedRecipientSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &fakeSender{}
	rep := &results{}
	e := newEngine(t, true, sender, rep)
	_ = e.Keywords().Add(ctx, 1, "sale")
	_ = e.Keywords().Add(ctx, 2, "sale")

	msg := trackedMsg("sale", alert.ChannelID{SpaceID: -1})
	msg.Resolver = alert.MemberResolverFunc(func(ctx context.Context, spaceID, userID int64) error {
		if userID == 1 {
			return errors.New("left")
		}
		return nil
	})
	e.EvaluateAndNotify(ctx, msg)
	if got := sender.recipients(); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("recipients=%v", got)
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	var found bool
	for _, r := range rep.all {
		if r.Outcome == alert.OutcomeUnresolved && errors.Is(r.Err, alert.ErrUnresolved) {
			found = true
		}
	}
	if !found {
		t.Fatalf("no unresolved result in %v", rep.all)
	}
}

func TestRunnerRefusalCountsDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	rep := &results{}
	e := alert.NewEngine(st, st, alert.Options{Cache: true, Sender: &fakeSender{}, Runner: refusingRunner{}, Reporter: rep.report})
	_ = e.Keywords().Add(ctx, 1, "sale")

	sum := e.EvaluateAndNotify(ctx, trackedMsg("sale", alert.ChannelID{SpaceID: -1}))
	if sum.Dropped != 1 || sum.Dispatched != 0 {
		t.Fatalf("summary=%+v", sum)
	}
	if rep.count(alert.OutcomeDropped) != 1 {
		t.Fatalf("results=%v", rep.all)
	}
}

func TestIndexedMatchEqualsReference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t, true, nil, nil)
	entries := []alert.KeywordEntry{
		{UserID: 1, Keyword: "sale"},
		{UserID: 1, Keyword: "urgent"},
		{UserID: 2, Keyword: "sale"},
		{UserID: 3, Keyword: "go"},
		{UserID: 3, Keyword: "golang"},
		{UserID: 4, Keyword: "ünïcode"},
	}
	for _, en := range entries {
		_ = e.Keywords().Add(ctx, en.UserID, en.Keyword)
	}
	for _, text := range []string{
		"urgent sale on golang books",
		"nothing here",
		"going going gone",
		"ÜNÏCODE test",
	} {
		norm := alert.Normalize(text)
		got, err := e.Keywords().Match(ctx, norm)
		if err != nil {
			t.Fatal(err)
		}
		want := alert.MatchEntries(norm, entries)
		if !reflect.DeepEqual(sortHits(got), sortHits(want)) {
			t.Fatalf("text=%q indexed=%v reference=%v", text, got, want)
		}
	}
}

func TestLoadRebuildsIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.InsertKeyword(ctx, 5, "sale")
	_ = st.InsertExclusion(ctx, 5, alert.ChannelID{SpaceID: -1, ThreadID: 2})

	e := alert.NewEngine(st, st, alert.Options{Cache: true, Sender: &fakeSender{}})
	if err := e.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if e.Keywords().Size() != 1 {
		t.Fatalf("size=%d", e.Keywords().Size())
	}
	ok, _ := e.Exclusions().IsExcluded(ctx, 5, alert.ChannelID{SpaceID: -1, ThreadID: 2})
	if !ok {
		t.Fatalf("exclusion not loaded")
	}
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	msg := trackedMsg("x", alert.ChannelID{SpaceID: -100, ThreadID: 55})
	msg.SpaceName = "A & B"
	msg.ChannelLink = "https://t.me/c/100/55"
	got := alert.FormatAlert("sale", msg)
	for _, want := range []string{
		"<b>Keyword hit:</b> <code>sale</code>",
		"Group: <b>A &amp; B</b>",
		`Channel: <a href="https://t.me/c/100/55">#general</a>`,
		"Jump: ",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}

	msg.Link = ""
	msg.ChannelRef = ""
	msg.ChannelLink = ""
	got = alert.FormatAlert("sale", msg)
	if strings.Contains(got, "Jump:") || !strings.Contains(got, "Channel: -100:55") {
		t.Fatalf("fallback body=%q", got)
	}
}

func TestLoadKeepsConcurrentExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newGatedRepo()
	reg := alert.NewExclusionRegistry(repo, true)
	ch := alert.ChannelID{SpaceID: -10055}

	loaded := make(chan error, 1)
	go func() { loaded <- reg.Load(ctx) }()
	<-repo.entered

	added := make(chan error, 1)
	go func() { added <- reg.Add(ctx, 1001, ch) }()
	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	if err := <-loaded; err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := <-added; err != nil {
		t.Fatalf("add: %v", err)
	}
	rows, _ := repo.ExclusionsByUser(ctx, 1001)
	ok, _ := reg.IsExcluded(ctx, 1001, ch)
	if len(rows) != 1 || !ok {
		t.Fatalf("stored rows=%d IsExcluded=%v", len(rows), ok)
	}
}

func TestLoadKeepsConcurrentKeywordRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newGatedRepo()
	if err := repo.InsertKeyword(ctx, 1001, "urgent"); err != nil {
		t.Fatal(err)
	}
	reg := alert.NewKeywordRegistry(repo, true)

	loaded := make(chan error, 1)
	go func() { loaded <- reg.Load(ctx) }()
	<-repo.entered

	removed := make(chan error, 1)
	go func() { removed <- reg.Remove(ctx, 1001, "urgent") }()
	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	if err := <-loaded; err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := <-removed; err != nil {
		t.Fatalf("remove: %v", err)
	}
	hits, _ := reg.Match(ctx, "this is urgent")
	if len(hits) != 0 || reg.Size() != 0 {
		t.Fatalf("removed keyword still indexed: hits=%v size=%d", hits, reg.Size())
	}
}

func TestInlineSendPanicIsolatedPerHit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sender := &panickySender{panicFor: 1}
	rep := &results{}
	e := newEngine(t, true, sender, rep)
	_ = e.Keywords().Add(ctx, 1, "sale")
	_ = e.Keywords().Add(ctx, 2, "sale")

	e.EvaluateAndNotify(ctx, trackedMsg("big sale", alert.ChannelID{SpaceID: -100}))
	if got := sender.recipients(); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("recipients=%v", got)
	}
	if rep.count(alert.OutcomeFailed) != 1 || rep.count(alert.OutcomeSent) != 1 {
		t.Fatalf("results=%v", rep.all)
	}
}
