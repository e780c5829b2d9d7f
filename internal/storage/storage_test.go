package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"kwbot/internal/alert"
	logx "kwbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "memory"},
		{Driver: "file", Path: filepath.Join(dir, "file", "kwbot.db")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "kwbot.db")},
	} {
		st, err := Open(context.Background(), cfg, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestStoreKeywords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			for _, kw := range []string{"sale", "urgent", "sale"} {
				if err := st.InsertKeyword(ctx, 1, kw); err != nil {
					t.Fatalf("insert: %v", err)
				}
			}
			if err := st.InsertKeyword(ctx, 2, "sale"); err != nil {
				t.Fatalf("insert: %v", err)
			}

			got, err := st.KeywordsByUser(ctx, 1)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if want := []string{"sale", "urgent", "sale"}; !reflect.DeepEqual(got, want) {
				t.Fatalf("keywords=%v want %v", got, want)
			}

			n, err := st.DeleteKeyword(ctx, 1, "sale")
			if err != nil || n != 2 {
				t.Fatalf("delete n=%d err=%v, want 2 rows", n, err)
			}
			n, err = st.DeleteKeyword(ctx, 1, "missing")
			if err != nil || n != 0 {
				t.Fatalf("delete missing n=%d err=%v", n, err)
			}

			all, err := st.AllKeywords(ctx)
			if err != nil {
				t.Fatalf("all: %v", err)
			}
			want := []alert.KeywordEntry{{UserID: 1, Keyword: "urgent"}, {UserID: 2, Keyword: "sale"}}
			if !reflect.DeepEqual(all, want) {
				t.Fatalf("all=%v want %v", all, want)
			}
		})
	}
}

func TestStoreExclusions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	main := alert.ChannelID{SpaceID: -1001, ThreadID: 0}
	topic := alert.ChannelID{SpaceID: -1001, ThreadID: 55}
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.InsertExclusion(ctx, 7, topic); err != nil {
				t.Fatalf("insert: %v", err)
			}
			ok, err := st.HasExclusion(ctx, 7, topic)
			if err != nil || !ok {
				t.Fatalf("has topic=%v err=%v", ok, err)
			}
			ok, err = st.HasExclusion(ctx, 7, main)
			if err != nil || ok {
				t.Fatalf("main stream must not be excluded: %v %v", ok, err)
			}
			chs, err := st.ExclusionsByUser(ctx, 7)
			if err != nil || !reflect.DeepEqual(chs, []alert.ChannelID{topic}) {
				t.Fatalf("list=%v err=%v", chs, err)
			}
			n, err := st.DeleteExclusion(ctx, 7, topic)
			if err != nil || n != 1 {
				t.Fatalf("delete n=%d err=%v", n, err)
			}
			all, err := st.AllExclusions(ctx)
			if err != nil || len(all) != 0 {
				t.Fatalf("all=%v err=%v", all, err)
			}
		})
	}
}

func TestStoreAuditAndCompact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "kw.add", Target: "sale", OK: true}); err != nil {
				t.Fatalf("audit: %v", err)
			}
			if err := st.Compact(ctx); err != nil {
				t.Fatalf("compact: %v", err)
			}
		})
	}
}

func TestFileStoreReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kwbot.db")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.InsertKeyword(ctx, 1, "sale")
	_ = st.InsertKeyword(ctx, 1, "urgent")
	if err := st.Compact(ctx); err != nil {
		t.Fatal(err)
	}
	// Mutations after the snapshot live only in the journal.
	_, _ = st.DeleteKeyword(ctx, 1, "sale")
	_ = st.InsertExclusion(ctx, 1, alert.ChannelID{SpaceID: -5, ThreadID: 3})
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertKeyword(ctx, 1, "late"); err != ErrClosed {
		t.Fatalf("write after close err=%v want ErrClosed", err)
	}

	st, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	kws, _ := st.KeywordsByUser(ctx, 1)
	if !reflect.DeepEqual(kws, []string{"urgent"}) {
		t.Fatalf("replayed keywords=%v", kws)
	}
	ok, _ := st.HasExclusion(ctx, 1, alert.ChannelID{SpaceID: -5, ThreadID: 3})
	if !ok {
		t.Fatalf("replayed exclusion missing")
	}
}

func TestFileStoreCompactionCrashDoesNotDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "kwbot.db")}
	journal := filepath.Join(dir, "kwbot.journal.jsonl")
	ch := alert.ChannelID{SpaceID: -10055}

	st, err := Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.InsertKeyword(ctx, 1001, "urgent")
	_ = st.InsertExclusion(ctx, 1001, ch)
	_ = st.Close()
	before, err := os.ReadFile(journal)
	if err != nil {
		t.Fatal(err)
	}

	st, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Compact(ctx); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	// Snapshot renamed but journal not truncated.
	if err := os.WriteFile(journal, before, 0o600); err != nil {
		t.Fatal(err)
	}

	st, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	kws, _ := st.KeywordsByUser(ctx, 1001)
	exs, _ := st.ExclusionsByUser(ctx, 1001)
	if !reflect.DeepEqual(kws, []string{"urgent"}) || len(exs) != 1 {
		t.Fatalf("after replay keywords=%v exclusions=%v", kws, exs)
	}
	_ = st.InsertKeyword(ctx, 1001, "sale")
	_ = st.Close()

	st, err = Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	kws, _ = st.KeywordsByUser(ctx, 1001)
	if !reflect.DeepEqual(kws, []string{"urgent", "sale"}) {
		t.Fatalf("post-compaction writes lost: %v", kws)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	cases := []Config{
		{Driver: "bogus"},
		{Driver: "file"},
		{Driver: "sqlite"},
		{Driver: "postgres"},
	}
	for _, cfg := range cases {
		if _, err := Open(context.Background(), cfg, logx.Logger{}); err == nil {
			t.Fatalf("driver %q: expected error", cfg.Driver)
		}
	}
}
