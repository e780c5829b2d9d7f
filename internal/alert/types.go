package alert

import (
	"context"
	"fmt"
)

// ChannelID identifies a channel: a forum topic (ThreadID > 0) or the main
// stream (ThreadID == 0) of a space.
type ChannelID struct {
	SpaceID  int64
	ThreadID int
}

func (c ChannelID) String() string {
	if c.ThreadID == 0 {
		return fmt.Sprintf("%d", c.SpaceID)
	}
	return fmt.Sprintf("%d:%d", c.SpaceID, c.ThreadID)
}

type KeywordEntry struct {
	UserID  int64
	Keyword string
}

type ExclusionEntry struct {
	UserID  int64
	Channel ChannelID
}

// Message is one incoming chat message as seen by the engine.
type Message struct {
	AuthorID       int64
	IsBot          bool
	InTrackedSpace bool

	SpaceID     int64
	SpaceName   string
	Channel     ChannelID
	ChannelRef  string // display label of the channel
	ChannelLink string // optional URL of the channel
	Text        string
	Link        string // URL of the message itself

	Resolver MemberResolver
}

// MemberResolver resolves a user inside the message's space. It returns an
// error when the user is unknown there or no longer a member.
type MemberResolver interface {
	ResolveMember(ctx context.Context, spaceID, userID int64) error
}

// MemberResolverFunc adapts a function to MemberResolver.
type MemberResolverFunc func(ctx context.Context, spaceID, userID int64) error

func (f MemberResolverFunc) ResolveMember(ctx context.Context, spaceID, userID int64) error {
	return f(ctx, spaceID, userID)
}

// Sender delivers a private, HTML formatted alert to a user.
type Sender interface {
	SendPrivate(ctx context.Context, userID int64, html string) error
}

// Runner executes a delivery job asynchronously. Submit must not block on
// the job itself; it returns an error when the job cannot be accepted.
type Runner interface {
	Submit(name string, job func(ctx context.Context)) error
}

// Hit is a (user, keyword) pair whose keyword is contained in a message.
type Hit struct {
	UserID  int64
	Keyword string
}

type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeExcluded   Outcome = "excluded"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeFailed     Outcome = "failed"
	OutcomeDropped    Outcome = "dropped"
)

// Result is the best-effort outcome of one hit.
type Result struct {
	Hit     Hit
	Channel ChannelID
	Outcome Outcome
	Err     error
}

// Reporter receives every Result. It may be called from delivery goroutines
// and must be safe for concurrent use.
type Reporter func(Result)

// Summary describes the synchronous part of one EvaluateAndNotify call.
type Summary struct {
	Hits       int
	Excluded   int
	Dispatched int
	Dropped    int
}

type KeywordRepository interface {
	InsertKeyword(ctx context.Context, userID int64, keyword string) error
	DeleteKeyword(ctx context.Context, userID int64, keyword string) (int64, error)
	KeywordsByUser(ctx context.Context, userID int64) ([]string, error)
	AllKeywords(ctx context.Context) ([]KeywordEntry, error)
}

type ExclusionRepository interface {
	InsertExclusion(ctx context.Context, userID int64, ch ChannelID) error
	DeleteExclusion(ctx context.Context, userID int64, ch ChannelID) (int64, error)
	ExclusionsByUser(ctx context.Context, userID int64) ([]ChannelID, error)
	AllExclusions(ctx context.Context) ([]ExclusionEntry, error)
	HasExclusion(ctx context.Context, userID int64, ch ChannelID) (bool, error)
}
