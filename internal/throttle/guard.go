package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/models"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxAttempts = 10
)

var ErrAccountBlocked = errors.New("account blocked")

type Policy struct {
	Window      time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{Window: DefaultWindow, MaxAttempts: DefaultMaxAttempts}
}

// Decision is the outcome of counting one mutation attempt.
type Decision struct {
	Count int
	Block bool
	At    int64
}

// Evaluate counts an attempt at now against the profile's stored counters.
// A blocked profile yields ErrAccountBlocked without a decision.
func (p Policy) Evaluate(profile *models.Profile, now time.Time) (Decision, error) {
	if profile.Blocked() {
		return Decision{}, ErrAccountBlocked
	}
	at := now.UnixMilli()
	count := profile.UpdateAttempts + 1
	if at-profile.LastUpdateAttempt >= p.Window.Milliseconds() {
		count = 1
	}
	return Decision{Count: count, Block: count > p.MaxAttempts, At: at}, nil
}

// Guard gates profile writes behind the attempt counter. It performs at most
// one write per call and holds no locks; callers serialise their own calls.
type Guard struct {
	store      docstore.Store
	collection string
	policy     Policy
	now        func() time.Time
	log        *slog.Logger
}

func NewGuard(store docstore.Store, collection string, policy Policy, log *slog.Logger) *Guard {
	if policy.Window <= 0 {
		policy.Window = DefaultWindow
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		store:      store,
		collection: collection,
		policy:     policy,
		now:        time.Now,
		log:        log,
	}
}

// WithClock replaces the time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Apply merges patch into the stored profile together with the updated
// counters and returns the profile as persisted.
//
// When the attempt crosses the threshold the patch is still written along
// with the blocked status; Apply then returns that blocked profile together
// with ErrAccountBlocked so the caller can refresh its copy.
func (g *Guard) Apply(ctx context.Context, current *models.Profile, patch docstore.Document) (*models.Profile, error) {
	decision, err := g.policy.Evaluate(current, g.now())
	if err != nil {
		return nil, err
	}

	write := docstore.Document{}
	for k, v := range patch {
		write[k] = v
	}
	write["lastUpdateAttempt"] = decision.At
	write["updateAttempts"] = decision.Count
	if decision.Block {
		write["accountStatus"] = string(models.AccountBlocked)
	}

	normalized, err := docstore.Normalize(write)
	if err != nil {
		return nil, fmt.Errorf("normalize patch: %w", err)
	}
	if err := g.store.Merge(ctx, g.collection, current.UID, normalized); err != nil {
		return nil, fmt.Errorf("write profile %s: %w", current.UID, err)
	}

	merged, err := mergeProfile(current, normalized)
	if err != nil {
		return nil, err
	}
	if decision.Block {
		g.log.Warn("account blocked by update throttle", "uid", current.UID, "attempts", decision.Count)
		return merged, ErrAccountBlocked
	}
	return merged, nil
}

func mergeProfile(current *models.Profile, patch docstore.Document) (*models.Profile, error) {
	doc, err := current.Document()
	if err != nil {
		return nil, err
	}
	merged := docstore.MergeDocuments(doc, patch)
	return models.ProfileFromDocument(current.UID, merged)
}
