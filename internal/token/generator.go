package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/digkill/HookRelay/internal/docstore"
)

const DefaultMaxAttempts = 8

var ErrGenerationExhausted = errors.New("unique token generation exhausted")

// Kind describes one family of identifiers: the profile field that must stay
// unique, the visible prefix and the number of random bytes.
type Kind struct {
	Field  string
	Prefix string
	Bytes  int
}

var (
	AccessToken = Kind{Field: "authKey", Prefix: "pk_", Bytes: 24}
	AccessID    = Kind{Field: "accessId", Prefix: "aid_", Bytes: 16}
)

type Generator struct {
	store       docstore.Store
	collection  string
	maxAttempts int
	random      io.Reader
	log         *slog.Logger
}

func NewGenerator(store docstore.Store, collection string, maxAttempts int, log *slog.Logger) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		store:       store,
		collection:  collection,
		maxAttempts: maxAttempts,
		random:      rand.Reader,
		log:         log,
	}
}

// WithRandom swaps the entropy source. Used by tests to force collisions.
func (g *Generator) WithRandom(r io.Reader) *Generator {
	g.random = r
	return g
}

// Generate returns a candidate no profile currently holds in kind.Field.
// Every attempt costs one lookup; nothing is written.
func (g *Generator) Generate(ctx context.Context, kind Kind) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate, err := g.candidate(kind)
		if err != nil {
			return "", err
		}
		existing, err := g.store.Query(ctx, g.collection, kind.Field, candidate)
		if err != nil {
			return "", fmt.Errorf("check %s uniqueness: %w", kind.Field, err)
		}
		if len(existing) == 0 {
			return candidate, nil
		}
		g.log.Warn("token collision", "field", kind.Field, "attempt", attempt)
	}
	return "", fmt.Errorf("%s after %d attempts: %w", kind.Field, g.maxAttempts, ErrGenerationExhausted)
}

func (g *Generator) candidate(kind Kind) (string, error) {
	buf := make([]byte, kind.Bytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return kind.Prefix + hex.EncodeToString(buf), nil
}
