package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Challenge protocol headers.
const (
	HeaderChallenge = "X-Cf-Challenge"
	HeaderSolution  = "X-Cf-Solution"
)

// Challenge is the bot verification the server asks for.
type Challenge struct {
	Version   string `json:"version"`
	Challenge string `json:"challenge"`
	// Action is the request that triggered the challenge.
	Action string `json:"-"`
}

// ChallengeHandler presents a challenge and returns its solution. Returning
// an empty solution or an error abandons the challenge. Handlers must return
// once ctx is done.
type ChallengeHandler func(ctx context.Context, challenge Challenge) (string, error)

// challengeFrom reports whether err is a challenge response and decodes it.
func challengeFrom(err error) (Challenge, bool, error) {
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return Challenge{}, false, nil
	}
	resp := respErr.Response
	if resp.Status != http.StatusTooManyRequests {
		return Challenge{}, false, nil
	}
	raw := resp.Header.Get(HeaderChallenge)
	if raw == "" {
		return Challenge{}, false, nil
	}

	var challenge Challenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return Challenge{}, true, fmt.Errorf("malformed challenge header: %w", err)
	}
	return challenge, true, nil
}

// ErrUnknownChallenge is returned by ChallengeBroker for tokens that are not
// pending.
var ErrUnknownChallenge = errors.New("dispatch: unknown challenge token")

// PendingChallenge is a challenge waiting for an out-of-band solution.
type PendingChallenge struct {
	Token     string
	Challenge Challenge
}

// ChallengeBroker is a ChallengeHandler for UIs that solve challenges
// asynchronously. Each challenge is parked under a token until Solve or
// Cancel is called with it, or the dispatching context ends.
type ChallengeBroker struct {
	mu        sync.Mutex
	pending   map[string]*brokerEntry
	onPending func(PendingChallenge)
}

type brokerEntry struct {
	challenge PendingChallenge
	resolve   chan string
}

// NewChallengeBroker returns a broker. onPending, when not nil, is called for
// every new challenge so the UI can present it.
func NewChallengeBroker(onPending func(PendingChallenge)) *ChallengeBroker {
	return &ChallengeBroker{
		pending:   make(map[string]*brokerEntry),
		onPending: onPending,
	}
}

// Handle implements ChallengeHandler.
func (b *ChallengeBroker) Handle(ctx context.Context, challenge Challenge) (string, error) {
	entry := &brokerEntry{
		challenge: PendingChallenge{Token: uuid.NewString(), Challenge: challenge},
		resolve:   make(chan string, 1),
	}

	b.mu.Lock()
	b.pending[entry.challenge.Token] = entry
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, entry.challenge.Token)
		b.mu.Unlock()
	}()

	if b.onPending != nil {
		b.onPending(entry.challenge)
	}

	select {
	case solution := <-entry.resolve:
		if solution == "" {
			return "", ErrChallengeAbandoned
		}
		return solution, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending lists the challenges waiting for a solution.
func (b *ChallengeBroker) Pending() []PendingChallenge {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]PendingChallenge, 0, len(b.pending))
	for _, e := range b.pending {
		out = append(out, e.challenge)
	}
	return out
}

// Solve resolves the challenge with solution.
func (b *ChallengeBroker) Solve(token, solution string) error {
	if solution == "" {
		return errors.New("dispatch: empty challenge solution")
	}
	return b.resolve(token, solution)
}

// Cancel abandons the challenge.
func (b *ChallengeBroker) Cancel(token string) error {
	return b.resolve(token, "")
}

func (b *ChallengeBroker) resolve(token, solution string) error {
	b.mu.Lock()
	entry, ok := b.pending[token]
	if ok {
		delete(b.pending, token)
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownChallenge
	}
	entry.resolve <- solution
	return nil
}
