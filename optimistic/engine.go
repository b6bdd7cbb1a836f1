package optimistic

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/goliatone/go-entity-cache/internal/telemetry"
	"github.com/goliatone/go-entity-cache/model"
	"github.com/goliatone/go-entity-cache/store"
	"github.com/sirupsen/logrus"
)

// MutationVote is the mutation kind of vote updates.
const MutationVote = "vote"

// ErrSettled is returned when a speculation is confirmed or rejected twice.
var ErrSettled = errors.New("optimistic: speculation already settled")

// Engine applies and reconciles speculative edits on a store.
type Engine struct {
	store   *store.Store
	logger  logrus.FieldLogger
	metrics *telemetry.Metrics

	mu     sync.Mutex
	next   uint64
	latest map[generationKey]uint64
}

type generationKey struct {
	mutation string
	id       string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine returns an engine writing to s.
func NewEngine(s *store.Store, opts ...Option) *Engine {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	e := &Engine{
		store:  s,
		logger: discard,
		latest: make(map[generationKey]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Speculation is an applied, not yet settled, vote update.
type Speculation struct {
	engine     *Engine
	ideaID     string
	prev       model.Vote
	delta      Delta
	generation uint64
	// applied is false when the idea was not loaded and its tallies were
	// left alone.
	applied bool

	mu      sync.Mutex
	settled bool
}

// Delta returns the adjustment applied on issue.
func (s *Speculation) Delta() Delta {
	return s.delta
}

// Generation returns the speculation's generation.
func (s *Speculation) Generation() uint64 {
	return s.generation
}

// BeginVote applies update speculatively. prev is the caller's vote right
// before this update; callers pass it explicitly because they are the only
// party that knows it across rapid repeated clicks.
func (e *Engine) BeginVote(ideaID string, update model.VoteUpdate, prev model.Vote) *Speculation {
	sp := &Speculation{
		engine: e,
		ideaID: ideaID,
		prev:   prev,
		delta:  ComputeDelta(prev, update),
	}

	e.mu.Lock()
	e.next++
	sp.generation = e.next
	e.latest[generationKey{MutationVote, ideaID}] = sp.generation
	e.mu.Unlock()

	_ = e.store.Update(func(tx *store.Txn) error {
		if idea, ok := fulfilledIdea(tx, ideaID); ok {
			tx.Put(model.KindIdea, ideaID, store.StatusFulfilled, sp.delta.Apply(idea, 1))
			sp.applied = true
		}
		tx.Put(model.KindVote, ideaID, store.StatusFulfilled, NextVote(prev, update))
		return nil
	})

	e.metrics.ObserveSpeculation(MutationVote, "applied")
	e.logger.WithFields(logrus.Fields{
		"idea_id":    ideaID,
		"generation": sp.generation,
		"applied":    sp.applied,
	}).Debug("vote speculation applied")

	return sp
}

// Confirm replaces the speculative state with the server's. When a newer
// speculation on the same idea is still outstanding, the idea and vote
// record are left to that speculation; the balance is always stored.
func (s *Speculation) Confirm(resp model.VoteUpdateResponse) error {
	if !s.settle() {
		return ErrSettled
	}
	e := s.engine
	current := e.release(generationKey{MutationVote, s.ideaID}, s.generation)

	_ = e.store.Update(func(tx *store.Txn) error {
		if current {
			idea := resp.Idea
			if idea.ID == "" {
				idea.ID = s.ideaID
			}
			tx.Put(model.KindIdea, s.ideaID, store.StatusFulfilled, idea)
			tx.Put(model.KindVote, s.ideaID, store.StatusFulfilled, resp.Vote)
		}
		if resp.Balance != nil {
			tx.Put(model.KindBalance, model.BalanceID, store.StatusFulfilled, *resp.Balance)
		}
		return nil
	})

	event := "confirmed"
	if !current {
		event = "stale"
	}
	e.metrics.ObserveSpeculation(MutationVote, event)
	e.logger.WithFields(logrus.Fields{
		"idea_id":    s.ideaID,
		"generation": s.generation,
		"current":    current,
	}).Debug("vote speculation confirmed")
	return nil
}

// Reject undoes the speculative delta. The counters are always inverted; the
// caller's vote record is restored to the previous vote only when no newer
// speculation replaced it.
func (s *Speculation) Reject() error {
	if !s.settle() {
		return ErrSettled
	}
	e := s.engine
	current := e.release(generationKey{MutationVote, s.ideaID}, s.generation)

	_ = e.store.Update(func(tx *store.Txn) error {
		if s.applied {
			if idea, ok := fulfilledIdea(tx, s.ideaID); ok {
				tx.Put(model.KindIdea, s.ideaID, store.StatusFulfilled, s.delta.Apply(idea, -1))
			}
		}
		if current {
			tx.Put(model.KindVote, s.ideaID, store.StatusFulfilled, s.prev)
		}
		return nil
	})

	e.metrics.ObserveSpeculation(MutationVote, "rolled_back")
	e.logger.WithFields(logrus.Fields{
		"idea_id":    s.ideaID,
		"generation": s.generation,
		"current":    current,
	}).Debug("vote speculation rolled back")
	return nil
}

func (s *Speculation) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return false
	}
	s.settled = true
	return true
}

// release reports whether generation is the newest for key and forgets it if
// so.
func (e *Engine) release(key generationKey, generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest[key] != generation {
		return false
	}
	delete(e.latest, key)
	return true
}

// Outstanding reports whether a vote speculation on ideaID is unsettled.
func (e *Engine) Outstanding(ideaID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.latest[generationKey{MutationVote, ideaID}]
	return ok
}

// Vote runs a complete vote mutation: the update is applied, send is called
// and the speculation is settled with its outcome. The send error is
// returned unchanged.
func (e *Engine) Vote(
	ctx context.Context,
	ideaID string,
	update model.VoteUpdate,
	prev model.Vote,
	send func(ctx context.Context) (model.VoteUpdateResponse, error),
) (model.VoteUpdateResponse, error) {
	sp := e.BeginVote(ideaID, update, prev)

	resp, err := send(ctx)
	if err != nil {
		_ = sp.Reject()
		return model.VoteUpdateResponse{}, err
	}
	_ = sp.Confirm(resp)
	return resp, nil
}

// CommentCreated stores a confirmed comment and rolls the denormalized
// comment counters forward: the idea's comment count, and either the parent
// comment's or the idea's child count.
func (e *Engine) CommentCreated(comment model.Comment) {
	_ = e.store.Update(func(tx *store.Txn) error {
		tx.Put(model.KindComment, comment.ID, store.StatusFulfilled, comment)

		if idea, ok := fulfilledIdea(tx, comment.IdeaID); ok {
			idea = idea.Clone()
			idea.CommentCount++
			if comment.ParentID == "" {
				idea.ChildCommentCount++
			}
			tx.Put(model.KindIdea, idea.ID, store.StatusFulfilled, idea)
		}

		if comment.ParentID != "" {
			if rec, ok := tx.Get(model.KindComment, comment.ParentID); ok && rec.Status == store.StatusFulfilled {
				if parent, ok := store.PayloadAs[model.Comment](rec); ok {
					parent.ChildCommentCount++
					tx.Put(model.KindComment, parent.ID, store.StatusFulfilled, parent)
				}
			}
		}
		return nil
	})

	e.logger.WithFields(logrus.Fields{
		"idea_id":    comment.IdeaID,
		"comment_id": comment.ID,
	}).Debug("comment counters rolled forward")
}

// IdeaDeleted removes a confirmed deleted idea and the caller's vote on it.
// Search lists keep the id and readers filter it out.
func (e *Engine) IdeaDeleted(ideaID string) {
	_ = e.store.Update(func(tx *store.Txn) error {
		tx.Remove(model.KindIdea, ideaID)
		tx.Remove(model.KindVote, ideaID)
		return nil
	})
}

// CommentDeleted removes a confirmed deleted comment.
func (e *Engine) CommentDeleted(commentID string) {
	e.store.Remove(model.KindComment, commentID)
}

func fulfilledIdea(tx *store.Txn, id string) (model.Idea, bool) {
	rec, ok := tx.Get(model.KindIdea, id)
	if !ok || rec.Status != store.StatusFulfilled {
		return model.Idea{}, false
	}
	return store.PayloadAs[model.Idea](rec)
}
