package store

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-entity-cache/subscription"
	"github.com/sirupsen/logrus"
)

// Store owns the entity store and the search cache.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[Snapshot]
	listeners *subscription.Registry[Listener]
	logger    logrus.FieldLogger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report failing listeners.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Store{
		listeners: subscription.New[Listener](),
		logger:    discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptySnapshot())
	return s
}

// Snapshot returns the current immutable state.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Subscribe registers fn for every committed change and returns the
// unsubscribe function.
func (s *Store) Subscribe(fn Listener) func() {
	_, unsubscribe := s.listeners.Register(fn)
	return unsubscribe
}

// Update runs fn in a write transaction. If fn returns an error nothing is
// committed. Writes that touch nothing do not produce a new version.
func (s *Store) Update(fn func(tx *Txn) error) error {
	change, err := s.commit(fn)
	if err != nil {
		return err
	}
	if change.Snapshot != nil {
		s.notify(change)
	}
	return nil
}

func (s *Store) commit(fn func(tx *Txn) error) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.current.Load()
	tx := &Txn{
		entities: base.entities.Txn(),
		searches: base.searches.Txn(),
	}

	if err := fn(tx); err != nil {
		return Change{}, err
	}
	if tx.change.empty() {
		return Change{}, nil
	}

	next := &Snapshot{
		entities: tx.entities.Commit(),
		searches: tx.searches.Commit(),
		version:  base.version + 1,
	}
	s.current.Store(next)

	change := tx.change
	change.Snapshot = next
	return change, nil
}

func (s *Store) notify(change Change) {
	for _, listener := range s.listeners.Values() {
		s.deliver(listener, change)
	}
}

func (s *Store) deliver(listener Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"action":  "store_notify",
				"version": change.Snapshot.Version(),
			}).WithError(fmt.Errorf("listener panic: %v", r)).Error("store listener failed")
		}
	}()
	listener(change)
}

// Get returns the entity record from the current snapshot.
func (s *Store) Get(kind, id string) (Record, bool) {
	return s.Snapshot().Get(kind, id)
}

// Search returns the search record from the current snapshot.
func (s *Store) Search(kind, key string) (SearchRecord, bool) {
	return s.Snapshot().Search(kind, key)
}

// Put replaces the entity record.
func (s *Store) Put(kind, id string, status Status, payload any) {
	_ = s.Update(func(tx *Txn) error {
		tx.Put(kind, id, status, payload)
		return nil
	})
}

// Modify atomically replaces the entity record with fn applied to it.
// It returns ErrNotFound when the entity is not known.
func (s *Store) Modify(kind, id string, fn func(Record) Record) error {
	return s.Update(func(tx *Txn) error {
		return tx.Modify(kind, id, fn)
	})
}

// Remove deletes the entity and reports whether it existed.
func (s *Store) Remove(kind, id string) bool {
	var existed bool
	_ = s.Update(func(tx *Txn) error {
		existed = tx.Remove(kind, id)
		return nil
	})
	return existed
}

// BeginSearch marks a search as pending.
func (s *Store) BeginSearch(kind, key string) {
	_ = s.Update(func(tx *Txn) error {
		tx.BeginSearch(kind, key)
		return nil
	})
}

// CompleteSearch stores a page of search results, see Txn.CompleteSearch.
func (s *Store) CompleteSearch(kind, key string, ids []string, cursor, requestCursor string) {
	_ = s.Update(func(tx *Txn) error {
		tx.CompleteSearch(kind, key, ids, cursor, requestCursor)
		return nil
	})
}

// FailSearch marks a search as rejected.
func (s *Store) FailSearch(kind, key string) {
	_ = s.Update(func(tx *Txn) error {
		tx.FailSearch(kind, key)
		return nil
	})
}
