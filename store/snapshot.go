package store

import (
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"
)

const keySep = "\x00"

func treeKey(kind, id string) []byte {
	return []byte(kind + keySep + id)
}

// Snapshot is an immutable view of the store at one version.
type Snapshot struct {
	entities *iradix.Tree
	searches *iradix.Tree
	version  uint64
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		entities: iradix.New(),
		searches: iradix.New(),
	}
}

// Version increases by one with every committed write.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Get returns the entity record. ok=false means the entity is not yet known.
func (s *Snapshot) Get(kind, id string) (Record, bool) {
	v, ok := s.entities.Get(treeKey(kind, id))
	if !ok {
		return Record{}, false
	}
	return v.(Record), true
}

// Search returns the search record stored under the canonical key.
func (s *Snapshot) Search(kind, key string) (SearchRecord, bool) {
	v, ok := s.searches.Get(treeKey(kind, key))
	if !ok {
		return SearchRecord{}, false
	}
	return v.(SearchRecord).clone(), true
}

// Results resolves the ids of a search against the entity store, skipping ids
// whose entity has been removed.
func (s *Snapshot) Results(kind, key string) []Entry {
	v, ok := s.searches.Get(treeKey(kind, key))
	if !ok {
		return nil
	}
	ids := v.(SearchRecord).IDs

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.Get(kind, id); ok {
			out = append(out, Entry{ID: id, Record: rec})
		}
	}
	return out
}

// Each calls fn for every entity of kind in id order until fn returns false.
func (s *Snapshot) Each(kind string, fn func(id string, rec Record) bool) {
	prefix := []byte(kind + keySep)
	s.entities.Root().WalkPrefix(prefix, func(k []byte, v interface{}) bool {
		id := strings.TrimPrefix(string(k), string(prefix))
		return !fn(id, v.(Record))
	})
}

// Count returns the number of entities of kind.
func (s *Snapshot) Count(kind string) int {
	n := 0
	s.Each(kind, func(string, Record) bool {
		n++
		return true
	})
	return n
}

// Fulfilled returns the payload of a fulfilled entity as T.
func Fulfilled[T any](s *Snapshot, kind, id string) (T, bool) {
	rec, ok := s.Get(kind, id)
	if !ok || rec.Status != StatusFulfilled {
		var zero T
		return zero, false
	}
	return PayloadAs[T](rec)
}

// ResultPayloads returns the fulfilled payloads of a search, in order.
func ResultPayloads[T any](s *Snapshot, kind, key string) []T {
	entries := s.Results(kind, key)
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if e.Record.Status != StatusFulfilled {
			continue
		}
		if v, ok := PayloadAs[T](e.Record); ok {
			out = append(out, v)
		}
	}
	return out
}
