package store

import (
	"slices"
)

// Status is the load state of an entity or search.
type Status int

const (
	StatusPending Status = iota
	StatusFulfilled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Record is the cached state of a single entity.
type Record struct {
	Status  Status
	Payload any
}

// SearchRecord is the cached state of a search. IDs are in server order and
// never contain duplicates. An empty Cursor means there are no more pages.
type SearchRecord struct {
	Status Status
	IDs    []string
	Cursor string
}

func (r SearchRecord) clone() SearchRecord {
	r.IDs = slices.Clone(r.IDs)
	return r
}

// Entry is a resolved search result.
type Entry struct {
	ID     string
	Record Record
}

// PayloadAs returns the payload of r as T.
func PayloadAs[T any](r Record) (T, bool) {
	v, ok := r.Payload.(T)
	return v, ok
}

// appendUnique returns a new slice holding base followed by the ids of more
// that are not already present.
func appendUnique(base, more []string) []string {
	seen := make(map[string]struct{}, len(base)+len(more))
	out := make([]string, 0, len(base)+len(more))
	for _, id := range base {
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range more {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
