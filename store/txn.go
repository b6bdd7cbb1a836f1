package store

import (
	"errors"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// ErrNotFound is returned by Modify when the entity is not known.
var ErrNotFound = errors.New("store: entity not found")

// Txn batches writes that are committed as a single snapshot and delivered
// as a single Change. Reads inside a Txn observe its own writes.
type Txn struct {
	entities *iradix.Txn
	searches *iradix.Txn
	change   Change
}

// Get returns the entity as seen by the transaction.
func (tx *Txn) Get(kind, id string) (Record, bool) {
	v, ok := tx.entities.Get(treeKey(kind, id))
	if !ok {
		return Record{}, false
	}
	return v.(Record), true
}

// Put replaces the entity record. There is no partial merge: callers that
// need one use Modify.
func (tx *Txn) Put(kind, id string, status Status, payload any) {
	tx.entities.Insert(treeKey(kind, id), Record{Status: status, Payload: payload})
	tx.change.addEntity(EntityRef{Kind: kind, ID: id})
}

// Modify replaces the entity record with fn applied to the current one.
func (tx *Txn) Modify(kind, id string, fn func(Record) Record) error {
	rec, ok := tx.Get(kind, id)
	if !ok {
		return ErrNotFound
	}
	next := fn(rec)
	tx.Put(kind, id, next.Status, next.Payload)
	return nil
}

// Remove deletes the entity and reports whether it existed.
func (tx *Txn) Remove(kind, id string) bool {
	_, existed := tx.entities.Delete(treeKey(kind, id))
	if existed {
		tx.change.addEntity(EntityRef{Kind: kind, ID: id, Removed: true})
	}
	return existed
}

// Search returns the search record as seen by the transaction.
func (tx *Txn) Search(kind, key string) (SearchRecord, bool) {
	v, ok := tx.searches.Get(treeKey(kind, key))
	if !ok {
		return SearchRecord{}, false
	}
	return v.(SearchRecord), true
}

// BeginSearch marks the search as pending. Existing ids and cursor are kept
// so a load-more that is already in flight can still append.
func (tx *Txn) BeginSearch(kind, key string) {
	rec, _ := tx.Search(kind, key)
	rec.Status = StatusPending
	tx.putSearch(kind, key, rec)
}

// CompleteSearch stores a page of results. When requestCursor is the cursor
// the stored record ended with, ids are appended (load more). Otherwise they
// replace the stored list: first pages, changed filters and late pages of an
// older generation all take this path and the last write wins.
func (tx *Txn) CompleteSearch(kind, key string, ids []string, cursor, requestCursor string) {
	prev, ok := tx.Search(kind, key)

	var next []string
	if ok && requestCursor != "" && requestCursor == prev.Cursor {
		next = appendUnique(prev.IDs, ids)
	} else {
		next = appendUnique(nil, ids)
	}

	tx.putSearch(kind, key, SearchRecord{Status: StatusFulfilled, IDs: next, Cursor: cursor})
}

// FailSearch marks the search as rejected, keeping the last good page.
func (tx *Txn) FailSearch(kind, key string) {
	rec, _ := tx.Search(kind, key)
	rec.Status = StatusRejected
	tx.putSearch(kind, key, rec)
}

func (tx *Txn) putSearch(kind, key string, rec SearchRecord) {
	tx.searches.Insert(treeKey(kind, key), rec)
	tx.change.addSearch(SearchRef{Kind: kind, Key: key})
}
