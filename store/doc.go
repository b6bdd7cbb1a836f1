// Package store is the normalized in-memory cache shared by the UI layer and
// the mutation engine.
//
// It keeps two indexes:
//
//   - the entity store, (kind, id) -> Record{Status, Payload}
//   - the search cache, (kind, canonical search key) -> SearchRecord{Status, IDs, Cursor}
//
// Both live in persistent radix trees. Every write produces a new immutable
// Snapshot that shares structure with the previous one, and the current
// snapshot is published through an atomic pointer: readers never lock and
// never observe a partially applied write. Writers are serialized.
//
// Absence is meaningful. Get reporting ok=false means the entity is not yet
// known; StatusRejected means it is known to have failed to load.
//
// Removing an entity does not scrub the search id lists that mention it.
// Snapshot.Results filters missing entities at read time instead.
//
// Payloads are stored as given and shared between snapshots, so they must be
// treated as immutable: replace, never modify in place.
package store
