package store

// EntityRef identifies an entity touched by a write.
type EntityRef struct {
	Kind    string
	ID      string
	Removed bool
}

// SearchRef identifies a search touched by a write.
type SearchRef struct {
	Kind string
	Key  string
}

// Change describes one committed write. Snapshot is the state right after it.
//
// Listeners run on the writing goroutine after the snapshot is published.
// Concurrent writers may deliver their changes out of order; compare
// Snapshot.Version() when that matters.
type Change struct {
	Entities []EntityRef
	Searches []SearchRef
	Snapshot *Snapshot
}

// Listener receives committed changes.
type Listener func(Change)

func (c *Change) empty() bool {
	return len(c.Entities) == 0 && len(c.Searches) == 0
}

func (c *Change) addEntity(ref EntityRef) {
	for i, e := range c.Entities {
		if e.Kind == ref.Kind && e.ID == ref.ID {
			c.Entities[i] = ref
			return
		}
	}
	c.Entities = append(c.Entities, ref)
}

func (c *Change) addSearch(ref SearchRef) {
	for _, s := range c.Searches {
		if s == ref {
			return
		}
	}
	c.Searches = append(c.Searches, ref)
}

// TouchesEntity reports whether the change wrote the given entity.
func (c Change) TouchesEntity(kind, id string) bool {
	for _, e := range c.Entities {
		if e.Kind == kind && e.ID == id {
			return true
		}
	}
	return false
}

// TouchesSearch reports whether the change wrote the given search.
func (c Change) TouchesSearch(kind, key string) bool {
	for _, s := range c.Searches {
		if s.Kind == kind && s.Key == key {
			return true
		}
	}
	return false
}
