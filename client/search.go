package client

import (
	"context"
	"net/url"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/goliatone/go-entity-cache/model"
	"github.com/goliatone/go-entity-cache/store"
)

// Page is the cached state of a search.
type Page[T any] struct {
	// Known is false when the search was never issued.
	Known  bool
	Status store.Status
	// Items are the fulfilled results in server order. Removed entities are
	// left out.
	Items  []T
	Cursor string
}

// HasMore reports whether LoadMore can fetch another page.
func (p Page[T]) HasMore() bool {
	return p.Cursor != ""
}

type searchMode int

const (
	// searchCached serves a known search from the store.
	searchCached searchMode = iota
	// searchRefresh always fetches the first page and replaces the list.
	searchRefresh
	// searchMore fetches the page after the stored cursor and appends it.
	searchMore
)

type searchPlan[T any] struct {
	kind   string
	key    string
	action string
	path   string
	body   any
	id     func(T) string
}

func (c *Client) ideaSearch(q model.IdeaSearch) searchPlan[model.Idea] {
	return searchPlan[model.Idea]{
		kind:   model.KindIdea,
		key:    cache.SearchKey(q),
		action: "ideaSearch",
		path:   "/idea/search",
		body:   q,
		id:     func(i model.Idea) string { return i.ID },
	}
}

func (c *Client) commentSearch(q model.CommentSearch) searchPlan[model.Comment] {
	return searchPlan[model.Comment]{
		kind:   model.KindComment,
		key:    cache.SearchKey(q),
		action: "commentSearch",
		path:   "/comment/search",
		body:   q,
		id:     func(cm model.Comment) string { return cm.ID },
	}
}

// SearchIdeas returns the cached first pages of q, fetching them on a miss.
// A search that is already in flight is not issued again; its page is
// returned as pending and the result arrives through Subscribe. With
// coalescing enabled the call waits for the in-flight request instead.
func (c *Client) SearchIdeas(ctx context.Context, q model.IdeaSearch) (Page[model.Idea], error) {
	return search(ctx, c, c.ideaSearch(q), searchCached)
}

// RefreshIdeas fetches the first page of q and replaces the cached list.
func (c *Client) RefreshIdeas(ctx context.Context, q model.IdeaSearch) (Page[model.Idea], error) {
	return search(ctx, c, c.ideaSearch(q), searchRefresh)
}

// LoadMoreIdeas fetches the page after the cached cursor of q and appends it.
// It is a no-op when there is no cursor.
func (c *Client) LoadMoreIdeas(ctx context.Context, q model.IdeaSearch) (Page[model.Idea], error) {
	return search(ctx, c, c.ideaSearch(q), searchMore)
}

// IdeaPage reads the cached state of q without touching the network.
func (c *Client) IdeaPage(q model.IdeaSearch) Page[model.Idea] {
	return pageOf[model.Idea](c.store.Snapshot(), model.KindIdea, cache.SearchKey(q))
}

// SearchComments is SearchIdeas for comments.
func (c *Client) SearchComments(ctx context.Context, q model.CommentSearch) (Page[model.Comment], error) {
	return search(ctx, c, c.commentSearch(q), searchCached)
}

// RefreshComments is RefreshIdeas for comments.
func (c *Client) RefreshComments(ctx context.Context, q model.CommentSearch) (Page[model.Comment], error) {
	return search(ctx, c, c.commentSearch(q), searchRefresh)
}

// LoadMoreComments is LoadMoreIdeas for comments.
func (c *Client) LoadMoreComments(ctx context.Context, q model.CommentSearch) (Page[model.Comment], error) {
	return search(ctx, c, c.commentSearch(q), searchMore)
}

// CommentPage reads the cached state of q without touching the network.
func (c *Client) CommentPage(q model.CommentSearch) Page[model.Comment] {
	return pageOf[model.Comment](c.store.Snapshot(), model.KindComment, cache.SearchKey(q))
}

func search[T any](ctx context.Context, c *Client, s searchPlan[T], mode searchMode) (Page[T], error) {
	rec, known := c.store.Search(s.kind, s.key)

	requestCursor := ""
	switch mode {
	case searchCached:
		if known && rec.Status != store.StatusRejected {
			joinable := rec.Status == store.StatusPending && c.coalesce
			if !joinable {
				c.metrics.ObserveSearch(s.kind, "hit")
				return pageOf[T](c.store.Snapshot(), s.kind, s.key), nil
			}
		}
	case searchMore:
		if !known || rec.Cursor == "" {
			return pageOf[T](c.store.Snapshot(), s.kind, s.key), nil
		}
		requestCursor = rec.Cursor
	}

	c.metrics.ObserveSearch(s.kind, "miss")
	flightKey := "search\x00" + s.kind + "\x00" + s.key + "\x00" + requestCursor
	_, err := c.share(ctx, flightKey, func(ctx context.Context) (any, error) {
		return nil, fetchSearch(ctx, c, s, requestCursor)
	})
	return pageOf[T](c.store.Snapshot(), s.kind, s.key), err
}

func fetchSearch[T any](ctx context.Context, c *Client, s searchPlan[T], requestCursor string) error {
	c.store.BeginSearch(s.kind, s.key)

	req := c.readRequest(s.action, s.path, s.body)
	if requestCursor != "" {
		if req.Query == nil {
			req.Query = url.Values{}
		}
		req.Query.Set("cursor", requestCursor)
	}

	resp, err := dispatch.Do[model.SearchResponse[T]](ctx, c.pipeline, req)
	if err != nil {
		c.store.FailSearch(s.kind, s.key)
		c.logger.WithField("kind", s.kind).WithField("key", s.key).WithError(err).Debug("search failed")
		return err
	}

	return c.store.Update(func(tx *store.Txn) error {
		ids := make([]string, 0, len(resp.Results))
		for _, item := range resp.Results {
			id := s.id(item)
			if id == "" {
				continue
			}
			tx.Put(s.kind, id, store.StatusFulfilled, item)
			ids = append(ids, id)
		}
		tx.CompleteSearch(s.kind, s.key, ids, resp.Cursor, requestCursor)
		return nil
	})
}

func pageOf[T any](snap *store.Snapshot, kind, key string) Page[T] {
	rec, ok := snap.Search(kind, key)
	if !ok {
		return Page[T]{}
	}
	return Page[T]{
		Known:  true,
		Status: rec.Status,
		Items:  store.ResultPayloads[T](snap, kind, key),
		Cursor: rec.Cursor,
	}
}
