package client

import (
	"context"
	"net/url"

	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/goliatone/go-entity-cache/model"
	"github.com/goliatone/go-entity-cache/store"
)

// GetIdea returns the idea from the store, fetching it unless it is already
// fulfilled.
func (c *Client) GetIdea(ctx context.Context, id string) (model.Idea, error) {
	return fetchEntity[model.Idea](ctx, c, model.KindIdea, id, "ideaGet", "/idea/"+url.PathEscape(id))
}

// GetComment returns the comment from the store, fetching it unless it is
// already fulfilled.
func (c *Client) GetComment(ctx context.Context, id string) (model.Comment, error) {
	return fetchEntity[model.Comment](ctx, c, model.KindComment, id, "commentGet", "/comment/"+url.PathEscape(id))
}

// GetUser returns the user from the store, fetching it unless it is already
// fulfilled.
func (c *Client) GetUser(ctx context.Context, id string) (model.User, error) {
	return fetchEntity[model.User](ctx, c, model.KindUser, id, "userGet", "/user/"+url.PathEscape(id))
}

// GetBalance returns the caller's credit balance.
func (c *Client) GetBalance(ctx context.Context) (model.Balance, error) {
	return fetchEntity[model.Balance](ctx, c, model.KindBalance, model.BalanceID, "balanceGet", "/balance")
}

// CurrentVote returns the caller's cached vote on an idea, or the zero vote.
// It is the natural previous vote to pass to VoteUpdate.
func (c *Client) CurrentVote(ideaID string) model.Vote {
	vote, _ := store.Fulfilled[model.Vote](c.store.Snapshot(), model.KindVote, ideaID)
	return vote
}

// fetchEntity serves kind/id from the store when fulfilled. Otherwise the
// entity is marked pending, keeping any stale payload, and fetched. A failed
// fetch leaves it rejected.
func fetchEntity[T any](ctx context.Context, c *Client, kind, id, action, path string) (T, error) {
	if v, ok := store.Fulfilled[T](c.store.Snapshot(), kind, id); ok {
		c.metrics.ObserveSearch(kind, "hit")
		return v, nil
	}
	c.metrics.ObserveSearch(kind, "miss")

	v, err := c.share(ctx, "entity\x00"+kind+"\x00"+id, func(ctx context.Context) (any, error) {
		_ = c.store.Update(func(tx *store.Txn) error {
			prev, _ := tx.Get(kind, id)
			tx.Put(kind, id, store.StatusPending, prev.Payload)
			return nil
		})

		out, err := dispatch.Do[T](ctx, c.pipeline, c.readRequest(action, path, nil))
		if err != nil {
			c.store.Put(kind, id, store.StatusRejected, nil)
			return nil, err
		}
		c.store.Put(kind, id, store.StatusFulfilled, out)
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
