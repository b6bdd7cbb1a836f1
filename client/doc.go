// Package client is the entry point of the entity cache. A Client composes
// the entity store, the optimistic engine and the dispatch pipeline behind
// read-through accessors and mutations.
//
// Reads go to the store first and reach the network only on a miss:
//
//	page, err := c.SearchIdeas(ctx, model.IdeaSearch{SortBy: "new"})
//	more, err := c.LoadMoreIdeas(ctx, model.IdeaSearch{SortBy: "new"})
//
// Mutations update the store before the request is sent and reconcile once
// it settles:
//
//	prev := c.CurrentVote(ideaID)
//	_, err := c.VoteUpdate(ctx, ideaID, model.VoteUpdate{Vote: model.Ptr(model.VoteUpvote)}, prev)
//
// UIs render from Snapshot and re-render on Subscribe. Failures are
// broadcast once to OnError subscribers and also returned to the caller.
package client
