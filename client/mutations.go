package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/goliatone/go-entity-cache/model"
	"github.com/goliatone/go-entity-cache/transportcache"
)

// VoteUpdate changes the caller's vote, funding or expressions on an idea.
// The idea's tallies move before the request is sent. A rejection restores
// them and the vote record to prev; a confirmation stores the server's idea.
// prev must be the caller's vote immediately before this update.
func (c *Client) VoteUpdate(ctx context.Context, ideaID string, update model.VoteUpdate, prev model.Vote) (model.VoteUpdateResponse, error) {
	req := c.request("ideaVoteUpdate", http.MethodPatch, "/idea/"+url.PathEscape(ideaID)+"/vote", update)
	ctx = transportcache.WithInvalidation(ctx, "/balance")

	return c.engine.Vote(ctx, ideaID, update, prev, func(ctx context.Context) (model.VoteUpdateResponse, error) {
		return dispatch.Do[model.VoteUpdateResponse](ctx, c.pipeline, req)
	})
}

// CreateComment posts a comment. Comment counters move only once the server
// confirms the creation.
func (c *Client) CreateComment(ctx context.Context, ideaID string, create model.CommentCreate) (model.Comment, error) {
	req := c.request("commentCreate", http.MethodPost, "/idea/"+url.PathEscape(ideaID)+"/comment", create)
	ctx = transportcache.WithInvalidation(ctx, "/comment")

	comment, err := dispatch.Do[model.Comment](ctx, c.pipeline, req)
	if err != nil {
		return model.Comment{}, err
	}
	if comment.IdeaID == "" {
		comment.IdeaID = ideaID
	}
	if comment.ParentID == "" {
		comment.ParentID = create.ParentCommentID
	}
	c.engine.CommentCreated(comment)
	return comment, nil
}

// DeleteIdea deletes an idea and drops it from the store once confirmed.
func (c *Client) DeleteIdea(ctx context.Context, ideaID string) error {
	req := c.request("ideaDelete", http.MethodDelete, "/idea/"+url.PathEscape(ideaID), nil)
	ctx = transportcache.WithInvalidation(ctx, "/comment")

	if _, err := c.pipeline.Dispatch(ctx, req); err != nil {
		return err
	}
	c.engine.IdeaDeleted(ideaID)
	return nil
}

// DeleteComment deletes a comment and drops it from the store once confirmed.
func (c *Client) DeleteComment(ctx context.Context, ideaID, commentID string) error {
	req := c.request("commentDelete", http.MethodDelete, "/idea/"+url.PathEscape(ideaID)+"/comment/"+url.PathEscape(commentID), nil)
	ctx = transportcache.WithInvalidation(ctx, "/comment")

	if _, err := c.pipeline.Dispatch(ctx, req); err != nil {
		return err
	}
	c.engine.CommentDeleted(commentID)
	return nil
}
