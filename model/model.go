// Package model holds the payload shapes the cache stores and the REST API
// exchanges: ideas, comments, users and the caller's own votes.
package model

import (
	"slices"
	"time"
)

// Entity kinds as stored in the entity store.
const (
	KindIdea    = "idea"
	KindComment = "comment"
	KindUser    = "user"
	// KindVote holds the caller's own vote per idea, keyed by idea id.
	KindVote = "vote"
	// KindBalance holds the caller's credit balance under BalanceID.
	KindBalance = "balance"
)

// BalanceID is the entity id of the caller's balance record.
const BalanceID = "me"

// Idea is a post on the feedback board. VoteValue, Funded, FundersCount and
// Expressions are denormalized tallies the server maintains.
type Idea struct {
	ID                string         `json:"ideaId"`
	ProjectID         string         `json:"projectId"`
	AuthorUserID      string         `json:"authorUserId"`
	Created           time.Time      `json:"created"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	CategoryID        string         `json:"categoryId,omitempty"`
	StatusID          string         `json:"statusId,omitempty"`
	TagIDs            []string       `json:"tagIds,omitempty"`
	CommentCount      int            `json:"commentCount"`
	ChildCommentCount int            `json:"childCommentCount"`
	Funded            int64          `json:"funded"`
	FundGoal          int64          `json:"fundGoal,omitempty"`
	FundersCount      int            `json:"fundersCount"`
	VoteValue         int            `json:"voteValue"`
	Expressions       map[string]int `json:"expressions,omitempty"`
}

// Clone returns a deep copy so callers can modify tallies without touching a
// record another snapshot still references.
func (i Idea) Clone() Idea {
	out := i
	out.TagIDs = slices.Clone(i.TagIDs)
	if i.Expressions != nil {
		out.Expressions = make(map[string]int, len(i.Expressions))
		for k, v := range i.Expressions {
			out.Expressions[k] = v
		}
	}
	return out
}

// Comment belongs to an idea and optionally replies to another comment.
type Comment struct {
	ID                string    `json:"commentId"`
	IdeaID            string    `json:"ideaId"`
	ParentID          string    `json:"parentCommentId,omitempty"`
	AuthorUserID      string    `json:"authorUserId,omitempty"`
	Created           time.Time `json:"created"`
	Content           string    `json:"content,omitempty"`
	ChildCommentCount int       `json:"childCommentCount"`
	VoteValue         int       `json:"voteValue"`
}

// User is a board member.
type User struct {
	ID    string `json:"userId"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Balance is the caller's credit balance used for funding.
type Balance struct {
	Balance int64 `json:"balance"`
}

// VoteOption is a single up/down vote.
type VoteOption string

const (
	VoteNone     VoteOption = "None"
	VoteUpvote   VoteOption = "Upvote"
	VoteDownvote VoteOption = "Downvote"
)

// Value maps the option onto its contribution to Idea.VoteValue.
func (v VoteOption) Value() int {
	switch v {
	case VoteUpvote:
		return 1
	case VoteDownvote:
		return -1
	default:
		return 0
	}
}

// ExpressionAction selects how an expression update edits the caller's set.
type ExpressionAction string

const (
	ExpressionSet    ExpressionAction = "Set"
	ExpressionUnset  ExpressionAction = "Unset"
	ExpressionAdd    ExpressionAction = "Add"
	ExpressionRemove ExpressionAction = "Remove"
)

// Vote is the caller's own vote on an idea.
type Vote struct {
	Vote       VoteOption `json:"vote,omitempty"`
	Expression []string   `json:"expression,omitempty"`
	FundAmount int64      `json:"fundAmount,omitempty"`
}

// ExpressionUpdate edits the caller's expression set.
type ExpressionUpdate struct {
	Action     ExpressionAction `json:"action"`
	Expression string           `json:"expression,omitempty"`
}

// VoteUpdate is the body of the vote mutation. nil fields leave that part of
// the vote untouched.
type VoteUpdate struct {
	FundDiff    *int64            `json:"fundDiff,omitempty"`
	Vote        *VoteOption       `json:"vote,omitempty"`
	Expressions *ExpressionUpdate `json:"expressions,omitempty"`
}

// VoteUpdateResponse carries the authoritative state after a vote mutation.
type VoteUpdateResponse struct {
	Vote    Vote     `json:"vote"`
	Idea    Idea     `json:"idea"`
	Balance *Balance `json:"balance,omitempty"`
}

// IdeaSearch is the query of the idea search endpoint.
type IdeaSearch struct {
	SortBy              string   `json:"sortBy,omitempty"`
	FilterCategoryIDs   []string `json:"filterCategoryIds,omitempty"`
	FilterStatusIDs     []string `json:"filterStatusIds,omitempty"`
	FilterTagIDs        []string `json:"filterTagIds,omitempty"`
	FilterAuthorID      string   `json:"filterAuthorId,omitempty"`
	SearchText          string   `json:"searchText,omitempty"`
	FundedByMeAndActive bool     `json:"fundedByMeAndActive,omitempty"`
	Limit               int      `json:"limit,omitempty"`
}

// SearchResponse is one page of search results. An empty Cursor means there
// are no further pages.
type SearchResponse[T any] struct {
	Cursor  string `json:"cursor,omitempty"`
	Results []T    `json:"results"`
}

// IdeaSearchResponse is a page of ideas.
type IdeaSearchResponse = SearchResponse[Idea]

// CommentSearch is the query of the comment search endpoint.
type CommentSearch struct {
	IdeaID   string `json:"ideaId"`
	ParentID string `json:"parentCommentId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// CommentSearchResponse is a page of comments.
type CommentSearchResponse = SearchResponse[Comment]

// CommentCreate is the body of the comment creation mutation.
type CommentCreate struct {
	Content         string `json:"content"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

// Ptr returns a pointer to v, handy for the optional VoteUpdate fields.
func Ptr[T any](v T) *T {
	return &v
}
