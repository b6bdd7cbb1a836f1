package optimistic

import (
	"reflect"
	"testing"

	"github.com/goliatone/go-entity-cache/model"
)

func baseIdea() model.Idea {
	return model.Idea{
		ID:           "idea-1",
		VoteValue:    5,
		Funded:       300,
		FundersCount: 2,
		Expressions:  map[string]int{"👍": 3, "❤️": 1},
	}
}

func TestComputeDelta_Fund(t *testing.T) {
	tests := []struct {
		name        string
		prev        int64
		diff        int64
		wantFunders int
	}{
		{name: "first funding adds a funder", prev: 0, diff: 50, wantFunders: 1},
		{name: "more funding keeps the funder", prev: 50, diff: 25, wantFunders: 0},
		{name: "withdrawing everything removes the funder", prev: 50, diff: -50, wantFunders: -1},
		{name: "partial withdrawal keeps the funder", prev: 50, diff: -10, wantFunders: 0},
		{name: "zero diff", prev: 0, diff: 0, wantFunders: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ComputeDelta(model.Vote{FundAmount: tt.prev}, model.VoteUpdate{FundDiff: model.Ptr(tt.diff)})
			if d.Funded != tt.diff {
				t.Errorf("expected funded delta %d, got %d", tt.diff, d.Funded)
			}
			if d.FundersCount != tt.wantFunders {
				t.Errorf("expected funders delta %d, got %d", tt.wantFunders, d.FundersCount)
			}
		})
	}
}

func TestComputeDelta_Vote(t *testing.T) {
	tests := []struct {
		prev model.VoteOption
		next model.VoteOption
		want int
	}{
		{prev: "", next: model.VoteUpvote, want: 1},
		{prev: model.VoteNone, next: model.VoteDownvote, want: -1},
		{prev: model.VoteUpvote, next: model.VoteDownvote, want: -2},
		{prev: model.VoteDownvote, next: model.VoteUpvote, want: 2},
		{prev: model.VoteUpvote, next: model.VoteNone, want: -1},
		{prev: model.VoteUpvote, next: model.VoteUpvote, want: 0},
	}

	for _, tt := range tests {
		d := ComputeDelta(model.Vote{Vote: tt.prev}, model.VoteUpdate{Vote: model.Ptr(tt.next)})
		if d.VoteValue != tt.want {
			t.Errorf("%q -> %q: expected vote delta %d, got %d", tt.prev, tt.next, tt.want, d.VoteValue)
		}
	}
}

func TestComputeDelta_Expressions(t *testing.T) {
	prev := model.Vote{Expression: []string{"👍", "🎉"}}

	tests := []struct {
		name   string
		update model.ExpressionUpdate
		want   map[string]int
		next   []string
	}{
		{
			name:   "set replaces the whole set",
			update: model.ExpressionUpdate{Action: model.ExpressionSet, Expression: "❤️"},
			want:   map[string]int{"❤️": 1, "👍": -1, "🎉": -1},
			next:   []string{"❤️"},
		},
		{
			name:   "set to a held expression drops the others",
			update: model.ExpressionUpdate{Action: model.ExpressionSet, Expression: "👍"},
			want:   map[string]int{"🎉": -1},
			next:   []string{"👍"},
		},
		{
			name:   "unset clears",
			update: model.ExpressionUpdate{Action: model.ExpressionUnset},
			want:   map[string]int{"👍": -1, "🎉": -1},
			next:   nil,
		},
		{
			name:   "add new",
			update: model.ExpressionUpdate{Action: model.ExpressionAdd, Expression: "❤️"},
			want:   map[string]int{"❤️": 1},
			next:   []string{"👍", "🎉", "❤️"},
		},
		{
			name:   "add held is a no-op",
			update: model.ExpressionUpdate{Action: model.ExpressionAdd, Expression: "👍"},
			want:   nil,
			next:   []string{"👍", "🎉"},
		},
		{
			name:   "remove held",
			update: model.ExpressionUpdate{Action: model.ExpressionRemove, Expression: "🎉"},
			want:   map[string]int{"🎉": -1},
			next:   []string{"👍"},
		},
		{
			name:   "remove missing is a no-op",
			update: model.ExpressionUpdate{Action: model.ExpressionRemove, Expression: "❤️"},
			want:   nil,
			next:   []string{"👍", "🎉"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update := model.VoteUpdate{Expressions: &tt.update}
			d := ComputeDelta(prev, update)
			if !reflect.DeepEqual(d.Expressions, tt.want) {
				t.Errorf("expected expression delta %v, got %v", tt.want, d.Expressions)
			}
			if next := NextVote(prev, update).Expression; !reflect.DeepEqual(next, tt.next) {
				t.Errorf("expected next expressions %v, got %v", tt.next, next)
			}
		})
	}
}

func TestDelta_InversionRestoresIdea(t *testing.T) {
	prevs := []model.Vote{
		{},
		{Vote: model.VoteUpvote, FundAmount: 40, Expression: []string{"👍"}},
		{Vote: model.VoteDownvote, Expression: []string{"👍", "❤️"}},
	}
	updates := []model.VoteUpdate{
		{Vote: model.Ptr(model.VoteUpvote)},
		{Vote: model.Ptr(model.VoteDownvote)},
		{Vote: model.Ptr(model.VoteNone)},
		{FundDiff: model.Ptr[int64](25)},
		{FundDiff: model.Ptr[int64](-40)},
		{Expressions: &model.ExpressionUpdate{Action: model.ExpressionSet, Expression: "🎉"}},
		{Expressions: &model.ExpressionUpdate{Action: model.ExpressionUnset}},
		{Expressions: &model.ExpressionUpdate{Action: model.ExpressionAdd, Expression: "❤️"}},
		{Expressions: &model.ExpressionUpdate{Action: model.ExpressionRemove, Expression: "👍"}},
		{
			Vote:        model.Ptr(model.VoteUpvote),
			FundDiff:    model.Ptr[int64](10),
			Expressions: &model.ExpressionUpdate{Action: model.ExpressionAdd, Expression: "🚀"},
		},
	}

	for _, prev := range prevs {
		for _, update := range updates {
			idea := baseIdea()
			d := ComputeDelta(prev, update)

			forward := d.Apply(idea, 1)
			if back := d.Apply(forward, -1); !reflect.DeepEqual(back, idea) {
				t.Errorf("prev %+v update %+v: inverse apply gave %+v", prev, update, back)
			}
			if back := d.Invert().Apply(forward, 1); !reflect.DeepEqual(back, idea) {
				t.Errorf("prev %+v update %+v: inverted delta gave %+v", prev, update, back)
			}
		}
	}
}

func TestDelta_ApplyDoesNotShareState(t *testing.T) {
	idea := baseIdea()
	d := ComputeDelta(model.Vote{}, model.VoteUpdate{
		Expressions: &model.ExpressionUpdate{Action: model.ExpressionAdd, Expression: "👍"},
	})

	forward := d.Apply(idea, 1)
	if got := forward.Expressions["👍"]; got != 4 {
		t.Errorf("expected 4 after apply, got %d", got)
	}
	if got := idea.Expressions["👍"]; got != 3 {
		t.Errorf("original idea changed to %d", got)
	}
}

func TestDelta_NewExpressionOnEmptyIdea(t *testing.T) {
	idea := model.Idea{ID: "idea-1"}
	d := ComputeDelta(model.Vote{}, model.VoteUpdate{
		Expressions: &model.ExpressionUpdate{Action: model.ExpressionAdd, Expression: "👍"},
	})

	forward := d.Apply(idea, 1)
	if !reflect.DeepEqual(forward.Expressions, map[string]int{"👍": 1}) {
		t.Errorf("unexpected expressions %v", forward.Expressions)
	}
	if back := d.Apply(forward, -1); !reflect.DeepEqual(back, idea) {
		t.Errorf("inverse left residue: %+v", back)
	}
	if d.IsZero() {
		t.Error("expression delta reported as zero")
	}
	if !(Delta{}).IsZero() {
		t.Error("empty delta should be zero")
	}
}
