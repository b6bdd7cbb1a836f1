package model

import "testing"

func TestVoteOption_Value(t *testing.T) {
	tests := []struct {
		option VoteOption
		want   int
	}{
		{VoteUpvote, 1},
		{VoteDownvote, -1},
		{VoteNone, 0},
		{VoteOption(""), 0},
	}

	for _, tt := range tests {
		if got := tt.option.Value(); got != tt.want {
			t.Errorf("%q.Value() = %d, want %d", tt.option, got, tt.want)
		}
	}
}

func TestIdea_CloneIsDeep(t *testing.T) {
	idea := Idea{ID: "idea-1", TagIDs: []string{"t1"}, Expressions: map[string]int{"👍": 2}}

	clone := idea.Clone()
	clone.TagIDs[0] = "changed"
	clone.Expressions["👍"] = 3

	if idea.TagIDs[0] != "t1" {
		t.Errorf("clone shares tag ids: %v", idea.TagIDs)
	}
	if idea.Expressions["👍"] != 2 {
		t.Errorf("clone shares expressions: %v", idea.Expressions)
	}
	if (Idea{}).Clone().Expressions != nil {
		t.Error("clone of nil expressions should stay nil")
	}
}
