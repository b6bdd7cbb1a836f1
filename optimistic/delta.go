package optimistic

import (
	"maps"
	"slices"

	"github.com/goliatone/go-entity-cache/model"
)

// Delta is the speculative adjustment of one vote update.
type Delta struct {
	Funded       int64
	FundersCount int
	VoteValue    int
	// Expressions holds +1 for every expression the caller gains and -1 for
	// every expression the caller loses.
	Expressions map[string]int
}

// IsZero reports whether applying d changes nothing.
func (d Delta) IsZero() bool {
	return d.Funded == 0 && d.FundersCount == 0 && d.VoteValue == 0 && len(d.Expressions) == 0
}

// ComputeDelta derives the tally adjustment of update relative to prev.
func ComputeDelta(prev model.Vote, update model.VoteUpdate) Delta {
	var d Delta

	if update.FundDiff != nil {
		diff := *update.FundDiff
		before := prev.FundAmount
		after := before + diff
		d.Funded = diff
		switch {
		case before <= 0 && after > 0:
			d.FundersCount = 1
		case before > 0 && after <= 0:
			d.FundersCount = -1
		}
	}

	if update.Vote != nil {
		d.VoteValue = update.Vote.Value() - prev.Vote.Value()
	}

	if update.Expressions != nil {
		added, removed := expressionChanges(prev.Expression, *update.Expressions)
		if len(added)+len(removed) > 0 {
			d.Expressions = make(map[string]int, len(added)+len(removed))
			for _, e := range added {
				d.Expressions[e]++
			}
			for _, e := range removed {
				d.Expressions[e]--
			}
		}
	}

	return d
}

// expressionChanges returns the expressions the update adds to and removes
// from prev.
func expressionChanges(prev []string, update model.ExpressionUpdate) (added, removed []string) {
	has := slices.Contains(prev, update.Expression)

	switch update.Action {
	case model.ExpressionSet:
		if !has && update.Expression != "" {
			added = append(added, update.Expression)
		}
		for _, e := range prev {
			if e != update.Expression {
				removed = append(removed, e)
			}
		}
	case model.ExpressionUnset:
		removed = append(removed, prev...)
	case model.ExpressionAdd:
		if !has && update.Expression != "" {
			added = append(added, update.Expression)
		}
	case model.ExpressionRemove:
		if has {
			removed = append(removed, update.Expression)
		}
	}
	return dedupe(added), dedupe(removed)
}

func dedupe(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, e := range in {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Apply returns a copy of idea adjusted by d times sign. Sign is +1 on issue
// and -1 on rollback. Expression counters that reach zero are dropped so
// that Apply(+1) followed by Apply(-1) yields the original idea.
func (d Delta) Apply(idea model.Idea, sign int) model.Idea {
	out := idea.Clone()
	out.Funded += int64(sign) * d.Funded
	out.FundersCount += sign * d.FundersCount
	out.VoteValue += sign * d.VoteValue

	if len(d.Expressions) > 0 {
		if out.Expressions == nil {
			out.Expressions = make(map[string]int, len(d.Expressions))
		}
		for e, n := range d.Expressions {
			out.Expressions[e] += sign * n
			if out.Expressions[e] == 0 {
				delete(out.Expressions, e)
			}
		}
		if len(out.Expressions) == 0 {
			out.Expressions = nil
		}
	}
	return out
}

// Invert returns the delta that undoes d.
func (d Delta) Invert() Delta {
	out := Delta{
		Funded:       -d.Funded,
		FundersCount: -d.FundersCount,
		VoteValue:    -d.VoteValue,
	}
	if d.Expressions != nil {
		out.Expressions = maps.Clone(d.Expressions)
		for e, n := range out.Expressions {
			out.Expressions[e] = -n
		}
	}
	return out
}

// NextVote returns the caller's vote after update is applied to prev.
func NextVote(prev model.Vote, update model.VoteUpdate) model.Vote {
	next := model.Vote{
		Vote:       prev.Vote,
		Expression: slices.Clone(prev.Expression),
		FundAmount: prev.FundAmount,
	}

	if update.FundDiff != nil {
		next.FundAmount += *update.FundDiff
	}
	if update.Vote != nil {
		next.Vote = *update.Vote
	}
	if update.Expressions != nil {
		added, removed := expressionChanges(prev.Expression, *update.Expressions)
		next.Expression = slices.DeleteFunc(next.Expression, func(e string) bool {
			return slices.Contains(removed, e)
		})
		next.Expression = append(next.Expression, added...)
		if len(next.Expression) == 0 {
			next.Expression = nil
		}
	}
	return next
}
