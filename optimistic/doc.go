// Package optimistic applies speculative edits to cached ideas while a vote
// mutation is in flight and reconciles them once the server answers.
//
// A vote update changes three denormalized tallies on the idea: the vote
// value, the funded total (with its funder count) and the per-expression
// counters. ComputeDelta derives the adjustment from the caller's previous
// vote and the requested update; Delta.Apply with sign +1 applies it and
// with sign -1 undoes it exactly.
//
// Settlement follows two rules. A rejection replays the delta inverted. A
// confirmation discards the delta and stores the server's idea as is.
//
// Every speculation carries a generation. Inverting counters always happens
// because additive deltas commute, but restoring the caller's vote record or
// overwriting the idea only happens while the settling speculation is still
// the newest one for that idea.
//
// Comment counters are not speculative: CommentCreated rolls them forward
// once the server confirms a creation and nothing ever rolls them back.
package optimistic
