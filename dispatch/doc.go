// Package dispatch wraps every request the cache issues to the REST API.
//
// A Pipeline forwards requests to a Transport and, on failure:
//
//  1. runs the challenge-response protocol when the server answers 429 with
//     an x-cf-challenge header: the first registered challenge handler is
//     asked for a solution and the request is retried exactly once with the
//     solution in the x-cf-solution header;
//  2. otherwise classifies the failure into a fixed taxonomy (see ErrorKind)
//     and broadcasts the resulting Message to every error subscriber;
//  3. returns an *Error that unwraps to the transport failure, so callers can
//     still run their own compensation (rollbacks) without re-deriving the
//     user facing message.
//
// Request lifecycle:
//
//	Issued -> Fulfilled
//	Issued -> Rejected
//	Issued -> ChallengeIssued -> Issued (retry) -> Fulfilled | Rejected
//	Issued -> ChallengeIssued -> Rejected (no handler, abandoned)
//
// Every transition is published to OnEvent subscribers.
package dispatch
