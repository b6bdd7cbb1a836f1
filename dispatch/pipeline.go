package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goliatone/go-entity-cache/internal/telemetry"
	"github.com/goliatone/go-entity-cache/subscription"
	"github.com/sirupsen/logrus"
)

// Phase is a request lifecycle transition.
type Phase int

const (
	PhaseIssued Phase = iota
	PhaseChallengeIssued
	PhaseFulfilled
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseIssued:
		return "issued"
	case PhaseChallengeIssued:
		return "challenge_issued"
	case PhaseFulfilled:
		return "fulfilled"
	case PhaseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Event is published for every lifecycle transition.
type Event struct {
	Phase    Phase
	Request  *Request
	Response *Response
	Err      error
	// Retry is set on the events of the post-challenge retry.
	Retry bool
}

// ErrorHandler receives classified failures.
type ErrorHandler func(Message)

// EventHandler receives lifecycle events.
type EventHandler func(Event)

// Pipeline dispatches requests through a Transport.
type Pipeline struct {
	transport        Transport
	errors           *subscription.Registry[ErrorHandler]
	challenges       *subscription.Registry[ChallengeHandler]
	events           *subscription.Registry[EventHandler]
	logger           logrus.FieldLogger
	metrics          *telemetry.Metrics
	challengeTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithChallengeTimeout bounds how long a request waits for a challenge
// solution. Zero waits as long as the request context allows.
func WithChallengeTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.challengeTimeout = d
	}
}

// New returns a pipeline dispatching through transport.
func New(transport Transport, opts ...Option) *Pipeline {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	p := &Pipeline{
		transport:  transport,
		errors:     subscription.New[ErrorHandler](),
		challenges: subscription.New[ChallengeHandler](),
		events:     subscription.New[EventHandler](),
		logger:     discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnError registers an error subscriber. Every subscriber receives every
// classified failure.
func (p *Pipeline) OnError(fn ErrorHandler) func() {
	_, unsubscribe := p.errors.Register(fn)
	return unsubscribe
}

// OnChallenge registers a challenge handler. Only the earliest registered
// handler still subscribed is consulted.
func (p *Pipeline) OnChallenge(fn ChallengeHandler) func() {
	_, unsubscribe := p.challenges.Register(fn)
	return unsubscribe
}

// OnEvent registers a lifecycle subscriber.
func (p *Pipeline) OnEvent(fn EventHandler) func() {
	_, unsubscribe := p.events.Register(fn)
	return unsubscribe
}

// Dispatch sends req and returns the successful response. Failures are
// broadcast to error subscribers and returned as *Error.
func (p *Pipeline) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	return p.dispatch(ctx, req, nil)
}

// Do dispatches req and decodes the JSON response into T. A success response
// that cannot be decoded fails like any other request.
func Do[T any](ctx context.Context, p *Pipeline, req *Request) (T, error) {
	var out T
	_, err := p.dispatch(ctx, req, func(resp *Response) error {
		return resp.Decode(&out)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (p *Pipeline) dispatch(ctx context.Context, req *Request, decode func(*Response) error) (*Response, error) {
	started := time.Now()
	log := p.logger.WithFields(logrus.Fields{
		"action": req.Action,
		"method": req.Method,
		"path":   req.Path,
	})

	resp, err := p.roundTrip(ctx, req, decode, false)
	if err == nil {
		p.metrics.ObserveDispatch(req.Action, "ok", time.Since(started))
		return resp, nil
	}

	challenge, isChallenge, cerr := challengeFrom(err)
	switch {
	case isChallenge && cerr != nil:
		log.WithError(cerr).Warn("unreadable challenge")
		return nil, p.reject(req, unknownError(req.Action, http.StatusTooManyRequests, err), started)

	case isChallenge:
		challenge.Action = req.Action
		p.emit(Event{Phase: PhaseChallengeIssued, Request: req, Err: err})

		handler, ok := p.challenges.First()
		if !ok {
			p.metrics.ObserveChallenge("unavailable")
			log.Warn("challenge received without a registered handler")
			return nil, p.reject(req, &Error{
				Action:     req.Action,
				Status:     http.StatusTooManyRequests,
				Kind:       KindChallengeUnavailable,
				Message:    MessageChallengeUnavailable,
				UserFacing: true,
				Err:        fmt.Errorf("%w: %w", ErrNoChallengeHandler, err),
			}, started)
		}

		solution, serr := p.awaitSolution(ctx, handler, challenge)
		if serr != nil {
			p.metrics.ObserveChallenge("abandoned")
			log.WithError(serr).Info("challenge abandoned")
			failure := &Error{
				Action:  req.Action,
				Status:  http.StatusTooManyRequests,
				Kind:    KindChallengeAbandoned,
				Message: "Challenge abandoned for " + humanize(req.Action),
				Err:     fmt.Errorf("%w: %w", ErrChallengeAbandoned, serr),
			}
			p.emit(Event{Phase: PhaseRejected, Request: req, Err: failure})
			p.metrics.ObserveDispatch(req.Action, string(failure.Kind), time.Since(started))
			return nil, failure
		}
		p.metrics.ObserveChallenge("solved")

		retry := req.Clone()
		if retry.Header == nil {
			retry.Header = http.Header{}
		}
		retry.Header.Set(HeaderSolution, solution)

		resp, err = p.roundTrip(ctx, retry, decode, true)
		if err == nil {
			p.metrics.ObserveDispatch(req.Action, "ok", time.Since(started))
			return resp, nil
		}
		// a second challenge on the retry is an ordinary failure
	}

	failure := classify(req.Action, err)
	log.WithFields(logrus.Fields{
		"status": failure.Status,
		"kind":   failure.Kind,
	}).WithError(err).Debug("request failed")
	return nil, p.reject(req, failure, started)
}

func (p *Pipeline) roundTrip(ctx context.Context, req *Request, decode func(*Response) error, retry bool) (*Response, error) {
	p.emit(Event{Phase: PhaseIssued, Request: req, Retry: retry})

	resp, err := p.transport.Do(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("transport returned no response")
	}
	if err == nil {
		err = CheckStatus(resp)
	}
	if err == nil && decode != nil {
		if derr := decode(resp); derr != nil {
			err = &ResponseError{Response: resp, Err: fmt.Errorf("decode response: %w", derr)}
		}
	}
	if err != nil {
		return nil, err
	}

	p.emit(Event{Phase: PhaseFulfilled, Request: req, Response: resp, Retry: retry})
	return resp, nil
}

// awaitSolution waits for the handler, honoring ctx and the challenge timeout.
func (p *Pipeline) awaitSolution(ctx context.Context, handler ChallengeHandler, challenge Challenge) (string, error) {
	if p.challengeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.challengeTimeout)
		defer cancel()
	}

	type result struct {
		solution string
		err      error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("challenge handler panic: %v", r)}
			}
		}()
		solution, err := handler(ctx, challenge)
		done <- result{solution: solution, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if r.solution == "" {
			return "", ErrChallengeAbandoned
		}
		return r.solution, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// reject broadcasts the failure and publishes the rejection.
func (p *Pipeline) reject(req *Request, failure *Error, started time.Time) error {
	p.broadcast(failure.message())
	p.emit(Event{Phase: PhaseRejected, Request: req, Err: failure})
	p.metrics.ObserveDispatch(req.Action, string(failure.Kind), time.Since(started))
	return failure
}

func (p *Pipeline) broadcast(msg Message) {
	if p.errors.Len() == 0 {
		p.logger.WithFields(logrus.Fields{
			"action":  msg.Action,
			"kind":    msg.Kind,
			"message": msg.Text,
		}).Debug("no error subscribers")
		return
	}
	for _, handler := range p.errors.Values() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.WithField("action", msg.Action).Errorf("error subscriber panic: %v", r)
				}
			}()
			handler(msg)
		}()
	}
}

func (p *Pipeline) emit(ev Event) {
	for _, handler := range p.events.Values() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.WithFields(logrus.Fields{
						"action": ev.Request.Action,
						"phase":  ev.Phase.String(),
					}).Errorf("event subscriber panic: %v", r)
				}
			}()
			handler(ev)
		}()
	}
}
