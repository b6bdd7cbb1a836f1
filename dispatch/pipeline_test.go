package dispatch

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// scriptedTransport replies with the queued results in order and records the
// requests it saw.
type scriptedTransport struct {
	mu       sync.Mutex
	replies  []reply
	requests []*Request
}

type reply struct {
	resp *Response
	err  error
}

func (s *scriptedTransport) Do(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.resp, r.err
}

func (s *scriptedTransport) calls() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.requests...)
}

func ok(body string) reply {
	return reply{resp: &Response{Status: http.StatusOK, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(body)}}
}

func status(code int, header http.Header, body string) reply {
	resp := &Response{Status: code, Header: header, Body: []byte(body)}
	if header == nil {
		resp.Header = http.Header{}
	}
	return reply{resp: resp, err: &ResponseError{Response: resp}}
}

func challengeReply(raw string) reply {
	h := http.Header{}
	h.Set(HeaderChallenge, raw)
	return status(http.StatusTooManyRequests, h, "")
}

func collect(p *Pipeline) func() []Message {
	var mu sync.Mutex
	var got []Message
	p.OnError(func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	return func() []Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]Message(nil), got...)
	}
}

// onlyMessage fails unless exactly one message was broadcast.
func onlyMessage(t *testing.T, messages []Message) Message {
	t.Helper()
	if len(messages) != 1 {
		t.Fatalf("expected one broadcast, got %d: %+v", len(messages), messages)
	}
	return messages[0]
}

func voteRequest() *Request {
	return &Request{Action: "ideaVoteUpdate", Method: http.MethodPatch, Path: "/idea/idea-1/vote", Body: map[string]any{"vote": "Upvote"}}
}

func TestPipeline_Success(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{ok(`{"ideaId":"idea-1"}`)}}
	p := New(transport)
	messages := collect(p)

	type idea struct {
		ID string `json:"ideaId"`
	}
	out, err := Do[idea](context.Background(), p, voteRequest())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out.ID != "idea-1" {
		t.Errorf("expected idea-1, got %q", out.ID)
	}
	if got := messages(); len(got) != 0 {
		t.Errorf("success broadcast errors: %+v", got)
	}
}

func TestPipeline_ChallengeSolvedAndRetriedOnce(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{
		challengeReply(`{"version":"RECAPTCHA_V2","challenge":"sitekey123"}`),
		ok(`{}`),
	}}
	p := New(transport)
	messages := collect(p)

	var seen []Challenge
	p.OnChallenge(func(_ context.Context, c Challenge) (string, error) {
		seen = append(seen, c)
		return "sol", nil
	})

	if _, err := p.Dispatch(context.Background(), voteRequest()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	want := Challenge{Version: "RECAPTCHA_V2", Challenge: "sitekey123", Action: "ideaVoteUpdate"}
	if len(seen) != 1 || seen[0] != want {
		t.Fatalf("expected handler called once with %+v, got %+v", want, seen)
	}

	calls := transport.calls()
	if len(calls) != 2 {
		t.Fatalf("expected two requests, got %d", len(calls))
	}
	if got := calls[0].Header.Get(HeaderSolution); got != "" {
		t.Errorf("first request carried a solution %q", got)
	}
	if got := calls[1].Header.Get(HeaderSolution); got != "sol" {
		t.Errorf("retry solution = %q, want sol", got)
	}
	if calls[0].Path != calls[1].Path || !reflect.DeepEqual(calls[0].Body, calls[1].Body) {
		t.Errorf("retry differs from the original request: %+v vs %+v", calls[0], calls[1])
	}
	if got := messages(); len(got) != 0 {
		t.Errorf("solved challenge broadcast errors: %+v", got)
	}
}

func TestPipeline_ChallengeOnRetryIsNotRetriedAgain(t *testing.T) {
	raw := `{"version":"RECAPTCHA_V2","challenge":"sitekey123"}`
	transport := &scriptedTransport{replies: []reply{challengeReply(raw), challengeReply(raw)}}
	p := New(transport)
	messages := collect(p)

	handled := 0
	p.OnChallenge(func(context.Context, Challenge) (string, error) {
		handled++
		return "sol", nil
	})

	_, err := p.Dispatch(context.Background(), voteRequest())
	if err == nil {
		t.Fatal("expected the second challenge to fail the request")
	}
	if handled != 1 {
		t.Errorf("expected handler called once, got %d", handled)
	}
	if n := len(transport.calls()); n != 2 {
		t.Errorf("expected two requests, got %d", n)
	}

	if got := onlyMessage(t, messages()); got.Text != "429 failed idea vote update" {
		t.Errorf("unexpected message %q", got.Text)
	}
	if StatusOf(err) != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", StatusOf(err))
	}
}

func TestPipeline_OnlyFirstChallengeHandlerIsConsulted(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{
		challengeReply(`{"version":"V","challenge":"c"}`),
		ok(`{}`),
	}}
	p := New(transport)

	var order []string
	unsubscribe := p.OnChallenge(func(context.Context, Challenge) (string, error) {
		order = append(order, "first")
		return "one", nil
	})
	p.OnChallenge(func(context.Context, Challenge) (string, error) {
		order = append(order, "second")
		return "two", nil
	})
	unsubscribe()

	if _, err := p.Dispatch(context.Background(), voteRequest()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"second"}) {
		t.Errorf("expected only the second handler, got %v", order)
	}
	if got := transport.calls()[1].Header.Get(HeaderSolution); got != "two" {
		t.Errorf("retry solution = %q, want two", got)
	}
}

func TestPipeline_ChallengeWithoutHandler(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{challengeReply(`{"version":"V","challenge":"c"}`)}}
	p := New(transport)
	messages := collect(p)

	_, err := p.Dispatch(context.Background(), voteRequest())
	if !errors.Is(err, ErrNoChallengeHandler) {
		t.Fatalf("expected ErrNoChallengeHandler, got %v", err)
	}
	if n := len(transport.calls()); n != 1 {
		t.Errorf("expected no retry, got %d requests", n)
	}

	got := onlyMessage(t, messages())
	if got.Text != MessageChallengeUnavailable || !got.UserFacing {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestPipeline_ChallengeAbandoned(t *testing.T) {
	tests := []struct {
		name    string
		handler ChallengeHandler
	}{
		{
			name: "empty solution",
			handler: func(context.Context, Challenge) (string, error) {
				return "", nil
			},
		},
		{
			name: "handler error",
			handler: func(context.Context, Challenge) (string, error) {
				return "", errors.New("closed by user")
			},
		},
		{
			name: "handler panic",
			handler: func(context.Context, Challenge) (string, error) {
				panic("widget crashed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &scriptedTransport{replies: []reply{challengeReply(`{"version":"V","challenge":"c"}`)}}
			p := New(transport)
			messages := collect(p)
			p.OnChallenge(tt.handler)

			_, err := p.Dispatch(context.Background(), voteRequest())
			if !errors.Is(err, ErrChallengeAbandoned) {
				t.Fatalf("expected ErrChallengeAbandoned, got %v", err)
			}

			var dispatchErr *Error
			if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindChallengeAbandoned {
				t.Errorf("expected abandoned *Error, got %#v", err)
			}
			if n := len(transport.calls()); n != 1 {
				t.Errorf("expected no retry, got %d requests", n)
			}
			if got := messages(); len(got) != 0 {
				t.Errorf("abandonment broadcast errors: %+v", got)
			}
		})
	}
}

func TestPipeline_ChallengeTimeout(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{challengeReply(`{"version":"V","challenge":"c"}`)}}
	p := New(transport, WithChallengeTimeout(20*time.Millisecond))

	p.OnChallenge(func(ctx context.Context, _ Challenge) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := p.Dispatch(context.Background(), voteRequest())
	if !errors.Is(err, ErrChallengeAbandoned) {
		t.Errorf("expected ErrChallengeAbandoned, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the deadline as cause, got %v", err)
	}
}

func TestPipeline_MalformedChallengeHeader(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{challengeReply(`not json`)}}
	p := New(transport)
	messages := collect(p)

	called := false
	p.OnChallenge(func(context.Context, Challenge) (string, error) {
		called = true
		return "sol", nil
	})

	if _, err := p.Dispatch(context.Background(), voteRequest()); err == nil {
		t.Fatal("expected an error")
	}
	if called {
		t.Error("handler ran for an unreadable challenge")
	}

	got := onlyMessage(t, messages())
	if got.Text != MessageUnknown || got.Kind != KindUnknown {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestPipeline_ErrorTaxonomy(t *testing.T) {
	jsonHeader := http.Header{"Content-Type": {"application/json"}}

	tests := []struct {
		name       string
		reply      reply
		want       string
		kind       ErrorKind
		userFacing bool
	}{
		{
			name:       "forbidden",
			reply:      status(http.StatusForbidden, nil, ""),
			want:       MessageForbidden,
			kind:       KindForbidden,
			userFacing: true,
		},
		{
			name:       "forbidden with undeclared text body",
			reply:      status(http.StatusForbidden, nil, "Forbidden"),
			want:       MessageForbidden,
			kind:       KindForbidden,
			userFacing: true,
		},
		{
			name:       "not implemented",
			reply:      status(http.StatusNotImplemented, nil, ""),
			want:       MessageNotImplemented,
			kind:       KindNotImplemented,
			userFacing: true,
		},
		{
			name:       "server message wins over status",
			reply:      status(http.StatusForbidden, jsonHeader, `{"userFacingMessage":"Insufficient balance"}`),
			want:       "Insufficient balance",
			kind:       KindServerMessage,
			userFacing: true,
		},
		{
			name:       "server message without content type",
			reply:      status(http.StatusBadRequest, nil, `{"userFacingMessage":"Title too long"}`),
			want:       "Title too long",
			kind:       KindServerMessage,
			userFacing: true,
		},
		{
			name:       "non json body is ignored",
			reply:      status(http.StatusBadGateway, http.Header{"Content-Type": {"text/html"}}, `<html>oops</html>`),
			want:       "502 failed idea vote update",
			kind:       KindStatus,
			userFacing: true,
		},
		{
			name:       "undeclared html body is ignored",
			reply:      status(http.StatusBadGateway, nil, `<html>oops</html>`),
			want:       "502 failed idea vote update",
			kind:       KindStatus,
			userFacing: true,
		},
		{
			name:       "malformed json body",
			reply:      status(http.StatusInternalServerError, jsonHeader, `{"userFacingMessage":`),
			want:       MessageUnknown,
			kind:       KindUnknown,
			userFacing: true,
		},
		{
			name:       "json body without message",
			reply:      status(http.StatusNotFound, jsonHeader, `{"code":"NOT_FOUND"}`),
			want:       "404 failed idea vote update",
			kind:       KindStatus,
			userFacing: true,
		},
		{
			name:       "redirect",
			reply:      status(http.StatusFound, nil, ""),
			want:       "302 failed idea vote update",
			kind:       KindStatus,
			userFacing: true,
		},
		{
			name:       "unexpected informational status",
			reply:      status(http.StatusContinue, nil, ""),
			want:       "Failed idea vote update",
			kind:       KindUnexpectedStatus,
			userFacing: false,
		},
		{
			name:       "too many requests without challenge",
			reply:      status(http.StatusTooManyRequests, nil, ""),
			want:       "429 failed idea vote update",
			kind:       KindStatus,
			userFacing: true,
		},
		{
			name:       "connection failure",
			reply:      reply{err: errors.New("dial tcp: connection refused")},
			want:       "Connection failure processing idea vote update",
			kind:       KindConnection,
			userFacing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &scriptedTransport{replies: []reply{tt.reply}}
			p := New(transport)
			messages := collect(p)

			_, err := p.Dispatch(context.Background(), voteRequest())
			var dispatchErr *Error
			if !errors.As(err, &dispatchErr) {
				t.Fatalf("expected *Error, got %#v", err)
			}
			if dispatchErr.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", dispatchErr.Kind, tt.kind)
			}

			got := onlyMessage(t, messages())
			if got.Text != tt.want {
				t.Errorf("text = %q, want %q", got.Text, tt.want)
			}
			if got.UserFacing != tt.userFacing {
				t.Errorf("user facing = %v, want %v", got.UserFacing, tt.userFacing)
			}
			if got.Action != "ideaVoteUpdate" {
				t.Errorf("action = %q", got.Action)
			}
		})
	}
}

func TestPipeline_UndecodableSuccessBody(t *testing.T) {
	tests := map[string]string{
		"truncated json": `[1,2`,
		"array":          `[1,2]`,
		"plain text":     `all good`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			transport := &scriptedTransport{replies: []reply{ok(body)}}
			p := New(transport)
			messages := collect(p)

			_, err := Do[map[string]any](context.Background(), p, voteRequest())
			var dispatchErr *Error
			if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindUnexpectedStatus {
				t.Fatalf("expected unexpected-status *Error, got %#v", err)
			}

			got := onlyMessage(t, messages())
			if got.Text != "Failed idea vote update" {
				t.Errorf("text = %q, want %q", got.Text, "Failed idea vote update")
			}
			if got.UserFacing {
				t.Error("decode failures must not be user facing")
			}
		})
	}
}

func TestPipeline_EveryErrorSubscriberIsNotified(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{status(http.StatusForbidden, nil, "")}}
	p := New(transport)

	first := collect(p)
	p.OnError(func(Message) { panic("broken subscriber") })
	second := collect(p)

	if _, err := p.Dispatch(context.Background(), voteRequest()); err == nil {
		t.Fatal("expected an error")
	}
	if len(first()) != 1 || len(second()) != 1 {
		t.Errorf("expected both subscribers notified, got %d and %d", len(first()), len(second()))
	}
}

func TestPipeline_UnobservedErrorIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	transport := &scriptedTransport{replies: []reply{status(http.StatusForbidden, nil, "")}}
	p := New(transport, WithLogger(logger))

	if _, err := p.Dispatch(context.Background(), voteRequest()); err == nil {
		t.Fatal("expected an error")
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "no error subscribers" && entry.Data["message"] == MessageForbidden {
			found = true
		}
	}
	if !found {
		t.Error("expected the unobserved error to be logged")
	}
}

func TestPipeline_Events(t *testing.T) {
	transport := &scriptedTransport{replies: []reply{
		challengeReply(`{"version":"V","challenge":"c"}`),
		ok(`{}`),
	}}
	p := New(transport)
	p.OnChallenge(func(context.Context, Challenge) (string, error) { return "sol", nil })

	var phases []string
	p.OnEvent(func(ev Event) {
		label := ev.Phase.String()
		if ev.Retry {
			label += "(retry)"
		}
		phases = append(phases, label)
	})

	if _, err := p.Dispatch(context.Background(), voteRequest()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []string{"issued", "challenge_issued", "issued(retry)", "fulfilled(retry)"}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"ideaVoteUpdate":    "idea vote update",
		"commentCreate":     "comment create",
		"idea-vote_update":  "idea vote update",
		"ideaSearchAdmin":   "idea search admin",
		"userSSOLogin":      "user sso login",
		"":                  "request",
		"configGetAndUser2": "config get and user2",
	}
	for in, want := range tests {
		if got := humanize(in); got != want {
			t.Errorf("humanize(%q) = %q, want %q", in, got, want)
		}
	}
}
