package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/goliatone/go-entity-cache/dispatch"
)

// Reply is one scripted answer of a FakeTransport.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
	// Err simulates a failure without a response.
	Err error
	// Wait blocks the reply until it is closed or the request context ends.
	Wait <-chan struct{}
}

// JSON replies with status and v encoded as JSON.
func JSON(status int, v any) Reply {
	body, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testsupport: marshal reply: %v", err))
	}
	return Reply{
		Status: status,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   body,
	}
}

// Status replies with an empty body.
func Status(status int) Reply {
	return Reply{Status: status, Header: http.Header{}}
}

// Challenge replies with 429 and a challenge header.
func Challenge(version, challenge string) Reply {
	raw, _ := json.Marshal(map[string]string{"version": version, "challenge": challenge})
	h := http.Header{}
	h.Set(dispatch.HeaderChallenge, string(raw))
	return Reply{Status: http.StatusTooManyRequests, Header: h}
}

// Failure replies with a connection failure.
func Failure(err error) Reply {
	return Reply{Err: err}
}

// FakeTransport is a scripted dispatch.Transport. Replies are queued per
// route ("METHOD /path") and consumed in order; the last reply of a route is
// repeated once the queue is down to one. Every request is recorded.
type FakeTransport struct {
	mu       sync.Mutex
	routes   map[string][]Reply
	requests []*dispatch.Request
}

// NewFakeTransport returns an empty fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{routes: make(map[string][]Reply)}
}

// On queues replies for method and path.
func (f *FakeTransport) On(method, path string, replies ...Reply) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.routes[key] = append(f.routes[key], replies...)
	return f
}

// Requests returns the recorded requests.
func (f *FakeTransport) Requests() []*dispatch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dispatch.Request(nil), f.requests...)
}

// Count returns how many requests hit method and path.
func (f *FakeTransport) Count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Do implements dispatch.Transport.
func (f *FakeTransport) Do(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req.Clone())
	key := req.Method + " " + req.Path
	queue := f.routes[key]
	if len(queue) == 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("testsupport: no reply scripted for %s", key)
	}
	reply := queue[0]
	if len(queue) > 1 {
		f.routes[key] = queue[1:]
	}
	f.mu.Unlock()

	if reply.Wait != nil {
		select {
		case <-reply.Wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	header := reply.Header
	if header == nil {
		header = http.Header{}
	}
	resp := &dispatch.Response{Status: reply.Status, Header: header.Clone(), Body: reply.Body}
	if err := dispatch.CheckStatus(resp); err != nil {
		return resp, err
	}
	return resp, nil
}
