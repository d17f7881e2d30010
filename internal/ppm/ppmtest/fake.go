// Package ppmtest provides an in-memory ppm.API for tests.
package ppmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahmetk3436/ppmchat/internal/ppm"
)

// Call is one recorded request.
type Call struct {
	Method   string
	Endpoint string
	Body     any
}

// Handler answers a request routed to it.
type Handler func(endpoint string, body any) (*ppm.Response, error)

// API routes requests by method and endpoint. An exact endpoint route wins;
// otherwise a route registered for "GET /projects" matches "/projects?limit=5"
// but not "/projects/1".
type API struct {
	mu     sync.Mutex
	routes map[string]Handler
	calls  []Call
}

func New() *API {
	return &API{routes: make(map[string]Handler)}
}

// Handle registers h for method and path.
func (a *API) Handle(method, path string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[method+" "+path] = h
}

// Results registers a GET route returning the given records.
func (a *API) Results(path string, records ...map[string]any) {
	a.Handle("GET", path, func(string, any) (*ppm.Response, error) {
		return &ppm.Response{StatusCode: 200, Results: records, TotalCount: len(records)}, nil
	})
}

// Object registers a GET route returning a single object body.
func (a *API) Object(path string, raw map[string]any) {
	a.Handle("GET", path, func(string, any) (*ppm.Response, error) {
		return &ppm.Response{StatusCode: 200, Raw: raw}, nil
	})
}

// Fail registers a route that always fails with err.
func (a *API) Fail(method, path string, err error) {
	a.Handle(method, path, func(string, any) (*ppm.Response, error) {
		return nil, err
	})
}

func (a *API) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount counts recorded calls, optionally limited to a method.
func (a *API) CallCount(method string) int {
	n := 0
	for _, c := range a.Calls() {
		if method == "" || c.Method == method {
			n++
		}
	}
	return n
}

func (a *API) Get(ctx context.Context, endpoint string) (*ppm.Response, error) {
	return a.serve("GET", endpoint, nil)
}

func (a *API) Post(ctx context.Context, endpoint string, body any) (*ppm.Response, error) {
	return a.serve("POST", endpoint, body)
}

func (a *API) Patch(ctx context.Context, endpoint string, body any) (*ppm.Response, error) {
	return a.serve("PATCH", endpoint, body)
}

func (a *API) Delete(ctx context.Context, endpoint string) (*ppm.Response, error) {
	return a.serve("DELETE", endpoint, nil)
}

func (a *API) serve(method, endpoint string, body any) (*ppm.Response, error) {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	a.mu.Lock()
	a.calls = append(a.calls, Call{Method: method, Endpoint: endpoint, Body: body})
	h, ok := a.routes[method+" "+endpoint]
	if !ok {
		h, ok = a.routes[method+" "+path]
	}
	a.mu.Unlock()

	if !ok {
		return nil, &ppm.RemoteCallError{
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: 404,
			Kind:       ppm.KindNotFound,
			Message:    fmt.Sprintf("no route for %s %s", method, path),
			Attempts:   1,
		}
	}
	return h(endpoint, body)
}
