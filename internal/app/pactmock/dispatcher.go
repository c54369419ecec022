package pactmock

import (
	"github.com/labstack/echo/v4"
)

// handlerFunc responds to an already-normalized request.
type handlerFunc func(c echo.Context, req *ActualRequest) error

// route pairs a side-effect-free predicate with the handler that runs
// when the predicate is the first in the chain to accept the request.
type route struct {
	name    string
	matches func(req *ActualRequest) bool
	respond handlerFunc
}

// dispatcher walks an ordered route chain and selects the first route
// whose predicate accepts the request. The chain ends in a catch-all
// (interaction replay), so selection always succeeds; only the selected
// handler touches any state.
type dispatcher struct {
	routes []route
}

func (d *dispatcher) dispatch(req *ActualRequest) route {
	for _, r := range d.routes[:len(d.routes)-1] {
		if r.matches(req) {
			return r
		}
	}
	return d.routes[len(d.routes)-1]
}

func exactly(method, path string) func(req *ActualRequest) bool {
	return func(req *ActualRequest) bool {
		return req.Method == method && req.Path == path
	}
}

func anyRequest(*ActualRequest) bool {
	return true
}
