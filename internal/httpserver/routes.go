package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route is one entry of the guest declaration contract (spec.md §6): an
// HTTP route with method, path, and the handler name the generated guest
// glue exports for it. Route parameters are `{name}` segments, matching
// chi's own pattern syntax exactly.
type Route struct {
	Method      string
	Pattern     string
	HandlerName string
}

// RouteTable matches an inbound request against the ordered route list a
// guest declared, using chi's radix-tree matcher for the `{name}` segment
// syntax spec.md §6 specifies. The guest!/runtime! code generators
// (out of scope per spec.md §1) are what actually produce a guest's
// route list; RouteTable is the piece of the core that dispatches
// against it once built.
type RouteTable struct {
	router    chi.Router
	byPattern map[string]Route
}

// NewRouteTable builds a RouteTable from an ordered route list.
func NewRouteTable(routes []Route) *RouteTable {
	t := &RouteTable{router: chi.NewRouter(), byPattern: make(map[string]Route, len(routes))}
	for _, r := range routes {
		t.byPattern[r.Method+" "+r.Pattern] = r
		t.router.MethodFunc(r.Method, r.Pattern, func(http.ResponseWriter, *http.Request) {})
	}
	return t
}

// Match resolves method+path to the declared route it satisfies, and the
// `{name}` path parameters chi extracted along the way. ok is false when
// no declared route matches.
func (t *RouteTable) Match(method, path string) (route Route, params map[string]string, ok bool) {
	rctx := chi.NewRouteContext()
	if !t.router.Match(rctx, method, path) {
		return Route{}, nil, false
	}
	route, ok = t.byPattern[method+" "+rctx.RoutePattern()]
	if !ok {
		return Route{}, nil, false
	}
	params = make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		params[key] = rctx.URLParams.Values[i]
	}
	return route, params, true
}
