package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteTableMatchesNamedSegment(t *testing.T) {
	rt := NewRouteTable([]Route{
		{Method: "GET", Pattern: "/widgets/{id}", HandlerName: "get-widget"},
		{Method: "POST", Pattern: "/widgets", HandlerName: "create-widget"},
	})

	route, params, ok := rt.Match("GET", "/widgets/42")
	require.True(t, ok)
	assert.Equal(t, "get-widget", route.HandlerName)
	assert.Equal(t, "42", params["id"])
}

func TestRouteTableMissNotFound(t *testing.T) {
	rt := NewRouteTable([]Route{{Method: "GET", Pattern: "/widgets/{id}", HandlerName: "get-widget"}})

	_, _, ok := rt.Match("GET", "/nope")
	assert.False(t, ok)
}

func TestRouteTableMethodMismatch(t *testing.T) {
	rt := NewRouteTable([]Route{{Method: "GET", Pattern: "/widgets", HandlerName: "get-widgets"}})

	_, _, ok := rt.Match("POST", "/widgets")
	assert.False(t, ok)
}
