package application

import (
	"testing"

	"github.com/apascualco/trafficcop/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteTable_Match(t *testing.T) {
	table, err := NewRouteTable([]domain.APIRoute{
		{Method: "GET", Path: "/api/v1/users", Service: "users"},
		{Method: "GET", Path: "/api/v1/users/{id}", Service: "user-detail"},
		{Method: "GET", Path: "/api/v1/users/me", Service: "me"},
		{Method: "GET", Path: "/api/v1/orders/{id}/items/{item}", Service: "items"},
		{Method: "GET", Path: "/api/v1/files/*", Service: "files"},
		{Method: "POST", Path: "/api/v1", Service: "api"},
		{Method: "POST", Path: "/api/v1/state", Service: "state"},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		path    string
		service string
		params  map[string]string
	}{
		{"exact", "GET", "/api/v1/users", "users", nil},
		{"exact beats pattern", "GET", "/api/v1/users/me", "me", nil},
		{"pattern", "GET", "/api/v1/users/42", "user-detail", map[string]string{"id": "42"}},
		{"two params", "GET", "/api/v1/orders/7/items/3", "items", map[string]string{"id": "7", "item": "3"}},
		{"wildcard", "GET", "/api/v1/files/a/b.txt", "files", map[string]string{"*": "a/b.txt"}},
		{"longest prefix", "POST", "/api/v1/state/user-1", "state", nil},
		{"shorter prefix", "POST", "/api/v1/other", "api", nil},
		{"lowercase method", "get", "/api/v1/users", "users", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := table.Match(tt.method, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.service, match.Route.Service)
			if tt.params != nil {
				assert.Equal(t, tt.params, match.Params)
			}
		})
	}
}

func TestRouteTable_NoMatch(t *testing.T) {
	table, err := NewRouteTable([]domain.APIRoute{
		{Method: "GET", Path: "/api/v1/users", Service: "users"},
	})
	require.NoError(t, err)

	_, err = table.Match("DELETE", "/api/v1/users")
	assert.ErrorIs(t, err, domain.ErrRouteNotFound)

	_, err = table.Match("GET", "/api/v2/users")
	assert.ErrorIs(t, err, domain.ErrRouteNotFound)

	_, err = table.Match("GET", "/api/v1/usersx")
	assert.ErrorIs(t, err, domain.ErrRouteNotFound)
}

func TestRouteTable_MostLiteralPatternWins(t *testing.T) {
	table, err := NewRouteTable([]domain.APIRoute{
		{Method: "GET", Path: "/{a}/{b}", Service: "generic"},
		{Method: "GET", Path: "/users/{id}", Service: "users"},
	})
	require.NoError(t, err)

	match, err := table.Match("GET", "/users/1")
	require.NoError(t, err)
	assert.Equal(t, "users", match.Route.Service)
}

func TestRouteTable_RejectsDuplicates(t *testing.T) {
	_, err := NewRouteTable([]domain.APIRoute{
		{Method: "GET", Path: "/a", Service: "one"},
		{Method: "get", Path: "/a", Service: "two"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRouteTable_RejectsInvalid(t *testing.T) {
	_, err := NewRouteTable([]domain.APIRoute{{Method: "GET", Path: "a", Service: "one"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = NewRouteTable([]domain.APIRoute{{Method: "GET", Path: "/a", Service: "one", Strategy: "fastest"}})
	assert.ErrorIs(t, err, domain.ErrInvalidStrategy)
}

func TestRouteTable_Routes(t *testing.T) {
	table, err := NewRouteTable(domain.DefaultRoutes())
	require.NoError(t, err)

	routes := table.Routes()
	require.Len(t, routes, len(domain.DefaultRoutes()))
	routes[0].Service = "mutated"
	assert.NotEqual(t, "mutated", table.Routes()[0].Service)
}
