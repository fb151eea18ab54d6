package application

import (
	"fmt"
	"strings"

	"github.com/apascualco/trafficcop/internal/domain"
)

type RouteMatch struct {
	Route  domain.APIRoute
	Params map[string]string
}

// RouteTable is the static method+path to service mapping. It is immutable
// after construction.
type RouteTable struct {
	routes []domain.APIRoute
	exact  map[string]int
}

// NewRouteTable validates the routes and rejects duplicate method+path keys.
func NewRouteTable(routes []domain.APIRoute) (*RouteTable, error) {
	t := &RouteTable{
		routes: make([]domain.APIRoute, 0, len(routes)),
		exact:  make(map[string]int, len(routes)),
	}
	for _, route := range routes {
		if err := route.Validate(); err != nil {
			return nil, err
		}
		key := route.Key()
		if _, dup := t.exact[key]; dup {
			return nil, fmt.Errorf("%w: duplicate route %s", domain.ErrInvalidRequest, key)
		}
		t.exact[key] = len(t.routes)
		t.routes = append(t.routes, route)
	}
	return t, nil
}

// Match resolves method and path: an exact match first, then the pattern
// with the most literal segments, then the longest segment prefix.
func (t *RouteTable) Match(method, path string) (*RouteMatch, error) {
	method = strings.ToUpper(method)
	if idx, ok := t.exact[method+":"+path]; ok {
		return &RouteMatch{Route: t.routes[idx]}, nil
	}

	pathSegments := splitPath(path)

	bestPattern, bestLiterals := -1, -1
	var bestParams map[string]string
	for i, route := range t.routes {
		if route.Method != method || !isPattern(route.Path) {
			continue
		}
		params, literals, ok := matchPattern(splitPath(route.Path), pathSegments)
		if ok && literals > bestLiterals {
			bestPattern, bestLiterals, bestParams = i, literals, params
		}
	}
	if bestPattern >= 0 {
		return &RouteMatch{Route: t.routes[bestPattern], Params: bestParams}, nil
	}

	bestPrefix, bestLen := -1, -1
	for i, route := range t.routes {
		if route.Method != method || isPattern(route.Path) {
			continue
		}
		prefix := splitPath(route.Path)
		if len(prefix) > bestLen && hasSegmentPrefix(pathSegments, prefix) {
			bestPrefix, bestLen = i, len(prefix)
		}
	}
	if bestPrefix >= 0 {
		return &RouteMatch{Route: t.routes[bestPrefix]}, nil
	}

	return nil, fmt.Errorf("%w: %s %s", domain.ErrRouteNotFound, method, path)
}

// Routes returns the table in declaration order.
func (t *RouteTable) Routes() []domain.APIRoute {
	out := make([]domain.APIRoute, len(t.routes))
	copy(out, t.routes)
	return out
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func isPattern(path string) bool {
	return strings.ContainsAny(path, "{:*")
}

func paramName(segment string) (string, bool) {
	if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
		return segment[1 : len(segment)-1], true
	}
	if strings.HasPrefix(segment, ":") {
		return segment[1:], true
	}
	return "", false
}

func matchPattern(pattern, path []string) (map[string]string, int, bool) {
	params := make(map[string]string)
	literals := 0

	for i, seg := range pattern {
		if seg == "*" && i == len(pattern)-1 {
			params["*"] = strings.Join(path[min(i, len(path)):], "/")
			return params, literals, true
		}
		if i >= len(path) {
			return nil, 0, false
		}
		if name, ok := paramName(seg); ok {
			params[name] = path[i]
			continue
		}
		if seg != path[i] {
			return nil, 0, false
		}
		literals++
	}

	if len(pattern) != len(path) {
		return nil, 0, false
	}
	return params, literals, true
}

func hasSegmentPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}
