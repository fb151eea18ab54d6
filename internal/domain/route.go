package domain

import (
	"fmt"
	"net/http"
	"strings"
)

// APIRoute maps a method and path pattern to a logical service. Patterns may
// contain {param} segments.
type APIRoute struct {
	Method   string   `json:"method" yaml:"method"`
	Path     string   `json:"path" yaml:"path"`
	Service  string   `json:"service" yaml:"service"`
	Strategy Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

func (r *APIRoute) Key() string {
	return fmt.Sprintf("%s:%s", r.Method, r.Path)
}

func (r *APIRoute) Validate() error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: route path %q must start with /", ErrInvalidRequest, r.Path)
	}
	if r.Service == "" {
		return fmt.Errorf("%w: route %s has no service", ErrInvalidRequest, r.Key())
	}
	if r.Strategy != "" {
		s, err := ParseStrategy(string(r.Strategy))
		if err != nil {
			return err
		}
		r.Strategy = s
	}
	return nil
}

// DefaultRoutes is the route table used when no routes file is configured.
func DefaultRoutes() []APIRoute {
	return []APIRoute{
		{Method: http.MethodGet, Path: "/api/v1/health", Service: "health"},
		{Method: http.MethodPost, Path: "/api/v1/sessions", Service: "session"},
		{Method: http.MethodPost, Path: "/api/v1/state", Service: "state"},
		{Method: http.MethodGet, Path: "/api/v1/analytics", Service: "analytics"},
	}
}
