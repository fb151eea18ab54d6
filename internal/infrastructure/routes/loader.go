package routes

import (
	"bytes"
	"fmt"
	"os"

	"github.com/apascualco/trafficcop/internal/domain"
	"gopkg.in/yaml.v3"
)

type file struct {
	Routes []domain.APIRoute `yaml:"routes"`
}

// Load reads the route table from a YAML file. An empty path yields the
// default routes.
func Load(path string) ([]domain.APIRoute, error) {
	if path == "" {
		return domain.DefaultRoutes(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]domain.APIRoute, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("%w: routes file declares no routes", domain.ErrInvalidRequest)
	}
	for i := range f.Routes {
		if err := f.Routes[i].Validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return f.Routes, nil
}
