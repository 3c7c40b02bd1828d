package dispatch

import (
	"fmt"
	"os"

	"github.com/intentops/intentengine/workflow"

	"gopkg.in/yaml.v3"
)

// RoutesFile represents the dispatch routes YAML structure.
type RoutesFile struct {
	Version string  `yaml:"version"`
	APIKey  string  `yaml:"api_key"`
	Routes  []Route `yaml:"routes"`
}

// Route maps one stage trigger to a worker URL.
type Route struct {
	Trigger string `yaml:"trigger"`
	URL     string `yaml:"url"`
}

// LoadRoutes loads dispatch routes from a YAML file and returns the
// trigger route map and API key for NewHTTPDispatcher.
func LoadRoutes(path string) (map[workflow.Trigger]string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read routes file: %w", err)
	}

	var file RoutesFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("parse routes file: %w", err)
	}

	routes := make(map[workflow.Trigger]string, len(file.Routes))
	for _, route := range file.Routes {
		trigger := workflow.Trigger(route.Trigger)
		if !trigger.Valid() {
			return nil, "", fmt.Errorf("unknown trigger in routes file: %s", route.Trigger)
		}
		if route.URL == "" {
			return nil, "", fmt.Errorf("missing url for trigger: %s", route.Trigger)
		}
		routes[trigger] = route.URL
	}
	return routes, file.APIKey, nil
}
