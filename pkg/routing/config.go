package routing

import (
	"fmt"
	"regexp"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

var routeNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// LoadConfig parses a routing document. The format (YAML or JSON) does not
// need to be declared: JSON is a YAML subset, so yaml.Unmarshal handles both.
func LoadConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ErrInvalidConfig("failed to parse routing document", err)
	}
	if err := validateNames(cfg.Routes); err != nil {
		return nil, err
	}
	for _, r := range cfg.Routes {
		if !r.Enabled {
			continue
		}
		if _, err := compileRoute(r); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func validateNames(routes []Route) error {
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if !routeNamePattern.MatchString(r.Name) {
			return ErrInvalidConfig(fmt.Sprintf("route name %q must match [a-z0-9-]+", r.Name), nil)
		}
		if seen[r.Name] {
			return ErrInvalidConfig(fmt.Sprintf("duplicate route name %q", r.Name), nil)
		}
		seen[r.Name] = true
	}
	return nil
}

// compileRoute validates a single route's match criteria and transform
// expression, returning the compiled form the engine matches against.
func compileRoute(r Route) (*compiledRoute, error) {
	criteria := 0
	if r.IsDefault {
		criteria++
	}
	if r.MatchValue != "" {
		criteria++
	}
	if r.MatchPattern != "" {
		criteria++
	}
	if criteria != 1 {
		return nil, ErrInvalidConfig(fmt.Sprintf("route %q must set exactly one of is_default, match_value, match_pattern", r.Name), nil)
	}

	if !r.IsDefault && r.Endpoint == "" {
		return nil, ErrInvalidConfig(fmt.Sprintf("route %q requires an endpoint", r.Name), nil)
	}

	cr := &compiledRoute{Route: r}

	if r.MatchPattern != "" {
		pattern, err := regexp.Compile("^(?:" + r.MatchPattern + ")$")
		if err != nil {
			return nil, ErrInvalidConfig(fmt.Sprintf("route %q has an invalid match_pattern", r.Name), err)
		}
		cr.pattern = pattern
	}

	switch r.TransformType {
	case "", TransformPassthrough:
		if r.Transform != "" {
			return nil, ErrInvalidConfig(fmt.Sprintf("route %q is passthrough but sets transform", r.Name), nil)
		}
	case TransformJQ, TransformTemplate:
		if r.Transform == "" {
			return nil, ErrInvalidConfig(fmt.Sprintf("route %q requires transform for type %q", r.Name, r.TransformType), nil)
		}
		if !balancedBraces(r.Transform) {
			return nil, ErrInvalidConfig(fmt.Sprintf("route %q has unbalanced braces in its transform expression", r.Name), nil)
		}
		if r.TransformType == TransformJQ {
			if _, err := gojq.Parse(r.Transform); err != nil {
				return nil, ErrInvalidConfig(fmt.Sprintf("route %q has an invalid jq expression", r.Name), err)
			}
		}
	case TransformJSONPath:
		if r.Transform == "" {
			return nil, ErrInvalidConfig(fmt.Sprintf("route %q requires transform for type %q", r.Name, r.TransformType), nil)
		}
	default:
		return nil, ErrInvalidConfig(fmt.Sprintf("route %q has unknown transform_type %q", r.Name, r.TransformType), nil)
	}

	return cr, nil
}
