// Package routing matches an inbound message to a configured route and
// produces the outbound endpoint, payload, headers, and query parameters
// for the processor to forward.
package routing

import (
	"regexp"
	"sort"
	"time"

	"github.com/openhqm/openhqm/pkg/dotpath"
)

const (
	TransformPassthrough = "passthrough"
	TransformJQ          = "jq"
	TransformJSONPath    = "jsonpath"
	TransformTemplate    = "template"
)

// Route is an immutable routing rule loaded from configuration.
type Route struct {
	Name         string `yaml:"name" json:"name"`
	Priority     int    `yaml:"priority" json:"priority"`
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	IsDefault    bool   `yaml:"is_default" json:"is_default"`
	MatchField   string `yaml:"match_field" json:"match_field"`
	MatchValue   string `yaml:"match_value" json:"match_value"`
	MatchPattern string `yaml:"match_pattern" json:"match_pattern"`

	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	Method         string `yaml:"method" json:"method"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout"`
	MaxRetries     int    `yaml:"max_retries" json:"max_retries"`

	TransformType string `yaml:"transform_type" json:"transform_type"`
	Transform     string `yaml:"transform" json:"transform"`

	HeaderMappings map[string]string `yaml:"header_mappings" json:"header_mappings"`
	QueryParams    map[string]string `yaml:"query_params" json:"query_params"`
}

// Config is the top-level routing document (§6 of the YAML schema).
// Endpoints is a supplement beyond spec.md's literal schema: since
// PROXY__ENDPOINTS__<name>__* is a dynamically-keyed env var family that a
// static-struct env loader cannot express, endpoint definitions live
// alongside routes in the same document instead.
type Config struct {
	Version         string              `yaml:"version" json:"version"`
	Routes          []Route             `yaml:"routes" json:"routes"`
	Endpoints       map[string]Endpoint `yaml:"endpoints" json:"endpoints"`
	DefaultEndpoint string              `yaml:"default_endpoint" json:"default_endpoint"`
	EnableFallback  bool                `yaml:"enable_fallback" json:"enable_fallback"`
}

// AuthType enumerates EndpointConfig.Auth kinds.
const (
	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthAPIKey = "api_key"
	AuthCustom = "custom"
)

// Auth configures how the processor authenticates to an endpoint.
type Auth struct {
	Type        string `yaml:"type" json:"type"`
	Token       string `yaml:"token" json:"token"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"password"`
	HeaderName  string `yaml:"header_name" json:"header_name"`
	HeaderValue string `yaml:"header_value" json:"header_value"`
}

// Endpoint describes an upstream HTTP target resolved by logical name.
type Endpoint struct {
	URL            string            `yaml:"url" json:"url"`
	Method         string            `yaml:"method" json:"method"`
	TimeoutSeconds int               `yaml:"timeout" json:"timeout"`
	Headers        map[string]string `yaml:"headers" json:"headers"`
	Auth           *Auth             `yaml:"auth" json:"auth"`
}

// Timeout returns the endpoint timeout as a time.Duration, defaulting to
// 30s when unset.
func (e Endpoint) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Result is what the routing engine hands back to the processor.
type Result struct {
	RouteName  string
	Endpoint   string
	Method     string
	Payload    interface{}
	Headers    map[string]string
	Query      map[string]string
	Timeout    time.Duration
	MaxRetries int
}

type compiledRoute struct {
	Route
	pattern *regexp.Regexp
}

// Engine matches messages against a sorted, compiled route set.
type Engine struct {
	cfg    Config
	routes []*compiledRoute
}

// NewEngine validates and compiles cfg, sorting enabled routes by priority
// descending.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateNames(cfg.Routes); err != nil {
		return nil, err
	}

	compiled := make([]*compiledRoute, 0, len(cfg.Routes))
	for i := range cfg.Routes {
		r := cfg.Routes[i]
		if !r.Enabled {
			continue
		}
		cr, err := compileRoute(r)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cr)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &Engine{cfg: cfg, routes: compiled}, nil
}

// Match runs the deterministic matching algorithm against message (the
// generic "full message" tree, typically envelope.Message.ToMap()).
func (e *Engine) Match(message interface{}) (*Result, error) {
	for _, r := range e.routes {
		if r.IsDefault {
			continue
		}
		if matched := matchRoute(r, message); matched {
			return e.buildResult(r, message)
		}
	}

	for _, r := range e.routes {
		if r.IsDefault {
			return e.buildResult(r, message)
		}
	}

	if e.cfg.EnableFallback && e.cfg.DefaultEndpoint != "" {
		payload, _ := dotpath.Get(message, "payload")
		return &Result{
			RouteName: "fallback",
			Endpoint:  e.cfg.DefaultEndpoint,
			Method:    "POST",
			Payload:   payload,
		}, nil
	}

	return nil, ErrNoRoute()
}

func matchRoute(r *compiledRoute, message interface{}) bool {
	if _, ok := dotpath.Get(message, r.MatchField); !ok {
		return false
	}
	s, _ := dotpath.GetString(message, r.MatchField)

	if r.MatchValue != "" {
		return s == r.MatchValue
	}
	if r.pattern != nil {
		return r.pattern.MatchString(s)
	}
	return false
}

func (e *Engine) buildResult(r *compiledRoute, message interface{}) (*Result, error) {
	payload, err := applyTransform(r.TransformType, r.Transform, message)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(r.HeaderMappings))
	for name, path := range r.HeaderMappings {
		if v, ok := dotpath.GetString(message, path); ok {
			headers[name] = v
		}
	}

	query := make(map[string]string, len(r.QueryParams))
	for name, path := range r.QueryParams {
		if v, ok := dotpath.GetString(message, path); ok {
			query[name] = v
		}
	}

	var timeout time.Duration
	if r.TimeoutSeconds > 0 {
		timeout = time.Duration(r.TimeoutSeconds) * time.Second
	}

	return &Result{
		RouteName:  r.Name,
		Endpoint:   r.Endpoint,
		Method:     r.Method,
		Payload:    payload,
		Headers:    headers,
		Query:      query,
		Timeout:    timeout,
		MaxRetries: r.MaxRetries,
	}, nil
}
