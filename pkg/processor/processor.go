// Package processor composes routing, partitioning, authentication, and
// outbound HTTP forwarding into the single operation the worker calls per
// message.
package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openhqm/openhqm/pkg/partition"
	"github.com/openhqm/openhqm/pkg/routing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config controls processor-level behavior not owned by routing or
// partitioning.
type Config struct {
	ProxyEnabled    bool     `env:"ENABLED" env-default:"true"`
	DefaultEndpoint string   `env:"DEFAULT_ENDPOINT"`
	ForwardHeaders  []string `env:"FORWARD_HEADERS" env-separator:","`
	StripHeaders    []string `env:"STRIP_HEADERS" env-separator:","`
	RoutingEnabled  bool     `env:"ROUTING_ENABLED" env-default:"true"`
	DevelopmentMode bool     `env:"DEVELOPMENT_MODE" env-default:"false"`
}

// HTTPDoer is the subset of pkg/client/rest.Client the processor needs,
// narrowed so tests can substitute a fake.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the triple spec.md's process() operation returns: the response
// body, the HTTP status to record, and response headers minus hop-by-hop
// ones. Skipped results carry no body worth persisting.
type Result struct {
	Body       map[string]interface{}
	StatusCode int
	Headers    map[string]string

	Skipped    bool
	SkipReason string
	SkipPolicy string
}

// Processor ties together the routing engine, partition manager, and an
// outbound HTTP client.
type Processor struct {
	cfg       Config
	engine    *routing.Engine
	partition *partition.Manager
	endpoints map[string]routing.Endpoint
	client    HTTPDoer
	tracer    trace.Tracer
}

// New builds a processor. engine and partitionMgr may be nil when routing
// or partitioning is disabled.
func New(cfg Config, engine *routing.Engine, partitionMgr *partition.Manager, endpoints map[string]routing.Endpoint, client HTTPDoer) *Processor {
	return &Processor{
		cfg:       cfg,
		engine:    engine,
		partition: partitionMgr,
		endpoints: endpoints,
		client:    client,
		tracer:    otel.Tracer("pkg/processor"),
	}
}

// Process runs the 8-step sequence: partition skip check, routing, endpoint
// resolution, header construction, outbound forwarding, response shaping.
func (p *Processor) Process(ctx context.Context, payload map[string]interface{}, metadata map[string]interface{}, headers map[string]string, fullMessage map[string]interface{}) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "processor.Process")
	defer span.End()

	if p.partition != nil && !p.partition.ShouldProcess(fullMessage) {
		return &Result{
			Body:       map[string]interface{}{"skipped": true, "reason": "partition_not_assigned"},
			StatusCode: 200,
			Headers:    map[string]string{},
			Skipped:    true,
			SkipReason: "partition_not_assigned",
			SkipPolicy: p.partition.SkipPolicy(),
		}, nil
	}

	endpointName, _ := metadata["endpoint"].(string)
	method, _ := metadata["method"].(string)
	var queryParams map[string]string
	var timeoutOverride time.Duration

	if p.cfg.RoutingEnabled && p.engine != nil {
		result, err := p.engine.Match(fullMessage)
		if err != nil {
			return nil, ErrFatal("routing failed", err)
		}
		endpointName = result.Endpoint
		if result.Method != "" {
			method = result.Method
		}
		if body, ok := result.Payload.(map[string]interface{}); ok {
			payload = body
		} else if result.Payload != nil {
			payload = map[string]interface{}{"value": result.Payload}
		}
		for k, v := range result.Headers {
			if headers == nil {
				headers = map[string]string{}
			}
			headers[k] = v
		}
		queryParams = result.Query
		timeoutOverride = result.Timeout
	}

	endpoint, ok := p.resolveEndpoint(endpointName)
	if !ok {
		if !p.cfg.ProxyEnabled && p.cfg.DevelopmentMode {
			body, status := SampleProcessor(payload)
			return &Result{Body: body, StatusCode: status, Headers: map[string]string{}}, nil
		}
		return nil, ErrFatal(fmt.Sprintf("no endpoint resolved for %q", endpointName), nil)
	}

	if method == "" {
		method = endpoint.Method
	}
	if method == "" {
		method = http.MethodPost
	}

	outHeaders := buildOutboundHeaders(endpoint, headers, p.cfg.ForwardHeaders, p.cfg.StripHeaders)

	reqURL := endpoint.URL
	if len(queryParams) > 0 {
		q := url.Values{}
		for k, v := range queryParams {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL = reqURL + sep + q.Encode()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrFatal("failed to encode outbound payload", err)
	}

	timeout := endpoint.Timeout()
	if timeoutOverride > 0 {
		timeout = timeoutOverride
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, ErrFatal("failed to build outbound request", err)
	}
	for k, v := range outHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ErrTransient("outbound request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, ErrTransient(fmt.Sprintf("upstream returned %d", resp.StatusCode), nil)
	}

	respBody, respHeaders, err := parseResponse(resp)
	if err != nil {
		return nil, ErrTransient("failed to read outbound response", err)
	}

	if p.partition != nil {
		p.partition.TrackSession(fullMessage)
	}

	return &Result{Body: respBody, StatusCode: resp.StatusCode, Headers: respHeaders}, nil
}

func (p *Processor) resolveEndpoint(name string) (routing.Endpoint, bool) {
	if name != "" {
		if ep, ok := p.endpoints[name]; ok {
			return ep, true
		}
		if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
			return routing.Endpoint{URL: name, Method: http.MethodPost}, true
		}
	}
	if p.cfg.DefaultEndpoint != "" {
		if ep, ok := p.endpoints[p.cfg.DefaultEndpoint]; ok {
			return ep, true
		}
		return routing.Endpoint{URL: p.cfg.DefaultEndpoint, Method: http.MethodPost}, true
	}
	return routing.Endpoint{}, false
}

// buildOutboundHeaders implements spec.md §4.4 step 4: endpoint static
// headers, overlaid with auth headers, overlaid with forwarded client
// headers filtered by allow-list/strip-list ("*" in the allow-list means
// allow-all).
func buildOutboundHeaders(endpoint routing.Endpoint, clientHeaders map[string]string, allow, strip []string) map[string]string {
	out := make(map[string]string, len(endpoint.Headers)+len(clientHeaders))
	for k, v := range endpoint.Headers {
		out[k] = v
	}

	for k, v := range authHeaders(endpoint.Auth) {
		out[k] = v
	}

	allowAll := false
	allowSet := make(map[string]bool, len(allow))
	for _, h := range allow {
		if h == "*" {
			allowAll = true
		}
		allowSet[strings.ToLower(h)] = true
	}
	stripSet := make(map[string]bool, len(strip))
	for _, h := range strip {
		stripSet[strings.ToLower(h)] = true
	}

	for k, v := range clientHeaders {
		lk := strings.ToLower(k)
		if !allowAll && !allowSet[lk] {
			continue
		}
		if stripSet[lk] {
			continue
		}
		out[k] = v
	}

	return out
}

func authHeaders(auth *routing.Auth) map[string]string {
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case routing.AuthBearer:
		return map[string]string{"Authorization": "Bearer " + auth.Token}
	case routing.AuthBasic:
		cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		return map[string]string{"Authorization": "Basic " + cred}
	case routing.AuthAPIKey:
		return map[string]string{auth.HeaderName: auth.Token}
	case routing.AuthCustom:
		return map[string]string{auth.HeaderName: auth.HeaderValue}
	default:
		return nil
	}
}

// hopByHopHeaders are stripped from upstream responses per spec.md §4.4
// step 7.
var hopByHopHeaders = map[string]bool{
	"transfer-encoding": true,
	"connection":        true,
}

func parseResponse(resp *http.Response) (map[string]interface{}, map[string]string, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	contentType := resp.Header.Get("Content-Type")

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		lk := strings.ToLower(k)
		if hopByHopHeaders[lk] {
			continue
		}
		headers[k] = resp.Header.Get(k)
	}

	var body map[string]interface{}
	if strings.Contains(contentType, "application/json") {
		if len(data) == 0 {
			body = map[string]interface{}{}
		} else if err := json.Unmarshal(data, &body); err != nil {
			return nil, nil, err
		}
	} else {
		body = map[string]interface{}{"response": string(data), "content_type": contentType}
	}

	return body, headers, nil
}
