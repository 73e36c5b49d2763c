package processor_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/openhqm/openhqm/pkg/partition"
	"github.com/openhqm/openhqm/pkg/processor"
	"github.com/openhqm/openhqm/pkg/routing"
	"github.com/stretchr/testify/require"
)

type fakeDoer struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	return f.fn(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestProcessEchoPassthrough(t *testing.T) {
	endpoints := map[string]routing.Endpoint{
		"echo": {URL: "http://upstream/echo", Method: http.MethodPost},
	}
	doer := &fakeDoer{fn: func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		return jsonResponse(200, string(body)), nil
	}}

	cfg := processor.Config{ProxyEnabled: true, RoutingEnabled: true}
	engine, err := routing.NewEngine(routing.Config{
		Routes: []routing.Route{{Name: "default", Enabled: true, IsDefault: true, Endpoint: "echo"}},
	})
	require.NoError(t, err)

	p := processor.New(cfg, engine, nil, endpoints, doer)

	full := map[string]interface{}{
		"payload":  map[string]interface{}{"operation": "echo", "data": "hi"},
		"metadata": map[string]interface{}{},
	}
	result, err := p.Process(context.Background(), full["payload"].(map[string]interface{}), map[string]interface{}{}, nil, full)
	require.NoError(t, err)
	require.Equal(t, 200, result.StatusCode)
	require.Equal(t, "hi", result.Body["data"])
}

func TestProcessSkipsWhenPartitionNotOwned(t *testing.T) {
	mgr := partition.NewManager(partition.Config{Enabled: true, PartitionCount: 4}, "worker-0", nil)
	p := processor.New(processor.Config{ProxyEnabled: true}, nil, mgr, nil, &fakeDoer{})

	full := map[string]interface{}{
		"payload":  map[string]interface{}{},
		"metadata": map[string]interface{}{"partition_key": "sess-1"},
	}
	result, err := p.Process(context.Background(), full["payload"].(map[string]interface{}), full["metadata"].(map[string]interface{}), nil, full)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, 200, result.StatusCode)
	require.Equal(t, "partition_not_assigned", result.SkipReason)
}

func TestProcessUnknownEndpointIsFatal(t *testing.T) {
	p := processor.New(processor.Config{ProxyEnabled: true}, nil, nil, map[string]routing.Endpoint{}, &fakeDoer{})

	full := map[string]interface{}{
		"payload":  map[string]interface{}{},
		"metadata": map[string]interface{}{"endpoint": "missing"},
	}
	_, err := p.Process(context.Background(), full["payload"].(map[string]interface{}), full["metadata"].(map[string]interface{}), nil, full)
	require.Error(t, err)
	require.True(t, processor.IsFatal(err))
}

func TestProcessSampleFallbackWhenDevelopmentMode(t *testing.T) {
	cfg := processor.Config{ProxyEnabled: false, DevelopmentMode: true}
	p := processor.New(cfg, nil, nil, map[string]routing.Endpoint{}, &fakeDoer{})

	full := map[string]interface{}{
		"payload":  map[string]interface{}{"operation": "uppercase", "data": "hi"},
		"metadata": map[string]interface{}{},
	}
	result, err := p.Process(context.Background(), full["payload"].(map[string]interface{}), full["metadata"].(map[string]interface{}), nil, full)
	require.NoError(t, err)
	require.Equal(t, "HI", result.Body["data"])
}

func TestProcessUpstream5xxIsTransient(t *testing.T) {
	endpoints := map[string]routing.Endpoint{
		"echo": {URL: "http://upstream/echo", Method: http.MethodPost},
	}
	doer := &fakeDoer{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `{"error":"boom"}`), nil
	}}

	engine, err := routing.NewEngine(routing.Config{
		Routes: []routing.Route{{Name: "default", Enabled: true, IsDefault: true, Endpoint: "echo"}},
	})
	require.NoError(t, err)

	p := processor.New(processor.Config{ProxyEnabled: true, RoutingEnabled: true}, engine, nil, endpoints, doer)

	full := map[string]interface{}{
		"payload":  map[string]interface{}{"operation": "echo"},
		"metadata": map[string]interface{}{},
	}
	_, err = p.Process(context.Background(), full["payload"].(map[string]interface{}), full["metadata"].(map[string]interface{}), nil, full)
	require.Error(t, err)
	require.True(t, processor.IsTransient(err))
}

func TestProcessJQTransformRewritesPayload(t *testing.T) {
	endpoints := map[string]routing.Endpoint{
		"notification": {URL: "http://upstream/notify", Method: http.MethodPost},
	}
	var sentBody map[string]interface{}
	doer := &fakeDoer{fn: func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &sentBody)
		return jsonResponse(200, `{"ok":true}`), nil
	}}

	engine, err := routing.NewEngine(routing.Config{
		Routes: []routing.Route{
			{
				Name: "notifications", Enabled: true, Priority: 10,
				MatchField: "metadata.type", MatchPattern: `notification\..+`,
				Endpoint:      "notification",
				TransformType: routing.TransformJQ,
				Transform:     `.payload | {to: .user.email, msg: .message}`,
			},
		},
	})
	require.NoError(t, err)

	p := processor.New(processor.Config{ProxyEnabled: true, RoutingEnabled: true}, engine, nil, endpoints, doer)

	full := map[string]interface{}{
		"payload": map[string]interface{}{
			"user":    map[string]interface{}{"email": "a@b"},
			"message": "hi",
		},
		"metadata": map[string]interface{}{"type": "notification.email"},
	}
	result, err := p.Process(context.Background(), full["payload"].(map[string]interface{}), full["metadata"].(map[string]interface{}), nil, full)
	require.NoError(t, err)
	require.Equal(t, 200, result.StatusCode)
	require.NotNil(t, sentBody)
	require.Equal(t, "a@b", sentBody["to"])
	require.Equal(t, "hi", sentBody["msg"])
}
