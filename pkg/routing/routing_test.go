package routing_test

import (
	"testing"

	"github.com/openhqm/openhqm/pkg/routing"
	"github.com/stretchr/testify/require"
)

func message(payload interface{}, metaType string) map[string]interface{} {
	return map[string]interface{}{
		"payload": payload,
		"metadata": map[string]interface{}{
			"type": metaType,
		},
	}
}

func TestMatchPassthroughDefault(t *testing.T) {
	cfg := routing.Config{
		Routes: []routing.Route{
			{Name: "default", Enabled: true, IsDefault: true, Endpoint: "echo"},
		},
	}
	engine, err := routing.NewEngine(cfg)
	require.NoError(t, err)

	result, err := engine.Match(message(map[string]interface{}{"operation": "echo", "data": "hi"}, ""))
	require.NoError(t, err)
	require.Equal(t, "echo", result.Endpoint)
	require.Equal(t, "hi", result.Payload.(map[string]interface{})["data"])
}

func TestMatchRegexWithJQTransform(t *testing.T) {
	cfg := routing.Config{
		Routes: []routing.Route{
			{
				Name: "notifications", Enabled: true, Priority: 10,
				MatchField: "metadata.type", MatchPattern: `notification\..+`,
				Endpoint:      "notification",
				TransformType: routing.TransformJQ,
				Transform:     `.payload | {to: .user.email, msg: .message}`,
			},
			{Name: "default", Enabled: true, IsDefault: true, Endpoint: "echo"},
		},
	}
	engine, err := routing.NewEngine(cfg)
	require.NoError(t, err)

	msg := map[string]interface{}{
		"payload": map[string]interface{}{
			"user":    map[string]interface{}{"email": "a@b"},
			"message": "hi",
		},
		"metadata": map[string]interface{}{"type": "notification.email"},
	}

	result, err := engine.Match(msg)
	require.NoError(t, err)
	require.Equal(t, "notification", result.Endpoint)
	payload := result.Payload.(map[string]interface{})
	require.Equal(t, "a@b", payload["to"])
	require.Equal(t, "hi", payload["msg"])
}

func TestHigherPriorityWinsWhenBothMatch(t *testing.T) {
	cfg := routing.Config{
		Routes: []routing.Route{
			{Name: "low", Enabled: true, Priority: 1, MatchField: "metadata.type", MatchValue: "x", Endpoint: "low-ep"},
			{Name: "high", Enabled: true, Priority: 5, MatchField: "metadata.type", MatchValue: "x", Endpoint: "high-ep"},
		},
	}
	engine, err := routing.NewEngine(cfg)
	require.NoError(t, err)

	result, err := engine.Match(message(map[string]interface{}{}, "x"))
	require.NoError(t, err)
	require.Equal(t, "high-ep", result.Endpoint)
}

func TestNoMatchAndNoFallbackFails(t *testing.T) {
	cfg := routing.Config{
		Routes: []routing.Route{
			{Name: "only", Enabled: true, MatchField: "metadata.type", MatchValue: "x", Endpoint: "ep"},
		},
	}
	engine, err := routing.NewEngine(cfg)
	require.NoError(t, err)

	_, err = engine.Match(message(map[string]interface{}{}, "y"))
	require.Error(t, err)
}

func TestFallbackSynthesizesPassthrough(t *testing.T) {
	cfg := routing.Config{
		EnableFallback:  true,
		DefaultEndpoint: "catchall",
		Routes: []routing.Route{
			{Name: "only", Enabled: true, MatchField: "metadata.type", MatchValue: "x", Endpoint: "ep"},
		},
	}
	engine, err := routing.NewEngine(cfg)
	require.NoError(t, err)

	result, err := engine.Match(message(map[string]interface{}{"a": 1}, "y"))
	require.NoError(t, err)
	require.Equal(t, "catchall", result.Endpoint)
}

func TestTemplateTransform(t *testing.T) {
	cfg := routing.Config{
		Routes: []routing.Route{
			{
				Name: "tpl", Enabled: true, IsDefault: true, Endpoint: "ep",
				TransformType: routing.TransformTemplate,
				Transform:     `{"greeting": "hello {{payload.name}}", "count": {{payload.count}}}`,
			},
		},
	}
	engine, err := routing.NewEngine(cfg)
	require.NoError(t, err)

	result, err := engine.Match(message(map[string]interface{}{"name": "sam", "count": float64(3)}, ""))
	require.NoError(t, err)
	out := result.Payload.(map[string]interface{})
	require.Equal(t, "hello sam", out["greeting"])
	require.Equal(t, float64(3), out["count"])
}

func TestLoadConfigRejectsDuplicateNames(t *testing.T) {
	doc := []byte(`
routes:
  - name: dup
    is_default: true
    endpoint: a
  - name: dup
    match_field: metadata.type
    match_value: x
    endpoint: b
    enabled: true
`)
	_, err := routing.LoadConfig(doc)
	require.Error(t, err)
}

func TestLoadConfigRejectsAmbiguousMatchCriteria(t *testing.T) {
	doc := []byte(`
routes:
  - name: both
    enabled: true
    is_default: true
    match_value: x
    endpoint: a
`)
	_, err := routing.LoadConfig(doc)
	require.Error(t, err)
}

func TestLoadConfigValid(t *testing.T) {
	doc := []byte(`
version: "1.0"
routes:
  - name: default
    enabled: true
    is_default: true
    endpoint: echo
    timeout: 5
`)
	cfg, err := routing.LoadConfig(doc)
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 1)
	require.Equal(t, 5, cfg.Routes[0].TimeoutSeconds)
}
