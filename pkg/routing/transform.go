package routing

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/itchyny/gojq"
	"github.com/openhqm/openhqm/pkg/dotpath"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

func applyTransform(transformType, expr string, message interface{}) (interface{}, error) {
	switch transformType {
	case "", TransformPassthrough:
		v, _ := dotpath.Get(message, "payload")
		return v, nil
	case TransformJQ:
		return applyJQ(expr, message)
	case TransformJSONPath:
		return applyJSONPath(expr, message)
	case TransformTemplate:
		return applyTemplate(expr, message)
	default:
		return nil, ErrInvalidConfig("unknown transform_type "+transformType, nil)
	}
}

func applyJQ(expr string, message interface{}) (interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, ErrTransform("invalid jq expression", err)
	}

	iter := query.Run(message)
	v, ok := iter.Next()
	if !ok {
		return map[string]interface{}{}, nil
	}
	if err, ok := v.(error); ok {
		return nil, ErrTransform("jq evaluation failed", err)
	}
	return v, nil
}

func applyJSONPath(expr string, message interface{}) (interface{}, error) {
	v, err := jsonpath.Get(expr, message)
	if err != nil {
		return nil, ErrTransform("jsonpath evaluation failed", err)
	}

	if list, ok := v.([]interface{}); ok {
		if len(list) == 1 {
			return list[0], nil
		}
		return map[string]interface{}{"result": list}, nil
	}
	return v, nil
}

func applyTemplate(tmpl string, message interface{}) (interface{}, error) {
	var substErr error

	result := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := dotpath.Get(message, path)
		if !ok || v == nil {
			return "null"
		}
		if s, ok := v.(string); ok {
			return s
		}
		b, err := json.Marshal(v)
		if err != nil {
			substErr = err
			return match
		}
		return string(b)
	})
	if substErr != nil {
		return nil, ErrTransform("template substitution failed", substErr)
	}

	var out interface{}
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		return nil, ErrTransform("template result is not valid JSON", err)
	}
	return out, nil
}

// balancedBraces reports whether { and } occur in matching pairs, the
// validation check spec.md requires for jq/template expressions at
// config-load time (jq object literals use single braces, templates use
// {{ }}; a plain depth count covers both).
func balancedBraces(s string) bool {
	depth := 0
	for _, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
