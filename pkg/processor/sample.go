package processor

import (
	"strings"
)

// SampleProcessor implements the built-in echo/uppercase/reverse/error
// operations used for tests and demos when proxying is disabled and no
// endpoint resolves. It only runs when Config.DevelopmentMode is set: the
// spec leaves unclear whether this fallback is production behaviour or a
// test shim, so it is gated behind an explicit flag rather than activating
// silently.
func SampleProcessor(payload map[string]interface{}) (map[string]interface{}, int) {
	op, _ := payload["operation"].(string)

	switch op {
	case "echo", "":
		return payload, 200
	case "uppercase":
		data, _ := payload["data"].(string)
		return map[string]interface{}{"operation": op, "data": strings.ToUpper(data)}, 200
	case "reverse":
		data, _ := payload["data"].(string)
		return map[string]interface{}{"operation": op, "data": reverseString(data)}, 200
	case "error":
		return map[string]interface{}{"error": "sample processor forced error"}, 500
	default:
		return map[string]interface{}{"error": "unknown sample operation " + op}, 400
	}
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
