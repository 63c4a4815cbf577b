package automation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// evalPointer resolves an RFC 6901 JSON Pointer against a decoded JSON
// document. The empty pointer selects the whole document. Returns
// false when the pointer does not resolve.
func evalPointer(pointer string, doc any) (any, bool) {
	if pointer == "" {
		return doc, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}
	current := doc
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[token]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// jsonEqual compares two values under JSON semantics: both are
// rendered to canonical JSON (map keys sorted by encoding/json) and
// compared byte-wise. This makes 21 and 21.0 equal and is insensitive
// to whether a value came off the wire or from Go code.
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
