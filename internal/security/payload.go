package security

import (
	"fmt"
	"slices"
	"unicode/utf8"
)

// Payload limits.
const (
	DefaultMaxFieldLength = 4000
	DefaultMaxDepth       = 32
)

// PayloadValidator checks decoded JSON bodies for oversized strings and
// excessive nesting.
type PayloadValidator struct {
	MaxFieldLength int
	MaxDepth       int
}

// ValidatePayload checks body with the given field limit and the default depth cap.
func ValidatePayload(body any, maxFieldLength int) Decision {
	return PayloadValidator{MaxFieldLength: maxFieldLength, MaxDepth: DefaultMaxDepth}.Validate(body)
}

// Validate checks a body decoded by encoding/json. The body must be an
// object or array; only string leaves are length-checked.
func (v PayloadValidator) Validate(body any) Decision {
	switch body.(type) {
	case map[string]any, []any:
	default:
		return Deny(KindInvalidPayload)
	}

	maxLen := v.MaxFieldLength
	if maxLen <= 0 {
		maxLen = DefaultMaxFieldLength
	}
	maxDepth := v.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	if msg := checkValue(body, "root", 0, maxLen, maxDepth); msg != "" {
		return Decision{Kind: KindInvalidPayload, Message: msg}
	}
	return Allow()
}

func checkValue(value any, path string, depth, maxLen, maxDepth int) string {
	switch val := value.(type) {
	case string:
		if utf8.RuneCountInString(val) > maxLen {
			return fmt.Sprintf("Field %s exceeds maximum length of %d characters", path, maxLen)
		}
	case []any:
		if depth >= maxDepth {
			return fmt.Sprintf("Payload exceeds maximum nesting depth of %d", maxDepth)
		}
		for i, item := range val {
			if msg := checkValue(item, fmt.Sprintf("%s[%d]", path, i), depth+1, maxLen, maxDepth); msg != "" {
				return msg
			}
		}
	case map[string]any:
		if depth >= maxDepth {
			return fmt.Sprintf("Payload exceeds maximum nesting depth of %d", maxDepth)
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if msg := checkValue(val[k], path+"."+k, depth+1, maxLen, maxDepth); msg != "" {
				return msg
			}
		}
	}
	return ""
}
