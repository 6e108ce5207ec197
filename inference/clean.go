package inference

import (
	"errors"
	"regexp"
	"strings"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

	errNoJSONObject = errors.New("no JSON object found in model output")
	errJSONArray    = errors.New("model output is a JSON array, not an object")
)

// CleanJSON strips prose and code fences around a model reply and returns the
// first complete JSON object it contains. Array replies are rejected.
func CleanJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	if strings.HasPrefix(s, "[") {
		return "", errJSONArray
	}
	obj, ok := firstObject(s)
	if !ok {
		return "", errNoJSONObject
	}
	return obj, nil
}

// firstObject returns the balanced {...} block starting at the first opening
// brace, ignoring braces inside strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	// An object that opens an array is an element, not the reply.
	if strings.HasSuffix(strings.TrimSpace(s[:start]), "[") {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for end := start; end < len(s); end++ {
		c := s[end]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : end+1], true
			}
		}
	}

	return "", false
}
