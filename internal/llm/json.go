package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput means model output could not be decoded into the
// expected shape at all.
var ErrMalformedOutput = errors.New("malformed model output")

// DecodeJSON decodes a model response into v, handling markdown code
// fences and prose around the object.
func DecodeJSON(text string, v any) error {
	body := extractObject(text)
	if body == "" {
		return fmt.Errorf("%w: no JSON object in response", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func extractObject(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
