// Package llm provides the JSON prompt capability used by the refiner.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when the model output is not a JSON object
var ErrMalformedResponse = errors.New("malformed LLM response")

// Prompter sends a prompt and returns the parsed JSON object answer
type Prompter interface {
	PromptJSON(ctx context.Context, prompt string) (map[string]any, error)
}

// ParseObject decodes a model answer into a JSON object. Markdown code
// fences around the payload are tolerated.
func ParseObject(content string) (map[string]any, error) {
	body := stripFences(strings.TrimSpace(content))
	if body == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedResponse)
	}
	return obj, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	var body []string
	for _, line := range lines[1:] {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			break
		}
		body = append(body, line)
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}
