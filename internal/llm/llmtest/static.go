// Package llmtest provides an in-memory llm.Prompter for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/tordrt/physgen/internal/llm"
)

// Static is an in-memory Prompter returning a preset answer
type Static struct {
	Response map[string]any
	Raw      string // parsed with llm.ParseObject when Response is nil
	Err      error
	Block    bool // wait for ctx to be done before answering

	mu      sync.Mutex
	prompts []string
}

var _ llm.Prompter = (*Static)(nil)

// PromptJSON records the prompt and returns the preset answer
func (s *Static) PromptJSON(ctx context.Context, prompt string) (map[string]any, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Response != nil {
		return s.Response, nil
	}
	return llm.ParseObject(s.Raw)
}

// Calls returns the prompts received so far
func (s *Static) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
