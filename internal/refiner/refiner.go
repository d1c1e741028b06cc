// Package refiner derives exact physical types and constraints for a schema.
//
// Refinement runs in two passes. The heuristic pass always runs and is fully
// deterministic. The optional LLM pass asks a Prompter for suggestions and
// merges only the fields that survive validation; any transport failure
// leaves the heuristic result untouched.
package refiner

import (
	"context"
	"strings"
	"time"

	"github.com/tordrt/physgen/internal/schema"
	"go.uber.org/zap"
)

// DefaultRequiredNotNull lists the column names forced NOT NULL by default
var DefaultRequiredNotNull = []string{"name", "email", "order_date", "total", "price", "quantity"}

// DefaultTimeout bounds the LLM call when Options.Timeout is zero
const DefaultTimeout = 30 * time.Second

// Prompter returns a parsed JSON object for a prompt
type Prompter interface {
	PromptJSON(ctx context.Context, prompt string) (map[string]any, error)
}

// Options configures a Refiner
type Options struct {
	// RequiredNotNull overrides DefaultRequiredNotNull when non-nil
	RequiredNotNull []string
	// Prompter enables the LLM pass when set
	Prompter Prompter
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Refiner applies heuristic and LLM-assisted refinements
type Refiner struct {
	required map[string]bool
	prompter Prompter
	timeout  time.Duration
	logger   *zap.Logger
}

// Rejection records a dropped suggestion
type Rejection struct {
	Table  string
	Column string
	Field  string
	Reason string
}

// Result summarizes a refinement
type Result struct {
	Enhanced   bool // at least one suggestion was merged
	Accepted   int
	Rejections []Rejection
	LLMErr     error // transport or parse failure, already handled
}

// New creates a Refiner
func New(opts Options) *Refiner {
	names := opts.RequiredNotNull
	if names == nil {
		names = DefaultRequiredNotNull
	}
	required := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			required[n] = true
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Refiner{
		required: required,
		prompter: opts.Prompter,
		timeout:  timeout,
		logger:   logger,
	}
}

// Refine annotates every column of s in place. It never fails: LLM errors
// are logged and reported in the result.
func (r *Refiner) Refine(ctx context.Context, s *schema.Schema) Result {
	var res Result

	for _, t := range s.Tables() {
		r.applyHeuristics(t)
		ensureAuditColumns(t)
	}
	alignForeignKeyTypes(s)

	if r.prompter == nil {
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.prompter.PromptJSON(callCtx, BuildPrompt(s))
	if err != nil {
		r.logger.Warn("LLM refinement unavailable, keeping heuristic result",
			zap.String("schema", s.ID), zap.Error(err))
		res.LLMErr = err
		return res
	}

	r.merge(s, resp, &res)
	alignForeignKeyTypes(s)
	r.logger.Info("LLM suggestions merged",
		zap.String("schema", s.ID),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", len(res.Rejections)))

	return res
}
