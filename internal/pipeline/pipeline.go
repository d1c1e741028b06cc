// Package pipeline runs the ordered physical-model steps for one metadata
// document and collects a verification report.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tordrt/physgen/internal/analysis"
	"github.com/tordrt/physgen/internal/artifact"
	"github.com/tordrt/physgen/internal/formatter"
	"github.com/tordrt/physgen/internal/graph"
	"github.com/tordrt/physgen/internal/refiner"
	"github.com/tordrt/physgen/internal/report"
	"github.com/tordrt/physgen/internal/schema"
	"go.uber.org/zap"
)

// Step names in execution order
const (
	StepSchema   = "schema"
	StepRefine   = "refine"
	StepDDL      = "ddl"
	StepGraph    = "graph"
	StepLineage  = "lineage"
	StepImpact   = "impact"
	StepInsights = "insights"
	StepERD      = "erd"
)

// Refiner refines a schema in place
type Refiner interface {
	Refine(ctx context.Context, s *schema.Schema) refiner.Result
}

// Options configures a Pipeline
type Options struct {
	OutputDir  string
	Force      bool // regenerate artifacts that already exist
	SkipSQL    bool
	SkipERD    bool
	SourceFile string // recorded in the lineage document
	Refiner    Refiner
	Logger     *zap.Logger
	Now        func() time.Time
}

// Pipeline executes the steps for one document at a time. Distinct file ids
// may run concurrently on the same Pipeline.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

type state struct {
	doc    *schema.Document
	schema *schema.Schema
	graph  *graph.Graph
	rep    *report.Report
}

type step struct {
	name     string
	artifact string
	needs    []string
	disabled bool
	run      func(ctx context.Context, st *state) ([]byte, string, error)
}

// New creates a Pipeline
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Refiner == nil {
		opts.Refiner = refiner.New(refiner.Options{Logger: logger})
	}
	return &Pipeline{opts: opts, logger: logger, now: now}
}

// Run executes every step and returns the report. It never panics and
// never returns an error: failures are recorded per step.
func (p *Pipeline) Run(ctx context.Context, doc *schema.Document) *report.Report {
	rep := &report.Report{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	if doc != nil {
		rep.FileID = doc.FileID
	}
	defer func() { rep.FinishedAt = p.now() }()

	logger := p.logger.With(zap.String("fileId", rep.FileID), zap.String("runId", rep.RunID))
	dir := artifact.Dir{Base: p.opts.OutputDir, FileID: rep.FileID}
	st := &state{doc: doc, rep: rep}

	for i, s := range p.steps() {
		if err := ctx.Err(); err != nil {
			for _, rest := range p.steps()[i:] {
				rep.Add(report.StepResult{Step: rest.name, Status: report.StatusSkipped,
					Artifact: rest.artifact, Reason: report.ReasonCancelled})
			}
			logger.Warn("run cancelled", zap.String("nextStep", s.name), zap.Error(err))
			break
		}

		res := p.execute(ctx, s, st, dir)
		rep.Add(res)
		logStep(logger, res)

		if s.name == StepSchema && res.Status == report.StatusFailed {
			break
		}
	}

	return rep
}

func (p *Pipeline) execute(ctx context.Context, s step, st *state, dir artifact.Dir) (res report.StepResult) {
	start := p.now()
	res = report.StepResult{Step: s.name, Artifact: s.artifact}
	defer func() { res.Duration = p.now().Sub(start) }()

	if s.disabled {
		res.Status = report.StatusSkipped
		res.Reason = report.ReasonDisabled
		return res
	}

	if s.artifact != "" && !p.opts.Force {
		exists, err := dir.Exists(s.artifact)
		if err != nil {
			res.Status = report.StatusFailed
			res.Error = fmt.Sprintf("failed to check %s: %v", s.artifact, err)
			return res
		}
		if exists {
			res.Status = report.StatusSkipped
			res.Reason = report.ReasonExists
			if info, err := dir.Stat(s.artifact); err == nil {
				res.Size = info.Size
				res.Modified = info.Modified
			}
			return res
		}
	}

	for _, need := range s.needs {
		if prev, ok := st.rep.Step(need); !ok || prev.Status != report.StatusOK {
			res.Status = report.StatusSkipped
			res.Reason = report.ReasonDependencyFailed
			return res
		}
	}

	data, detail, err := safeRun(ctx, s, st)
	if err != nil {
		res.Status = report.StatusFailed
		res.Error = err.Error()
		return res
	}
	res.Reason = detail

	if s.artifact != "" {
		info, err := dir.WriteFile(s.artifact, data)
		if err != nil {
			res.Status = report.StatusFailed
			res.Error = err.Error()
			return res
		}
		res.Size = info.Size
		res.Modified = info.Modified
	}

	res.Status = report.StatusOK
	return res
}

func safeRun(ctx context.Context, s step, st *state) (data []byte, detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in step %s: %v", s.name, r)
		}
	}()
	return s.run(ctx, st)
}

func (p *Pipeline) steps() []step {
	return []step{
		{name: StepSchema, run: p.buildSchema},
		{name: StepRefine, needs: []string{StepSchema}, run: p.refine},
		{name: StepDDL, artifact: artifact.DDLFile, needs: []string{StepRefine}, disabled: p.opts.SkipSQL, run: p.emitDDL},
		{name: StepGraph, needs: []string{StepRefine}, run: p.buildGraph},
		{name: StepLineage, artifact: artifact.LineageFile, needs: []string{StepRefine}, run: p.lineage},
		{name: StepImpact, artifact: artifact.ImpactFile, needs: []string{StepGraph}, run: p.impact},
		{name: StepInsights, artifact: artifact.InsightsFile, needs: []string{StepGraph}, run: p.insights},
		{name: StepERD, artifact: artifact.ERDFile, needs: []string{StepRefine}, disabled: p.opts.SkipERD, run: p.emitERD},
	}
}

func (p *Pipeline) buildSchema(_ context.Context, st *state) ([]byte, string, error) {
	s, err := schema.Build(st.doc)
	if err != nil {
		return nil, "", err
	}
	st.schema = s
	return nil, fmt.Sprintf("%d tables, %d columns", s.TableCount(), s.TotalColumns()), nil
}

func (p *Pipeline) refine(ctx context.Context, st *state) ([]byte, string, error) {
	res := p.opts.Refiner.Refine(ctx, st.schema)
	if res.LLMErr != nil {
		st.rep.Warn("LLM refinement unavailable, heuristic result kept: %v", res.LLMErr)
	}
	if res.Accepted == 0 && len(res.Rejections) == 0 {
		return nil, "heuristic", nil
	}
	return nil, fmt.Sprintf("%d suggestions accepted, %d rejected", res.Accepted, len(res.Rejections)), nil
}

func (p *Pipeline) emitDDL(_ context.Context, st *state) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := formatter.NewMySQLFormatter(&buf).WithClock(p.now).Format(st.schema); err != nil {
		return nil, "", fmt.Errorf("failed to render DDL: %w", err)
	}
	return buf.Bytes(), "", nil
}

func (p *Pipeline) buildGraph(_ context.Context, st *state) ([]byte, string, error) {
	st.graph = graph.Build(st.schema)
	return nil, fmt.Sprintf("%d nodes, %d edges", st.graph.Tables.Len(), len(st.graph.ForeignKeys)), nil
}

func (p *Pipeline) lineage(_ context.Context, st *state) ([]byte, string, error) {
	source := p.opts.SourceFile
	if source == "" {
		source = st.doc.OriginalName
	}
	return encode(analysis.BuildLineage(st.schema, st.doc.Rows(), source))
}

func (p *Pipeline) impact(_ context.Context, st *state) ([]byte, string, error) {
	return encode(analysis.BuildImpact(st.schema.ID, st.graph))
}

func (p *Pipeline) insights(_ context.Context, st *state) ([]byte, string, error) {
	in := analysis.BuildInsights(st.schema, st.graph)
	data, _, err := encode(in)
	return data, fmt.Sprintf("%d issues", in.Summary.IssueCount), err
}

func (p *Pipeline) emitERD(_ context.Context, st *state) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := formatter.NewMermaidFormatter(&buf).Format(st.schema); err != nil {
		return nil, "", fmt.Errorf("failed to render ERD: %w", err)
	}
	return buf.Bytes(), "", nil
}

func encode(v any) ([]byte, string, error) {
	data, err := artifact.EncodeJSON(v)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode JSON: %w", err)
	}
	return data, "", nil
}

func logStep(logger *zap.Logger, res report.StepResult) {
	fields := []zap.Field{
		zap.String("step", res.Step),
		zap.String("status", string(res.Status)),
		zap.Duration("duration", res.Duration),
	}
	if res.Artifact != "" {
		fields = append(fields, zap.String("artifact", res.Artifact))
	}
	switch res.Status {
	case report.StatusFailed:
		logger.Error("step failed", append(fields, zap.String("error", res.Error))...)
	case report.StatusSkipped:
		logger.Info("step skipped", append(fields, zap.String("reason", res.Reason))...)
	default:
		logger.Info("step completed", fields...)
	}
}
