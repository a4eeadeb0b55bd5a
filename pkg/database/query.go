package database

import (
	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/executor"
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/interrupt"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/metrics"
	"github.com/vertexdb/vertexdb/pkg/planner"
)

// ResultKind tags the shape of a query's answer, mirroring the three
// answer shapes the executor can produce.
type ResultKind int

const (
	ResultOk ResultKind = iota
	ResultRows
	ResultDocuments
)

// Result is a query's complete answer: a batch of rows or documents,
// each one rendered as a plain document keyed by variable name or fetch
// key, ready to serialize.
type Result struct {
	Kind ResultKind
	Rows []executor.ConceptDocument
}

// QueryManager compiles and runs pattern queries against the snapshot
// and concept managers of the transaction that owns it: translation,
// type annotation, planning, and execution in sequence, producing rows
// or documents depending on what the query's pipeline ends in.
type QueryManager struct {
	tx    *Transaction
	stats *planner.Statistics
}

func newQueryManager(tx *Transaction) *QueryManager {
	return &QueryManager{tx: tx, stats: planner.NewStatistics()}
}

// Run translates, annotates, plans, and executes q, honoring sig for
// interruption at every stage boundary the executor checks.
func (qm *QueryManager) Run(sig *interrupt.Signal, q ast.Query) (*Result, error) {
	timer := metrics.NewTimer()

	block, err := ir.Translate(q)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("query", "translate_error").Inc()
		return nil, err
	}

	cache := qm.tx.Types.Cache()
	ta, err := inference.Infer(block, cache)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("query", "inference_error").Inc()
		return nil, err
	}

	planTimer := metrics.NewTimer()
	matchExe := planner.Plan(&block.Conjunction, nil, ta, qm.stats)
	planTimer.ObserveDuration(metrics.PlanningDuration)

	ctx := &executor.Context{
		Reader:     qm.tx.reader(),
		Things:     qm.tx.Things,
		Types:      cache,
		Annotation: ta,
		Parameters: block.Parameters,
		Interrupt:  sig,
	}

	kind := "match"
	var result *Result
	switch {
	case len(block.WriteStages) > 0:
		kind = "write"
		result, err = qm.runWrite(ctx, block, matchExe)
	case len(block.Fetch) > 0:
		kind = "fetch"
		result, err = qm.runFetch(ctx, block, matchExe)
	default:
		result, err = qm.runMatch(ctx, block, matchExe)
	}

	timer.ObserveDurationVec(metrics.QueryDuration, kind)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues(kind, "success").Inc()
	metrics.RowsProduced.Observe(float64(len(result.Rows)))
	return result, nil
}

func (qm *QueryManager) runMatch(ctx *executor.Context, block *ir.Block, matchExe *planner.MatchExecutable) (*Result, error) {
	result := &Result{Kind: ResultRows}
	input := make(executor.Row, matchExe.OutputWidth)
	err := ctx.RunPipeline(matchExe, input, block.Modifiers, func(row executor.Row) bool {
		result.Rows = append(result.Rows, ctx.RowDocument(matchExe, block.Variables, row))
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (qm *QueryManager) runFetch(ctx *executor.Context, block *ir.Block, matchExe *planner.MatchExecutable) (*Result, error) {
	result := &Result{Kind: ResultDocuments}
	input := make(executor.Row, matchExe.OutputWidth)
	err := ctx.RunFetch(matchExe, block.Fetch, input, func(doc executor.ConceptDocument) bool {
		result.Rows = append(result.Rows, doc)
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runWrite drives every row the match pipeline produces through the
// block's write stages in order, threading each row's bindings from one
// stage to the next, and reports the final bindings of each row as one
// answer document.
func (qm *QueryManager) runWrite(ctx *executor.Context, block *ir.Block, matchExe *planner.MatchExecutable) (*Result, error) {
	ws, err := qm.tx.writeSnapshot()
	if err != nil {
		return nil, err
	}

	execs := make([]*planner.WriteExecutable, len(block.WriteStages))
	for i, stage := range block.WriteStages {
		if err := planner.ValidateWriteStage(stage, block.Variables, ctx.Annotation, ctx.Types); err != nil {
			return nil, err
		}
		execs[i] = planner.CompileWrite(stage)
	}

	result := &Result{Kind: ResultRows}
	input := make(executor.Row, matchExe.OutputWidth)
	var writeErr error
	err = ctx.RunPipeline(matchExe, input, block.Modifiers, func(row executor.Row) bool {
		bindings := executor.BindingsFromRow(matchExe, row)
		for _, exe := range execs {
			bindings, writeErr = ctx.RunWrite(ws, block.Variables, exe, bindings)
			if writeErr != nil {
				return false
			}
		}
		result.Rows = append(result.Rows, ctx.BindingsDocument(block.Variables, bindings))
		return true
	})
	if writeErr != nil {
		return nil, writeErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
