// Package router runs a fulfillment plan: every task runs, in order, and
// failures are collected rather than short-circuiting the plan.
package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/eksporyuk/internal/observability/context"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eksporyuk/internal/observability/metrics"
	"github.com/smallbiznis/eksporyuk/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const DefaultTaskTimeout = 15 * time.Second

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type TaskResult struct {
	Name    string
	Err     error
	Elapsed time.Duration
}

// Outcome is the result of one plan run. Err joins every task error.
type Outcome struct {
	RunID   string
	Results []TaskResult
	Err     error
}

// Failed returns the names of tasks that returned an error.
func (o Outcome) Failed() []string {
	var names []string
	for _, res := range o.Results {
		if res.Err != nil {
			names = append(names, res.Name)
		}
	}
	return names
}

type Router struct {
	log         *zap.Logger
	taskTimeout time.Duration
	obsMetrics  *obsmetrics.Metrics
}

func New(log *zap.Logger, taskTimeout time.Duration, metrics *obsmetrics.Metrics) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	return &Router{
		log:         log.Named("fulfillment.router"),
		taskTimeout: taskTimeout,
		obsMetrics:  metrics,
	}
}

// Run executes tasks sequentially. Each task gets its own timeout and a
// panic inside a task is reported as that task's error.
func (r *Router) Run(ctx context.Context, tasks []Task) Outcome {
	runID := ulid.Make().String()
	ctx = obscontext.WithRunID(ctx, runID)
	log := obslogger.WithContext(ctx, r.log).With(zap.String("run_id", runID))

	outcome := Outcome{RunID: runID, Results: make([]TaskResult, 0, len(tasks))}
	for _, task := range tasks {
		res := r.runTask(ctx, task)
		outcome.Results = append(outcome.Results, res)

		status := "ok"
		if res.Err != nil {
			status = "error"
			outcome.Err = errors.Join(outcome.Err, fmt.Errorf("%s: %w", task.Name, res.Err))
			log.Error("fulfillment task failed",
				zap.String("task", task.Name),
				zap.Duration("elapsed", res.Elapsed),
				zap.Error(res.Err),
			)
		} else {
			log.Debug("fulfillment task done", zap.String("task", task.Name), zap.Duration("elapsed", res.Elapsed))
		}
		r.obsMetrics.RecordFulfillmentTask(ctx, task.Name, status, res.Elapsed)
	}
	return outcome
}

func (r *Router) runTask(ctx context.Context, task Task) (res TaskResult) {
	res.Name = task.Name
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "fulfillment."+task.Name, attribute.String("task", task.Name))

	defer func() {
		if recovered := recover(); recovered != nil {
			res.Err = fmt.Errorf("panic: %v", recovered)
			r.log.Error("fulfillment task panicked",
				zap.String("task", task.Name),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		res.Elapsed = time.Since(start)
		tracing.EndSpan(span, res.Err)
	}()

	if task.Run == nil {
		res.Err = errors.New("task has no run function")
		return res
	}
	res.Err = task.Run(ctx)
	return res
}
