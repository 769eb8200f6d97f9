package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worqly/orchestrator/internal/engine"
	"github.com/worqly/orchestrator/internal/graph"
	"github.com/worqly/orchestrator/internal/runner"
)

// ErrTimeout marks a task cancelled by the hard time limit.
var ErrTimeout = errors.New("task hard time limit exceeded")

const (
	// HardTimeLimit cancels a task outright.
	HardTimeLimit = 30 * time.Minute
	// SoftTimeLimit only logs a warning, giving the task a window to
	// finish before the hard limit kills it.
	SoftTimeLimit = 25 * time.Minute
	// MaxTasksPerWorker is how many tasks a worker processes before it
	// exits to be recycled by its supervisor.
	MaxTasksPerWorker = 1000
)

// Executor runs one workflow to completion. *engine.Coordinator satisfies
// this.
type Executor interface {
	Run(ctx context.Context, g *graph.Graph, trigger map[string]any) (*engine.RunResult, error)
}

// WorkerOptions tune a worker's task limits. Zero values take the
// package defaults. Runners is required only for node tasks.
type WorkerOptions struct {
	HardLimit time.Duration
	SoftLimit time.Duration
	MaxTasks  int
	Runners   *runner.Registry
}

// Worker pulls tasks from a Queue and executes their workflows.
type Worker struct {
	queue    Queue
	executor Executor
	results  *ResultStore
	logger   *zap.SugaredLogger
	opts     WorkerOptions
}

func NewWorker(q Queue, executor Executor, results *ResultStore, logger *zap.SugaredLogger, opts WorkerOptions) *Worker {
	if opts.HardLimit <= 0 {
		opts.HardLimit = HardTimeLimit
	}
	if opts.SoftLimit <= 0 || opts.SoftLimit > opts.HardLimit {
		opts.SoftLimit = SoftTimeLimit
	}
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = MaxTasksPerWorker
	}
	return &Worker{
		queue:    q,
		executor: executor,
		results:  results,
		logger:   logger,
		opts:     opts,
	}
}

// Run processes tasks until the context is cancelled or the task budget
// is exhausted. Returns nil on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	for processed := 0; processed < w.opts.MaxTasks; processed++ {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("dequeue task: %w", err)
		}
		if task == nil {
			continue
		}
		w.Process(ctx, task)
	}
	w.logger.Infow("worker reached task budget, exiting for recycle", "max_tasks", w.opts.MaxTasks)
	return nil
}

// Process executes one task under the soft and hard time limits and
// stores its result.
func (w *Worker) Process(ctx context.Context, task *Task) *TaskResult {
	taskCtx, cancel := context.WithTimeout(ctx, w.opts.HardLimit)
	defer cancel()

	start := time.Now()
	soft := time.AfterFunc(w.opts.SoftLimit, func() {
		w.logger.Warnw("task exceeded soft time limit",
			"task_id", task.ID, "kind", task.Kind, "limit", w.opts.SoftLimit)
	})
	defer soft.Stop()

	var result *TaskResult
	switch task.Kind {
	case KindRun:
		result = w.executeRun(taskCtx, task)
	case KindNode:
		result = w.executeNodes(taskCtx, task)
	case KindChain:
		result = w.executeChain(taskCtx, task)
	case KindParallel:
		result = w.executeParallel(taskCtx, task)
	default:
		result = &TaskResult{
			TaskID: task.ID,
			Kind:   task.Kind,
			Error:  fmt.Sprintf("unknown task kind: %s", task.Kind),
		}
	}
	result.CompletedAt = time.Now()
	if !result.Success && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		// The hard limit fired, not the caller's context.
		result.Err = fmt.Errorf("task %s: %w", task.ID, ErrTimeout)
	}
	if w.results != nil {
		w.results.Set(result)
	}

	w.logger.Infow("task processed",
		"task_id", task.ID, "kind", task.Kind,
		"success", result.Success, "duration", time.Since(start))
	return result
}

func (w *Worker) executeRun(ctx context.Context, task *Task) *TaskResult {
	out := &TaskResult{TaskID: task.ID, Kind: task.Kind}
	if len(task.Runs) == 0 {
		out.Error = "task has no runs"
		return out
	}

	req := task.Runs[0]
	res, err := w.executor.Run(ctx, req.Graph, req.Trigger)
	if res != nil {
		out.Runs = append(out.Runs, res)
		out.Success = res.Success
		out.Error = res.Error
	}
	if err != nil {
		out.Success = false
		out.Error = err.Error()
	}
	return out
}

// executeNodes runs bare nodes in order, outside any workflow. The first
// node takes the submitted input; each node's output then becomes the
// next node's input. The first failed node aborts the rest; records
// collected so far are kept.
func (w *Worker) executeNodes(ctx context.Context, task *Task) *TaskResult {
	out := &TaskResult{TaskID: task.ID, Kind: task.Kind}
	if len(task.Nodes) == 0 {
		out.Error = "task has no nodes"
		return out
	}
	if w.opts.Runners == nil {
		out.Error = "worker has no runner registry for node tasks"
		return out
	}

	run := &engine.RunResult{
		RunID:   uuid.New().String(),
		Status:  engine.RunCompleted,
		Success: true,
		Outputs: make(map[string]any, len(task.Nodes)),
	}
	out.Runs = append(out.Runs, run)

	shared := make(map[string]any)
	input := task.Nodes[0].Input
	for i := range task.Nodes {
		node := task.Nodes[i].Node
		rec := engine.ExecutionRecord{
			RunID:     run.RunID,
			NodeID:    node.ID,
			NodeType:  node.Type,
			NodeName:  node.Name,
			Input:     input,
			StartedAt: time.Now(),
		}

		var res runner.Result
		rn, err := w.opts.Runners.Resolve(&node)
		if err == nil {
			res, err = rn.Run(ctx, runner.Input{Value: input, Shared: shared, Config: node.Config})
		}
		rec.CompletedAt = time.Now()
		rec.Duration = rec.CompletedAt.Sub(rec.StartedAt)

		if err != nil {
			rec.Status = engine.StatusFailed
			rec.Error = err.Error()
			run.Records = append(run.Records, rec)
			run.Status = engine.RunFailed
			run.Success = false
			run.Error = fmt.Sprintf("node %s: %s", node.ID, err)
			out.Error = fmt.Sprintf("node chain link %d: %s", i, err)
			return out
		}

		rec.Status = engine.StatusCompleted
		rec.Output = res.Output
		run.Records = append(run.Records, rec)
		run.Outputs[node.ID] = res.Output
		if len(res.ContextPatch) > 0 {
			if mergeErr := mergo.Merge(&shared, res.ContextPatch, mergo.WithOverride); mergeErr != nil {
				w.logger.Warnw("Failed to merge context patch", "node_id", node.ID, "error", mergeErr)
			}
		}
		input = res.Output
	}
	out.Success = true
	return out
}

// executeChain runs workflows in order, merging each run's outputs over
// the next run's trigger. The first failed link aborts the rest; results
// collected so far are kept.
func (w *Worker) executeChain(ctx context.Context, task *Task) *TaskResult {
	out := &TaskResult{TaskID: task.ID, Kind: task.Kind}
	if len(task.Runs) == 0 {
		out.Error = "task has no runs"
		return out
	}

	var prev *engine.RunResult
	for i, req := range task.Runs {
		trigger := cloneTrigger(req.Trigger)
		if prev != nil && len(prev.Outputs) > 0 {
			if trigger == nil {
				trigger = make(map[string]any, len(prev.Outputs))
			}
			if err := mergo.Merge(&trigger, prev.Outputs, mergo.WithOverride); err != nil {
				out.Error = fmt.Sprintf("chain link %d: merge upstream outputs: %s", i, err)
				return out
			}
		}

		res, err := w.executor.Run(ctx, req.Graph, trigger)
		if res != nil {
			out.Runs = append(out.Runs, res)
		}
		if err != nil {
			out.Error = fmt.Sprintf("chain link %d: %s", i, err)
			return out
		}
		if !res.Success {
			out.Error = fmt.Sprintf("chain link %d: %s", i, res.Error)
			return out
		}
		prev = res
	}
	out.Success = true
	return out
}

// executeParallel fans the runs out concurrently and joins on all of
// them. Success requires every run to succeed; failed runs still
// contribute their partial results.
func (w *Worker) executeParallel(ctx context.Context, task *Task) *TaskResult {
	out := &TaskResult{TaskID: task.ID, Kind: task.Kind}
	if len(task.Runs) == 0 {
		out.Error = "task has no runs"
		return out
	}

	results := make([]*engine.RunResult, len(task.Runs))
	errs := make([]error, len(task.Runs))

	var wg sync.WaitGroup
	for i, req := range task.Runs {
		wg.Add(1)
		go func(i int, req RunRequest) {
			defer wg.Done()
			results[i], errs[i] = w.executor.Run(ctx, req.Graph, req.Trigger)
		}(i, req)
	}
	wg.Wait()

	var failures []string
	for i := range task.Runs {
		if results[i] != nil {
			out.Runs = append(out.Runs, results[i])
		}
		switch {
		case errs[i] != nil:
			failures = append(failures, fmt.Sprintf("run %d: %s", i, errs[i]))
		case results[i] == nil:
			failures = append(failures, fmt.Sprintf("run %d: no result", i))
		case !results[i].Success:
			failures = append(failures, fmt.Sprintf("run %d: %s", i, results[i].Error))
		}
	}
	if len(failures) > 0 {
		out.Error = strings.Join(failures, "; ")
		return out
	}
	out.Success = true
	return out
}

func cloneTrigger(trigger map[string]any) map[string]any {
	if trigger == nil {
		return nil
	}
	out := make(map[string]any, len(trigger))
	for k, v := range trigger {
		out[k] = v
	}
	return out
}
