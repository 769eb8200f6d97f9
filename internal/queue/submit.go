package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/worqly/orchestrator/internal/graph"
)

// Submitter builds tasks and places them on the broker. The returned task
// ID is the handle for looking up the result later.
type Submitter struct {
	queue Queue
}

func NewSubmitter(q Queue) *Submitter {
	return &Submitter{queue: q}
}

// SubmitRun enqueues a single workflow execution.
func (s *Submitter) SubmitRun(ctx context.Context, g *graph.Graph, trigger map[string]any) (string, error) {
	return s.submit(ctx, KindRun, []RunRequest{{Graph: g, Trigger: trigger}}, time.Time{})
}

// SubmitRunAt enqueues a single workflow execution that becomes eligible
// no earlier than 'at'.
func (s *Submitter) SubmitRunAt(ctx context.Context, g *graph.Graph, trigger map[string]any, at time.Time) (string, error) {
	return s.submit(ctx, KindRun, []RunRequest{{Graph: g, Trigger: trigger}}, at)
}

// SubmitNode enqueues a single bare node execution with an explicit
// input, outside any workflow.
func (s *Submitter) SubmitNode(ctx context.Context, node graph.Node, input any) (string, error) {
	return s.submitNodes(ctx, []NodeRequest{{Node: node, Input: input}})
}

// SubmitNodeChain enqueues bare nodes to run sequentially: input seeds
// the first node, then each node's output becomes the next node's input.
// The first failed node aborts the rest.
func (s *Submitter) SubmitNodeChain(ctx context.Context, nodes []graph.Node, input any) (string, error) {
	reqs := make([]NodeRequest, len(nodes))
	for i, n := range nodes {
		reqs[i] = NodeRequest{Node: n}
	}
	if len(reqs) > 0 {
		reqs[0].Input = input
	}
	return s.submitNodes(ctx, reqs)
}

// SubmitChain enqueues workflows to run sequentially, each run's outputs
// feeding the next run's trigger.
func (s *Submitter) SubmitChain(ctx context.Context, runs []RunRequest) (string, error) {
	return s.submit(ctx, KindChain, runs, time.Time{})
}

// SubmitParallel enqueues workflows to run concurrently as one task.
func (s *Submitter) SubmitParallel(ctx context.Context, runs []RunRequest) (string, error) {
	return s.submit(ctx, KindParallel, runs, time.Time{})
}

func (s *Submitter) submitNodes(ctx context.Context, nodes []NodeRequest) (string, error) {
	if len(nodes) == 0 {
		return "", fmt.Errorf("submit %s: no nodes", KindNode)
	}
	for i, req := range nodes {
		if req.Node.ID == "" || req.Node.Type == "" {
			return "", fmt.Errorf("submit %s: node %d missing id or type", KindNode, i)
		}
	}

	t := Task{
		ID:         uuid.New().String(),
		Kind:       KindNode,
		Nodes:      nodes,
		EnqueuedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, t); err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", KindNode, err)
	}
	return t.ID, nil
}

func (s *Submitter) submit(ctx context.Context, kind Kind, runs []RunRequest, at time.Time) (string, error) {
	if len(runs) == 0 {
		return "", fmt.Errorf("submit %s: no runs", kind)
	}
	for i, req := range runs {
		if req.Graph == nil {
			return "", fmt.Errorf("submit %s: run %d has no graph", kind, i)
		}
	}

	t := Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		Runs:       runs,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	if err := s.queue.Enqueue(ctx, t); err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", kind, err)
	}
	return t.ID, nil
}
