// Package orchestrator is the long-lived durable workflow that serializes
// batch requests. Requests arrive as signals, are deduplicated by request id,
// and run one at a time through the batch pipeline.
package orchestrator

import (
	"strings"

	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidscribe-backend/internal/pipeline"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

const (
	WorkflowName      = "query_orchestrator"
	SignalEnqueue     = "enqueue"
	QueryPendingCount = "pending_count"

	// seenLimit bounds the dedup window; oldest ids are evicted first.
	seenLimit = 1000
	// continueAfter compacts workflow history once the queue drains.
	continueAfter = 100
)

// State is carried across continue-as-new so queued requests and the dedup
// window survive history compaction.
type State struct {
	Pending []types.QueryRequest `json:"pending"`
	Seen    []string             `json:"seen"`
}

// Workflow loops forever: wait for a request, run the batch pipeline inline,
// continue-as-new when the history has grown enough and the queue is empty.
func Workflow(ctx workflow.Context, state State) error {
	log := workflow.GetLogger(ctx)

	queue := append([]types.QueryRequest{}, state.Pending...)
	seenOrder := append([]string{}, state.Seen...)
	seen := make(map[string]bool, len(seenOrder))
	for _, id := range seenOrder {
		seen[id] = true
	}
	processed := 0

	enqueue := func(req types.QueryRequest) {
		id := strings.TrimSpace(req.RequestID)
		if id == "" || strings.TrimSpace(req.Query) == "" {
			log.Warn("Dropping invalid request", "request_id", id)
			return
		}
		if seen[id] {
			log.Info("Dropping duplicate request", "request_id", id)
			return
		}
		seen[id] = true
		seenOrder = append(seenOrder, id)
		for len(seenOrder) > seenLimit {
			delete(seen, seenOrder[0])
			seenOrder = seenOrder[1:]
		}
		queue = append(queue, req)
	}

	if err := workflow.SetQueryHandler(ctx, QueryPendingCount, func() (int, error) {
		return len(queue), nil
	}); err != nil {
		return err
	}

	ch := workflow.GetSignalChannel(ctx, SignalEnqueue)
	drain := func() {
		for {
			var req types.QueryRequest
			if !ch.ReceiveAsync(&req) {
				return
			}
			enqueue(req)
		}
	}

	for {
		drain()

		if len(queue) == 0 {
			if processed >= continueAfter {
				drain()
				log.Info("Compacting orchestrator history", "processed", processed, "pending", len(queue))
				return workflow.NewContinueAsNewError(ctx, Workflow, State{
					Pending: queue,
					Seen:    seenOrder,
				})
			}
			// Block until a signal arrives or the workflow is canceled. A
			// bare channel Receive would sleep through cancellation.
			sel := workflow.NewSelector(ctx)
			sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
				var req types.QueryRequest
				c.Receive(ctx, &req)
				enqueue(req)
			})
			sel.AddReceive(ctx.Done(), func(c workflow.ReceiveChannel, more bool) {
				c.Receive(ctx, nil)
			})
			sel.Select(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		req := queue[0]
		queue = queue[1:]

		log.Info("Starting batch", "request_id", req.RequestID, "query", req.Query, "pending", len(queue))
		report, err := pipeline.Workflow(ctx, pipeline.Input{
			Query:              req.Query,
			Limit:              req.Limit,
			Parallelism:        req.Parallelism,
			MaxDurationMinutes: req.MaxDurationMinutes,
			MaxAgeDays:         req.MaxAgeDays,
			Category:           req.Category,
		})
		if err != nil {
			log.Error("Batch failed; continuing with next request", "request_id", req.RequestID, "query", req.Query, "error", err)
		} else {
			log.Info("Batch complete", "request_id", req.RequestID, "completed", report.Completed, "failed", len(report.Failed))
		}
		processed++
	}
}
