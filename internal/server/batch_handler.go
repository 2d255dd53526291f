package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/vidscribe-backend/internal/naming"
	"github.com/yungbote/vidscribe-backend/internal/orchestrator"
	"github.com/yungbote/vidscribe-backend/internal/pipeline"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/temporalx"
	"github.com/yungbote/vidscribe-backend/internal/types"
)

type BatchHandler struct {
	log    *logger.Logger
	tc     temporalsdkclient.Client
	cfg    temporalx.Config
	bucket bucket.Service
}

func newBatchHandler(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, b bucket.Service) *BatchHandler {
	return &BatchHandler{log: log.With("handler", "BatchHandler"), tc: tc, cfg: cfg, bucket: b}
}

type batchRequest struct {
	Query              string `json:"query" binding:"required"`
	Limit              int    `json:"limit"`
	Parallelism        int    `json:"parallelism"`
	MaxDurationMinutes int    `json:"max_duration_minutes"`
	MaxAgeDays         int    `json:"max_age_days"`
	Category           string `json:"category"`
}

func (r *batchRequest) normalize() {
	r.Query = strings.TrimSpace(r.Query)
	if r.Limit < 1 {
		r.Limit = 5
	}
	if r.Limit > 50 {
		r.Limit = 50
	}
	if r.Parallelism < 1 {
		r.Parallelism = pipeline.ResolveParallelism(r.Limit)
	}
	if r.Parallelism > 4 {
		r.Parallelism = 4
	}
	if r.MaxDurationMinutes < 1 {
		r.MaxDurationMinutes = 10
	}
	if r.MaxDurationMinutes > 180 {
		r.MaxDurationMinutes = 180
	}
	if r.MaxAgeDays < 0 {
		r.MaxAgeDays = 0
	}
}

// GET /health reports the service plus reachability of its two backends.
// Backend failures degrade the payload, never the status code.
func (h *BatchHandler) Health(c *gin.Context) {
	out := gin.H{"status": "ok"}

	if _, err := h.bucket.Exists(c.Request.Context(), "manifest.json"); err != nil {
		out["object_store"] = "unreachable"
	} else {
		out["object_store"] = "ok"
	}

	resp, err := h.tc.QueryWorkflow(c.Request.Context(), h.cfg.OrchestratorWorkflowID, "", orchestrator.QueryPendingCount)
	if err == nil {
		var pending int
		if qerr := resp.Get(&pending); qerr == nil {
			out["pending_count"] = pending
		}
	}
	c.JSON(http.StatusOK, out)
}

// POST /batch enqueues a request on the orchestrator, starting it if needed.
func (h *BatchHandler) SubmitBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.normalize()
	if req.Query == "" {
		respondError(c, http.StatusBadRequest, "empty_query", nil)
		return
	}

	requestID := uuid.New().String()
	signal := types.QueryRequest{
		RequestID:          requestID,
		Query:              req.Query,
		Limit:              req.Limit,
		Parallelism:        req.Parallelism,
		MaxDurationMinutes: req.MaxDurationMinutes,
		MaxAgeDays:         req.MaxAgeDays,
		Category:           req.Category,
	}

	run, err := h.tc.SignalWithStartWorkflow(
		c.Request.Context(),
		h.cfg.OrchestratorWorkflowID,
		orchestrator.SignalEnqueue,
		signal,
		temporalsdkclient.StartWorkflowOptions{
			ID:        h.cfg.OrchestratorWorkflowID,
			TaskQueue: pipeline.TaskQueueCPU,
		},
		orchestrator.WorkflowName,
		orchestrator.State{},
	)
	if err != nil {
		h.log.Error("SignalWithStart failed", "query", req.Query, "error", err)
		respondError(c, http.StatusBadGateway, "dispatch_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id":          run.GetID(),
		"run_id":               run.GetRunID(),
		"request_id":           requestID,
		"parallelism":          req.Parallelism,
		"max_duration_minutes": req.MaxDurationMinutes,
	})
}

// POST /process starts a standalone batch workflow, bypassing the
// orchestrator queue.
func (h *BatchHandler) ProcessDirect(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.normalize()
	if req.Query == "" {
		respondError(c, http.StatusBadRequest, "empty_query", nil)
		return
	}

	slug := naming.Slug(req.Query)
	workflowID := fmt.Sprintf("video-pipeline-%s-%s", slug, uuid.New().String()[:8])
	run, err := h.tc.ExecuteWorkflow(
		c.Request.Context(),
		temporalsdkclient.StartWorkflowOptions{
			ID:        workflowID,
			TaskQueue: pipeline.TaskQueueCPU,
		},
		pipeline.WorkflowName,
		pipeline.Input{
			Query:              req.Query,
			Limit:              req.Limit,
			Parallelism:        req.Parallelism,
			MaxDurationMinutes: req.MaxDurationMinutes,
			MaxAgeDays:         req.MaxAgeDays,
			Category:           req.Category,
		},
	)
	if err != nil {
		h.log.Error("ExecuteWorkflow failed", "query", req.Query, "error", err)
		respondError(c, http.StatusBadGateway, "dispatch_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
		"slug":        slug,
	})
}
