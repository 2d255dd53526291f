// Package temporalworker starts the activity and workflow pollers. A process
// can serve the CPU queue, the GPU queue, or both, selected by WORKER_QUEUES.
package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/vidscribe-backend/internal/orchestrator"
	"github.com/yungbote/vidscribe-backend/internal/pipeline"
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/temporalx"
)

type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	acts *pipeline.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, acts *pipeline.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if acts == nil {
		return nil, fmt.Errorf("temporal worker missing activities")
	}
	return &Runner{log: log, tc: tc, acts: acts}, nil
}

// Start brings up one worker per enabled queue, retrying while the Temporal
// server or namespace is still coming up.
func (r *Runner) Start(ctx context.Context) error {
	cfg := temporalx.LoadConfig()
	queues := enabledQueues()
	if len(queues) == 0 {
		return fmt.Errorf("temporal worker: WORKER_QUEUES selected no queues")
	}
	r.log.Info("Starting Temporal workers", "address", cfg.Address, "namespace", cfg.Namespace, "queues", strings.Join(queues, ","))

	if envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
		if err := temporalx.EnsureNamespace(ctx, cfg, r.log); err != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	maxWait := envutil.DurationSeconds("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)
	backoff := envutil.DurationMillis("TEMPORAL_WORKER_START_BACKOFF_MS", 250)
	backoffMax := envutil.DurationMillis("TEMPORAL_WORKER_START_BACKOFF_MAX_MS", 5000)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		workers := make([]worker.Worker, 0, len(queues))
		startErr := func() error {
			for _, q := range queues {
				w := r.newWorker(q)
				if err := w.Start(); err != nil {
					for _, started := range workers {
						started.Stop()
					}
					w.Stop()
					return err
				}
				workers = append(workers, w)
			}
			return nil
		}()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				for _, w := range workers {
					w.Stop()
				}
			}()
			r.log.Info("Temporal workers started", "namespace", cfg.Namespace, "queues", strings.Join(queues, ","), "attempts", attempt)
			return nil
		}
		workers = workers[:0]

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
			_ = temporalx.EnsureNamespace(ctx, cfg, r.log)
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "attempt", attempt, "error", startErr)
		time.Sleep(clampBackoff(backoff, backoffMax, attempt))
	}
}

// newWorker builds the worker for one queue. Workflows poll only the CPU
// queue; the GPU worker serves the inference activities.
func (r *Runner) newWorker(queue string) worker.Worker {
	threads := envutil.Int("CPU_WORKER_THREADS", 4)
	if queue == pipeline.TaskQueueGPU {
		threads = envutil.Int("GPU_WORKER_THREADS", 1)
	}
	if threads < 1 {
		threads = 1
	}

	w := worker.New(r.tc, queue, worker.Options{
		MaxConcurrentActivityExecutionSize:     threads,
		MaxConcurrentWorkflowTaskExecutionSize: threads,
	})

	switch queue {
	case pipeline.TaskQueueCPU:
		w.RegisterWorkflowWithOptions(orchestrator.Workflow, workflow.RegisterOptions{Name: orchestrator.WorkflowName})
		w.RegisterWorkflowWithOptions(pipeline.Workflow, workflow.RegisterOptions{Name: pipeline.WorkflowName})
		w.RegisterActivityWithOptions(r.acts.SearchVideos, activity.RegisterOptions{Name: pipeline.ActivitySearch})
		w.RegisterActivityWithOptions(r.acts.DownloadVideo, activity.RegisterOptions{Name: pipeline.ActivityDownload})
		w.RegisterActivityWithOptions(r.acts.BuildCombined, activity.RegisterOptions{Name: pipeline.ActivityBuildCombined})
		w.RegisterActivityWithOptions(r.acts.RefreshIndex, activity.RegisterOptions{Name: pipeline.ActivityRefreshIndex})
		w.RegisterActivityWithOptions(r.acts.MarkFailed, activity.RegisterOptions{Name: pipeline.ActivityMarkFailed})
	case pipeline.TaskQueueGPU:
		w.RegisterActivityWithOptions(r.acts.TranscribeVideo, activity.RegisterOptions{Name: pipeline.ActivityTranscribe})
		w.RegisterActivityWithOptions(r.acts.SummarizeContent, activity.RegisterOptions{Name: pipeline.ActivitySummarize})
	}
	return w
}

func enabledQueues() []string {
	raw := envutil.String("WORKER_QUEUES", "cpu,gpu")
	var queues []string
	for _, part := range strings.Split(raw, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "cpu":
			queues = append(queues, pipeline.TaskQueueCPU)
		case "gpu":
			queues = append(queues, pipeline.TaskQueueGPU)
		}
	}
	return queues
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
