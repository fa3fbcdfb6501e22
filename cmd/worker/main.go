package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"poem-annotator/internal/annotate"
	"poem-annotator/internal/app"
	"poem-annotator/internal/httputil"
	"poem-annotator/internal/queue"
	"poem-annotator/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, app.Needs{Store: true, Queue: true, Backend: true})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	if deps.Store == nil {
		deps.Log.Error("worker requires STORE_PROVIDER=postgres")
		os.Exit(1)
	}
	deps.Log.Info("annotation worker starting")

	orch := deps.Orchestrator()
	g, ctx := errgroup.WithContext(ctx)

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeAnnotate, func(ctx context.Context, task queue.Task) error {
			var payload queue.AnnotatePayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleAnnotate(ctx, deps, orch, payload)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps, "worker")
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("worker stopped", "err", err)
	}
}

const statusTimeout = 5 * time.Second

func handleAnnotate(ctx context.Context, deps app.Deps, orch *annotate.Orchestrator, payload queue.AnnotatePayload) error {
	log := deps.Log.With("batch_id", payload.BatchID)
	if err := deps.Store.UpdateBatchStatus(ctx, payload.BatchID, store.StatusProcessing); err != nil {
		return fmt.Errorf("mark batch processing: %w", err)
	}

	results, report := orch.Run(ctx, payload.Poems)
	if report.Cancelled {
		// ctx is already done; the status update needs its own deadline.
		upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
		defer cancel()
		if upErr := deps.Store.UpdateBatchStatus(upCtx, payload.BatchID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark interrupted batch failed", "err", upErr)
		}
		return fmt.Errorf("batch interrupted after %d of %d poems: %w", len(results), report.Total, context.Cause(ctx))
	}
	if report.Mode == annotate.ModeMock {
		log.Warn("backend unavailable; placeholder annotations not stored", "poems", report.Total)
		return deps.Store.UpdateBatchStatus(ctx, payload.BatchID, store.StatusMock)
	}

	if err := deps.Store.SaveResults(ctx, payload.BatchID, results); err != nil {
		if upErr := deps.Store.UpdateBatchStatus(ctx, payload.BatchID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark batch failed", "err", upErr)
		}
		return fmt.Errorf("save results: %w", err)
	}

	log.Info("batch annotated", "mode", report.Mode, "succeeded", report.Succeeded, "failed", report.Failed)
	return deps.Store.UpdateBatchStatus(ctx, payload.BatchID, store.StatusReady)
}
