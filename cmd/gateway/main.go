package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"poem-annotator/internal/app"
	"poem-annotator/internal/httputil"
	"poem-annotator/internal/poem"
	"poem-annotator/internal/queue"
	"poem-annotator/internal/store"
)

const maxBatchBody = 10 << 20

type batchRequest struct {
	Poems []poem.Record `json:"poems"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, app.Needs{Store: true, Queue: true})
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	if deps.Store == nil {
		deps.Log.Error("gateway requires STORE_PROVIDER=postgres")
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	deps.Log.Info("gateway listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		deps.Log.Error("server failed", "err", err)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)
	r.Post("/api/batches", createBatchHandler(deps))
	r.Get("/api/batches/{id}", batchHandler(deps))
	r.Get("/api/annotations", annotationHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps))
	return r
}

func createBatchHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req batchRequest
		if err := httputil.DecodeJSON(w, r, maxBatchBody, &req); err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}
		if len(req.Poems) == 0 {
			httputil.Fail(deps.Log, w, "at least one poem is required", nil, http.StatusBadRequest)
			return
		}
		if err := poem.Validate(req.Poems); err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, http.StatusBadRequest)
			return
		}

		batch, err := deps.Store.CreateBatch(ctx, len(req.Poems))
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist batch", err, http.StatusInternalServerError)
			return
		}

		body, err := json.Marshal(queue.AnnotatePayload{BatchID: batch.ID, Poems: req.Poems})
		if err != nil {
			fail(deps, ctx, w, "marshal payload failed", err, batch.ID, http.StatusInternalServerError, true)
			return
		}
		task := queue.Task{Type: queue.TaskTypeAnnotate, Payload: body}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			fail(deps, ctx, w, "failed to enqueue batch; please retry", err, batch.ID, http.StatusInternalServerError, true)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"batch_id": batch.ID.String(),
			"status":   batch.Status,
		})
	}
}

// fail is the gateway error path; it can also mark the batch failed.
func fail(deps app.Deps, ctx context.Context, w http.ResponseWriter, message string, err error, batchID uuid.UUID, status int, markFailed bool) {
	log := deps.Log.With("batch_id", batchID)
	if markFailed && batchID != uuid.Nil {
		if upErr := deps.Store.UpdateBatchStatus(ctx, batchID, store.StatusFailed); upErr != nil {
			log.Error("failed to mark batch failed", "err", upErr)
		}
	}

	httputil.Fail(log, w, message, err, status)
}

func batchHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid batch id", err, http.StatusBadRequest)
			return
		}
		batch, err := deps.Store.GetBatch(r.Context(), batchID)
		if errors.Is(err, store.ErrNotFound) {
			httputil.Fail(deps.Log, w, "batch not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load batch", err, http.StatusInternalServerError)
			return
		}

		results := []poem.Result{}
		if batch.Status == store.StatusReady {
			if results, err = deps.Store.ListResults(r.Context(), batchID); err != nil {
				httputil.Fail(deps.Log, w, "failed to load results", err, http.StatusInternalServerError)
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"batch":   batch,
			"results": results,
		})
	}
}

func annotationHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("title")
		if title == "" {
			httputil.Fail(deps.Log, w, "title is required", nil, http.StatusBadRequest)
			return
		}
		a, err := deps.Store.GetAnnotation(r.Context(), title, r.URL.Query().Get("author"))
		if errors.Is(err, store.ErrNotFound) {
			httputil.Fail(deps.Log, w, "annotation not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load annotation", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, a)
	}
}
