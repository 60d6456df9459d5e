package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andrebarreto/stockflow-backend/api/responses"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/production"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

func taskIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid task id")
	}
	return id, nil
}

// ListProductionTasks returns the production queue, optionally filtered.
func ListProductionTasks(svc production.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := production.ListFilter{}

		if raw := strings.TrimSpace(r.URL.Query().Get("order_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id filter"))
				return
			}
			filter.OrderID = &id
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("material_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid material_id filter"))
				return
			}
			filter.MaterialID = &id
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseProductionTaskStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}

		tasks, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tasks)
	}
}

// GetProductionTask returns one task.
func GetProductionTask(svc production.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := taskIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := svc.Get(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}

// StartProductionTask moves a pending task onto the floor.
func StartProductionTask(svc production.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		taskID, err := taskIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.Start(r.Context(), taskID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}

// CompleteProductionTask finishes a run, posting its output into stock and
// invalidating the cached inventory snapshot best-effort.
func CompleteProductionTask(svc production.Service, snapshots inventory.SnapshotService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		taskID, err := taskIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Complete(r.Context(), taskID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if snapshots != nil {
			if err := snapshots.Invalidate(r.Context()); err != nil {
				logg.Error(r.Context(), "snapshot invalidation failed after task completion", err)
			}
		}
		responses.WriteSuccess(w, result)
	}
}
