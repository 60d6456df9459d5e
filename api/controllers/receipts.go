package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andrebarreto/stockflow-backend/api/responses"
	"github.com/andrebarreto/stockflow-backend/api/validators"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/receipts"
	"github.com/andrebarreto/stockflow-backend/pkg/enums"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

func receiptIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "receiptID"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid receipt id")
	}
	return id, nil
}

// CreateReceipt drafts an inbound receipt.
func CreateReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input receipts.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.ActorID = actorID

		receipt, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, receipt)
	}
}

// PostReceipt credits a draft receipt into stock, optionally allocating the
// new quantity to waiting orders. The cached inventory snapshot is invalidated
// best-effort once the posting commits.
func PostReceipt(svc receipts.Service, snapshots inventory.SnapshotService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receiptID, err := receiptIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		opts := receipts.PostOptions{AutoAllocate: true, ActorID: actorID}
		if raw := strings.TrimSpace(r.URL.Query().Get("allocate")); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid allocate value"))
				return
			}
			opts.AutoAllocate = value
		}

		result, err := svc.Post(r.Context(), receiptID, opts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if snapshots != nil {
			if err := snapshots.Invalidate(r.Context()); err != nil {
				logg.Error(r.Context(), "snapshot invalidation failed after receipt post", err)
			}
		}
		responses.WriteSuccess(w, result)
	}
}

// GetReceipt returns one receipt with its lines.
func GetReceipt(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiptID, err := receiptIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		receipt, err := svc.Get(r.Context(), receiptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipt)
	}
}

// ListReceipts returns receipts, optionally filtered.
func ListReceipts(svc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := receipts.ListFilter{}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseReceiptStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			receiptType, err := enums.ParseReceiptType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter"))
				return
			}
			filter.Type = &receiptType
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("source_order_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source_order_id filter"))
				return
			}
			filter.SourceOrderID = &id
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
