package controllers

import (
	"net/http"
	"strconv"

	"github.com/andrebarreto/stockflow-backend/api/responses"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	pkgerrors "github.com/andrebarreto/stockflow-backend/pkg/errors"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

// GetInventorySnapshot serves the warehouse position. refresh=true bypasses
// the cache and rebuilds from the balances.
func GetInventorySnapshot(svc inventory.SnapshotService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refresh := false
		if raw := r.URL.Query().Get("refresh"); raw != "" {
			value, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refresh value"))
				return
			}
			refresh = value
		}

		var (
			snapshot *inventory.Snapshot
			err      error
		)
		if refresh {
			snapshot, err = svc.Refresh(r.Context())
		} else {
			snapshot, err = svc.Snapshot(r.Context())
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}
