package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

const actorIDHeader = "X-Actor-Id"

// Actor reads the X-Actor-Id header set by the identity gateway and makes
// the id available to handlers. Requests without a parsable id pass through
// with uuid.Nil; handlers that need an actor reject those themselves.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(actorIDHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			actorID, err := uuid.Parse(raw)
			if err != nil {
				if logg != nil {
					logg.Warn(r.Context(), "request carried a malformed actor id")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithActorID(r.Context(), actorID)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actorID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
