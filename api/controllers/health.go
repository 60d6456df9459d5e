package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/andrebarreto/stockflow-backend/api/responses"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthLive reports that the process is up.
func HealthLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, healthReport{Status: "ok"})
	}
}

// HealthReady reports dependency reachability.
func HealthReady(dbPing, redisPing Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		report := healthReport{Status: "ok", Checks: map[string]string{}}
		check := func(name string, p Pinger) {
			if p == nil {
				return
			}
			if err := p.Ping(ctx); err != nil {
				report.Status = "degraded"
				report.Checks[name] = err.Error()
				return
			}
			report.Checks[name] = "ok"
		}
		check("database", dbPing)
		check("redis", redisPing)

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, status, report)
	}
}
