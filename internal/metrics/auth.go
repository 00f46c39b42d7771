package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Authentication Prometheus metrics. Defined in a standalone package so the
// auth service and any exposition surface can share them without cycles.

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by credential source and outcome",
	}, []string{"source", "outcome"})

	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_issued_total",
		Help: "Token pairs issued across logins and refreshes",
	})

	RefreshRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_rotations_total",
		Help: "Refresh tokens successfully rotated",
	})

	RefreshConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_conflicts_total",
		Help: "Refresh rotations lost to a concurrent rotation of the same token",
	})

	DirectoryUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_unavailable_total",
		Help: "Directory authentication attempts that failed to reach the directory",
	})
)

// Register registers the auth metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		LoginAttempts,
		TokensIssued,
		RefreshRotations,
		RefreshConflicts,
		DirectoryUnavailable,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
