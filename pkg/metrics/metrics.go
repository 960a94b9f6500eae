// Package metrics exposes Prometheus counters for the app registry subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InstallsTotal counts tenant app installs by result (success, blocked, error).
	InstallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forvalt_app_installs_total",
		Help: "Tenant app installs by result.",
	}, []string{"result"})

	// UpdatesTotal counts tenant app version updates by result.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forvalt_app_updates_total",
		Help: "Tenant app version updates by result.",
	}, []string{"result"})

	// UninstallsTotal counts tenant app uninstalls.
	UninstallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forvalt_app_uninstalls_total",
		Help: "Tenant app uninstalls.",
	})

	// PreflightTotal counts compatibility preflight checks by outcome (ok, failed).
	PreflightTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forvalt_preflight_checks_total",
		Help: "Compatibility preflight checks by outcome.",
	}, []string{"outcome"})

	// PromotionsTotal counts canary-to-stable promotions by result (success, blocked, error).
	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forvalt_promotions_total",
		Help: "Canary-to-stable promotions by result.",
	}, []string{"result"})

	// RollbacksTotal counts rollback operations.
	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forvalt_rollbacks_total",
		Help: "Rollback operations.",
	})

	// CanaryDeploymentsTotal counts canary deployments.
	CanaryDeploymentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forvalt_canary_deployments_total",
		Help: "Canary deployments.",
	})
)
