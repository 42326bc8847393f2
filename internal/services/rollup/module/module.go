// Package module provides the rollup module implementation
package module

import (
	"dropwatch/internal/modkit"
	"dropwatch/internal/modkit/repokit"

	"dropwatch/internal/services/rollup/domain"
	"dropwatch/internal/services/rollup/repo"
	"dropwatch/internal/services/rollup/service"
)

// Ports defines the rollup module ports
type Ports struct {
	Rollup domain.RollupPort
}

// Module implements the rollup module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the rollup module
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	svc := service.New(
		repokit.TxRunner(deps.PG), repo.NewPG(),
		service.Config{
			WindowDays:           opts.WindowDays,
			EventRetentionDays:   opts.EventRetentionDays,
			SessionRetentionDays: opts.SessionRetentionDays,
			MetricsRetentionDays: opts.MetricsRetentionDays,
			BatchLimit:           opts.BatchLimit,
		},
	)

	m := &Module{deps: deps}
	m.ports = Ports{Rollup: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "rollup" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as rollup has no routes
func (m *Module) MountRoutes(_ interface{}) {}
