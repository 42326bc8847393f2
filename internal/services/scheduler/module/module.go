// Package module provides the scheduler module implementation
package module

import (
	"dropwatch/internal/modkit"
	"dropwatch/internal/modkit/repokit"

	discdom "dropwatch/internal/services/discovery/domain"
	rolldom "dropwatch/internal/services/rollup/domain"
	"dropwatch/internal/services/scheduler/domain"
	"dropwatch/internal/services/scheduler/repo"
	"dropwatch/internal/services/scheduler/service"
)

// Ports defines the scheduler module ports
type Ports struct {
	Scheduler domain.SchedulerPort
}

// Module implements the scheduler module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the scheduler module around the discovery and rollup ports
func New(deps modkit.Deps, poller discdom.PollerPort, rollup rolldom.RollupPort) *Module {
	opts := FromConfig(deps.Cfg)

	svc := service.New(
		repokit.TxRunner(deps.PG), repo.NewPG(),
		poller, rollup,
		service.Config{
			Tick:          opts.Tick,
			Cooldown:      opts.Cooldown,
			MaxConcurrent: opts.MaxConcurrent,
			DailySpec:     opts.DailySpec,
		},
	)

	m := &Module{deps: deps}
	m.ports = Ports{Scheduler: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "scheduler" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as scheduler has no routes
func (m *Module) MountRoutes(_ interface{}) {}
