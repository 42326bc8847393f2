// Package module provides the discovery module implementation
package module

import (
	"dropwatch/internal/modkit"
	"dropwatch/internal/modkit/repokit"

	"dropwatch/internal/adapters/provider"
	"dropwatch/internal/adapters/provider/resy"
	"dropwatch/internal/services/discovery/domain"
	"dropwatch/internal/services/discovery/guardrails"
	"dropwatch/internal/services/discovery/repo"
	"dropwatch/internal/services/discovery/service"
	"dropwatch/internal/services/discovery/sink"
)

// Ports defines the discovery module ports
type Ports struct {
	Poller domain.PollerPort
}

// Module implements the discovery module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the discovery module
// It wires the provider registry, the ClickHouse sink and the service using
// config from deps.Cfg. It does not mount any routes
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	storeBinder := repo.NewPG()

	providers := provider.NewRegistry()
	providers.Register(resy.New(opts.Resy))

	// nil when CH is disabled; the service treats that as no sink
	evSink := sink.New(deps.CH, opts.SinkTable)

	leaseFn := guardrails.MakeBucketLease(deps, opts.LeaseTTL)

	svc := service.New(
		repokit.TxRunner(deps.PG), storeBinder,
		providers, evSink,
		service.Config{
			Provider:     opts.Provider,
			WindowDays:   opts.WindowDays,
			TimeSlots:    opts.TimeSlots,
			PartySizes:   opts.PartySizes,
			WindowHours:  opts.WindowHours,
			DedupeTTL:    opts.DedupeTTL,
			StaleAfter:   opts.StaleAfter,
			EnableLeases: opts.EnableLeases,
			LeaseTTL:     opts.LeaseTTL,
		},
		leaseFn,
	)

	m := &Module{deps: deps}
	m.ports = Ports{Poller: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "discovery" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as discovery has no routes
func (m *Module) MountRoutes(_ interface{}) {}
