// Package module wires the feed into the API using modkit
package module

import (
	"net/http"

	modkit "dropwatch/internal/modkit"
	"dropwatch/internal/modkit/httpkit"
	str "dropwatch/internal/platform/strings"
	feedhttp "dropwatch/internal/services/feed/http"
	feedrepo "dropwatch/internal/services/feed/repo"
	feedsvc "dropwatch/internal/services/feed/service"
)

// Ports defines the feed module ports
type Ports struct {
	Feed feedsvc.Service
}

// Module implements the feed module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports Ports

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc feedsvc.Service
}

// New constructs the feed module
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("feed"), modkit.WithPrefix("/feed")}, opts...)...)

	o := FromConfig(deps.Cfg)
	svc := feedsvc.New(deps.PG, feedrepo.NewPG(), feedsvc.Config{
		DefaultLimit:        o.DefaultLimit,
		MaxLimit:            o.MaxLimit,
		DefaultOpenedWithin: o.DefaultOpenedWithin,
		StaleAfter:          o.StaleAfter,
		TickInterval:        o.TickInterval,
	})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = Ports{Feed: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		feedhttp.Register(r, m.svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
