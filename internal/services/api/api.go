// Package api assembles the HTTP surface from its modules
package api

import (
	"dropwatch/internal/platform/config"
	"dropwatch/internal/platform/logger"
	phttp "dropwatch/internal/platform/net/http"
	"dropwatch/internal/platform/store"

	"dropwatch/internal/modkit"
	"dropwatch/internal/modkit/httpkit"
	"dropwatch/internal/modkit/module"

	metamod "dropwatch/internal/services/api/meta/module"
	feedmod "dropwatch/internal/services/feed/module"
)

// Options configures the API mount
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         *logger.Logger
	EnableProfiler bool
}

// Mount attaches the versioned API, its modules, and the optional
// profiler to r
func Mount(r phttp.Router, opt Options) {
	deps := modkit.Deps{
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}
	if opt.Logger != nil {
		deps.Log = *opt.Logger
	}

	mods := []module.Module{
		metamod.New(deps),
		feedmod.New(deps),
	}

	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			// ports go into the registry so other modules can look them up
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})
}
