// File: mux/engine_select.go
// Author: momentics <momentics@gmail.com>
//
// newBestEngine chooses the most capable ioEngine available, in the
// preference order the platform file for this OS returns, or honors an
// explicit Config.Backend override.

package mux

import (
	"github.com/2217936322/llfio/ioerr"
)

type engineFactory struct {
	engineName string
	new        func(cfg Config) (ioEngine, error)
}

func newBestEngine(cfg Config) (ioEngine, error) {
	candidates := platformEngineFactories(cfg)
	if len(candidates) == 0 {
		return nil, ioerr.New(ioerr.NotSupported, "no I/O multiplexing engine available on this platform")
	}
	if cfg.Backend != "" {
		for _, c := range candidates {
			if c.engineName == cfg.Backend {
				return c.new(cfg)
			}
		}
		return nil, ioerr.New(ioerr.NotSupported, "requested backend unavailable: "+cfg.Backend)
	}
	var lastErr error
	for _, c := range candidates {
		eng, err := c.new(cfg)
		if err == nil {
			return eng, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
