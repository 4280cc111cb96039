//go:build !linux && !darwin && !windows

// File: mux/engine_stub.go
// Author: momentics <momentics@gmail.com>
//
// No readiness or completion primitive is wired up for this platform.

package mux

func platformEngineFactories(cfg Config) []engineFactory { return nil }
