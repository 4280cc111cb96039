// File: mux/options.go
// Package mux defines functional options for constructing a Config.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mux

import "time"

// Option customizes a Config before it is passed to BestAvailable.
type Option func(*Config)

// WithThreads requests thread-pool mode with n goroutines calling Run
// concurrently against the same backend.
func WithThreads(n int) Option {
	return func(c *Config) { c.Threads = n }
}

// WithBackend forces a specific engine name instead of BestAvailable's own
// preference order.
func WithBackend(name string) Option {
	return func(c *Config) { c.Backend = name }
}

// WithPollTimeout bounds how long a single wait call blocks when no
// deadline is nearer.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) { c.PollTimeout = d }
}

// WithRegisteredBufferArena sets Config.RegisteredBufferArena. Nothing in
// this module reads that field, so it does not change the granularity used
// by AllocateRegisteredBuffer.
func WithRegisteredBufferArena(bytes int) Option {
	return func(c *Config) { c.RegisteredBufferArena = bytes }
}

// NewConfig applies opts over the zero-value Config.
func NewConfig(opts ...Option) Config {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	return c
}
