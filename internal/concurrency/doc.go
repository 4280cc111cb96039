// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// High-performance concurrency primitives for the multiplexer with
// NUMA-aware, lock-free, and cross-platform support. Includes CPU/NUMA
// thread pinning and a task executor with per-worker queues and a shared
// global queue (workers do not steal from each other's queues).
//
// All implementations are cross-platform compatible (Linux/Windows).
package concurrency
