// Package service wires the discoverer's components into one value
// constructed at startup (spec.md §9: "encapsulate [the global singleton
// dmanager] into a Service value... pass references explicitly to workers
// and IPC handlers"). It owns the Queue, ResultStore, ProxyGroupCache,
// worker pool, Scheduler, and both IPC services, and is the only thing
// cmd/discoverer talks to.
package service
