/*
Package metrics defines and registers the discoverer's Prometheus metrics:
queue depth and worker busy fractions, checks dispatched/failed by type,
scheduler tick duration and rule-expansion counts, hostmap revisions per
proxy group, and IPC request counts. Handler exposes them for scraping;
Collector samples Queue and ResultStore into the gauges on a ticker.

This also carries the ambient health/readiness/liveness HTTP handlers
(health.go) used by process supervisors, and a small Timer helper for
histogram observation (metrics.go) — unrelated to the domain metrics
above but kept in this package as the teacher keeps its own equivalents.
*/
package metrics
