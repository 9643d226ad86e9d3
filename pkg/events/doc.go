/*
Package events implements an in-memory pub/sub broker: a broadcast-all
event bus with a buffered distribution channel and per-subscriber
buffered channels, delivered best-effort (a full subscriber buffer drops
the event rather than blocking the broadcaster).

ProxyGroupCache publishes hostmap-update events after a rebalance; the
scheduler publishes host-discovered and rule-status events. Nothing in
this module subscribes to the broker: the IPC services do not forward
events to their clients.
*/
package events
