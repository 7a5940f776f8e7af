// Package cluster wires machines into a simulation run.
//
// A Config names the machines (Nodes), the variation mode their clock rates
// are drawn from, the internal-event probability and the run duration.
// Cluster.Run binds every machine, lets them run for the configured time,
// signals a stop and waits a bounded time for them to release resources.
// Final log state after the stop is best-effort: a message sent just before
// the stop may never be logged by its receiver.
package cluster
