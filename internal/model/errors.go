package model

import "errors"

// Error kinds surfaced by the controller and its collaborators
var (
	// ErrInvalidPayload marks a malformed ingress batch; responded to
	// immediately with a 400-equivalent error
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrTopologyLoad marks a topology descriptor that could not be
	// loaded or fails connectivity validation; fatal at startup
	ErrTopologyLoad = errors.New("topology load failed")

	// ErrNoPathAvailable marks a dispatch with no usable path
	ErrNoPathAvailable = errors.New("no path available")

	// ErrForwardingTimeout marks a downstream call that timed out; it is
	// swallowed into an elevated latency sample, never propagated
	ErrForwardingTimeout = errors.New("forwarding timeout")

	// ErrRebalanceInfeasible marks a rebalance request that found no
	// valid alternative; current distribution is retained
	ErrRebalanceInfeasible = errors.New("rebalance infeasible")

	// ErrUnknownNode marks an operation referencing a node id absent
	// from the topology
	ErrUnknownNode = errors.New("unknown node")
)
