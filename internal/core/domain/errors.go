package domain

import "errors"

// Error taxonomy. Every failure category maps to a distinct HTTP status class
// at the edge so callers can tell bad input from "not ready yet" from broken
// infrastructure. Adapters wrap these with %w and handlers match with
// errors.Is.
var (
	// ErrPortAllocation means the OS could not hand out an ephemeral port.
	// Fatal to the enclosing run operation, never retried automatically.
	ErrPortAllocation = errors.New("port allocation failed")

	// ErrRuntimeUnavailable means the container runtime's control channel
	// cannot be reached.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrContainerNotFound means the id or name resolved to nothing.
	ErrContainerNotFound = errors.New("container not found")

	// ErrImageNotFound means the image reference could not be resolved.
	ErrImageNotFound = errors.New("image not found")

	// ErrNameConflict means the requested container name is already taken.
	ErrNameConflict = errors.New("container name already in use")

	// ErrNoPublishedPort means the container exists but has no resolvable
	// host port binding, so there is nothing to proxy to.
	ErrNoPublishedPort = errors.New("container has no published port")

	// ErrReadinessTimeout means the container started but its health
	// endpoint never answered 2xx within the wait budget.
	ErrReadinessTimeout = errors.New("container did not become ready in time")
)
