package domain

// Labels written on every container the gateway creates. The runtime's label
// store is the only persisted metadata: the gateway keeps no state of its own
// and rebuilds every descriptor from a live inspection.
const (
	// ManagedLabel marks a container as created by this gateway. Only
	// containers carrying it are visible to list operations.
	ManagedLabel = "dockgate.managed"
	// NameLabel records the optional friendly name given at creation.
	NameLabel = "dockgate.name"
	// ServicePortLabel records the container-internal TCP port the caller
	// asked to expose, as a decimal string. The runtime has no other way to
	// answer "which port matters for this container".
	ServicePortLabel = "dockgate.service-port"
)

// Container is the normalized view of a container derived from a raw runtime
// inspection record. HostPort is only ever a live read: a stopped-and-restarted
// container may rebind to a different host port, so it is re-derived on every
// use and never cached. A zero ServicePort or HostPort means "absent".
type Container struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Image       string            `json:"image"`
	Status      string            `json:"status"` // created, running, paused, restarting, exited, dead
	Labels      map[string]string `json:"labels,omitempty"`
	ServicePort int               `json:"container_port,omitempty"`
	HostPort    int               `json:"host_port,omitempty"`
}

// Image is a summary of a locally available image.
type Image struct {
	ID       string   `json:"id"`
	RepoTags []string `json:"repo_tags"`
	Size     int64    `json:"size"`
}

// ExecResult carries the outcome of a command executed inside a container.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
}
