package ports

import (
	"context"
	"io"
	"time"

	"github.com/dockgate/dockgate/internal/core/domain"
)

// RunOptions describes a container to create and start. A zero HostPort asks
// the gateway to reserve a free loopback port.
type RunOptions struct {
	Image         string
	ContainerPort int
	HostPort      int
	Name          string
	Env           map[string]string
	Command       []string
	AutoRemove    bool
	RestartPolicy string
	Volumes       []string // host:container[:ro|rw]
	Network       string
}

// ExecOptions describes a command to run inside an existing container.
type ExecOptions struct {
	Command []string
	Workdir string
	Env     map[string]string
	TTY     bool
}

// LogOptions selects which part of a container's log stream to read.
type LogOptions struct {
	Tail   int // 0 means everything
	Follow bool
}

// ContainerService defines the core operations the gateway needs from a
// container runtime. This interface allows us to switch between Docker,
// Podman, or Kubernetes without changing the business logic.
//
// Implementations never cache runtime state: every returned descriptor is
// derived from a fresh inspection.
type ContainerService interface {
	// Ping verifies the runtime control channel is reachable.
	Ping(ctx context.Context) error

	// RunContainer creates and starts a container with the gateway's
	// management labels and a published service port, then returns its
	// descriptor.
	RunContainer(ctx context.Context, opts RunOptions) (domain.Container, error)

	// ListContainers returns managed containers, including stopped ones.
	ListContainers(ctx context.Context) ([]domain.Container, error)

	// GetContainer resolves an id or name to a live descriptor.
	GetContainer(ctx context.Context, id string) (domain.Container, error)

	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error

	// ContainerLogs returns the raw log stream. The stream is finite unless
	// Follow is set, in which case it stays open until the container stops
	// or the caller closes it. It is not restartable.
	ContainerLogs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error)

	// Exec runs a command inside the container and waits for it to finish.
	Exec(ctx context.Context, id string, opts ExecOptions) (domain.ExecResult, error)

	ListImages(ctx context.Context) ([]domain.Image, error)
	PullImage(ctx context.Context, ref string) (string, error)
}
