package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/dockgate/dockgate/internal/core/domain"
	"github.com/dockgate/dockgate/internal/core/ports"
	"github.com/dockgate/dockgate/internal/logging"
	"github.com/dockgate/dockgate/internal/netutil"
)

// dockerAPI is the subset of the SDK client the adapter uses; tests substitute
// a fake.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerExecCreate(ctx context.Context, containerID string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	ImageList(ctx context.Context, options types.ImageListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
}

// Adapter implements ports.ContainerService using the Docker SDK.
type Adapter struct {
	cli dockerAPI
}

var _ ports.ContainerService = (*Adapter)(nil)

// NewAdapter creates a new Docker adapter instance. host may be empty to use
// the standard environment discovery.
func NewAdapter(host string) (*Adapter, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// Ping verifies the runtime control channel is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return mapRuntimeErr(err, domain.ErrRuntimeUnavailable)
	}
	return nil
}

// RunContainer creates and starts a container with the gateway's management
// labels and the requested port published on loopback. A zero HostPort
// reserves a free ephemeral port first; the reservation is advisory and the
// whole run fails if another process wins the race and the bind fails.
func (a *Adapter) RunContainer(ctx context.Context, opts ports.RunOptions) (domain.Container, error) {
	hostPort := opts.HostPort
	if hostPort == 0 {
		p, err := netutil.ReservePort()
		if err != nil {
			return domain.Container{}, err
		}
		hostPort = p
	}

	labels := map[string]string{
		domain.ManagedLabel:     "true",
		domain.ServicePortLabel: strconv.Itoa(opts.ContainerPort),
	}
	if opts.Name != "" {
		labels[domain.NameLabel] = opts.Name
	}

	servicePort, err := nat.NewPort("tcp", strconv.Itoa(opts.ContainerPort))
	if err != nil {
		return domain.Container{}, fmt.Errorf("invalid container port %d: %w", opts.ContainerPort, err)
	}

	cfg := &container.Config{
		Image:        opts.Image,
		Labels:       labels,
		Env:          envSlice(opts.Env),
		ExposedPorts: nat.PortSet{servicePort: struct{}{}},
	}
	if len(opts.Command) > 0 {
		cfg.Cmd = strslice.StrSlice(opts.Command)
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			servicePort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}},
		},
		AutoRemove: opts.AutoRemove,
		Binds:      parseVolumeSpecs(opts.Volumes),
	}
	// The daemon refuses restart policies on auto-removed containers.
	if opts.RestartPolicy != "" && !opts.AutoRemove {
		hostCfg.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(opts.RestartPolicy)}
	}
	if opts.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(opts.Network)
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return domain.Container{}, mapRuntimeErr(err, domain.ErrImageNotFound)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		// Leave no half-created container behind a failed run.
		_ = a.cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})
		return domain.Container{}, mapRuntimeErr(err, domain.ErrContainerNotFound)
	}

	logging.Get().Info().
		Str("container", resp.ID).
		Str("image", opts.Image).
		Int("container_port", opts.ContainerPort).
		Int("host_port", hostPort).
		Msg("container started")

	return a.GetContainer(ctx, resp.ID)
}

// ListContainers returns managed containers, including stopped ones. Each
// entry is re-inspected so the port view reflects the runtime's current state.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	list, err := a.cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", domain.ManagedLabel)),
	})
	if err != nil {
		return nil, mapRuntimeErr(err, domain.ErrRuntimeUnavailable)
	}

	out := make([]domain.Container, 0, len(list))
	for _, c := range list {
		insp, err := a.cli.ContainerInspect(ctx, c.ID)
		if err != nil {
			// Removed between list and inspect; skip.
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, mapRuntimeErr(err, domain.ErrContainerNotFound)
		}
		if !isManaged(labelsOf(insp)) {
			continue
		}
		out = append(out, describe(insp))
	}
	return out, nil
}

// GetContainer resolves an id or name to a live descriptor.
func (a *Adapter) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	insp, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return domain.Container{}, mapRuntimeErr(err, domain.ErrContainerNotFound)
	}
	return describe(insp), nil
}

func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	return mapRuntimeErr(a.cli.ContainerStart(ctx, id, types.ContainerStartOptions{}), domain.ErrContainerNotFound)
}

func (a *Adapter) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	return mapRuntimeErr(a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}), domain.ErrContainerNotFound)
}

func (a *Adapter) RemoveContainer(ctx context.Context, id string, force bool) error {
	return mapRuntimeErr(a.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force}), domain.ErrContainerNotFound)
}

// ContainerLogs returns the raw log stream for a container. The stream is
// finite unless opts.Follow is set and is not restartable.
func (a *Adapter) ContainerLogs(ctx context.Context, id string, opts ports.LogOptions) (io.ReadCloser, error) {
	logOpts := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       "all",
	}
	if opts.Tail > 0 {
		logOpts.Tail = strconv.Itoa(opts.Tail)
	}
	rc, err := a.cli.ContainerLogs(ctx, id, logOpts)
	if err != nil {
		return nil, mapRuntimeErr(err, domain.ErrContainerNotFound)
	}
	return rc, nil
}

// Exec runs a command inside the container, waits for it to finish and
// returns the exit code with demultiplexed output.
func (a *Adapter) Exec(ctx context.Context, id string, opts ports.ExecOptions) (domain.ExecResult, error) {
	created, err := a.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          opts.Command,
		WorkingDir:   opts.Workdir,
		Env:          envSlice(opts.Env),
		Tty:          opts.TTY,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return domain.ExecResult{}, mapRuntimeErr(err, domain.ErrContainerNotFound)
	}

	attach, err := a.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{Tty: opts.TTY})
	if err != nil {
		return domain.ExecResult{}, mapRuntimeErr(err, domain.ErrContainerNotFound)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if opts.TTY {
		// With a TTY the streams are interleaved on one channel.
		_, err = io.Copy(&stdout, attach.Reader)
	} else {
		_, err = stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
	}
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("reading exec output: %w", err)
	}

	insp, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return domain.ExecResult{}, mapRuntimeErr(err, domain.ErrContainerNotFound)
	}

	return domain.ExecResult{
		ExitCode: insp.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// ListImages returns summaries of locally available images.
func (a *Adapter) ListImages(ctx context.Context) ([]domain.Image, error) {
	list, err := a.cli.ImageList(ctx, types.ImageListOptions{})
	if err != nil {
		return nil, mapRuntimeErr(err, domain.ErrRuntimeUnavailable)
	}
	out := make([]domain.Image, 0, len(list))
	for _, img := range list {
		out = append(out, domain.Image{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Size:     img.Size,
		})
	}
	return out, nil
}

// PullImage pulls the given reference and returns the resulting image ID.
func (a *Adapter) PullImage(ctx context.Context, ref string) (string, error) {
	logging.Get().Info().Str("image", ref).Msg("pulling image")
	rc, err := a.cli.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return "", mapRuntimeErr(err, domain.ErrImageNotFound)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return "", fmt.Errorf("image pull %s: %w", ref, err)
	}
	inspected, _, err := a.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return "", mapRuntimeErr(err, domain.ErrImageNotFound)
	}
	return inspected.ID, nil
}

// mapRuntimeErr translates SDK errors into the gateway's taxonomy. notFound is
// the sentinel a not-found condition maps to, since it depends on whether the
// call addressed a container or an image.
func mapRuntimeErr(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %v", notFound, err)
	case errdefs.IsConflict(err):
		return fmt.Errorf("%w: %v", domain.ErrNameConflict, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %v", domain.ErrRuntimeUnavailable, err)
	default:
		return err
	}
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func labelsOf(insp types.ContainerJSON) map[string]string {
	if insp.Config == nil {
		return nil
	}
	return insp.Config.Labels
}
