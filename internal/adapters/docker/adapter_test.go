package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockgate/dockgate/internal/core/domain"
	"github.com/dockgate/dockgate/internal/core/ports"
)

const fakeCreatedID = "ctr-1"

// fakeDockerAPI implements the subset of Docker client methods used by the
// adapter and echoes created state back through inspect, so descriptors are
// derived the same way they would be from a live daemon.
type fakeDockerAPI struct {
	pingErr error

	createdCfg  *container.Config
	createdHost *container.HostConfig
	createdName string
	createErr   error

	startErr error
	started  []string
	stopped  []string
	stopSecs int
	removed  []string

	list     []types.Container
	listOpts types.ContainerListOptions
	inspects map[string]types.ContainerJSON
	missing  map[string]bool

	logsRC io.ReadCloser

	execCfg    types.ExecConfig
	execStream []byte
	execExit   int

	pullErr  error
	pulled   []string
	images   []image.Summary
	imageID  string
	imageErr error
}

func (f *fakeDockerAPI) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeDockerAPI) ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error) {
	f.listOpts = options
	return f.list, nil
}

func (f *fakeDockerAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.createdCfg = config
	f.createdHost = hostConfig
	f.createdName = containerName
	return container.CreateResponse{ID: fakeCreatedID}, nil
}

func (f *fakeDockerAPI) ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, containerID)
	return nil
}

func (f *fakeDockerAPI) ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error) {
	if f.missing[containerID] {
		return types.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
	}
	if rec, ok := f.inspects[containerID]; ok {
		return rec, nil
	}
	if containerID == fakeCreatedID && f.createdCfg != nil {
		return types.ContainerJSON{
			ContainerJSONBase: &types.ContainerJSONBase{
				ID:    fakeCreatedID,
				Name:  "/" + f.createdName,
				State: &types.ContainerState{Status: "running"},
			},
			Config: f.createdCfg,
			NetworkSettings: &types.NetworkSettings{
				NetworkSettingsBase: types.NetworkSettingsBase{Ports: f.createdHost.PortBindings},
			},
		}, nil
	}
	return types.ContainerJSON{}, errdefs.NotFound(errors.New("no such container"))
}

func (f *fakeDockerAPI) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	if f.missing[containerID] {
		return errdefs.NotFound(errors.New("no such container"))
	}
	f.stopped = append(f.stopped, containerID)
	if options.Timeout != nil {
		f.stopSecs = *options.Timeout
	}
	return nil
}

func (f *fakeDockerAPI) ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error {
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeDockerAPI) ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error) {
	if f.missing[containerID] {
		return nil, errdefs.NotFound(errors.New("no such container"))
	}
	return f.logsRC, nil
}

func (f *fakeDockerAPI) ContainerExecCreate(ctx context.Context, containerID string, config types.ExecConfig) (types.IDResponse, error) {
	if f.missing[containerID] {
		return types.IDResponse{}, errdefs.NotFound(errors.New("no such container"))
	}
	f.execCfg = config
	return types.IDResponse{ID: "exec-1"}, nil
}

func (f *fakeDockerAPI) ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error) {
	client, server := net.Pipe()
	_ = server.Close()
	return types.HijackedResponse{
		Conn:   client,
		Reader: bufio.NewReader(bytes.NewReader(f.execStream)),
	}, nil
}

func (f *fakeDockerAPI) ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error) {
	return types.ContainerExecInspect{ExecID: execID, ExitCode: f.execExit}, nil
}

func (f *fakeDockerAPI) ImageList(ctx context.Context, options types.ImageListOptions) ([]image.Summary, error) {
	return f.images, nil
}

func (f *fakeDockerAPI) ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.pulled = append(f.pulled, refStr)
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeDockerAPI) ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error) {
	if f.imageErr != nil {
		return types.ImageInspect{}, nil, f.imageErr
	}
	return types.ImageInspect{ID: f.imageID}, nil, nil
}

func TestRunContainerAllocatesAndPublishesPort(t *testing.T) {
	fake := &fakeDockerAPI{}
	a := &Adapter{cli: fake}

	got, err := a.RunContainer(context.Background(), ports.RunOptions{
		Image:         "nginx:latest",
		ContainerPort: 80,
		Name:          "web",
		RestartPolicy: "unless-stopped",
	})
	require.NoError(t, err)

	// labels written at creation
	require.NotNil(t, fake.createdCfg)
	assert.Equal(t, "true", fake.createdCfg.Labels[domain.ManagedLabel])
	assert.Equal(t, "80", fake.createdCfg.Labels[domain.ServicePortLabel])
	assert.Equal(t, "web", fake.createdCfg.Labels[domain.NameLabel])
	_, exposed := fake.createdCfg.ExposedPorts["80/tcp"]
	assert.True(t, exposed)

	// the allocated port is bound on loopback and round-trips into the
	// descriptor via the live inspection
	bindings := fake.createdHost.PortBindings[nat.Port("80/tcp")]
	require.Len(t, bindings, 1)
	assert.Equal(t, "127.0.0.1", bindings[0].HostIP)
	allocated, err := strconv.Atoi(bindings[0].HostPort)
	require.NoError(t, err)
	assert.Greater(t, allocated, 1024)

	assert.Equal(t, fakeCreatedID, got.ID)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 80, got.ServicePort)
	assert.Equal(t, allocated, got.HostPort)

	assert.Equal(t, container.RestartPolicyMode("unless-stopped"), fake.createdHost.RestartPolicy.Name)
	assert.Equal(t, []string{fakeCreatedID}, fake.started)
}

func TestRunContainerUsesRequestedHostPort(t *testing.T) {
	fake := &fakeDockerAPI{}
	a := &Adapter{cli: fake}

	got, err := a.RunContainer(context.Background(), ports.RunOptions{
		Image:         "nginx:latest",
		ContainerPort: 80,
		HostPort:      8081,
	})
	require.NoError(t, err)
	assert.Equal(t, 8081, got.HostPort)
}

func TestRunContainerSkipsRestartPolicyWithAutoRemove(t *testing.T) {
	fake := &fakeDockerAPI{}
	a := &Adapter{cli: fake}

	_, err := a.RunContainer(context.Background(), ports.RunOptions{
		Image:         "nginx:latest",
		ContainerPort: 80,
		AutoRemove:    true,
		RestartPolicy: "unless-stopped",
	})
	require.NoError(t, err)
	assert.True(t, fake.createdHost.AutoRemove)
	assert.Empty(t, fake.createdHost.RestartPolicy.Name)
}

func TestRunContainerCleansUpWhenStartFails(t *testing.T) {
	fake := &fakeDockerAPI{startErr: errors.New("boom")}
	a := &Adapter{cli: fake}

	_, err := a.RunContainer(context.Background(), ports.RunOptions{Image: "x", ContainerPort: 80})
	require.Error(t, err)
	assert.Equal(t, []string{fakeCreatedID}, fake.removed)
}

func TestRunContainerMapsCreateErrors(t *testing.T) {
	fake := &fakeDockerAPI{createErr: errdefs.NotFound(errors.New("no such image"))}
	a := &Adapter{cli: fake}
	_, err := a.RunContainer(context.Background(), ports.RunOptions{Image: "nope", ContainerPort: 80})
	require.ErrorIs(t, err, domain.ErrImageNotFound)

	fake = &fakeDockerAPI{createErr: errdefs.Conflict(errors.New("name taken"))}
	a = &Adapter{cli: fake}
	_, err = a.RunContainer(context.Background(), ports.RunOptions{Image: "x", ContainerPort: 80, Name: "dup"})
	require.ErrorIs(t, err, domain.ErrNameConflict)
}

func TestGetContainerNotFound(t *testing.T) {
	fake := &fakeDockerAPI{missing: map[string]bool{"ghost": true}}
	a := &Adapter{cli: fake}
	_, err := a.GetContainer(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrContainerNotFound)
}

func TestListContainersFiltersAndSkipsRaces(t *testing.T) {
	managed := types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    "keep",
			Name:  "/keep",
			State: &types.ContainerState{Status: "exited"},
		},
		Config: &container.Config{
			Image:  "nginx:latest",
			Labels: map[string]string{domain.ManagedLabel: "true", domain.ServicePortLabel: "80"},
		},
		NetworkSettings: &types.NetworkSettings{},
	}
	fake := &fakeDockerAPI{
		list: []types.Container{
			{ID: "keep"},
			{ID: "gone"}, // removed between list and inspect
		},
		inspects: map[string]types.ContainerJSON{"keep": managed},
		missing:  map[string]bool{"gone": true},
	}
	a := &Adapter{cli: fake}

	out, err := a.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "keep", out[0].ID)
	assert.Equal(t, "exited", out[0].Status)
	assert.Zero(t, out[0].HostPort, "stopped container must not expose a host port")

	// the runtime-side filter carries the managed label
	assert.True(t, fake.listOpts.All)
	assert.True(t, fake.listOpts.Filters.ExactMatch("label", domain.ManagedLabel))
}

func TestStopContainerForwardsTimeout(t *testing.T) {
	fake := &fakeDockerAPI{}
	a := &Adapter{cli: fake}
	require.NoError(t, a.StopContainer(context.Background(), "abc", 7*time.Second))
	assert.Equal(t, []string{"abc"}, fake.stopped)
	assert.Equal(t, 7, fake.stopSecs)
}

func TestExecDemuxesOutput(t *testing.T) {
	var stream bytes.Buffer
	_, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte("hello out"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("hello err"))
	require.NoError(t, err)

	fake := &fakeDockerAPI{execStream: stream.Bytes(), execExit: 3}
	a := &Adapter{cli: fake}

	res, err := a.Exec(context.Background(), "abc", ports.ExecOptions{
		Command: []string{"sh", "-c", "exit 3"},
		Workdir: "/srv",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "hello out", res.Stdout)
	assert.Equal(t, "hello err", res.Stderr)
	assert.Equal(t, "/srv", fake.execCfg.WorkingDir)
	assert.True(t, fake.execCfg.AttachStdout)
	assert.True(t, fake.execCfg.AttachStderr)
}

func TestPullImageReturnsID(t *testing.T) {
	fake := &fakeDockerAPI{imageID: "sha256:deadbeef"}
	a := &Adapter{cli: fake}

	id, err := a.PullImage(context.Background(), "nginx:latest")
	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", id)
	assert.Equal(t, []string{"nginx:latest"}, fake.pulled)
}

func TestPullImageNotFound(t *testing.T) {
	fake := &fakeDockerAPI{pullErr: errdefs.NotFound(errors.New("manifest unknown"))}
	a := &Adapter{cli: fake}
	_, err := a.PullImage(context.Background(), "ghost:latest")
	require.ErrorIs(t, err, domain.ErrImageNotFound)
}

func TestListImages(t *testing.T) {
	fake := &fakeDockerAPI{images: []image.Summary{
		{ID: "sha256:aaa", RepoTags: []string{"nginx:latest"}, Size: 12345},
	}}
	a := &Adapter{cli: fake}

	out, err := a.ListImages(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "sha256:aaa", out[0].ID)
	assert.Equal(t, []string{"nginx:latest"}, out[0].RepoTags)
	assert.EqualValues(t, 12345, out[0].Size)
}
