package docker

import (
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/go-connections/nat"

	"github.com/dockgate/dockgate/internal/core/domain"
)

// describe derives the normalized container descriptor from a raw inspection
// record. It is a pure function: the same record always yields the same
// descriptor, and missing or malformed port metadata degrades the descriptor
// (absent ports) instead of raising. The host port is read from the record's
// live binding table under "<service-port>/tcp", never cached, because a
// restarted container may rebind elsewhere or lose its binding entirely.
func describe(insp types.ContainerJSON) domain.Container {
	c := domain.Container{
		ID:   insp.ID,
		Name: strings.TrimPrefix(insp.Name, "/"),
	}
	if insp.State != nil {
		c.Status = insp.State.Status
	}
	if insp.Config == nil {
		return c
	}
	c.Image = insp.Config.Image
	c.Labels = insp.Config.Labels

	raw, ok := insp.Config.Labels[domain.ServicePortLabel]
	if !ok {
		return c
	}
	servicePort, err := strconv.Atoi(raw)
	if err != nil || servicePort <= 0 {
		// Without a declared service port the gateway cannot know which
		// exposed port matters, so the host port stays absent too.
		return c
	}
	c.ServicePort = servicePort

	if insp.NetworkSettings == nil {
		return c
	}
	key := nat.Port(strconv.Itoa(servicePort) + "/tcp")
	bindings := insp.NetworkSettings.Ports[key]
	if len(bindings) == 0 {
		return c
	}
	if hostPort, err := strconv.Atoi(bindings[0].HostPort); err == nil && hostPort > 0 {
		c.HostPort = hostPort
	}
	return c
}

// isManaged reports whether the record carries the gateway's marker label.
// Unmanaged containers stay invisible to list operations but remain directly
// addressable by id.
func isManaged(labels map[string]string) bool {
	_, ok := labels[domain.ManagedLabel]
	return ok
}
