package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/dockgate/dockgate/internal/core/domain"
	"github.com/dockgate/dockgate/internal/core/ports"
	"github.com/dockgate/dockgate/internal/logging"
	"github.com/dockgate/dockgate/internal/logstream"
	"github.com/dockgate/dockgate/internal/metrics"
)

// readinessGate is what the handler needs from the readiness package; tests
// substitute a stub.
type readinessGate interface {
	Wait(ctx context.Context, port int, path string, timeout time.Duration) error
}

const (
	defaultWaitTimeout   = 30 * time.Second
	defaultRestartPolicy = "unless-stopped"
)

// ContainerHandler exposes container lifecycle operations over HTTP.
type ContainerHandler struct {
	service     ports.ContainerService
	builder     ports.BuilderService
	gate        readinessGate
	stopTimeout time.Duration
}

func NewContainerHandler(service ports.ContainerService, builder ports.BuilderService, gate readinessGate, stopTimeout time.Duration) *ContainerHandler {
	return &ContainerHandler{service: service, builder: builder, gate: gate, stopTimeout: stopTimeout}
}

// RunContainerRequest is the payload for POST /containers/run.
type RunContainerRequest struct {
	Image         string            `json:"image"`
	ContainerPort int               `json:"container_port"`
	HostPort      int               `json:"host_port"`
	Name          string            `json:"name"`
	Env           map[string]string `json:"env"`
	Command       []string          `json:"command"`
	AutoRemove    bool              `json:"auto_remove"`
	RestartPolicy string            `json:"restart_policy"`
	Volumes       []string          `json:"volumes"`
	Network       string            `json:"network"`

	// Readiness wait, optional: block the response until the container's
	// health endpoint answers 2xx on the bound host port.
	WaitReady   bool   `json:"wait_ready"`
	HealthPath  string `json:"health_path"`
	WaitTimeout int    `json:"wait_timeout"` // seconds
}

// DeployRequest is the payload for POST /containers/deploy: build an image
// from a git repository, then run it like RunContainerRequest does.
type DeployRequest struct {
	RunContainerRequest
	RepoURL string `json:"repo_url"`
}

// ExecRequest is the payload for POST /containers/:id/exec.
type ExecRequest struct {
	Command []string          `json:"command"`
	Workdir string            `json:"workdir"`
	Env     map[string]string `json:"env"`
	TTY     bool              `json:"tty"`
}

// PullImageRequest is the payload for POST /images/pull.
type PullImageRequest struct {
	Image string `json:"image"`
}

// Healthz reports whether the runtime control channel answers.
func (h *ContainerHandler) Healthz(c *fiber.Ctx) error {
	if err := h.service.Ping(c.Context()); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *ContainerHandler) ListImages(c *fiber.Ctx) error {
	images, err := h.service.ListImages(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(images)
}

func (h *ContainerHandler) PullImage(c *fiber.Ctx) error {
	var req PullImageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Image == "" {
		return badRequest(c, "image is required")
	}
	id, err := h.service.PullImage(c.Context(), defaultTag(req.Image))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"id": id})
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.ListContainers(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(containers)
}

// RunContainer creates and starts a container, optionally gating the response
// on readiness. Allocation or readiness failures abort the whole operation:
// partial state is never reported as success.
func (h *ContainerHandler) RunContainer(c *fiber.Ctx) error {
	var req RunContainerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	return h.runAndRespond(c, req)
}

// DeployContainer builds an image from a git repository, then runs it.
func (h *ContainerHandler) DeployContainer(c *fiber.Ctx) error {
	var req DeployRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.RepoURL == "" {
		return badRequest(c, "repo_url is required")
	}
	if req.Image == "" {
		req.Image = "dockgate-app-" + uuid.NewString()[:8]
	}
	tag, err := h.builder.BuildImage(c.Context(), req.RepoURL, defaultTag(req.Image))
	if err != nil {
		logging.Get().Error().Err(err).Str("repo", req.RepoURL).Msg("build failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "build failed: " + err.Error()})
	}
	req.Image = tag
	return h.runAndRespond(c, req.RunContainerRequest)
}

func (h *ContainerHandler) runAndRespond(c *fiber.Ctx, req RunContainerRequest) error {
	if req.Image == "" {
		return badRequest(c, "image is required")
	}
	if req.ContainerPort <= 0 {
		return badRequest(c, "container_port is required")
	}
	if req.RestartPolicy == "" {
		req.RestartPolicy = defaultRestartPolicy
	}

	ctr, err := h.service.RunContainer(c.Context(), ports.RunOptions{
		Image:         defaultTag(req.Image),
		ContainerPort: req.ContainerPort,
		HostPort:      req.HostPort,
		Name:          req.Name,
		Env:           req.Env,
		Command:       req.Command,
		AutoRemove:    req.AutoRemove,
		RestartPolicy: req.RestartPolicy,
		Volumes:       req.Volumes,
		Network:       req.Network,
	})
	if err != nil {
		return respondErr(c, err)
	}
	metrics.IncContainerStarted()

	if req.WaitReady {
		if ctr.HostPort == 0 {
			return respondErr(c, domain.ErrNoPublishedPort)
		}
		timeout := defaultWaitTimeout
		if req.WaitTimeout > 0 {
			timeout = time.Duration(req.WaitTimeout) * time.Second
		}
		if err := h.gate.Wait(c.Context(), ctr.HostPort, req.HealthPath, timeout); err != nil {
			if errors.Is(err, domain.ErrReadinessTimeout) {
				metrics.IncReadinessTimeout()
			}
			return respondErr(c, err)
		}
		// Re-derive the descriptor; the binding may have moved while we
		// waited.
		if ctr, err = h.service.GetContainer(c.Context(), ctr.ID); err != nil {
			return respondErr(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(ctr)
}

func (h *ContainerHandler) GetContainer(c *fiber.Ctx) error {
	ctr, err := h.service.GetContainer(c.Context(), c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(ctr)
}

func (h *ContainerHandler) StartContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.StartContainer(c.Context(), id); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": "running"})
}

func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	timeout := h.stopTimeout
	if secs := c.QueryInt("timeout"); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if err := h.service.StopContainer(c.Context(), id, timeout); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": "stopped"})
}

func (h *ContainerHandler) DeleteContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.RemoveContainer(c.Context(), id, c.QueryBool("force")); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "removed": true})
}

func (h *ContainerHandler) ExecContainer(c *fiber.Ctx) error {
	var req ExecRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Command) == 0 {
		return badRequest(c, "command is required")
	}
	id := c.Params("id")
	res, err := h.service.Exec(c.Context(), id, ports.ExecOptions{
		Command: req.Command,
		Workdir: req.Workdir,
		Env:     req.Env,
		TTY:     req.TTY,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"id":        id,
		"exit_code": res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
	})
}

// GetContainerLogs returns buffered logs, or a live chunked stream when
// follow=true. The followed stream is pulled off the request-handling
// goroutine so a quiet container never stalls the server's worker pool.
func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	opts := ports.LogOptions{
		Tail:   c.QueryInt("tail"),
		Follow: c.QueryBool("follow"),
	}
	logs, err := h.service.ContainerLogs(c.Context(), id, opts)
	if err != nil {
		return respondErr(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	if !opts.Follow {
		defer logs.Close()
		data, err := io.ReadAll(logs)
		if err != nil {
			return respondErr(c, err)
		}
		return c.Send(data)
	}

	// The request context ends with this handler, so the bridge gets its
	// own; it is cancelled when the client stops reading.
	ctx, cancel := context.WithCancel(context.Background())
	chunks := logstream.Bridge(ctx, logs)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for chunk := range chunks {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

// defaultTag appends :latest to untagged image references.
func defaultTag(image string) string {
	if strings.Contains(image, ":") {
		return image
	}
	return image + ":latest"
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// statusFor maps the error taxonomy onto distinct status classes so callers
// can tell bad input from "not ready yet" from broken infrastructure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrContainerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrImageNotFound),
		errors.Is(err, domain.ErrNameConflict),
		errors.Is(err, domain.ErrNoPublishedPort):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrReadinessTimeout):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func respondErr(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
