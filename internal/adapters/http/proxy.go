package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dockgate/dockgate/internal/core/domain"
	"github.com/dockgate/dockgate/internal/core/ports"
	"github.com/dockgate/dockgate/internal/logging"
	"github.com/dockgate/dockgate/internal/metrics"
)

// ProxyMethods are the verbs the dispatcher forwards; anything else is
// rejected by the router.
var ProxyMethods = []string{
	fiber.MethodGet,
	fiber.MethodPost,
	fiber.MethodPut,
	fiber.MethodPatch,
	fiber.MethodDelete,
	fiber.MethodOptions,
}

// hopByHopHeaders never cross the proxy boundary, in either direction.
// Host is included because the upstream must see its own authority, not
// the gateway's.
var hopByHopHeaders = map[string]struct{}{
	"connection":        {},
	"proxy-connection":  {},
	"keep-alive":        {},
	"transfer-encoding": {},
	"te":                {},
	"trailer":           {},
	"upgrade":           {},
	"host":              {},
}

func isHopByHop(name string) bool {
	_, ok := hopByHopHeaders[strings.ToLower(name)]
	return ok
}

// ProxyHandler dispatches requests to managed containers through their live
// published host port.
type ProxyHandler struct {
	service ports.ContainerService
	client  *http.Client
}

func NewProxyHandler(service ports.ContainerService, upstreamTimeout time.Duration) *ProxyHandler {
	return &ProxyHandler{
		service: service,
		client: &http.Client{
			Timeout: upstreamTimeout,
			// One connection per exchange; a recycled container must
			// never be reached over a stale keep-alive socket.
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

// Info resolves the container's current upstream address without forwarding
// anything.
func (p *ProxyHandler) Info(c *fiber.Ctx) error {
	ctr, err := p.service.GetContainer(c.Context(), c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	if ctr.HostPort == 0 {
		return respondErr(c, domain.ErrNoPublishedPort)
	}
	return c.JSON(fiber.Map{
		"container_id": ctr.ID,
		"upstream":     fmt.Sprintf("http://127.0.0.1:%d", ctr.HostPort),
	})
}

// Forward relays the request to the target container. The host port is
// resolved from the live runtime record on every call, so a restarted
// container with a new binding is picked up immediately.
func (p *ProxyHandler) Forward(c *fiber.Ctx) error {
	start := time.Now()

	ctr, err := p.service.GetContainer(c.Context(), c.Params("id"))
	if err != nil {
		return respondErr(c, err)
	}
	if ctr.HostPort == 0 {
		return respondErr(c, domain.ErrNoPublishedPort)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/%s", ctr.HostPort, strings.TrimPrefix(c.Params("*"), "/"))
	if qs := c.Context().QueryArgs().String(); qs != "" {
		url += "?" + qs
	}

	req, err := http.NewRequestWithContext(c.Context(), c.Method(), url, bytes.NewReader(c.Body()))
	if err != nil {
		return respondErr(c, err)
	}
	c.Request().Header.VisitAll(func(key, value []byte) {
		if !isHopByHop(string(key)) {
			req.Header.Add(string(key), string(value))
		}
	})

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.IncProxyUpstreamFailure()
		logging.Get().Warn().Err(err).Str("container_id", ctr.ID).Int("host_port", ctr.HostPort).Msg("upstream request failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream request failed: " + err.Error()})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncProxyUpstreamFailure()
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "reading upstream response: " + err.Error()})
	}

	for key, values := range resp.Header {
		if isHopByHop(key) {
			continue
		}
		if strings.EqualFold(key, fiber.HeaderContentType) {
			c.Response().Header.Set(key, values[0])
			continue
		}
		for _, v := range values {
			c.Response().Header.Add(key, v)
		}
	}

	metrics.ObserveProxyRequest(c.Method(), time.Since(start))
	return c.Status(resp.StatusCode).Send(body)
}
