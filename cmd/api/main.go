package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dockgate/dockgate/internal/adapters/builder"
	"github.com/dockgate/dockgate/internal/adapters/docker"
	httpadapter "github.com/dockgate/dockgate/internal/adapters/http"
	"github.com/dockgate/dockgate/internal/config"
	"github.com/dockgate/dockgate/internal/logging"
	"github.com/dockgate/dockgate/internal/metrics"
	"github.com/dockgate/dockgate/internal/readiness"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			logging.Init("", "info")
			logging.Get().Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		logging.Init("", "info")
		logging.Get().Fatal().Err(err).Msg("invalid environment override")
	}

	logging.Init(cfg.LogFile, cfg.LogLevel)
	log := logging.Get()

	dockerAdapter, err := docker.NewAdapter(cfg.DockerHost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize docker adapter")
	}
	builderAdapter, err := builder.NewAdapter(cfg.DockerHost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize builder adapter")
	}
	gate := readiness.NewGate(cfg.ProbeTimeout, cfg.ReadinessInterval)

	containerHandler := httpadapter.NewContainerHandler(dockerAdapter, builderAdapter, gate, cfg.StopTimeout)
	proxyHandler := httpadapter.NewProxyHandler(dockerAdapter, cfg.UpstreamTimeout)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))

	app.Get("/healthz", containerHandler.Healthz)
	if cfg.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}

	api := app.Group("/api")
	v1 := api.Group("/v1")

	containers := v1.Group("/containers")
	containers.Get("/", containerHandler.ListContainers)
	containers.Post("/run", containerHandler.RunContainer)
	containers.Post("/deploy", containerHandler.DeployContainer)
	containers.Get("/:id", containerHandler.GetContainer)
	containers.Delete("/:id", containerHandler.DeleteContainer)
	containers.Post("/:id/start", containerHandler.StartContainer)
	containers.Post("/:id/stop", containerHandler.StopContainer)
	containers.Get("/:id/logs", containerHandler.GetContainerLogs)
	containers.Post("/:id/exec", containerHandler.ExecContainer)

	images := v1.Group("/images")
	images.Get("/", containerHandler.ListImages)
	images.Post("/pull", containerHandler.PullImage)

	v1.Get("/proxy/:id", proxyHandler.Info)
	for _, method := range httpadapter.ProxyMethods {
		v1.Add(method, "/proxy/:id/*", proxyHandler.Forward)
	}

	// Serve until interrupted, then drain in-flight requests.
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Msg("server starting")
		errCh <- app.Listen(cfg.Listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}
}
