// Package main runs the pet store web application.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gitlab.com/gitlab-org/labkit/fields"
	"gitlab.com/gitlab-org/labkit/monitoring"
	"gitlab.com/gitlab-org/labkit/v2/log"

	"github.com/chtrembl/petstoreapp/internal/clients/petstore"
	"github.com/chtrembl/petstoreapp/internal/command"
	"github.com/chtrembl/petstoreapp/internal/config"
	"github.com/chtrembl/petstoreapp/internal/inbound"
	applog "github.com/chtrembl/petstoreapp/internal/logger"
	"github.com/chtrembl/petstoreapp/internal/outbound"
	"github.com/chtrembl/petstoreapp/internal/server"
	"github.com/chtrembl/petstoreapp/internal/service"
	"github.com/chtrembl/petstoreapp/internal/session"
)

var (
	configDir = flag.String("config-dir", "", "The directory the config is in")

	// Version is the current version of petstoreapp
	Version = "(unknown version)" // Set at build time with -ldflags
	// BuildTime signifies the time the binary was build
	BuildTime = "19700101.000000" // Set at build time with -ldflags
)

func overrideConfigFromEnvironment(cfg *config.Config) {
	if listen := os.Getenv("PETSTORE_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if petURL := os.Getenv("PETSTOREPETSERVICE_URL"); petURL != "" {
		cfg.SetServiceURL(config.PetService, petURL)
	}
	if productURL := os.Getenv("PETSTOREPRODUCTSERVICE_URL"); productURL != "" {
		cfg.SetServiceURL(config.ProductService, productURL)
	}
	if orderURL := os.Getenv("PETSTOREORDERSERVICE_URL"); orderURL != "" {
		cfg.SetServiceURL(config.OrderService, orderURL)
	}
	if tracing := os.Getenv("PETSTORE_TRACING"); tracing != "" {
		cfg.Tracing = tracing
	}
	if logFormat := os.Getenv("PETSTORE_LOG_FORMAT"); logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if secret := os.Getenv("PETSTORE_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}
	if containerHost := os.Getenv("CONTAINER_HOST"); containerHost != "" {
		cfg.ContainerHost = containerHost
	}
	if version := os.Getenv("APP_VERSION"); version != "" {
		cfg.Version = version
	}
}

func main() {
	ctx := context.Background()
	logger := log.New()
	command.CheckForVersionFlag(os.Args, Version, BuildTime)
	flag.Parse()

	cfg := new(config.Config)
	if *configDir != "" {
		var err error
		cfg, err = config.NewFromDir(*configDir)
		if err != nil {
			logger.ErrorContext(
				ctx,
				"failed to load configuration from specified directory",
				slog.String(fields.ErrorMessage, err.Error()),
			)
			os.Exit(1)
		}
	}

	overrideConfigFromEnvironment(cfg)
	cfg.ApplyDefaults()
	if err := cfg.IsSane(); err != nil {
		ctx = log.WithFields(context.Background(), slog.String(
			fields.ErrorMessage, err.Error(),
		))
		if *configDir == "" {
			logger.ErrorContext(ctx, "no config-dir provided, using only environment variables")
		} else {
			logger.ErrorContext(ctx, "configuration error")
		}
		os.Exit(1)
	}

	if closer := applog.Configure(cfg); closer != nil {
		defer closer.Close()
	}

	ctx, finished := command.Setup(cfg.ServiceName, cfg)
	defer finished()

	router, health, err := buildRouter(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to build the application",
			slog.String(fields.ErrorMessage, err.Error()),
		)
		return
	}

	srv := server.NewServer(cfg, router)

	// Startup monitoring endpoint.
	if cfg.Server.WebListen != "" {
		startupMonitoringEndpoint(cfg, srv)
	}

	if err := health.WaitForDownstreams(ctx, cfg.StartupWait()); err != nil {
		logger.WarnContext(ctx, "Starting without all downstream services",
			slog.String(fields.ErrorMessage, err.Error()),
		)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	gracefulShutdown(ctx, done, cfg, srv, cancel)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.ErrorContext(ctx, "petstoreapp failed to listen for new connections",
			slog.String(fields.ErrorMessage, err.Error()))
		return
	}
}

func buildRouter(cfg *config.Config) (http.Handler, *service.Health, error) {
	version := cfg.Version
	if version == "" {
		version = Version
	}

	propagator := outbound.New(outbound.Identity{
		Service:   cfg.ServiceName,
		Version:   version,
		Container: cfg.ContainerHost,
	})

	clients := make(map[string]*petstore.Client, len(config.Services))
	for _, name := range config.Services {
		waitMin, waitMax := cfg.RetryWaits()

		client, err := petstore.New(petstore.ClientOpts{
			URL:            cfg.ServiceURL(name),
			Target:         name,
			Propagator:     propagator,
			CAFile:         cfg.Downstream.CaFile,
			CAPath:         cfg.Downstream.CaPath,
			ConnectTimeout: cfg.ConnectTimeout(),
			ReadTimeout:    cfg.ReadTimeout(),
			RetryMax:       cfg.Downstream.RetryMax,
			RetryWaitMin:   waitMin,
			RetryWaitMax:   waitMax,
		})
		if err != nil {
			return nil, nil, err
		}

		clients[name] = client
	}

	pets := petstore.NewPetClient(clients[config.PetService])
	products := petstore.NewProductClient(clients[config.ProductService])
	orders := petstore.NewOrderClient(clients[config.OrderService])

	store, err := session.NewStore(cfg.Session.MaxSessions)
	if err != nil {
		return nil, nil, err
	}

	health := service.NewHealth(pets, products, orders)
	router := server.NewRouter(
		inbound.New(inbound.WithForwardedHeaders(cfg.Server.ForwardHeaders...)),
		session.NewMiddleware(store, session.NewAuthenticator(cfg.Session.Secret), cfg.Session.CookieName),
		server.Services{
			Pets:     service.NewPets(pets),
			Products: service.NewProducts(products),
			Orders:   service.NewOrders(orders),
			Health:   health,
		},
	)

	return router, health, nil
}

func gracefulShutdown(
	ctx context.Context,
	done chan os.Signal,
	cfg *config.Config,
	srv *server.Server,
	cancel context.CancelFunc,
) {
	go func() {
		sig := <-done
		signal.Reset(syscall.SIGINT, syscall.SIGTERM)
		logger := log.New()

		gracePeriod := cfg.GracePeriod()
		logger.InfoContext(ctx, "Shutdown initiated",
			slog.Float64("shutdown_timeout_s", gracePeriod.Seconds()),
			slog.String("signal", sig.String()),
		)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), gracePeriod)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(ctx, "Error shutting down the server", slog.String(fields.ErrorMessage, err.Error()))
		}

		cancel()
	}()
}

func startupMonitoringEndpoint(cfg *config.Config, srv *server.Server) {
	go func() {
		err := monitoring.Start(
			monitoring.WithListenerAddress(cfg.Server.WebListen),
			monitoring.WithBuildInformation(Version, BuildTime),
			monitoring.WithServeMux(srv.MonitoringServeMux()),
		)
		logger := log.New()
		logger.Error("monitoring service raised an error", slog.String(
			fields.ErrorMessage, err.Error(),
		))
	}()
}
