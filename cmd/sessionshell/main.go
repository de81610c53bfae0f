package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"sessionguard/internal/audit"
	"sessionguard/internal/authapi"
	"sessionguard/internal/config"
	"sessionguard/internal/gate"
	shellhttp "sessionguard/internal/http"
	"sessionguard/internal/http/handler"
	"sessionguard/internal/push"
	"sessionguard/internal/rbac"
	"sessionguard/internal/session"
	"sessionguard/internal/signer"
	"sessionguard/pkg/logger"
	"sessionguard/pkg/metrics"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	defaultEnvFile   = ".env"
	serverAddrPrefix = ":"
	signalBufferSize = 1
)

var shutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	envFile := pflag.String("env-file", defaultEnvFile, "dotenv file to load before reading the environment")
	pflag.Parse()

	envErr := godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Warn("env file not loaded, using environment variables", zap.String("file", *envFile))
	}
	log.Info("configuration loaded",
		zap.String("api", cfg.API.BaseURL),
		zap.String("hub", cfg.Hub.HubEndpoint()),
		zap.Int("routes", len(cfg.Session.Routes)))

	m := metrics.New()
	broadcaster := handler.NewBroadcaster(log)
	trail := audit.NewTrail(log)

	controller := session.NewController(session.Options{
		API: authapi.New(cfg.API.BaseURL, &http.Client{Timeout: cfg.API.Timeout}),
		Dialer: &push.WebSocketDialer{
			HandshakeTimeout: cfg.Hub.HandshakeTimeout,
			KeepAlive:        cfg.Hub.KeepAlive,
		},
		HubEndpoint: cfg.Hub.HubEndpoint(),
		Logger:      log,
		Metrics:     m,
	})
	controller.Subscribe(trail.Record)
	controller.Subscribe(broadcaster.SessionEvent)

	routeGate := gate.New(controller.Tokens(), rbac.NewEvaluator(log), gate.Options{
		LoginView: cfg.Session.LoginView,
		Navigator: broadcaster,
		Logger:    log,
		Metrics:   m,
	})

	transport, err := signer.New(nil, controller.Tokens(), controller, signer.Options{
		Scope:     cfg.API.BaseURL,
		LoginView: cfg.Session.LoginView,
		Navigator: broadcaster,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		log.Fatal("failed to build request signer", zap.Error(err))
	}

	server, err := shellhttp.NewServer(&shellhttp.ServerDependencies{
		Config:      cfg,
		Session:     controller,
		Gate:        routeGate,
		Signer:      transport,
		Broadcaster: broadcaster,
		Audit:       trail,
		Metrics:     m,
		Logger:      log,
	})
	if err != nil {
		log.Fatal("failed to build server", zap.Error(err))
	}

	go func() {
		log.Info("starting shell", zap.String("port", cfg.Server.Port))
		if err := server.Start(serverAddrPrefix + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, signalBufferSize)
	signal.Notify(quit, shutdownSignals...)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	controller.Teardown(session.ReasonShutdown)

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("server exited gracefully")
}
