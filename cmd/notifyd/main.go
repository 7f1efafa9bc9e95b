package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/broker"
	"github.com/stq-payments/notify-dispatcher/internal/config"
	"github.com/stq-payments/notify-dispatcher/internal/dispatch"
	"github.com/stq-payments/notify-dispatcher/internal/egress/callback"
	"github.com/stq-payments/notify-dispatcher/internal/egress/email"
	"github.com/stq-payments/notify-dispatcher/internal/egress/httpclient"
	"github.com/stq-payments/notify-dispatcher/internal/egress/push"
	"github.com/stq-payments/notify-dispatcher/internal/httpapi"
	"github.com/stq-payments/notify-dispatcher/internal/supervisor"
)

func main() {
	switch cmd := arg(1); cmd {
	case "config":
		runConfig()
	case "server":
		runServer()
	default:
		printHelp()
	}
}

func arg(i int) string {
	if len(os.Args) <= i {
		return ""
	}
	return os.Args[i]
}

func printHelp() {
	fmt.Println(`notifyd — notification dispatcher

Usage:
  notifyd config   print the parsed configuration
  notifyd server   start the HTTP ingress and the broker supervisor`)
}

func runConfig() {
	cfg, err := config.Load(os.Getenv("RUN_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	fmt.Printf("%+v\n", cfg)
}

func runServer() {
	logger, _ := zap.NewProduction()
	if os.Getenv("RUN_MODE") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	logger.Info("starting notification dispatcher")

	cfg, err := config.Load(os.Getenv("RUN_MODE"))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dial := func(ctx context.Context) (*broker.Manager, error) {
		return broker.Connect(ctx, cfg.Rabbit.URL, cfg.Rabbit.ConnectionTimeout(), cfg.Rabbit.ConnectionPoolSize, logger)
	}

	manager, err := dial(ctx)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	logger.Info("connected to broker")

	publisher := broker.NewPublisher(manager)
	if err := publisher.Init(ctx); err != nil {
		logger.Fatal("failed to declare dead-letter topology", zap.Error(err))
	}

	transport := httpclient.New(10 * time.Second)

	callbackClient, err := callback.New(transport, cfg.Client.SecpPrivateKey)
	if err != nil {
		logger.Fatal("failed to build callback client", zap.Error(err))
	}

	emailClient := email.New(transport, cfg.SendGrid.APIAddr, cfg.SendGrid.APIKey, cfg.SendGrid.SendMailPath, cfg.SendGrid.FromEmail)

	var pushClient push.Client
	if cfg.IosCredentials.Enabled {
		pushClient = push.New(transport, cfg.IosCredentials.URL)
	} else {
		pushClient = push.NewDisabled()
	}

	dispatcher := dispatch.New(callbackClient, emailClient, pushClient, publisher, logger)

	sup := supervisor.New(dial, dispatcher, cfg.Rabbit.RestartSubscription(), logger)
	go func() {
		if err := sup.Run(ctx); err != nil {
			logger.Error("supervisor stopped", zap.Error(err))
			cancel()
		}
	}()

	router := httpapi.NewRouter(manager, logger)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("ingress listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ingress server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingress shutdown error", zap.Error(err))
	}

	if err := manager.Close(); err != nil {
		logger.Error("error closing broker connection", zap.Error(err))
	}

	logger.Info("dispatcher stopped")
}
