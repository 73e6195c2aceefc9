package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/auth"
	"market-chat/contract"
	"market-chat/infrastructure/grpc/server"
	"market-chat/infrastructure/rest"
	chatws "market-chat/infrastructure/websocket"
	wsserver "market-chat/infrastructure/websocket/server"
	"market-chat/internal"
	"market-chat/moderation"
	"market-chat/notification"
	"market-chat/observability"
	"market-chat/repositories"
	"market-chat/runtime"
	"market-chat/runtime/workers"
	"market-chat/search"
	"market-chat/services"
	"market-chat/sink"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a fatal error.
// Returning instead of exiting lets the deferred closes run.
func run() error {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return fmt.Errorf(".env loading failed: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	policy, err := runtime.ParseNotifyPolicy(config.NotifyPolicy)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	pageLimit, err := config.PageLimit()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// 2. Storage (BadgerDB) and search index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	writer, err := search.Open(config.BlugeFilepath)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing search index...")
		_ = writer.Close()
	}()
	index := search.NewMessageIndex(writer, log)

	// 3. Moderation
	dictionary, err := moderation.LoadDictionary(config.CensoredWordsPath)
	if err != nil {
		return fmt.Errorf("censored words loading failed: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(dictionary.Languages), strings.Join(dictionary.Languages, ",")))
	moderator, err := moderation.NewModerator(dictionary.Words, charReplacement, log)
	if err != nil {
		return err
	}

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)

	// 5. Supervision & Orchestration
	messages := repositories.NewMessageRepository(db, log, pageLimit)
	contacts := repositories.NewContactRepository(db)
	orchestrator := runtime.NewOrchestrator(log,
		workers.NewSupervisor(log, metrics, config.RestartInterval),
		contacts, newNotifier(log, config), metrics,
		runtime.OrchestratorConfig{
			BufferSize:          config.BufferSize,
			NotificationWorkers: config.NotificationWorkers,
			NotificationTimeout: config.NotificationTimeout,
			SinkTimeout:         config.SinkTimeout,
			MetricInterval:      config.MetricInterval,
		})
	orchestrator.Add(sink.NewIndexSink(index, log))

	presence := runtime.NewPresenceRegistry(runtime.DefaultShards, metrics)
	router := runtime.NewRoomRouter(log, runtime.DefaultShards, config.SinkTimeout, metrics)
	coordinator := runtime.NewCoordinator(log, messages, presence, router,
		orchestrator.Notifications(), orchestrator.DomainEvents(),
		policy, config.MaxContentLength, metrics).
		WithModerator(moderator).
		WithIndex(index)

	// 6. Transports
	chat := wsserver.NewChatServer(log, coordinator, wsserver.Config{
		Connection: chatws.Options{
			BufferSize:    config.ConnectionBufferSize,
			PingInterval:  config.PingInterval,
			MaxFrameBytes: config.MaxFrameBytes,
		},
		EventsPerSecond: config.EventsPerSecond,
		EventsBurst:     config.EventsBurst,
		CheckOrigin:     config.CheckOrigin(),
	})
	httpServer := &http.Server{
		Addr: fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: rest.NewRouter(rest.Dependencies{
			Log:            log,
			Chat:           services.NewChatService(coordinator, contacts),
			Verifier:       auth.NewVerifier(config.JWTSecret),
			WebSocket:      chat,
			Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			AllowedOrigins: config.Origins(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	health := server.NewHealthServer(log)
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		orchestrator.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return health.Serve(listener)
	})
	g.Go(func() error {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	health.SetReady(true)

	// 8. Wait for Stop or Error, then drain in reverse order
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		health.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		chat.CloseAll()
		health.Stop()
		orchestrator.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}

func newNotifier(log *slog.Logger, config internal.Config) contract.INotifier {
	if config.SMTPHost == "" {
		log.Warn("SMTP_HOST not set, offline notifications are only logged")
		return notification.NewLogGateway(log)
	}
	return notification.NewSMTPGateway(log, notification.SMTPConfig{
		Host:     config.SMTPHost,
		Port:     config.SMTPPort,
		Username: config.SMTPUsername,
		Password: config.SMTPPassword,
		From:     config.SMTPFrom,
	})
}
