package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/api"
	"chat-relay/contract"
	"chat-relay/encryption"
	"chat-relay/logs"
	"chat-relay/notify"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/ws"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern ensures all 'defer' statements (like database cleanup) run before the program
// exits, and keeps the initialization logic testable outside the entry point.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	encryptor, err := encryption.NewAES(config.SecretKey)
	if err != nil {
		return exitConfig, fmt.Errorf("encryption setup failed: %w", err)
	}

	registry := runtime.NewRegistry()
	monitor := observability.NewMonitor()
	chatRepository := repositories.NewChatRepository(db, logger, config.LimitMessages)
	groupRepository := repositories.NewGroupRepository(db, logger, config.LimitMessages)
	callRepository := repositories.NewCallRepository(db, logger)
	tokenRepository := repositories.NewTokenRepository(db, logger)

	var notifier contract.Notifier
	if config.FCMCredentialsPath != "" {
		fcm, err := notify.NewFCMNotifier(logger, tokenRepository, config.FCMCredentialsPath)
		if err != nil {
			return exitConfig, fmt.Errorf("FCM setup failed: %w", err)
		}
		notifier = fcm
		logger.Info("Push fallback enabled", "credentials", config.FCMCredentialsPath)
	} else {
		notifier = notify.NewLogNotifier(logger)
		logger.Warn("No FCM credentials configured, push fallback disabled")
	}

	messageService := services.NewMessageService(logger, registry, chatRepository, encryptor, notifier, monitor)
	groupService := services.NewGroupService(logger, registry, groupRepository, encryptor, notifier, monitor,
		config.GroupOfflineNotify)
	callService := services.NewCallService(logger, registry, callRepository, monitor)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervision (heartbeat)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	go sup.Add(workers.NewHeartbeatWorker(logger, monitor, config.MetricInterval)).Run(ctx)

	// 6. HTTP & WebSocket server
	mux := http.NewServeMux()
	wsServer := ws.NewServer(logger, registry, messageService, groupService, callService,
		monitor, config.SendTimeout)
	wsServer.Mount(mux)
	notify.RegisterRoutes(mux, logger, tokenRepository)
	api.RegisterRoutes(mux, logger, encryptor, chatRepository, groupRepository)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
