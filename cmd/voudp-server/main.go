package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"voudp/internal/adminapi"
	"voudp/internal/audit"
	"voudp/internal/voiceserver"
)

func main() {
	bindAddr := flag.String("addr", ":37549", "UDP listen address")
	passphrase := flag.String("passphrase", "", "shared passphrase for client connections (required)")
	consolePassword := flag.String("console-password", "", "shared passphrase for admin console registration (empty disables consoles)")
	maxUsers := flag.Int("max-users", voiceserver.DefaultMaxUsers, "maximum concurrent remotes")
	auditPath := flag.String("audit-db", "", "sqlite database path for the audit log (empty disables auditing)")
	adminAddr := flag.String("admin-addr", "", "admin HTTP listen address (empty disables the admin surface)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if *passphrase == "" {
		log.Fatal("[voudp-server] -passphrase is required")
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)})))

	cfg := voiceserver.DefaultConfig()
	cfg.BindAddr = *bindAddr
	cfg.Passphrase = *passphrase
	cfg.ConsolePassword = *consolePassword
	cfg.MaxUsers = *maxUsers
	cfg.AuditPath = *auditPath
	cfg.AdminAddr = *adminAddr

	vs, err := voiceserver.New(cfg, slog.Default())
	if err != nil {
		log.Fatalf("[voudp-server] construct server: %v", err)
	}

	if cfg.AuditPath != "" {
		sink, err := audit.Open(cfg.AuditPath)
		if err != nil {
			log.Fatalf("[voudp-server] open audit sink: %v", err)
		}
		defer sink.Close()
		vs.SetAudit(sink.AuditFunc())
		slog.Info("audit sink enabled", "path", cfg.AuditPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	if cfg.AdminAddr != "" {
		admin := adminapi.New(vs)
		go func() {
			if err := admin.Run(ctx, cfg.AdminAddr); err != nil {
				slog.Error("admin http server exited", "err", err)
			}
		}()
		slog.Info("admin http surface listening", "addr", cfg.AdminAddr)
	}

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	slog.Info("voice server listening", "addr", vs.Addr().String())
	vs.Run(stop)

	// Give the tick loop a moment to observe stop before the process exits.
	time.Sleep(50 * time.Millisecond)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
