// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/seed-foundation/seed/lib/authtoken"
	"github.com/seed-foundation/seed/lib/config"
	"github.com/seed-foundation/seed/lib/secret"
	"github.com/seed-foundation/seed/ops"
	"github.com/seed-foundation/seed/session"
	"github.com/seed-foundation/seed/store"
	"github.com/seed-foundation/seed/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen, dbPath string

	flagSet := pflag.NewFlagSet("seed-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $SEED_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "listen address, overrides the configuration file")
	flagSet.StringVar(&dbPath, "db", "", "database path, overrides the configuration file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}

	sessionCfg, err := sessionConfig(cfg.Session)
	if err != nil {
		return err
	}

	publicKey, err := authtoken.LoadPublicKey(cfg.Auth.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("loading token verification key: %w", err)
	}
	validator := tokenValidator(publicKey, cfg.Auth.Audience)

	var sealKey *secret.Buffer
	if cfg.Seal.KeyFile != "" {
		sealKey, err = secret.ReadHexKey(cfg.Seal.KeyFile, store.SealKeySize)
		if err != nil {
			return fmt.Errorf("loading seal key: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		SealKey:  sealKey,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	hub, err := session.NewHub(sessionCfg, st, validator, nil, logger)
	if err != nil {
		return err
	}

	server, err := transport.NewServer(transport.Config{
		Addr:          cfg.Listen,
		CertFile:      cfg.TLS.CertFile,
		KeyFile:       cfg.TLS.KeyFile,
		MaxFrameBytes: sessionCfg.MaxFrameBytes,
		Logger:        logger,
	}, hub)
	if err != nil {
		return err
	}

	opsServer, err := ops.NewServer(cfg.Ops.SocketPath, hub, st, nil, logger)
	if err != nil {
		return err
	}

	transportDone := make(chan error, 1)
	go func() { transportDone <- server.ListenAndServe(ctx) }()

	opsDone := make(chan error, 1)
	go func() { opsDone <- opsServer.Serve(ctx) }()

	logger.Info("seed server running",
		"listen", cfg.Listen,
		"environment", string(cfg.Environment),
		"database", cfg.Database.Path,
		"ops_socket", cfg.Ops.SocketPath)

	<-ctx.Done()
	logger.Info("shutting down")

	// Bound the graceful drain by the session grace period plus a
	// margin for actor teardown.
	drainCtx, cancel := context.WithTimeout(context.Background(), sessionCfg.DrainGrace+5*time.Second)
	defer cancel()
	if err := hub.Shutdown(drainCtx); err != nil {
		logger.Warn("session drain incomplete", "error", err)
	}

	if err := <-transportDone; err != nil {
		logger.Error("transport server error", "error", err)
	}
	if err := <-opsDone; err != nil {
		logger.Error("ops server error", "error", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildLogger constructs the process logger from the log section:
// level debug|info|warn|error, format text|json.
func buildLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, options)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, options)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), nil
}

// sessionConfig converts the YAML session section (durations as
// strings) into the core's typed configuration. Absent fields stay
// zero and take the core's defaults.
func sessionConfig(cfg config.SessionConfig) (session.Config, error) {
	out := session.Config{
		QueueCapacity:   cfg.QueueCapacity,
		MaxFrameBytes:   cfg.MaxFrameBytes,
		PersistAttempts: cfg.PersistAttempts,
		ReplayBatch:     cfg.ReplayBatch,
	}

	for _, field := range []struct {
		name  string
		value string
		dest  *time.Duration
	}{
		{"auth_window", cfg.AuthWindow, &out.AuthWindow},
		{"idle_window", cfg.IdleWindow, &out.IdleWindow},
		{"drain_grace", cfg.DrainGrace, &out.DrainGrace},
		{"heartbeat_interval", cfg.HeartbeatInterval, &out.HeartbeatInterval},
		{"queue_push_timeout", cfg.QueuePushTimeout, &out.QueuePushTimeout},
		{"persist_backoff_base", cfg.PersistBackoffBase, &out.PersistBackoffBase},
		{"persist_backoff_max", cfg.PersistBackoffMax, &out.PersistBackoffMax},
		{"persist_call_timeout", cfg.PersistCallTimeout, &out.PersistCallTimeout},
	} {
		d, err := config.ParseDuration(field.value)
		if err != nil {
			return session.Config{}, fmt.Errorf("session.%s: %w", field.name, err)
		}
		*field.dest = d
	}

	policy, err := session.ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return session.Config{}, fmt.Errorf("session.overflow_policy: %w", err)
	}
	out.OverflowPolicy = policy

	if out.DrainGrace == 0 {
		out.DrainGrace = session.DefaultConfig().DrainGrace
	}
	return out, nil
}

// tokenValidator verifies signed credentials against the deployment
// audience. Credentials arrive either as raw token bytes (from the
// auth envelope) or as their base64url spelling (from a transport
// query parameter); both are accepted.
func tokenValidator(publicKey ed25519.PublicKey, audience string) session.Validator {
	return session.ValidatorFunc(func(_ context.Context, credential []byte) (session.PrincipalID, error) {
		token, err := authtoken.VerifyForAudience(publicKey, credentialBytes(credential), audience)
		if err != nil {
			return "", fmt.Errorf("%w: %v", session.ErrRejected, err)
		}
		return session.PrincipalID(token.Principal), nil
	})
}

// credentialBytes undoes the query-parameter spelling when present.
// Raw token bytes are never valid base64url of a longer token, so a
// successful decode of a plausible length wins.
func credentialBytes(credential []byte) []byte {
	decoded, err := base64.RawURLEncoding.DecodeString(string(credential))
	if err == nil && len(decoded) > 0 {
		return decoded
	}
	return credential
}
