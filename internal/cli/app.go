// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring shared by every command that talks to the assistant.

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeranaias/bridgechat/internal/assistant"
	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/dispatch"
	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/metrics"
	"github.com/jeranaias/bridgechat/internal/session"
	"github.com/jeranaias/bridgechat/internal/storage"
	"github.com/jeranaias/bridgechat/internal/stream"
	"github.com/jeranaias/bridgechat/internal/tracing"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App is one running bridgechat process: configuration, logger and the
// chat core built from them.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	SessionID  string

	Dispatcher *dispatch.Dispatcher
	Store      *storage.Store
	Emulator   *stream.Emulator
	Cache      *session.Cache
	Service    *assistant.Service

	level          zap.AtomicLevel
	cancel         context.CancelFunc
	shutdownTraces func(context.Context) error
}

// BootOptions adjust Boot for a particular command.
type BootOptions struct {
	// StreamInterval overrides the configured reveal cadence when non-zero.
	StreamInterval time.Duration
	// WithoutCore loads config and logging only, for commands that never
	// dispatch.
	WithoutCore bool
}

// Boot loads configuration and wires the chat core. The returned App must
// be closed.
func Boot(ctx context.Context, args Args, opts BootOptions) (*App, error) {
	cfg, path, err := config.Load()
	if err != nil {
		// Load always returns usable defaults alongside the error.
		fmt.Fprintln(stderr, warningStyle.Render(fmt.Sprintf("Warning: %v (using defaults)", err)))
	}
	config.SetGlobal(cfg)

	logger, level, err := logging.New(logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		Debug: cfg.Webhook.Debug || args.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("start logging: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	app := &App{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		SessionID:  uuid.NewString(),
		level:      level,
		cancel:     cancel,
	}

	app.shutdownTraces, err = tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
	})
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		app.shutdownTraces = nil
	}

	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, logger); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	if opts.WithoutCore {
		return app, nil
	}
	if err := app.wireCore(opts); err != nil {
		app.Close()
		return nil, err
	}
	if args.Emergency {
		app.Dispatcher.SetEmergencyMode(true)
	}
	if path != "" {
		app.watchConfig(ctx, args)
	}

	logger.Info("bridgechat started",
		zap.String("version", Version),
		zap.String("session", app.SessionID),
		zap.String("user", cfg.User.ID),
		zap.String("config", path))
	return app, nil
}

func (a *App) wireCore(opts BootOptions) error {
	cfg := a.Config

	d, err := dispatch.New(dispatch.ConfigFrom(cfg), dispatch.NewQueue(cfg.Queue.MaxConcurrent))
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	a.Dispatcher = d.WithLogger(a.Logger)

	backend, err := storage.NewBackend(cfg, a.Logger)
	if err != nil {
		// History is a convenience; chat still works from memory.
		a.Logger.Warn("conversation history unavailable", zap.Error(err))
		fmt.Fprintln(stderr, warningStyle.Render("Warning: conversation history will not be saved: "+err.Error()))
		backend = nil
	}
	a.Store = storage.Open(cfg.User.ID, backend, a.Logger)

	interval := cfg.Stream.Interval()
	if opts.StreamInterval > 0 {
		interval = opts.StreamInterval
	}
	a.Emulator = stream.New(a.Store, interval, a.Logger)

	a.Cache, err = session.Open(cfg.Session.CachePath, a.SessionID, a.Logger)
	if err != nil {
		a.Logger.Warn("session cache unavailable", zap.Error(err))
		a.Cache = nil
	}

	a.Service = assistant.New(a.Dispatcher, a.Store, a.Emulator, a.Cache, assistant.Options{
		Endpoint: cfg.Webhook.ChatEndpoint,
		Identity: assistant.Identity{
			UserID:    cfg.User.ID,
			UserName:  cfg.User.Name,
			SessionID: a.SessionID,
		},
	}, a.Logger)
	return nil
}

// watchConfig applies live-reloadable settings when the config file
// changes. Everything else needs a restart.
func (a *App) watchConfig(ctx context.Context, args Args) {
	w, err := config.NewWatcher(a.ConfigPath, func(next *config.Config) {
		a.Dispatcher.SetEmergencyMode(next.Webhook.EmergencyMode || args.Emergency)
		a.Dispatcher.SetDebug(next.Webhook.Debug)
		if next.Webhook.Debug || args.Verbose {
			a.level.SetLevel(zapcore.DebugLevel)
		} else {
			a.level.SetLevel(logging.ParseLevel(next.Logging.Level))
		}
		config.SetGlobal(next)
		a.Logger.Info("configuration reloaded",
			zap.Bool("emergency", a.Dispatcher.EmergencyMode()),
			zap.String("level", a.level.String()))
	}, a.Logger)
	if err != nil {
		a.Logger.Warn("config reload disabled", zap.Error(err))
		return
	}
	go w.Run(ctx)
}

// Close stops background work and flushes state, in reverse wiring order.
func (a *App) Close() error {
	var errs []error
	if a.Service != nil {
		a.Service.Close()
	}
	if a.Emulator != nil {
		a.Emulator.Wait()
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.shutdownTraces != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		errs = append(errs, a.shutdownTraces(ctx))
		cancel()
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return errors.Join(errs...)
}
