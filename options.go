package servus

import (
	"log/slog"

	"github.com/dmarkhas/servus/config"
)

type Option func(*registryConfig)

type registryConfig struct {
	logger       *slog.Logger
	cfg          config.Config
	onRegister   []RegisterHook
	onReady      []ReadyHook
	onUnregister []UnregisterHook
	onResolve    []ResolveHook
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *registryConfig) {
		cfg.logger = logger
	}
}

// WithConfig replaces the process-wide resolution defaults.
func WithConfig(c config.Config) Option {
	return func(cfg *registryConfig) {
		cfg.cfg = c
	}
}

func WithRegisterObserver(hook RegisterHook) Option {
	return func(cfg *registryConfig) {
		cfg.onRegister = append(cfg.onRegister, hook)
	}
}

func WithReadyObserver(hook ReadyHook) Option {
	return func(cfg *registryConfig) {
		cfg.onReady = append(cfg.onReady, hook)
	}
}

func WithUnregisterObserver(hook UnregisterHook) Option {
	return func(cfg *registryConfig) {
		cfg.onUnregister = append(cfg.onUnregister, hook)
	}
}

func WithResolveObserver(hook ResolveHook) Option {
	return func(cfg *registryConfig) {
		cfg.onResolve = append(cfg.onResolve, hook)
	}
}
