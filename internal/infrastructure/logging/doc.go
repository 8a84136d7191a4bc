// Package logging provides structured logging for VoltHome services.
//
// It wraps log/slog with service-wide defaults: every record carries the
// service name and build version, output format and level come from the
// loaded configuration, and log output can be duplicated to a rotating
// file for long-running deployments.
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("server starting", "port", cfg.API.Port)
//
// Components derive their own loggers with With:
//
//	syncLog := logger.With("component", "sync")
package logging
