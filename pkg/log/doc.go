/*
Package log provides structured logging for the discoverer engine using
zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all discoverer packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs (e.g. "scheduler", "worker")
  - WithNodeID: Add node ID context
  - WithServiceID: Add service ID context
  - WithTaskID: Add task ID context

# Usage

Initializing the Logger:

	import "github.com/cuemby/discoverer/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("scheduler tick started")
	log.Debug("checking rule due-times")
	log.Warn("revision skew detected")
	log.Error("failed to flush rule status")

Structured Logging:

	log.Logger.Info().
		Str("druleid", druleid).
		Int("tasks", len(tasks)).
		Msg("job expanded")

	log.Logger.Error().
		Err(err).
		Str("worker_id", workerID).
		Msg("check dispatch failed")

Component Loggers:

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("starting tick loop")

	workerLog := log.WithComponent("worker").
		With().Str("worker_id", "worker-3").Logger()
	workerLog.Info().Msg("worker started")
	workerLog.Error().Err(err).Msg("job aborted")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log SNMP community strings or agent credentials
  - Use Debug level in production
  - Log inside the worker's per-IP dispatch loop (use sampling)
  - Concatenate strings (use .Str, .Int)
*/
package log
