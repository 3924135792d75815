/*
Package log provides structured logging for Catalyst using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Catalyst packages
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
  - WithComponent: Add component name to all logs
  - WithNodeID: Add node ID context
  - WithWorkloadID: Add workload ID context
  - WithSessionID: Add SFTP/gateway session ID context

# Usage

Initializing the Logger:

	import "github.com/catalystpanel/catalyst/pkg/log"

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

	log.Info("Control plane initialized")
	log.Warn("Node heartbeat missed")
	log.Error("Failed to dispatch command")
	log.Fatal("Cannot start without database") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("workload_id", "w-123").
		Str("status", "starting").
		Msg("Workload transition")

	log.Logger.Error().
		Err(err).
		Str("node_id", "node-abc").
		Msg("Agent session closed")

Component Loggers:

	gwLog := log.WithComponent("gateway")
	gwLog.Info().Msg("Listening for agent sessions")
	gwLog.Debug().Str("node_id", "node-1").Msg("Frame received")

	// Multiple context fields
	wLog := log.WithComponent("lifecycle").
		With().Str("workload_id", "w-123").Logger()
	wLog.Info().Msg("Reducer started")

# Log Output Examples

JSON format (production):

	{"level":"info","component":"gateway","node_id":"node-1","time":"2026-02-10T10:30:00Z","message":"Agent session established"}
	{"level":"error","component":"transfer","workload_id":"w-123","error":"backup timeout","time":"2026-02-10T10:31:02Z","message":"Transfer failed"}

Console format (development):

	10:30:00 INF Agent session established component=gateway node_id=node-1
	10:31:02 ERR Transfer failed component=transfer workload_id=w-123 error="backup timeout"

# Integration Points

  - pkg/gateway: agent session lifecycle and frame routing
  - pkg/lifecycle: state transitions and crash handling
  - pkg/transfer: step-by-step transfer progress
  - pkg/sftpd: session authentication and idle teardown
  - pkg/server: request-level errors
  - cmd/catalyst: startup and shutdown sequencing

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to long-lived goroutines
  - Avoids repetitive field specification

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across the codebase

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Include context (node ID, workload ID, session ID)

Don't:
  - Log session tokens or agent keys
  - Use Debug level in production
  - Log per-frame in the gateway hot path (use sampling)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
