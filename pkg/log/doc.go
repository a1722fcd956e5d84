/*
Package log provides structured logging for the control plane using
zerolog.

A single global Logger is configured once via Init and read by every
other package. Component loggers (WithComponent, WithTaskID,
WithGatewayID, WithWorkerID) attach context fields without threading a
logger through every call.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Str("task_id", t.ID).Msg("claimed task")

JSONOutput selects JSON lines (production) vs a console writer
(development). Level filters below zerolog's configured threshold.
*/
package log
