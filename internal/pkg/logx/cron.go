/*
Package logx provides a structured logging wrapper based on zerolog.

This file adapts the wrapper to the logger interface expected by robfig/cron, so
scheduled jobs (cache sweeps) report their lifecycle and recovered panics through
the same structured output as the rest of the bot.
*/
package logx

import "github.com/robfig/cron/v3"

type cronLogger struct {
	name string
}

// CronLogger returns a cron.Logger that writes through the global logger with
// the given component name attached.
func CronLogger(component string) cron.Logger {
	return cronLogger{name: component}
}

// Info implements cron.Logger. Routine scheduler chatter is demoted to debug.
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	keysAndValues = checkFields("Debug", keysAndValues)

	Logger().Debug().
		Str("component", l.name).
		Fields(keysAndValues).
		Msg(msg)
}

// Error implements cron.Logger.
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	keysAndValues = checkFields("Error", keysAndValues)

	Logger().Error().
		Str("component", l.name).
		Err(err).
		Fields(keysAndValues).
		Msg(msg)
}
