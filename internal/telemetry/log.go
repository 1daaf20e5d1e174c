// Package telemetry is the engine's own operational logging: source
// registration and status changes (logged by the engine) and the
// warnings of cmd/logradar. It is unrelated to the log lines the
// engine ingests and aggregates.
package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level structured logger. Callers typically
// use WithFields(SourceFields(...)) to attach source_id/kind/state fields rather than
// logging through the bare Logger.
var Logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SourceFields builds the standard field set attached to every
// ingest-lifecycle log line.
func SourceFields(sourceID, kind, state string) logrus.Fields {
	return logrus.Fields{
		"source_id": sourceID,
		"kind":      kind,
		"state":     state,
	}
}
