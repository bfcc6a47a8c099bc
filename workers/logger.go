package workers

import (
	"github.com/sirupsen/logrus"

	"apt_scrooper/models"
	"apt_scrooper/storage"
)

// LogFunc writes one line to the scrape_logs table
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

// StoreLogger mirrors each line to logrus and to scrape_logs under runID.
// A nil runID files the line outside any run.
func StoreLogger(store *storage.SQLiteStore, runID *int64, log *logrus.Logger) LogFunc {
	return func(level models.LogLevel, source, message string) {
		entry := log.WithField("provider", source)
		if runID != nil {
			entry = entry.WithField("run_id", *runID)
		}
		switch level {
		case models.LogLevelError:
			entry.Error(message)
		case models.LogLevelWarn:
			entry.Warn(message)
		default:
			entry.Info(message)
		}

		if store == nil {
			return
		}
		if err := store.Log(runID, level, message, source); err != nil {
			log.WithError(err).Debug("Failed to persist log line")
		}
	}
}
