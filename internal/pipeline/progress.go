package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/harvest"
)

// LogProgress logs every harvest event. Errors and aborts are warnings, the
// per-download chatter is debug.
func LogProgress(log *logrus.Entry) harvest.ProgressCallback {
	return func(ev harvest.ProgressEvent) {
		entry := log.WithFields(logrus.Fields{
			"step":    ev.Step,
			"index":   ev.Index,
			"total":   ev.Total,
			"success": ev.SuccessCount,
			"errors":  ev.ErrorCount,
		})
		switch ev.Step {
		case harvest.StepError, harvest.StepAborted, harvest.StepSkip:
			entry.Warn(ev.Message)
		case harvest.StepDownload, harvest.StepSearch, harvest.StepSelect:
			entry.Debug(ev.Message)
		default:
			entry.Info(ev.Message)
		}
	}
}

// Tee calls every non-nil callback in order.
func Tee(callbacks ...harvest.ProgressCallback) harvest.ProgressCallback {
	return func(ev harvest.ProgressEvent) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(ev)
			}
		}
	}
}
