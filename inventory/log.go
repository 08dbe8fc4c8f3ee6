package inventory

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NopLogger returns a logger that discards everything. Services fall back
// to it when constructed without one.
func NopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// LogError records err with the module/funcName/context field layout shared
// by every service.
func LogError(logger logrus.FieldLogger, module, funcName, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   module,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
