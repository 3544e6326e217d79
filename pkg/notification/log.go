package notification

import (
	"context"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/raykavin/pricewatch/pkg/logger"
)

// Log writes alerts to the logger. It stands in for a chat transport when
// none is configured.
type Log struct {
	log logger.Logger
}

var _ core.Notifier = (*Log)(nil)

// NewLog creates a logging notifier
func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

// Notify implements core.Notifier
func (l *Log) Notify(_ context.Context, destinationID, text string) error {
	l.log.WithFields(map[string]any{
		"destination": destinationID,
		"text":        text,
	}).Info("price alert")
	return nil
}
