// Package logrus adapts sirupsen/logrus to logger.Logger so deployments that
// already ship logrus formatters or hooks can keep them.
package logrus

import (
	"io"
	"os"

	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/sirupsen/logrus"
)

type Adapter struct {
	entry *logrus.Entry
}

var _ logger.Logger = (*Adapter)(nil)

// New creates a logrus backed logger. jsonFormat switches from the text
// formatter to JSON lines.
func New(level, timeFormat string, jsonFormat bool, out io.Writer) (*Adapter, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = os.Stdout
	}

	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(lvl)
	if jsonFormat {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timeFormat})
	}

	return &Adapter{entry: logrus.NewEntry(base)}, nil
}

func (a *Adapter) WithField(key string, value any) logger.Logger {
	return &Adapter{entry: a.entry.WithField(key, value)}
}

func (a *Adapter) WithFields(fields map[string]any) logger.Logger {
	return &Adapter{entry: a.entry.WithFields(fields)}
}

func (a *Adapter) WithError(err error) logger.Logger {
	return &Adapter{entry: a.entry.WithError(err)}
}

func (a *Adapter) Print(args ...any) { a.entry.Print(args...) }
func (a *Adapter) Trace(args ...any) { a.entry.Trace(args...) }
func (a *Adapter) Debug(args ...any) { a.entry.Debug(args...) }
func (a *Adapter) Info(args ...any)  { a.entry.Info(args...) }
func (a *Adapter) Warn(args ...any)  { a.entry.Warn(args...) }
func (a *Adapter) Error(args ...any) { a.entry.Error(args...) }
func (a *Adapter) Fatal(args ...any) { a.entry.Fatal(args...) }
func (a *Adapter) Panic(args ...any) { a.entry.Panic(args...) }

func (a *Adapter) Printf(format string, args ...any) { a.entry.Printf(format, args...) }
func (a *Adapter) Tracef(format string, args ...any) { a.entry.Tracef(format, args...) }
func (a *Adapter) Debugf(format string, args ...any) { a.entry.Debugf(format, args...) }
func (a *Adapter) Infof(format string, args ...any)  { a.entry.Infof(format, args...) }
func (a *Adapter) Warnf(format string, args ...any)  { a.entry.Warnf(format, args...) }
func (a *Adapter) Errorf(format string, args ...any) { a.entry.Errorf(format, args...) }
func (a *Adapter) Fatalf(format string, args ...any) { a.entry.Fatalf(format, args...) }
func (a *Adapter) Panicf(format string, args ...any) { a.entry.Panicf(format, args...) }

// SetLevel changes the level of the underlying logrus logger, which is shared
// by every adapter derived from it.
func (a *Adapter) SetLevel(level logger.Level) {
	switch level {
	case logger.TraceLevel:
		a.entry.Logger.SetLevel(logrus.TraceLevel)
	case logger.DebugLevel:
		a.entry.Logger.SetLevel(logrus.DebugLevel)
	case logger.InfoLevel:
		a.entry.Logger.SetLevel(logrus.InfoLevel)
	case logger.WarnLevel:
		a.entry.Logger.SetLevel(logrus.WarnLevel)
	case logger.ErrorLevel:
		a.entry.Logger.SetLevel(logrus.ErrorLevel)
	case logger.FatalLevel:
		a.entry.Logger.SetLevel(logrus.FatalLevel)
	case logger.PanicLevel, logger.Disabled:
		a.entry.Logger.SetLevel(logrus.PanicLevel)
	}
}

func (a *Adapter) GetLevel() logger.Level {
	switch a.entry.Logger.GetLevel() {
	case logrus.TraceLevel:
		return logger.TraceLevel
	case logrus.DebugLevel:
		return logger.DebugLevel
	case logrus.InfoLevel:
		return logger.InfoLevel
	case logrus.WarnLevel:
		return logger.WarnLevel
	case logrus.ErrorLevel:
		return logger.ErrorLevel
	case logrus.FatalLevel:
		return logger.FatalLevel
	case logrus.PanicLevel:
		return logger.PanicLevel
	}
	return logger.NoLevel
}
