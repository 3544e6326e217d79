package zerolog

import (
	"fmt"

	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/rs/zerolog"
)

// Adapter exposes a zerolog.Logger through the logger.Logger interface
type Adapter struct {
	*zerolog.Logger
}

var _ logger.Logger = (*Adapter)(nil)

// NewAdapter wraps an already configured zerolog logger
func NewAdapter(log *zerolog.Logger) *Adapter {
	return &Adapter{log}
}

// Nop returns a logger that discards everything, handy for tests
func Nop() *Adapter {
	log := zerolog.Nop()
	return &Adapter{&log}
}

// GetLevel implements logger.Logger.
func (a *Adapter) GetLevel() logger.Level {
	return toLevel(a.Logger.GetLevel())
}

// SetLevel implements logger.Logger.
func (a *Adapter) SetLevel(level logger.Level) {
	updated := a.Logger.Level(toZerologLevel(level))
	a.Logger = &updated
}

func (a *Adapter) Trace(args ...any) { a.Logger.Trace().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Debug(args ...any) { a.Logger.Debug().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Info(args ...any)  { a.Logger.Info().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Warn(args ...any)  { a.Logger.Warn().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Error(args ...any) { a.Logger.Error().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Fatal(args ...any) { a.Logger.Fatal().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Panic(args ...any) { a.Logger.Panic().Msg(fmt.Sprint(args...)) }
func (a *Adapter) Print(args ...any) { a.Logger.Print(args...) }

func (a *Adapter) Tracef(format string, args ...any) { a.Logger.Trace().Msgf(format, args...) }
func (a *Adapter) Debugf(format string, args ...any) { a.Logger.Debug().Msgf(format, args...) }
func (a *Adapter) Infof(format string, args ...any)  { a.Logger.Info().Msgf(format, args...) }
func (a *Adapter) Warnf(format string, args ...any)  { a.Logger.Warn().Msgf(format, args...) }
func (a *Adapter) Errorf(format string, args ...any) { a.Logger.Error().Msgf(format, args...) }
func (a *Adapter) Fatalf(format string, args ...any) { a.Logger.Fatal().Msgf(format, args...) }
func (a *Adapter) Panicf(format string, args ...any) { a.Logger.Panic().Msgf(format, args...) }
func (a *Adapter) Printf(format string, args ...any) { a.Logger.Printf(format, args...) }

// WithError implements logger.Logger.
func (a *Adapter) WithError(err error) logger.Logger {
	child := a.With().Err(err).Logger()
	return &Adapter{&child}
}

// WithField implements logger.Logger.
func (a *Adapter) WithField(key string, value any) logger.Logger {
	child := a.With().Interface(key, value).Logger()
	return &Adapter{&child}
}

// WithFields implements logger.Logger.
func (a *Adapter) WithFields(fields map[string]any) logger.Logger {
	child := a.With().Fields(fields).Logger()
	return &Adapter{&child}
}

var levels = map[zerolog.Level]logger.Level{
	zerolog.Disabled:   logger.Disabled,
	zerolog.NoLevel:    logger.NoLevel,
	zerolog.TraceLevel: logger.TraceLevel,
	zerolog.DebugLevel: logger.DebugLevel,
	zerolog.InfoLevel:  logger.InfoLevel,
	zerolog.WarnLevel:  logger.WarnLevel,
	zerolog.ErrorLevel: logger.ErrorLevel,
	zerolog.FatalLevel: logger.FatalLevel,
	zerolog.PanicLevel: logger.PanicLevel,
}

func toLevel(level zerolog.Level) logger.Level {
	if l, ok := levels[level]; ok {
		return l
	}
	return logger.NoLevel
}

func toZerologLevel(level logger.Level) zerolog.Level {
	for zl, l := range levels {
		if l == level {
			return zl
		}
	}
	return zerolog.NoLevel
}
