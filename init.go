package pricewatch

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/raykavin/pricewatch/pkg/logger"
	"github.com/raykavin/pricewatch/pkg/logger/logrus"
	"github.com/raykavin/pricewatch/pkg/logger/zerolog"
)

const (
	// Default configuration values
	defaultLogLevel      = "info"
	defaultLogTimeFormat = "2006-01-02 15:04:05"
	defaultLogColored    = "true"
	defaultLogJSON       = "false"
	defaultLogBackend    = "zerolog"
)

// Environment variable names
const (
	envLogLevel      = "PRICEWATCH_LOG_LEVEL"
	envLogTimeFormat = "PRICEWATCH_LOG_TIME_FORMAT"
	envLogColor      = "PRICEWATCH_LOG_COLOR"
	envLogJSON       = "PRICEWATCH_LOG_JSON"
	envLogBackend    = "PRICEWATCH_LOG_BACKEND"
)

func init() {
	log, err := NewLoggerFromEnv()
	if err != nil {
		panic(err)
	}

	DefaultLog = log
}

// NewLoggerFromEnv creates a logger configured from the PRICEWATCH_LOG_* variables
func NewLoggerFromEnv() (logger.Logger, error) {
	logLevel := getEnvWithDefault(envLogLevel, defaultLogLevel)
	logTimeFormat := getEnvWithDefault(envLogTimeFormat, defaultLogTimeFormat)

	logColored, err := parseBoolEnv(envLogColor, defaultLogColored)
	if err != nil {
		return nil, err
	}

	logJSON, err := parseBoolEnv(envLogJSON, defaultLogJSON)
	if err != nil {
		return nil, err
	}

	switch backend := strings.ToLower(getEnvWithDefault(envLogBackend, defaultLogBackend)); backend {
	case "zerolog":
		return zerolog.New(zerolog.Config{
			Level:      logLevel,
			TimeFormat: logTimeFormat,
			Colored:    logColored,
			JSON:       logJSON,
		})
	case "logrus":
		return logrus.New(logLevel, logTimeFormat, logJSON, nil)
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

// getEnvWithDefault returns the value of the environment variable or the default if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseBoolEnv gets a boolean environment variable with a default value
func parseBoolEnv(key, defaultValue string) (bool, error) {
	value := getEnvWithDefault(key, defaultValue)
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
