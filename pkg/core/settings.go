package core

import (
	"fmt"
	"time"
)

// Default monitor configuration
const (
	DefaultInterval     = 120 * time.Second
	DefaultErrorBackoff = 60 * time.Second
	DefaultTolerance    = 0.01
)

// Settings represents the main configuration for the application
type Settings struct {
	Monitor            MonitorSettings  // Polling loop settings
	Telegram           TelegramSettings // Telegram bot settings
	MaxWatchesPerOwner int              // 0 means unlimited
}

// MonitorSettings controls the polling loop
type MonitorSettings struct {
	Interval     time.Duration // Wait between two clean cycles
	ErrorBackoff time.Duration // First wait after a failed cycle
	Tolerance    float64       // Relative distance to the target that triggers an alert
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool    // Whether the Telegram bot is started
	Token   string  // Telegram bot token
	Users   []int64 // Allowed user IDs, empty allows everybody
}

// DefaultMonitorSettings returns the polling defaults: 120s cadence, 60s
// error backoff and a 1% trigger band
func DefaultMonitorSettings() MonitorSettings {
	return MonitorSettings{
		Interval:     DefaultInterval,
		ErrorBackoff: DefaultErrorBackoff,
		Tolerance:    DefaultTolerance,
	}
}

// Validate checks the monitor settings are usable
func (m MonitorSettings) Validate() error {
	if m.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", m.Interval)
	}
	if m.ErrorBackoff <= 0 {
		return fmt.Errorf("monitor error backoff must be positive, got %s", m.ErrorBackoff)
	}
	if m.ErrorBackoff >= m.Interval {
		return fmt.Errorf("monitor error backoff (%s) must be shorter than the interval (%s)", m.ErrorBackoff, m.Interval)
	}
	if m.Tolerance <= 0 || m.Tolerance >= 1 {
		return fmt.Errorf("monitor tolerance must be between 0 and 1, got %v", m.Tolerance)
	}
	return nil
}
