package match

import (
	"time"

	"starfall-server/galaxy"
)

const (
	DefaultWinInterval     = 2 * time.Second
	DefaultEconomyInterval = 5 * time.Second
	DefaultYield           = 1
	DefaultInboxSize       = 256
)

// Config holds settings for a match
type Config struct {
	Galaxy          galaxy.Config
	WinInterval     time.Duration
	EconomyInterval time.Duration
	Yield           int // resources per owned star per accrual
	InboxSize       int

	// EnforceClickPower rejects attacks stronger than the faction's
	// purchased click power. Off by default: any positive power is applied.
	EnforceClickPower bool
}

// DefaultConfig returns the standard match settings
func DefaultConfig() Config {
	return Config{
		Galaxy:          galaxy.DefaultConfig(),
		WinInterval:     DefaultWinInterval,
		EconomyInterval: DefaultEconomyInterval,
		Yield:           DefaultYield,
		InboxSize:       DefaultInboxSize,
	}
}

func (c Config) withDefaults() Config {
	if c.WinInterval <= 0 {
		c.WinInterval = DefaultWinInterval
	}
	if c.EconomyInterval <= 0 {
		c.EconomyInterval = DefaultEconomyInterval
	}
	if c.Yield <= 0 {
		c.Yield = DefaultYield
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	return c
}
