package server

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"starfall-server/galaxy"
	"starfall-server/match"
)

// Options configures the hub and its matches
type Options struct {
	Match match.Config

	MaxConnsPerIP int
	MaxTotalConns int
	MaxSessions   int

	// Per-connection token bucket; a client that overflows it MaxDropped
	// times in a row is disconnected
	MessagesPerSec float64
	MessageBurst   int
	MaxDropped     int

	// PublicURL is the base of join links in QR codes; empty means the
	// request's own host
	PublicURL string

	// JWTSecret signs seat tokens; empty generates one per process
	JWTSecret  []byte
	TokenTTL   time.Duration
	BcryptCost int
}

// DefaultOptions returns the standard server settings
func DefaultOptions() Options {
	return Options{
		Match:          match.DefaultConfig(),
		MaxConnsPerIP:  5,
		MaxTotalConns:  1000,
		MaxSessions:    100,
		MessagesPerSec: 20,
		MessageBurst:   40,
		MaxDropped:     100,
		TokenTTL:       24 * time.Hour,
		BcryptCost:     bcrypt.DefaultCost,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Match.Galaxy == (galaxy.Config{}) {
		o.Match.Galaxy = d.Match.Galaxy
	}
	if o.MaxConnsPerIP <= 0 {
		o.MaxConnsPerIP = d.MaxConnsPerIP
	}
	if o.MaxTotalConns <= 0 {
		o.MaxTotalConns = d.MaxTotalConns
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = d.MaxSessions
	}
	if o.MessagesPerSec <= 0 {
		o.MessagesPerSec = d.MessagesPerSec
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = d.MessageBurst
	}
	if o.MaxDropped <= 0 {
		o.MaxDropped = d.MaxDropped
	}
	if o.TokenTTL <= 0 {
		o.TokenTTL = d.TokenTTL
	}
	if o.BcryptCost < bcrypt.MinCost || o.BcryptCost > bcrypt.MaxCost {
		o.BcryptCost = d.BcryptCost
	}
	return o
}
