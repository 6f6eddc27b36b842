package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"starfall-server/galaxy"
	"starfall-server/match"
	"starfall-server/server"
)

// Config is the process configuration, read from STARFALL_* variables
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	DBPath    string `env:"DB" envDefault:"starfall.db"`
	PublicURL string `env:"PUBLIC_URL"`
	JWTSecret string `env:"JWT_SECRET"`

	MaxConnsPerIP  int     `env:"MAX_CONNS_PER_IP" envDefault:"5"`
	MaxTotalConns  int     `env:"MAX_TOTAL_CONNS" envDefault:"1000"`
	MaxSessions    int     `env:"MAX_SESSIONS" envDefault:"100"`
	MessagesPerSec float64 `env:"MESSAGES_PER_SEC" envDefault:"20"`
	MessageBurst   int     `env:"MESSAGE_BURST" envDefault:"40"`

	WinInterval     time.Duration `env:"WIN_INTERVAL" envDefault:"2s"`
	EconomyInterval time.Duration `env:"ECONOMY_INTERVAL" envDefault:"5s"`
	Yield           int           `env:"YIELD" envDefault:"1"`
	EnforcePower    bool          `env:"ENFORCE_CLICK_POWER" envDefault:"false"`

	Width          float64 `env:"MAP_WIDTH" envDefault:"1920"`
	Height         float64 `env:"MAP_HEIGHT" envDefault:"1080"`
	InitialRadius  float64 `env:"INITIAL_RADIUS" envDefault:"300"`
	RadiusShrink   float64 `env:"RADIUS_SHRINK" envDefault:"0.75"`
	LocalAttempts  int     `env:"LOCAL_ATTEMPTS" envDefault:"10"`
	MaxCenterTries int     `env:"MAX_CENTER_TRIES" envDefault:"1000"`
	NeighborLimit  int     `env:"NEIGHBOR_LIMIT" envDefault:"5"`
	SpreadFactor   float64 `env:"SPREAD_FACTOR" envDefault:"0.25"`
	InitialSpacing float64 `env:"INITIAL_SPACING" envDefault:"20"`
	SpacingShrink  float64 `env:"SPACING_SHRINK" envDefault:"0.75"`
	StarAttempts   int     `env:"STAR_LOCAL_ATTEMPTS" envDefault:"10"`
	MaxStarTries   int     `env:"MAX_STAR_TRIES" envDefault:"100"`
}

// Load reads an optional .env file and parses the environment
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		log.Println("config: loaded environment file")
	}
	return Parse()
}

// Parse reads the environment only
func Parse() (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "STARFALL_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Galaxy().Validate(); err != nil {
		return Config{}, fmt.Errorf("galaxy settings: %w", err)
	}
	return c, nil
}

// Galaxy builds the map generation settings
func (c Config) Galaxy() galaxy.Config {
	g := galaxy.DefaultConfig()
	g.Width = c.Width
	g.Height = c.Height
	g.InitialRadius = c.InitialRadius
	g.RadiusShrink = c.RadiusShrink
	g.LocalAttempts = c.LocalAttempts
	g.MaxCenterTries = c.MaxCenterTries
	g.NeighborLimit = c.NeighborLimit
	g.SpreadFactor = c.SpreadFactor
	g.InitialSpacing = c.InitialSpacing
	g.SpacingShrink = c.SpacingShrink
	g.StarLocalAttempts = c.StarAttempts
	g.MaxStarTries = c.MaxStarTries
	return g
}

// Match builds the per-match settings
func (c Config) Match() match.Config {
	m := match.DefaultConfig()
	m.Galaxy = c.Galaxy()
	m.WinInterval = c.WinInterval
	m.EconomyInterval = c.EconomyInterval
	m.Yield = c.Yield
	m.EnforceClickPower = c.EnforcePower
	return m
}

// Server builds the hub options
func (c Config) Server() server.Options {
	o := server.DefaultOptions()
	o.Match = c.Match()
	o.MaxConnsPerIP = c.MaxConnsPerIP
	o.MaxTotalConns = c.MaxTotalConns
	o.MaxSessions = c.MaxSessions
	o.MessagesPerSec = c.MessagesPerSec
	o.MessageBurst = c.MessageBurst
	o.PublicURL = c.PublicURL
	if c.JWTSecret != "" {
		o.JWTSecret = []byte(c.JWTSecret)
	}
	return o
}
