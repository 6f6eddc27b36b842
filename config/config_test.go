package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"starfall-server/galaxy"
)

func TestDefaults(t *testing.T) {
	c, err := Parse()
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":8080" || c.DBPath != "starfall.db" {
		t.Errorf("unexpected defaults %q %q", c.Addr, c.DBPath)
	}
	if c.Galaxy() != galaxy.DefaultConfig() {
		t.Errorf("expected default galaxy config, got %+v", c.Galaxy())
	}
	m := c.Match()
	if m.WinInterval != 2*time.Second || m.EconomyInterval != 5*time.Second || m.Yield != 1 || m.EnforceClickPower {
		t.Errorf("unexpected match config %+v", m)
	}
	if o := c.Server(); o.JWTSecret != nil || o.MaxSessions != 100 {
		t.Errorf("unexpected server options %+v", o)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STARFALL_ADDR", ":9999")
	t.Setenv("STARFALL_WIN_INTERVAL", "500ms")
	t.Setenv("STARFALL_NEIGHBOR_LIMIT", "3")
	t.Setenv("STARFALL_MAP_WIDTH", "800")
	t.Setenv("STARFALL_STAR_LOCAL_ATTEMPTS", "4")
	t.Setenv("STARFALL_JWT_SECRET", "s3cret")
	t.Setenv("STARFALL_ENFORCE_CLICK_POWER", "true")

	c, err := Parse()
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":9999" {
		t.Errorf("expected :9999, got %s", c.Addr)
	}
	if got := c.Match().WinInterval; got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
	g := c.Galaxy()
	if g.NeighborLimit != 3 || g.Width != 800 {
		t.Errorf("expected limit 3 width 800, got %d %g", g.NeighborLimit, g.Width)
	}
	if g.StarLocalAttempts != 4 || g.LocalAttempts != 10 {
		t.Errorf("expected star attempts 4 and center attempts 10, got %d %d", g.StarLocalAttempts, g.LocalAttempts)
	}
	if !c.Match().EnforceClickPower {
		t.Error("expected click power enforcement to be enabled")
	}
	if string(c.Server().JWTSecret) != "s3cret" {
		t.Error("expected jwt secret to pass through")
	}
}

func TestInvalidGalaxySettings(t *testing.T) {
	t.Setenv("STARFALL_RADIUS_SHRINK", "1.5")
	if _, err := Parse(); err == nil {
		t.Error("expected shrink outside (0,1) to fail")
	}
}

func TestBadValue(t *testing.T) {
	t.Setenv("STARFALL_MAX_SESSIONS", "lots")
	if _, err := Parse(); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("STARFALL_DB=/tmp/other.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STARFALL_DB", "")
	os.Unsetenv("STARFALL_DB")

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/tmp/other.db" {
		t.Errorf("expected db from file, got %s", c.DBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("expected missing env file to be ignored, got %v", err)
	}
}
