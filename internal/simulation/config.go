package simulation

import (
	"errors"
	"fmt"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Config holds the settings for one simulated event.
type Config struct {
	BaseURL       string        `long:"url" description:"Base URL of the service" default:"http://localhost:9080"`
	Name          string        `long:"name" description:"Tournament name" default:"Simulated Open"`
	Format        string        `long:"format" description:"Game format the event is rated in" default:"standard"`
	Players       int           `short:"n" long:"players" description:"Number of simulated players" default:"16"`
	Rounds        int           `short:"r" long:"rounds" description:"Rounds to play; 0 lets the service decide" default:"0"`
	Workers       int           `short:"w" long:"workers" description:"Concurrent requests" default:"8"`
	RPS           float64       `long:"rps" description:"Client side request rate limit per second" default:"50"`
	Timeout       time.Duration `long:"timeout" description:"HTTP request timeout" default:"10s"`
	SettleTimeout time.Duration `long:"settle" description:"How long to wait for ratings to catch up" default:"30s"`
	DrawRate      float64       `long:"draw-rate" description:"Chance that a match is drawn" default:"0.05"`
	SkillSpread   float64       `long:"spread" description:"Standard deviation of hidden player skill" default:"250"`
	Seed          int64         `long:"seed" description:"Random seed; 0 picks one from the clock" default:"0"`
	Output        string        `short:"o" long:"output" description:"Write the JSON report to this file"`
	LogFile       string        `long:"log" description:"Also write logs to this file"`
	Verbose       bool          `short:"v" long:"verbose" description:"Log every request"`
}

// ErrHelp is returned by ParseArgs when usage was requested and printed.
var ErrHelp = errors.New("help requested")

// ParseArgs parses command line arguments into a Config.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.Name = "simulate"
	parser.Usage = "[OPTIONS]"
	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			return nil, ErrHelp
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &cfg, nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("url is required")
	case c.Players < 2:
		return fmt.Errorf("players must be at least 2, got %d", c.Players)
	case c.Rounds < 0:
		return fmt.Errorf("rounds must not be negative, got %d", c.Rounds)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.RPS <= 0:
		return fmt.Errorf("rps must be positive, got %g", c.RPS)
	case c.DrawRate < 0 || c.DrawRate >= 1:
		return fmt.Errorf("draw-rate must be in [0, 1), got %g", c.DrawRate)
	case c.SkillSpread < 0:
		return fmt.Errorf("spread must not be negative, got %g", c.SkillSpread)
	}
	return nil
}
