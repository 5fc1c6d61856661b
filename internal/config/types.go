// Package config loads YAML run files.
package config

import "github.com/cwbudde/portfolioopt/internal/opt"

// Config describes one portfolio run.
type Config struct {
	Problem  string `yaml:"problem" validate:"required"`
	Dim      int    `yaml:"dim" validate:"min=0"`
	Engine   string `yaml:"engine" validate:"omitempty,oneof=compass mayfly"`
	Seed     int64  `yaml:"seed"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	Params ParamsConfig `yaml:"params"`
	Store  StoreConfig  `yaml:"store"`
}

// ParamsConfig mirrors opt.Params. Missing bounds fall back to the problem's
// suggested ones.
type ParamsConfig struct {
	Iter            int      `yaml:"iter" validate:"min=1"`
	Depth           int      `yaml:"depth" validate:"min=1"`
	Attc            int      `yaml:"attc" validate:"min=1"`
	LowerBound      *float64 `yaml:"lower_bound"`
	UpperBound      *float64 `yaml:"upper_bound"`
	PortfolioCopies int      `yaml:"portfolio_copies" validate:"min=1"`
}

// StoreConfig selects where run records are written. An empty path disables
// persistence.
type StoreConfig struct {
	Kind string `yaml:"kind" validate:"omitempty,oneof=fs sqlite"`
	Path string `yaml:"path"`
}

// Default returns a config with the stock engine budget and no problem set.
func Default() *Config {
	p := opt.DefaultParams()
	return &Config{
		Engine:   "compass",
		Seed:     42,
		LogLevel: "info",
		Params: ParamsConfig{
			Iter:            p.Iter,
			Depth:           p.Depth,
			Attc:            p.Attc,
			PortfolioCopies: p.PortfolioCopies,
		},
		Store: StoreConfig{Kind: "fs"},
	}
}

// OptParams converts the config into engine parameters, using lower and
// upper when the file does not set bounds.
func (c *Config) OptParams(lower, upper float64) opt.Params {
	p := opt.Params{
		Iter:            c.Params.Iter,
		Depth:           c.Params.Depth,
		Attc:            c.Params.Attc,
		LowerBound:      lower,
		UpperBound:      upper,
		PortfolioCopies: c.Params.PortfolioCopies,
	}
	if c.Params.LowerBound != nil {
		p.LowerBound = *c.Params.LowerBound
	}
	if c.Params.UpperBound != nil {
		p.UpperBound = *c.Params.UpperBound
	}
	return p
}
