package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/fixedatc/atc"
	"github.com/mastercactapus/fixedatc/gcode"
	"github.com/mastercactapus/fixedatc/machine"
)

type colletConfig struct {
	OpenGCode  string `yaml:"open_gcode"`
	CloseGCode string `yaml:"close_gcode"`
}

// config is the on-disk configuration. JSON files load as well.
type config struct {
	atc.Config `yaml:",inline"`

	Collet colletConfig `yaml:"collet"`
	// SyncDwell is appended to every command, in seconds.
	SyncDwell float64 `yaml:"sync_dwell"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &config{Config: atc.DefaultConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	if _, err := cfg.machineOptions(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// parseProgram parses a collet command, one block per line.
func parseProgram(key, s string) ([]gcode.Block, error) {
	b, err := gcode.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	for i, bl := range b {
		if err := bl.Validate(); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", key, i+1, err)
		}
	}
	return b, nil
}

func (c *config) machineOptions() (opt machine.Options, err error) {
	opt.SyncDwell = c.SyncDwell
	opt.ColletOpen, err = parseProgram("collet.open_gcode", c.Collet.OpenGCode)
	if err != nil {
		return opt, err
	}
	opt.ColletClose, err = parseProgram("collet.close_gcode", c.Collet.CloseGCode)
	return opt, err
}
