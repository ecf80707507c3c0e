package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	ipd "ipdevolve/pkg/ipdevolve"
)

const (
	envWorkers = "IPD_WORKERS"
	envSeed    = "IPD_SEED"
)

// runFileConfig is the on-disk shape of a run configuration. Zero fields
// keep the client defaults.
type runFileConfig struct {
	RunID             string   `yaml:"run_id" json:"run_id"`
	Population        int      `yaml:"population" json:"population"`
	MinRounds         int      `yaml:"min_rounds" json:"min_rounds"`
	MaxRounds         int      `yaml:"max_rounds" json:"max_rounds"`
	MutationFrequency int      `yaml:"mutation_frequency" json:"mutation_frequency"`
	Depth             int      `yaml:"depth" json:"depth"`
	Generations       int      `yaml:"generations" json:"generations"`
	Workers           int      `yaml:"workers" json:"workers"`
	Seed              int64    `yaml:"seed" json:"seed"`
	Policy            string   `yaml:"policy" json:"policy"`
	Controls          bool     `yaml:"controls" json:"controls"`
	StopWhenStable    bool     `yaml:"stop_when_stable" json:"stop_when_stable"`
	TopGenomes        int      `yaml:"top_genomes" json:"top_genomes"`
	Initial           []string `yaml:"initial" json:"initial"`
}

// loadRunRequestFromConfig reads a YAML run config, falling back to JSON for
// files YAML cannot parse.
func loadRunRequestFromConfig(path string) (ipd.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ipd.RunRequest{}, err
	}

	var cfg runFileConfig
	if yamlErr := yaml.Unmarshal(data, &cfg); yamlErr != nil {
		cfg = runFileConfig{}
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			return ipd.RunRequest{}, fmt.Errorf("parse run config %s: yaml: %v, json: %w", path, yamlErr, jsonErr)
		}
	}
	if err := cfg.validate(); err != nil {
		return ipd.RunRequest{}, fmt.Errorf("run config %s: %w", path, err)
	}

	return ipd.RunRequest{
		RunID:             cfg.RunID,
		Population:        cfg.Population,
		MinRounds:         cfg.MinRounds,
		MaxRounds:         cfg.MaxRounds,
		MutationFrequency: cfg.MutationFrequency,
		Depth:             cfg.Depth,
		Generations:       cfg.Generations,
		Workers:           cfg.Workers,
		Seed:              cfg.Seed,
		Policy:            cfg.Policy,
		Controls:          cfg.Controls,
		StopWhenStable:    cfg.StopWhenStable,
		TopGenomes:        cfg.TopGenomes,
		Initial:           cfg.Initial,
	}, nil
}

func (c runFileConfig) validate() error {
	switch {
	case c.Population < 0:
		return fmt.Errorf("population must be >= 0")
	case c.Generations < 0:
		return fmt.Errorf("generations must be >= 0")
	case c.MinRounds < 0 || c.MaxRounds < 0:
		return fmt.Errorf("round bounds must be >= 0")
	case c.Workers < 0:
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

// applyEnvOverrides lets the environment pin worker count and seed without
// editing config files.
func applyEnvOverrides(req *ipd.RunRequest, lookup func(string) (string, bool)) error {
	if raw, ok := lookup(envWorkers); ok && raw != "" {
		workers, err := strconv.Atoi(raw)
		if err != nil || workers < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", envWorkers, raw)
		}
		req.Workers = workers
	}
	if raw, ok := lookup(envSeed); ok && raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", envSeed, raw)
		}
		req.Seed = seed
	}
	return nil
}
