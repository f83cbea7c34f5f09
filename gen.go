package vnetopt

// gen.go holds the random scenario generator used by experiments and tests.
// It produces a schema plus a populated provider: physical intensities,
// normalized per-environment fractions, interval durations, objective
// weights, and influx concentrated on a few entry nodes.

import (
	"fmt"

	"github.com/iti/rngstream"
)

// ScenarioCfg carries the scenario generator's knobs
type ScenarioCfg struct {
	Nodes        int     `json:"nodes" yaml:"nodes"`
	Environments int     `json:"environments" yaml:"environments"`
	Intervals    int     `json:"intervals" yaml:"intervals"`

	// number of nodes that receive external influx
	EntryNodes int `json:"entrynodes" yaml:"entrynodes"`

	MaxInflux      float64 `json:"maxinflux" yaml:"maxinflux"`
	MaxIntensity   float64 `json:"maxintensity" yaml:"maxintensity"`
	MaxIntervalLen float64 `json:"maxintervallen" yaml:"maxintervallen"`

	// weight on processed amounts; the weight on dropped amounts is its
	// complement.  Zero means draw it.
	Alpha0 float64 `json:"alpha0" yaml:"alpha0"`

	RngName string `json:"rngname" yaml:"rngname"`
}

// DefaultScenarioCfg returns a small scenario suitable for experiments
func DefaultScenarioCfg() ScenarioCfg {
	return ScenarioCfg{
		Nodes:          4,
		Environments:   2,
		Intervals:      3,
		EntryNodes:     1,
		MaxInflux:      10.0,
		MaxIntensity:   20.0,
		MaxIntervalLen: 10.0,
		RngName:        "scenario",
	}
}

// GenerateScenario builds a schema and a provider populated with a random
// but well-formed scenario
func GenerateScenario(cfg ScenarioCfg) (*Schema, *MemDataProvider) {
	if cfg.Nodes < 2 || cfg.Environments < 1 || cfg.Intervals < 1 {
		panic(fmt.Sprintf("gen: degenerate scenario dimensions %d/%d/%d",
			cfg.Nodes, cfg.Environments, cfg.Intervals))
	}
	if cfg.EntryNodes < 1 || cfg.EntryNodes > cfg.Nodes {
		panic(fmt.Sprintf("gen: entry node count %d out of range", cfg.EntryNodes))
	}
	if cfg.RngName == "" {
		cfg.RngName = "scenario"
	}
	rng := rngstream.New(cfg.RngName)

	schema := CreateDefaultSchema(cfg.Nodes, cfg.Environments, cfg.Intervals)
	provider := CreateMemDataProvider()

	provider.SetDataPlain(float64(cfg.Nodes), VarNodes)
	provider.SetDataPlain(float64(cfg.Environments), VarEnvironments)
	provider.SetDataPlain(float64(cfg.Intervals), VarIntervals)

	alpha0 := cfg.Alpha0
	if alpha0 <= 0.0 || alpha0 >= 1.0 {
		alpha0 = 0.1 + 0.8*rng.RandU01()
	}
	provider.SetDataPlain(alpha0, VarWeightProcessed)
	provider.SetDataPlain(1.0-alpha0, VarWeightDropped)

	for l := 0; l < cfg.Intervals; l++ {
		duration := (0.5 + 0.5*rng.RandU01()) * cfg.MaxIntervalLen
		provider.SetDataPlain(duration, VarIntervalLen, l)
	}

	// physical intensities over all (node, peer, interval) links and
	// (node, interval) resources
	for _, idx := range schema.RadixMapIterVar(VarIntensityTransfer) {
		j, i := idx[0], idx[1]
		intensity := 0.0
		if j != i {
			intensity = rng.RandU01() * cfg.MaxIntensity
		}
		provider.SetDataPlain(intensity, VarIntensityTransfer, idx...)
	}
	for _, v := range []string{VarIntensityStore, VarIntensityProcess} {
		for _, idx := range schema.RadixMapIterVar(v) {
			provider.SetDataPlain(rng.RandU01()*cfg.MaxIntensity, v, idx...)
		}
	}

	// per-environment fractions, normalized over the environments
	gene := CreateGene(schema)
	gene.Randomize(rng)
	gene.Materialize(provider)

	// influx enters at a few chosen nodes
	entry := make(map[int]bool)
	for len(entry) < cfg.EntryNodes {
		entry[rng.RandInt(0, cfg.Nodes-1)] = true
	}
	for _, idx := range schema.RadixMapIterVar(VarGenerate) {
		if !entry[idx[0]] {
			continue
		}
		provider.SetDataPlain(rng.RandU01()*cfg.MaxInflux, VarGenerate, idx...)
	}

	return schema, provider
}
