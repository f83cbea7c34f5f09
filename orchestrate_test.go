package vnetopt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExperimentCfgRoundTrip(t *testing.T) {
	cfg := ExperimentCfg{
		Name:    "roundtrip",
		UseGA:   true,
		Planner: PlannerCfg{InfluxOrdering: true},
		Sim:     SimCfg{DT: 0.25, RngName: "rt"},
		Ga:      DefaultGaCfg(),
	}
	filename := filepath.Join(t.TempDir(), "experiment.yaml")
	if err := cfg.WriteToFile(filename); err != nil {
		t.Fatalf("writing: %v", err)
	}

	loaded, err := ReadExperimentCfg(filename, true, []byte{})
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if !loaded.UseGA || !loaded.Planner.InfluxOrdering || loaded.Sim.DT != 0.25 {
		t.Errorf("options lost in round trip: %+v", loaded)
	}
	if loaded.Ga.Population != cfg.Ga.Population || loaded.Ga.Iterations != cfg.Ga.Iterations {
		t.Errorf("search parameters lost in round trip: %+v", loaded.Ga)
	}
}

func TestLoadScenarioBindsBounds(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "scenario.txt")
	tdp, err := CreateTextDataProvider(filename)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	tdp.SetDataPlain(3.0, VarNodes)
	tdp.SetDataPlain(2.0, VarEnvironments)
	tdp.SetDataPlain(4.0, VarIntervals)
	if err := tdp.Sync(); err != nil {
		t.Fatalf("syncing: %v", err)
	}

	schema, _, err := LoadScenario(filename)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if schema.GetIndexBound(IdxNode) != 3 || schema.GetIndexBound(IdxInterval) != 4 {
		t.Errorf("scenario bounds not bound into the schema")
	}
}

func TestLoadScenarioWithoutBounds(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "empty.txt")
	if _, _, err := LoadScenario(filename); err == nil {
		t.Errorf("a scenario without dimensions should not load")
	}
}

func TestTwoStageBaseline(t *testing.T) {
	cfg := DefaultScenarioCfg()
	cfg.RngName = "two_stage_baseline"
	schema, provider := GenerateScenario(cfg)

	traceFile := filepath.Join(t.TempDir(), "trace.yaml")
	expCfg := ExperimentCfg{
		Name:      "baseline",
		UseGA:     false,
		Sim:       SimCfg{DT: 1.0, RngName: "two_stage_sim"},
		TraceFile: traceFile,
	}

	tso := CreateTwoStageOptimizer(schema, provider, expCfg)
	baseline, final, err := tso.Run()
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if baseline != final {
		t.Errorf("without the search both qualities should match, %g vs %g", baseline, final)
	}

	if len(tso.Trace().Histories) == 0 {
		t.Errorf("trace gathered nothing")
	}
	if _, err := os.Stat(traceFile); err != nil {
		t.Errorf("trace file not written: %v", err)
	}
}

func TestTwoStageWithSearch(t *testing.T) {
	cfg := ScenarioCfg{
		Nodes: 2, Environments: 2, Intervals: 1, EntryNodes: 1,
		MaxInflux: 10.0, MaxIntensity: 20.0, MaxIntervalLen: 5.0,
		RngName: "two_stage_search_scenario",
	}
	schema, provider := GenerateScenario(cfg)

	gaCfg := DefaultGaCfg()
	gaCfg.Population = 4
	gaCfg.Iterations = 2
	gaCfg.RngName = "two_stage_search_ga"

	expCfg := ExperimentCfg{
		Name:  "search",
		UseGA: true,
		Ga:    gaCfg,
		Sim:   SimCfg{DT: 1.0, RngName: "two_stage_search_sim"},
	}
	tso := CreateTwoStageOptimizer(schema, provider, expCfg)
	baseline, final, err := tso.Run()
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if final < baseline {
		t.Errorf("the search must never report a regression, %g vs %g", final, baseline)
	}
}

func TestTwoStageToleratesIsland(t *testing.T) {
	cfg := DefaultScenarioCfg()
	cfg.RngName = "two_stage_island"
	schema, provider := GenerateScenario(cfg)

	// concentrate the influx on node 0 and sever every channel into node 3
	for _, idx := range schema.RadixMapIterVar(VarGenerate) {
		influx := 0.0
		if idx[0] == 0 {
			influx = 5.0
		}
		provider.SetDataPlain(influx, VarGenerate, idx...)
	}
	for _, idx := range schema.RadixMapIterVar(VarIntensityTransfer) {
		if idx[1] == 3 {
			provider.SetDataPlain(0.0, VarIntensityTransfer, idx...)
		}
	}
	if len(CheckConnectivity(WrapStandardChain(schema, provider))) == 0 {
		t.Fatalf("the severed scenario should report an island")
	}

	expCfg := ExperimentCfg{Name: "island", Sim: SimCfg{DT: 1.0, RngName: "island_sim"}}
	tso := CreateTwoStageOptimizer(schema, provider, expCfg)
	baseline, final, err := tso.Run()
	if err != nil {
		t.Fatalf("an unreachable node should not abort the pipeline: %v", err)
	}
	if baseline != final {
		t.Errorf("without the search both qualities should match, %g vs %g", baseline, final)
	}
	if len(tso.Connectivity()) == 0 {
		t.Errorf("the island should surface in the reachability reports")
	}

	strict := expCfg
	strict.RequireConnected = true
	if _, _, err := CreateTwoStageOptimizer(schema, provider.Clone(), strict).Run(); err == nil {
		t.Errorf("a strict experiment should reject the island")
	}
}

func TestCheckConnectivityFlagsIsland(t *testing.T) {
	schema, provider := twoNodeScenario()
	di := WrapStandardChain(schema, provider)

	if reports := CheckConnectivity(di); len(reports) != 0 {
		t.Fatalf("the relay scenario is fully connected, got %+v", reports)
	}

	// severing the only channel strands node 1
	provider.SetDataPlain(0.0, VarCapTransfer, 0, 1, 0, 0)
	reports := CheckConnectivity(di)
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	if len(reports[0].Unreachable) != 1 || reports[0].Unreachable[0] != 1 {
		t.Errorf("node 1 should be flagged, got %v", reports[0].Unreachable)
	}
}
