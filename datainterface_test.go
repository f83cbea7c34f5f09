package vnetopt

import (
	"math"
	"path/filepath"
	"testing"
)

func TestConcreteRoundTrip(t *testing.T) {
	schema := CreateDefaultSchema(2, 2, 2)
	di := CreateConcreteDataInterface(schema, CreateMemDataProvider())

	indices := map[string]int{IdxNode: 1, IdxEnvironment: 0, IdxInterval: 1}
	if _, err := di.Data(VarStore, indices); !IsNoData(err) {
		t.Fatalf("expected a no-data error before the write, got %v", err)
	}
	if err := di.SetData(4.5, VarStore, indices); err != nil {
		t.Fatalf("writing: %v", err)
	}
	value, err := di.Data(VarStore, indices)
	if err != nil || value != 4.5 {
		t.Fatalf("expected 4.5 back, got %g with error %v", value, err)
	}
}

func TestDefaultingCoversOnlyListedVariables(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	di := CreateDefaultingDataInterface(
		CreateConcreteDataInterface(schema, CreateMemDataProvider()), 0.0, nil)
	di.Restrict([]string{VarStore}, nil)

	indices := map[string]int{IdxNode: 0, IdxEnvironment: 0, IdxInterval: 0}
	value, err := di.Data(VarStore, indices)
	if err != nil || value != 0.0 {
		t.Errorf("covered variable should default to zero, got %g with %v", value, err)
	}
	if _, err := di.Data(VarProcess, indices); !IsNoData(err) {
		t.Errorf("uncovered variable should stay absent, got %v", err)
	}
}

func TestDefaultingOverride(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	di := CreateDefaultingDataInterface(
		CreateConcreteDataInterface(schema, CreateMemDataProvider()),
		0.0, map[string]float64{VarProcess: 7.0})

	indices := map[string]int{IdxNode: 0, IdxEnvironment: 0, IdxInterval: 0}
	value, err := di.Data(VarProcess, indices)
	if err != nil || value != 7.0 {
		t.Errorf("override should win over the common default, got %g with %v", value, err)
	}
}

func TestDefaultingRejectsDoubleRestriction(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	di := CreateDefaultingDataInterface(
		CreateConcreteDataInterface(schema, CreateMemDataProvider()), 0.0, nil)

	defer func() {
		if recover() == nil {
			t.Errorf("restricting with both lists should panic")
		}
	}()
	di.Restrict([]string{VarStore}, []string{VarProcess})
}

func TestInferringCapacityProduct(t *testing.T) {
	schema := CreateDefaultSchema(2, 2, 1)
	provider := CreateMemDataProvider()
	provider.SetDataPlain(4.0, VarIntensityTransfer, 0, 1, 0)
	provider.SetDataPlain(0.25, VarFractionTransfer, 0, 1, 1, 0)

	di := CreateInferringDataInterface(CreateConcreteDataInterface(schema, provider))
	value, err := di.Data(VarCapTransfer,
		map[string]int{IdxNode: 0, IdxPeer: 1, IdxEnvironment: 1, IdxInterval: 0})
	if err != nil {
		t.Fatalf("inference failed: %v", err)
	}
	if math.Abs(value-1.0) > 1e-12 {
		t.Errorf("expected intensity times fraction = 1.0, got %g", value)
	}

	// a stored value always wins over inference
	provider.SetDataPlain(9.0, VarCapTransfer, 0, 1, 1, 0)
	value, err = di.Data(VarCapTransfer,
		map[string]int{IdxNode: 0, IdxPeer: 1, IdxEnvironment: 1, IdxInterval: 0})
	if err != nil || value != 9.0 {
		t.Errorf("stored capacity should shadow inference, got %g with %v", value, err)
	}
}

func TestTranslatingAliases(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	provider := CreateMemDataProvider()
	di := CreateTranslatingDataInterface(
		CreateConcreteDataInterface(schema, provider), DefaultTranslationTable())

	indices := map[string]int{IdxNode: 0, IdxInterval: 0}
	if err := di.SetData(3.0, "storage_intensity", indices); err != nil {
		t.Fatalf("writing through alias: %v", err)
	}
	value, err := di.Data(VarIntensityStore, indices)
	if err != nil || value != 3.0 {
		t.Errorf("alias should land on the canonical name, got %g with %v", value, err)
	}
}

func TestConstrainedRejectsBadAccess(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	di := CreateConstrainedDataInterface(
		CreateConcreteDataInterface(schema, CreateMemDataProvider()))

	expectPanic := func(name string, broken func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s should panic", name)
			}
		}()
		broken()
	}
	expectPanic("unknown variable", func() {
		di.Data("bogus", map[string]int{})
	})
	expectPanic("missing index", func() {
		di.Data(VarStore, map[string]int{IdxNode: 0, IdxEnvironment: 0})
	})
	expectPanic("extra index", func() {
		di.Data(VarIntervalLen, map[string]int{IdxInterval: 0, IdxNode: 0})
	})
}

func TestTextProviderRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "scenario.txt")

	tdp, err := CreateTextDataProvider(filename)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	tdp.SetDataPlain(2.0, VarNodes)
	tdp.SetDataPlain(10.0, VarGenerate, 0, 0, 0)
	tdp.SetDataPlain(0.5, VarFractionTransfer, 0, 1, 0, 0)
	if err := tdp.Sync(); err != nil {
		t.Fatalf("syncing: %v", err)
	}

	loaded, err := CreateTextDataProvider(filename)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	value, err := loaded.DataPlain(VarGenerate, 0, 0, 0)
	if err != nil || value != 10.0 {
		t.Errorf("expected 10 back, got %g with %v", value, err)
	}
	value, err = loaded.DataPlain(VarFractionTransfer, 0, 1, 0, 0)
	if err != nil || value != 0.5 {
		t.Errorf("expected 0.5 back, got %g with %v", value, err)
	}

	count := 0
	loaded.Iterate(func(rec DataRecord) { count++ })
	if count != 3 {
		t.Errorf("expected 3 records after reload, got %d", count)
	}
}

func TestTextProviderSkipsMalformedLines(t *testing.T) {
	variable, indices, value, ok := parseProviderLine("x_eq 0 1 2 12.5")
	if !ok || variable != VarGenerate || len(indices) != 3 || value != 12.5 {
		t.Errorf("well-formed line rejected: %v %v %g %v", variable, indices, value, ok)
	}
	if _, _, _, ok := parseProviderLine("# a comment"); ok {
		t.Errorf("comment line accepted")
	}
	if _, _, _, ok := parseProviderLine("x_eq zero 12.5"); ok {
		t.Errorf("non-integer index accepted")
	}
	if _, _, _, ok := parseProviderLine(""); ok {
		t.Errorf("blank line accepted")
	}
}

func TestStandardChainReadsSparseScenario(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	provider := CreateMemDataProvider()
	provider.SetDataPlain(5.0, VarIntensityTransfer, 0, 1, 0)
	provider.SetDataPlain(1.0, VarFractionTransfer, 0, 1, 0, 0)

	di := WrapStandardChain(schema, provider)

	// planned amounts default to zero
	value, err := di.Data(VarTransfer,
		map[string]int{IdxNode: 0, IdxPeer: 1, IdxEnvironment: 0, IdxInterval: 0})
	if err != nil || value != 0.0 {
		t.Errorf("plan should default to zero, got %g with %v", value, err)
	}

	// capacity is inferred through the chain
	value, err = di.Data(VarCapTransfer,
		map[string]int{IdxNode: 0, IdxPeer: 1, IdxEnvironment: 0, IdxInterval: 0})
	if err != nil || value != 5.0 {
		t.Errorf("capacity should be inferred as 5.0, got %g with %v", value, err)
	}

	// descriptive aliases resolve before the contract check
	value, err = di.Data("transferred",
		map[string]int{IdxNode: 0, IdxPeer: 1, IdxEnvironment: 0, IdxInterval: 0})
	if err != nil || value != 0.0 {
		t.Errorf("aliased plan read should default to zero, got %g with %v", value, err)
	}
}
