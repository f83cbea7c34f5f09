package vnetopt

import (
	"path/filepath"
	"testing"
)

func TestSchemaFileRoundTrip(t *testing.T) {
	schema := CreateDefaultSchema(3, 2, 4)
	filename := filepath.Join(t.TempDir(), "schema.yaml")
	if err := schema.WriteToFile(filename); err != nil {
		t.Fatalf("writing schema: %v", err)
	}

	loaded, err := ReadSchemaCfg(filename, true, []byte{})
	if err != nil {
		t.Fatalf("reading schema: %v", err)
	}
	if loaded.GetIndexBound(IdxNode) != 3 || loaded.GetIndexBound(IdxEnvironment) != 2 ||
		loaded.GetIndexBound(IdxInterval) != 4 {
		t.Errorf("index bounds lost in round trip")
	}

	indices := loaded.GetVarIndices(VarTransfer)
	want := []string{IdxNode, IdxPeer, IdxEnvironment, IdxInterval}
	if len(indices) != len(want) {
		t.Fatalf("transfer indices lost, got %v", indices)
	}
	for pos := range want {
		if indices[pos] != want[pos] {
			t.Errorf("transfer index %d should be %s, got %s", pos, want[pos], indices[pos])
		}
	}

	// the full sorted variable set survives persistence
	declared := schema.Variables()
	survived := loaded.Variables()
	if len(declared) != len(survived) {
		t.Fatalf("expected %d variables after reload, got %d", len(declared), len(survived))
	}
	for pos, v := range declared {
		if survived[pos] != v {
			t.Errorf("variable %d should be %s, got %s", pos, v, survived[pos])
		}
	}
}

func TestRadixIterationOrder(t *testing.T) {
	schema := CreateSchema(map[string]int{"a": 2, "b": 3}, map[string][]string{})

	tuples := schema.RadixMapIter("a", "b")
	if len(tuples) != 6 {
		t.Fatalf("expected 6 tuples, got %d", len(tuples))
	}
	// last index varies fastest
	want := [][]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	for n, tuple := range tuples {
		if tuple[0] != want[n][0] || tuple[1] != want[n][1] {
			t.Errorf("tuple %d should be %v, got %v", n, want[n], tuple)
		}
	}
}

func TestRadixIterScalar(t *testing.T) {
	schema := CreateDefaultSchema(2, 1, 1)
	tuples := schema.RadixMapIterVar(VarWeightProcessed)
	if len(tuples) != 1 || len(tuples[0]) != 0 {
		t.Fatalf("scalar variable should yield one empty tuple, got %v", tuples)
	}
}

func TestIndicesConversions(t *testing.T) {
	schema := CreateDefaultSchema(3, 2, 4)

	dict := map[string]int{IdxNode: 2, IdxPeer: 1, IdxEnvironment: 0, IdxInterval: 3}
	plain := schema.IndicesDictToPlain(VarTransfer, dict)
	if plain[0] != 2 || plain[1] != 1 || plain[2] != 0 || plain[3] != 3 {
		t.Fatalf("dict conversion out of order, got %v", plain)
	}

	back := schema.IndicesPlainToDict(VarTransfer, plain...)
	for idx, value := range dict {
		if back[idx] != value {
			t.Errorf("index %s should be %d after round trip, got %d", idx, value, back[idx])
		}
	}
}

func TestInitIndexBoundsFromData(t *testing.T) {
	schema := CreateSchema(map[string]int{}, DefaultVariableIndices())
	provider := CreateMemDataProvider()
	provider.SetDataPlain(5.0, VarNodes)
	provider.SetDataPlain(2.0, VarEnvironments)
	provider.SetDataPlain(3.0, VarIntervals)

	di := CreateConcreteDataInterface(schema, provider)
	if err := schema.InitIndexBoundsFromData(di); err != nil {
		t.Fatalf("reading bounds: %v", err)
	}
	if schema.GetIndexBound(IdxNode) != 5 || schema.GetIndexBound(IdxPeer) != 5 {
		t.Errorf("node bounds not taken from data")
	}
	if schema.GetIndexBound(IdxEnvironment) != 2 || schema.GetIndexBound(IdxInterval) != 3 {
		t.Errorf("environment or interval bounds not taken from data")
	}
}
