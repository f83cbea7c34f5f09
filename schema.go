package vnetopt

// schema.go holds the static description of index cardinalities and of the
// indices each named variable depends on, together with the serialized
// (desc) form of that description

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A SchemaCfg is the serializable description of a Schema.  Two top-level
// fields: index name -> exclusive integer bound, and variable name -> ordered
// index-name list.  Index values are counted from 0, bounds are exclusive.
type SchemaCfg struct {
	IndexBound      map[string]int      `json:"indexbound" yaml:"indexbound"`
	VariableIndices map[string][]string `json:"variableindices" yaml:"variableindices"`
}

// A Schema owns the mapping from variable names to their ordered index lists
// and from index names to cardinalities.  Once constructed it is immutable,
// except for index bounds whose values are deferred until they can be read
// from loaded data (see InitIndexBoundsFromData).
type Schema struct {
	cfg SchemaCfg
}

// DefaultVariableIndices describes the variables of the virtualized-network
// planning problem.  The index order given here is a contract: the planner
// validates against it at construction.
func DefaultVariableIndices() map[string][]string {
	return map[string][]string{
		VarTransfer:          {IdxNode, IdxPeer, IdxEnvironment, IdxInterval},
		VarStore:             {IdxNode, IdxEnvironment, IdxInterval},
		VarProcess:           {IdxNode, IdxEnvironment, IdxInterval},
		VarDrop:              {IdxNode, IdxEnvironment, IdxInterval},
		VarGenerate:          {IdxNode, IdxEnvironment, IdxInterval},
		VarCapTransfer:       {IdxNode, IdxPeer, IdxEnvironment, IdxInterval},
		VarCapStore:          {IdxNode, IdxEnvironment, IdxInterval},
		VarCapProcess:        {IdxNode, IdxEnvironment, IdxInterval},
		VarIntensityTransfer: {IdxNode, IdxPeer, IdxInterval},
		VarIntensityStore:    {IdxNode, IdxInterval},
		VarIntensityProcess:  {IdxNode, IdxInterval},
		VarFractionTransfer:  {IdxNode, IdxPeer, IdxEnvironment, IdxInterval},
		VarFractionStore:     {IdxNode, IdxEnvironment, IdxInterval},
		VarFractionProcess:   {IdxNode, IdxEnvironment, IdxInterval},
		VarTransferHat:       {IdxNode, IdxPeer, IdxEnvironment, IdxInterval},
		VarStoreHat:          {IdxNode, IdxEnvironment, IdxInterval},
		VarProcessHat:        {IdxNode, IdxEnvironment, IdxInterval},
		VarDropHat:           {IdxNode, IdxEnvironment, IdxInterval},
		VarGenerateHat:       {IdxNode, IdxEnvironment, IdxInterval},
		VarWeightProcessed:   {},
		VarWeightDropped:     {},
		VarIntervalLen:       {IdxInterval},
		VarNodes:             {},
		VarEnvironments:      {},
		VarIntervals:         {},
	}
}

// CreateSchema builds a Schema from explicit bounds and variable descriptions
func CreateSchema(indexBound map[string]int, variableIndices map[string][]string) *Schema {
	schema := new(Schema)
	schema.cfg.IndexBound = make(map[string]int)
	for idx, bound := range indexBound {
		schema.cfg.IndexBound[idx] = bound
	}
	schema.cfg.VariableIndices = make(map[string][]string)
	for v, indices := range variableIndices {
		schema.cfg.VariableIndices[v] = slices.Clone(indices)
	}
	return schema
}

// CreateDefaultSchema builds a Schema over the default variable set, given
// the three problem dimensions
func CreateDefaultSchema(nodes, environments, intervals int) *Schema {
	return CreateSchema(
		map[string]int{IdxNode: nodes, IdxPeer: nodes, IdxEnvironment: environments, IdxInterval: intervals},
		DefaultVariableIndices())
}

// ReadSchemaCfg deserializes a byte slice holding a representation of a
// SchemaCfg.  If the dict argument is empty, the bytes are read from the file
// whose name is given.
func ReadSchemaCfg(filename string, useYAML bool, dict []byte) (*Schema, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := SchemaCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	schema := new(Schema)
	schema.cfg = example
	if schema.cfg.IndexBound == nil {
		schema.cfg.IndexBound = make(map[string]int)
	}
	if schema.cfg.VariableIndices == nil {
		schema.cfg.VariableIndices = make(map[string][]string)
	}
	return schema, nil
}

// WriteToFile stores the Schema's cfg form to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (schema *Schema) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(schema.cfg)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(schema.cfg, "", "\t")
	}
	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return werr
}

// Variables returns the names of all declared variables, sorted for
// deterministic iteration
func (schema *Schema) Variables() []string {
	vars := make([]string, 0, len(schema.cfg.VariableIndices))
	for v := range schema.cfg.VariableIndices {
		vars = append(vars, v)
	}
	slices.Sort(vars)
	return vars
}

// HasVar reports whether the named variable is declared
func (schema *Schema) HasVar(variable string) bool {
	_, present := schema.cfg.VariableIndices[variable]
	return present
}

// SetIndexBound registers (or overwrites) the cardinality of an index
func (schema *Schema) SetIndexBound(index string, bound int) {
	schema.cfg.IndexBound[index] = bound
}

// GetIndexBound returns the exclusive upper bound of the named index.
// Referencing an unregistered index is a configuration error.
func (schema *Schema) GetIndexBound(index string) int {
	bound, present := schema.cfg.IndexBound[index]
	if !present {
		panic(fmt.Sprintf("schema: index %s has no registered bound", index))
	}
	return bound
}

// GetVarIndices returns the ordered index-name list of the named variable.
// Requesting an unknown variable is a configuration error.
func (schema *Schema) GetVarIndices(variable string) []string {
	indices, present := schema.cfg.VariableIndices[variable]
	if !present {
		panic(fmt.Sprintf("schema: unknown variable %s", variable))
	}
	return slices.Clone(indices)
}

// GetVarRadix returns the index cardinalities in the variable's declared
// order.  A variable's index tuple can be read as a mixed-radix number; this
// is the base of that number.
func (schema *Schema) GetVarRadix(variable string) []int {
	return schema.MakeRadixMap(schema.GetVarIndices(variable)...)
}

// MakeRadixMap returns the cardinalities of the named indices, in call order
func (schema *Schema) MakeRadixMap(indices ...string) []int {
	radix := make([]int, len(indices))
	for pos, idx := range indices {
		radix[pos] = schema.GetIndexBound(idx)
	}
	return radix
}

// RadixMapIter enumerates the cartesian product of range(bound) for each
// named index, in row-major order with the last index varying fastest.  All
// call sites that zip this sequence against external data rows depend on that
// ordering.
func (schema *Schema) RadixMapIter(indices ...string) [][]int {
	return radixCartesianProduct(schema.MakeRadixMap(indices...))
}

// RadixMapIterVar enumerates all valid index tuples of the named variable
func (schema *Schema) RadixMapIterVar(variable string) [][]int {
	return schema.RadixMapIter(schema.GetVarIndices(variable)...)
}

// radixCartesianProduct enumerates all tuples below the given radix bounds.
// An empty radix vector yields exactly one empty tuple (the scalar case).
func radixCartesianProduct(radix []int) [][]int {
	total := 1
	for _, bound := range radix {
		total *= bound
	}
	if total == 0 {
		return [][]int{}
	}

	product := make([][]int, 0, total)
	tuple := make([]int, len(radix))
	for n := 0; n < total; n++ {
		product = append(product, slices.Clone(tuple))

		// advance the mixed-radix counter, last position fastest
		for pos := len(radix) - 1; pos >= 0; pos-- {
			tuple[pos]++
			if tuple[pos] < radix[pos] {
				break
			}
			tuple[pos] = 0
		}
	}
	return product
}

// IndicesDictToPlain converts a {index name: value} mapping into the
// positional tuple matching the variable's declared index order.  The name
// set must exactly match the variable's declared indices.
func (schema *Schema) IndicesDictToPlain(variable string, indices map[string]int) []int {
	declared := schema.GetVarIndices(variable)
	if len(indices) != len(declared) {
		panic(fmt.Sprintf("schema: variable %s declares indices %v, got %v", variable, declared, indices))
	}

	plain := make([]int, len(declared))
	for pos, idx := range declared {
		value, present := indices[idx]
		if !present {
			panic(fmt.Sprintf("schema: variable %s requires index %s, got %v", variable, idx, indices))
		}
		plain[pos] = value
	}
	return plain
}

// IndicesPlainToDict converts a positional index tuple into a
// {index name: value} mapping.  The value count must match the variable's
// declared indices.
func (schema *Schema) IndicesPlainToDict(variable string, indices ...int) map[string]int {
	declared := schema.GetVarIndices(variable)
	if len(indices) != len(declared) {
		panic(fmt.Sprintf("schema: variable %s declares %d indices, got %d", variable, len(declared), len(indices)))
	}

	dict := make(map[string]int, len(declared))
	for pos, idx := range declared {
		dict[idx] = indices[pos]
	}
	return dict
}

// InitIndexBoundsFromData reads the problem dimensions from the scalar
// variables carried in the data itself and registers the index bounds
func (schema *Schema) InitIndexBoundsFromData(di DataInterface) error {
	for _, pair := range []struct {
		variable string
		index    string
	}{
		{VarNodes, IdxNode},
		{VarNodes, IdxPeer},
		{VarEnvironments, IdxEnvironment},
		{VarIntervals, IdxInterval},
	} {
		bound, err := di.Data(pair.variable, nil)
		if err != nil {
			return err
		}
		schema.SetIndexBound(pair.index, int(bound))
	}
	return nil
}
