package vnetopt

// datainterface.go holds the layered access path between algorithm code and
// stored scenario data.  Each layer wraps another DataInterface and adds one
// behavior: translation of variable names, defaulting of absent entries,
// inference of derived values, or contract checking.  The bottom layer binds
// a Schema to a DataProvider.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// A DataInterface reads and writes scalar values addressed by variable name
// and a {index name: value} map.  Reads of absent entries return a
// NoDataError unless some layer fills them in.
type DataInterface interface {
	Data(variable string, indices map[string]int) (float64, error)
	SetData(value float64, variable string, indices map[string]int) error
	Schema() *Schema
}

// A ConcreteDataInterface is the bottom layer.  It converts named index maps
// into the positional tuples its provider stores, using the schema's
// declared index order.
type ConcreteDataInterface struct {
	schema   *Schema
	provider DataProvider
}

// CreateConcreteDataInterface binds a schema to a provider
func CreateConcreteDataInterface(schema *Schema, provider DataProvider) *ConcreteDataInterface {
	cdi := new(ConcreteDataInterface)
	cdi.schema = schema
	cdi.provider = provider
	return cdi
}

func (cdi *ConcreteDataInterface) Schema() *Schema {
	return cdi.schema
}

func (cdi *ConcreteDataInterface) Data(variable string, indices map[string]int) (float64, error) {
	return cdi.provider.DataPlain(variable, cdi.schema.IndicesDictToPlain(variable, indices)...)
}

func (cdi *ConcreteDataInterface) SetData(value float64, variable string, indices map[string]int) error {
	cdi.provider.SetDataPlain(value, variable, cdi.schema.IndicesDictToPlain(variable, indices)...)
	return nil
}

// A TranslatingDataInterface renames variables before delegating, so that
// callers may address variables by descriptive name while storage carries
// the short mathematical ones
type TranslatingDataInterface struct {
	next    DataInterface
	aliases map[string]string
}

// DefaultTranslationTable maps descriptive access names onto the short
// canonical variable names the providers store
func DefaultTranslationTable() map[string]string {
	return map[string]string{
		"transferred":          VarTransfer,
		"stored":               VarStore,
		"processed":            VarProcess,
		"dropped":              VarDrop,
		"generated":            VarGenerate,
		"channel_capacity":     VarCapTransfer,
		"storage_capacity":     VarCapStore,
		"processing_capacity":  VarCapProcess,
		"channel_intensity":    VarIntensityTransfer,
		"storage_intensity":    VarIntensityStore,
		"processing_intensity": VarIntensityProcess,
		"channel_fraction":     VarFractionTransfer,
		"storage_fraction":     VarFractionStore,
		"processing_fraction":  VarFractionProcess,
		"weight_processed":     VarWeightProcessed,
		"weight_dropped":       VarWeightDropped,
		"interval_duration":    VarIntervalLen,
	}
}

// CreateTranslatingDataInterface wraps next with the given alias table.
// Names absent from the table pass through unchanged.
func CreateTranslatingDataInterface(next DataInterface, aliases map[string]string) *TranslatingDataInterface {
	tdi := new(TranslatingDataInterface)
	tdi.next = next
	tdi.aliases = aliases
	return tdi
}

func (tdi *TranslatingDataInterface) translate(variable string) string {
	if canonical, present := tdi.aliases[variable]; present {
		return canonical
	}
	return variable
}

func (tdi *TranslatingDataInterface) Schema() *Schema {
	return tdi.next.Schema()
}

func (tdi *TranslatingDataInterface) Data(variable string, indices map[string]int) (float64, error) {
	return tdi.next.Data(tdi.translate(variable), indices)
}

func (tdi *TranslatingDataInterface) SetData(value float64, variable string, indices map[string]int) error {
	return tdi.next.SetData(value, tdi.translate(variable), indices)
}

// A DefaultingDataInterface turns NoDataError reads into a default value.
// The set of variables that get the default can be restricted with an
// allowed list or with a prohibited list, but not both.
type DefaultingDataInterface struct {
	next       DataInterface
	common     float64
	overrides  map[string]float64
	allowed    []string
	prohibited []string
}

// CreateDefaultingDataInterface wraps next so that absent entries read as
// the common default.  Per-variable overrides take precedence over the
// common value.
func CreateDefaultingDataInterface(next DataInterface, common float64, overrides map[string]float64) *DefaultingDataInterface {
	ddi := new(DefaultingDataInterface)
	ddi.next = next
	ddi.common = common
	ddi.overrides = overrides
	return ddi
}

// Restrict limits defaulting to the allowed variables, or excludes the
// prohibited ones.  Passing both lists is a configuration error.
func (ddi *DefaultingDataInterface) Restrict(allowed, prohibited []string) *DefaultingDataInterface {
	if len(allowed) > 0 && len(prohibited) > 0 {
		panic("datainterface: both allowed and prohibited variable sets given")
	}
	ddi.allowed = allowed
	ddi.prohibited = prohibited
	return ddi
}

func (ddi *DefaultingDataInterface) covers(variable string) bool {
	if len(ddi.allowed) > 0 {
		return slices.Contains(ddi.allowed, variable)
	}
	return !slices.Contains(ddi.prohibited, variable)
}

func (ddi *DefaultingDataInterface) Schema() *Schema {
	return ddi.next.Schema()
}

func (ddi *DefaultingDataInterface) Data(variable string, indices map[string]int) (float64, error) {
	value, err := ddi.next.Data(variable, indices)
	if err == nil || !IsNoData(err) || !ddi.covers(variable) {
		return value, err
	}
	if override, present := ddi.overrides[variable]; present {
		return override, nil
	}
	return ddi.common, nil
}

func (ddi *DefaultingDataInterface) SetData(value float64, variable string, indices map[string]int) error {
	return ddi.next.SetData(value, variable, indices)
}

// An InferringDataInterface computes derived variables from stored ones when
// the stored form is absent.  Capacity variables are inferred as intensity
// times fraction, with the full index map projected onto each factor's
// declared indices.
type InferringDataInterface struct {
	next  DataInterface
	rules map[string][]string
}

// CreateInferringDataInterface wraps next with the capacity inference rules
func CreateInferringDataInterface(next DataInterface) *InferringDataInterface {
	idi := new(InferringDataInterface)
	idi.next = next
	idi.rules = map[string][]string{
		VarCapTransfer: {VarIntensityTransfer, VarFractionTransfer},
		VarCapStore:    {VarIntensityStore, VarFractionStore},
		VarCapProcess:  {VarIntensityProcess, VarFractionProcess},
	}
	return idi
}

// project keeps only the index entries a factor variable declares
func (idi *InferringDataInterface) project(variable string, indices map[string]int) map[string]int {
	projected := make(map[string]int)
	for _, idx := range idi.next.Schema().GetVarIndices(variable) {
		value, present := indices[idx]
		if !present {
			panic(fmt.Sprintf("datainterface: inferring %s requires index %s, got %v", variable, idx, indices))
		}
		projected[idx] = value
	}
	return projected
}

func (idi *InferringDataInterface) Schema() *Schema {
	return idi.next.Schema()
}

func (idi *InferringDataInterface) Data(variable string, indices map[string]int) (float64, error) {
	value, err := idi.next.Data(variable, indices)
	if err == nil || !IsNoData(err) {
		return value, err
	}
	factors, present := idi.rules[variable]
	if !present {
		return value, err
	}

	product := 1.0
	for _, factor := range factors {
		fval, ferr := idi.next.Data(factor, idi.project(factor, indices))
		if ferr != nil {
			return 0.0, ferr
		}
		product *= fval
	}
	return product, nil
}

func (idi *InferringDataInterface) SetData(value float64, variable string, indices map[string]int) error {
	return idi.next.SetData(value, variable, indices)
}

// A ConstrainedDataInterface checks every access against the schema before
// delegating.  An unknown variable or an index map that does not match the
// variable's declared indices is a caller bug, not missing data.
type ConstrainedDataInterface struct {
	next DataInterface
}

// CreateConstrainedDataInterface wraps next with schema contract checks
func CreateConstrainedDataInterface(next DataInterface) *ConstrainedDataInterface {
	cdi := new(ConstrainedDataInterface)
	cdi.next = next
	return cdi
}

func (cdi *ConstrainedDataInterface) check(variable string, indices map[string]int) {
	schema := cdi.next.Schema()
	if !schema.HasVar(variable) {
		panic(fmt.Sprintf("datainterface: unknown variable %s", variable))
	}
	declared := schema.GetVarIndices(variable)
	if len(indices) != len(declared) {
		panic(fmt.Sprintf("datainterface: variable %s declares indices %v, got %v", variable, declared, indices))
	}
	for _, idx := range declared {
		if _, present := indices[idx]; !present {
			panic(fmt.Sprintf("datainterface: variable %s requires index %s, got %v", variable, idx, indices))
		}
	}
}

func (cdi *ConstrainedDataInterface) Schema() *Schema {
	return cdi.next.Schema()
}

func (cdi *ConstrainedDataInterface) Data(variable string, indices map[string]int) (float64, error) {
	cdi.check(variable, indices)
	return cdi.next.Data(variable, indices)
}

func (cdi *ConstrainedDataInterface) SetData(value float64, variable string, indices map[string]int) error {
	cdi.check(variable, indices)
	return cdi.next.SetData(value, variable, indices)
}

// WrapStandardChain assembles the access path the planner and simulation
// expect over raw scenario data: alias translation at the caller-facing edge,
// then contract checks, capacity inference, zero defaulting for the flow
// variables, and the concrete schema binding at the bottom.
func WrapStandardChain(schema *Schema, provider DataProvider) DataInterface {
	var di DataInterface = CreateConcreteDataInterface(schema, provider)
	ddi := CreateDefaultingDataInterface(di, 0.0, nil)
	ddi.Restrict([]string{
		VarTransfer, VarStore, VarProcess, VarDrop, VarGenerate,
		VarTransferHat, VarStoreHat, VarProcessHat, VarDropHat, VarGenerateHat,
		VarFractionTransfer, VarFractionStore, VarFractionProcess,
	}, nil)
	di = CreateInferringDataInterface(ddi)
	di = CreateConstrainedDataInterface(di)
	return CreateTranslatingDataInterface(di, DefaultTranslationTable())
}
