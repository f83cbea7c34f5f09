package vnetopt

// rowindex.go holds the RowIndex, which packs the index tuples of a set of
// variables into one contiguous range of non-negative integers.  The planner
// uses it to assign LP column positions, the GA uses it to flatten fraction
// variables into a gene vector.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// A RowIndex maps (variable, index tuple) pairs into a flat range.  Variables
// occupy consecutive subranges in registration order, and within a variable's
// subrange the index tuple is read as a mixed-radix number with the last
// index varying fastest.  A variable with no indices occupies exactly one slot.
type RowIndex struct {
	variables []string
	radix     map[string][]int
	weight    map[string][]int
	offset    map[string]int
	rowLen    int
}

// CreateRowIndex builds a RowIndex over the named variables, in the given
// order, taking each variable's radix from the radix map
func CreateRowIndex(variables []string, radix map[string][]int) *RowIndex {
	ri := new(RowIndex)
	ri.variables = slices.Clone(variables)
	ri.radix = make(map[string][]int)
	ri.weight = make(map[string][]int)
	ri.offset = make(map[string]int)

	pos := 0
	for _, v := range variables {
		vradix, present := radix[v]
		if !present {
			panic(fmt.Sprintf("rowindex: variable %s has no radix", v))
		}
		ri.radix[v] = slices.Clone(vradix)

		// right-to-left cumulative products give the positional weights
		vweight := make([]int, len(vradix))
		span := 1
		for dim := len(vradix) - 1; dim >= 0; dim-- {
			vweight[dim] = span
			span *= vradix[dim]
		}
		ri.weight[v] = vweight
		ri.offset[v] = pos
		pos += span
	}
	ri.rowLen = pos
	return ri
}

// RowIndexFromSchema builds a RowIndex over the named variables using the
// schema's declared index bounds for each variable's radix
func RowIndexFromSchema(schema *Schema, variables []string) *RowIndex {
	radix := make(map[string][]int, len(variables))
	for _, v := range variables {
		radix[v] = schema.GetVarRadix(v)
	}
	return CreateRowIndex(variables, radix)
}

// RowLen returns the total number of slots covered by the index
func (ri *RowIndex) RowLen() int {
	return ri.rowLen
}

// Variables returns the variable names in registration order
func (ri *RowIndex) Variables() []string {
	return slices.Clone(ri.variables)
}

// Radix returns the registered radix of the named variable
func (ri *RowIndex) Radix(variable string) []int {
	vradix, present := ri.radix[variable]
	if !present {
		panic(fmt.Sprintf("rowindex: unknown variable %s", variable))
	}
	return slices.Clone(vradix)
}

// Pos returns the flat position of the variable's index tuple.  Unknown
// variables, wrong tuple lengths, and out-of-range index values are contract
// violations.
func (ri *RowIndex) Pos(variable string, indices ...int) int {
	vradix, present := ri.radix[variable]
	if !present {
		panic(fmt.Sprintf("rowindex: unknown variable %s", variable))
	}
	if len(indices) != len(vradix) {
		panic(fmt.Sprintf("rowindex: variable %s needs %d indices, got %d", variable, len(vradix), len(indices)))
	}

	pos := ri.offset[variable]
	vweight := ri.weight[variable]
	for dim, value := range indices {
		if value < 0 || value >= vradix[dim] {
			panic(fmt.Sprintf("rowindex: variable %s index %d out of range, got %d with bound %d",
				variable, dim, value, vradix[dim]))
		}
		pos += value * vweight[dim]
	}
	return pos
}

// VarAt recovers the (variable, index tuple) pair stored at the flat position
func (ri *RowIndex) VarAt(pos int) (string, []int) {
	if pos < 0 || pos >= ri.rowLen {
		panic(fmt.Sprintf("rowindex: position %d out of range %d", pos, ri.rowLen))
	}

	for n := len(ri.variables) - 1; n >= 0; n-- {
		v := ri.variables[n]
		if pos < ri.offset[v] {
			continue
		}
		rem := pos - ri.offset[v]
		vweight := ri.weight[v]
		indices := make([]int, len(vweight))
		for dim := range vweight {
			indices[dim] = rem / vweight[dim]
			rem = rem % vweight[dim]
		}
		return v, indices
	}
	panic(fmt.Sprintf("rowindex: position %d has no owner", pos))
}
