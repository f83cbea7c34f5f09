package vnetopt

// vnetopt.go holds package-wide constants and small helpers shared by the
// planner, the simulation, and the parameter search.
//
// The package models information flow in a virtualized multi-node network
// across discrete structural stability intervals.  A linear program produces
// a transfer/store/process/drop schedule, a tick-level simulation replays the
// schedule under bounded-rate noisy channels to validate it, and a genetic
// parameter search adjusts the per-environment intensity fractions.

import (
	"errors"
	"fmt"
	"math"
)

// Canonical variable names.  The schema binds each name to an ordered list
// of index names; see DefaultVariableIndices.
const (
	// planned amounts, produced by the planner
	VarTransfer = "x" // indexed (j, i, rho, l)
	VarStore    = "y" // indexed (j, rho, l)
	VarProcess  = "g" // indexed (j, rho, l)
	VarDrop     = "z" // indexed (j, rho, l)

	// external input amounts (the equality-constraint target)
	VarGenerate = "x_eq"

	// per-environment capacity bounds used by the planner
	VarCapTransfer = "psi"
	VarCapStore    = "v"
	VarCapProcess  = "phi"

	// physical intensities and the per-environment fractions thereof
	VarIntensityTransfer = "mm_psi"
	VarIntensityStore    = "mm_v"
	VarIntensityProcess  = "mm_phi"
	VarFractionTransfer  = "m_psi"
	VarFractionStore     = "m_v"
	VarFractionProcess   = "m_phi"

	// amounts actually handled by the simulation ("hat" variables)
	VarTransferHat = "x^"
	VarStoreHat    = "y^"
	VarProcessHat  = "g^"
	VarDropHat     = "z^"
	VarGenerateHat = "x_eq^"

	// objective weights and timing
	VarWeightProcessed = "alpha_0"
	VarWeightDropped   = "alpha_1"
	VarIntervalLen     = "tl" // indexed (l)

	// scalar index bounds carried in the data itself
	VarNodes        = "nodes"
	VarEnvironments = "virtualized_environments"
	VarIntervals    = "structural_stability_intervals"
)

// Canonical index names
const (
	IdxNode        = "j"
	IdxPeer        = "i"
	IdxEnvironment = "rho"
	IdxInterval    = "l"
)

// NoDataError reports that a (variable, indices) combination is absent from
// the underlying storage.  This is an expected, recoverable condition: sparse
// inputs (e.g. x_eq defined only for entry nodes) rely on it.
type NoDataError struct {
	Variable string
	Indices  []int
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for %s%v", e.Variable, e.Indices)
}

// IsNoData reports whether err wraps a NoDataError
func IsNoData(err error) bool {
	var nde *NoDataError
	return errors.As(err, &nde)
}

// InfeasibleError reports that the linear program admits no optimal solution.
// Callers (e.g. the two-stage orchestration loop) can catch it and retry with
// relaxed inputs instead of aborting.
type InfeasibleError struct {
	Status string
	Err    error
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("linear plan is %s: %v", e.Status, e.Err)
}

func (e *InfeasibleError) Unwrap() error { return e.Err }

// IsInfeasible reports whether err wraps an InfeasibleError
func IsInfeasible(err error) bool {
	var ife *InfeasibleError
	return errors.As(err, &ife)
}

// clamp restricts val to the interval [vmin, vmax]
func clamp(val, vmin, vmax float64) float64 {
	return math.Max(math.Min(val, vmax), vmin)
}

// ReportErrs combines multiple non-nil errors into one
func ReportErrs(errs []error) error {
	errList := []string{}
	for _, err := range errs {
		if err != nil {
			errList = append(errList, err.Error())
		}
	}
	if len(errList) == 0 {
		return nil
	}

	err := errList[0]
	for _, more := range errList[1:] {
		err += ", " + more
	}
	return errors.New(err)
}
