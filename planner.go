package vnetopt

// planner.go holds the linear planner.  It builds a flow-conservation LP over
// the transfer, store, process and drop variables of every structural
// stability interval and hands it to the simplex solver, writing the optimal
// plan back through the data interface.

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// PlannerCfg carries the planner options.  InfluxOrdering adds the prefix
// causality inequalities, which the equality system already implies; they
// are available for cross-checking solver behavior.
type PlannerCfg struct {
	InfluxOrdering bool `json:"influxordering" yaml:"influxordering"`
}

// plannerDecisionVars lists the LP decision variables, in column order
var plannerDecisionVars = []string{VarTransfer, VarStore, VarProcess, VarDrop}

// A Planner owns one LP instance built from a scenario.  Construction
// validates the schema and assembles the constraint system; Solve runs the
// solver and stores the plan.
type Planner struct {
	di     DataInterface
	schema *Schema
	ri     *RowIndex
	cfg    PlannerCfg

	eqRows    [][]float64
	eqRHS     []float64
	upper     []float64
	objective []float64
}

// CreatePlanner builds a Planner over the scenario reachable through di
func CreatePlanner(di DataInterface, cfg PlannerCfg) *Planner {
	plnr := new(Planner)
	plnr.di = di
	plnr.schema = di.Schema()
	plnr.cfg = cfg
	plnr.validate()
	plnr.ri = RowIndexFromSchema(plnr.schema, plannerDecisionVars)
	plnr.assemble()
	return plnr
}

// validate checks the structural assumptions the row construction relies on
func (plnr *Planner) validate() {
	schema := plnr.schema

	if schema.GetIndexBound(IdxNode) != schema.GetIndexBound(IdxPeer) {
		panic(fmt.Sprintf("planner: node index bounds differ, %d vs %d",
			schema.GetIndexBound(IdxNode), schema.GetIndexBound(IdxPeer)))
	}

	expect := map[string][]string{
		VarTransfer: {IdxNode, IdxPeer, IdxEnvironment, IdxInterval},
		VarStore:    {IdxNode, IdxEnvironment, IdxInterval},
		VarProcess:  {IdxNode, IdxEnvironment, IdxInterval},
		VarDrop:     {IdxNode, IdxEnvironment, IdxInterval},
		VarGenerate: {IdxNode, IdxEnvironment, IdxInterval},
	}
	for v, want := range expect {
		got := schema.GetVarIndices(v)
		if len(got) != len(want) {
			panic(fmt.Sprintf("planner: variable %s declares indices %v, need %v", v, got, want))
		}
		for pos := range want {
			if got[pos] != want[pos] {
				panic(fmt.Sprintf("planner: variable %s declares indices %v, need %v", v, got, want))
			}
		}
	}

	for _, weight := range []string{VarWeightProcessed, VarWeightDropped} {
		value, err := plnr.di.Data(weight, nil)
		if err != nil {
			panic(fmt.Sprintf("planner: weight %s unreadable, %v", weight, err))
		}
		if value == 0.0 {
			panic(fmt.Sprintf("planner: weight %s is zero", weight))
		}
	}
}

// assemble builds the equality rows, the variable upper bounds, and the
// objective vector
func (plnr *Planner) assemble() {
	schema := plnr.schema
	nodes := schema.GetIndexBound(IdxNode)
	n := plnr.ri.RowLen()

	plnr.eqRows = make([][]float64, 0)
	plnr.eqRHS = make([]float64, 0)

	// one conservation row per (node, environment, interval): everything
	// the node emits, stores, processes or drops during the interval
	// balances against its influx, its incoming transfers, and whatever
	// it stored in the previous interval
	for _, indices := range schema.RadixMapIter(IdxNode, IdxEnvironment, IdxInterval) {
		j, rho, l := indices[0], indices[1], indices[2]

		influx, err := plnr.di.Data(VarGenerate,
			map[string]int{IdxNode: j, IdxEnvironment: rho, IdxInterval: l})
		if err != nil {
			if IsNoData(err) {
				continue
			}
			panic(fmt.Sprintf("planner: reading %s failed, %v", VarGenerate, err))
		}

		row := make([]float64, n)
		row[plnr.ri.Pos(VarStore, j, rho, l)] = 1.0
		row[plnr.ri.Pos(VarProcess, j, rho, l)] = 1.0
		row[plnr.ri.Pos(VarDrop, j, rho, l)] = 1.0
		if l > 0 {
			row[plnr.ri.Pos(VarStore, j, rho, l-1)] = -1.0
		}
		for i := 0; i < nodes; i++ {
			if i == j {
				continue
			}
			row[plnr.ri.Pos(VarTransfer, j, i, rho, l)] += 1.0
			row[plnr.ri.Pos(VarTransfer, i, j, rho, l)] -= 1.0
		}
		plnr.eqRows = append(plnr.eqRows, row)
		plnr.eqRHS = append(plnr.eqRHS, influx)
	}

	// upper bounds come from the capacity variables; dropping is never
	// capacity limited
	capOf := map[string]string{
		VarTransfer: VarCapTransfer,
		VarStore:    VarCapStore,
		VarProcess:  VarCapProcess,
	}
	plnr.upper = make([]float64, n)
	for pos := 0; pos < n; pos++ {
		v, plain := plnr.ri.VarAt(pos)
		capVar, limited := capOf[v]
		if !limited {
			plnr.upper[pos] = math.Inf(1)
			continue
		}
		bound, err := plnr.di.Data(capVar, schema.IndicesPlainToDict(v, plain...))
		if err != nil {
			panic(fmt.Sprintf("planner: reading %s failed, %v", capVar, err))
		}
		plnr.upper[pos] = bound
	}

	// self-transfer columns are not real decisions
	for _, indices := range schema.RadixMapIterVar(VarTransfer) {
		if indices[0] == indices[1] {
			plnr.upper[plnr.ri.Pos(VarTransfer, indices...)] = 0.0
		}
	}

	alpha0, _ := plnr.di.Data(VarWeightProcessed, nil)
	alpha1, _ := plnr.di.Data(VarWeightDropped, nil)
	plnr.objective = make([]float64, n)
	for _, indices := range schema.RadixMapIterVar(VarProcess) {
		plnr.objective[plnr.ri.Pos(VarProcess, indices...)] = -alpha0
	}
	for _, indices := range schema.RadixMapIterVar(VarDrop) {
		plnr.objective[plnr.ri.Pos(VarDrop, indices...)] = alpha1
	}
}

// orderingRows builds the prefix causality inequalities: through any interval
// prefix a node cannot have emitted, processed or dropped more than it has
// received.  Each row is reported in <= form.
func (plnr *Planner) orderingRows() ([][]float64, []float64) {
	schema := plnr.schema
	nodes := schema.GetIndexBound(IdxNode)
	n := plnr.ri.RowLen()

	rows := make([][]float64, 0)
	rhs := make([]float64, 0)
	for _, indices := range schema.RadixMapIter(IdxNode, IdxEnvironment, IdxInterval) {
		j, rho, l := indices[0], indices[1], indices[2]

		row := make([]float64, n)
		total := 0.0
		usable := true
		for lpast := 0; lpast <= l; lpast++ {
			row[plnr.ri.Pos(VarProcess, j, rho, lpast)] += 1.0
			row[plnr.ri.Pos(VarDrop, j, rho, lpast)] += 1.0
			for i := 0; i < nodes; i++ {
				if i == j {
					continue
				}
				row[plnr.ri.Pos(VarTransfer, j, i, rho, lpast)] += 1.0
				row[plnr.ri.Pos(VarTransfer, i, j, rho, lpast)] -= 1.0
			}
			influx, err := plnr.di.Data(VarGenerate,
				map[string]int{IdxNode: j, IdxEnvironment: rho, IdxInterval: lpast})
			if err != nil {
				if IsNoData(err) {
					usable = false
					break
				}
				panic(fmt.Sprintf("planner: reading %s failed, %v", VarGenerate, err))
			}
			total += influx
		}
		if !usable {
			continue
		}
		rows = append(rows, row)
		rhs = append(rhs, total)
	}
	return rows, rhs
}

// Solve runs the simplex solver over the assembled system and writes the
// optimal plan back through the data interface.  An infeasible or unbounded
// system is reported as an InfeasibleError.
func (plnr *Planner) Solve() error {
	n := plnr.ri.RowLen()

	ineqRows := [][]float64{}
	ineqRHS := []float64{}
	if plnr.cfg.InfluxOrdering {
		ineqRows, ineqRHS = plnr.orderingRows()
	}
	for pos := 0; pos < n; pos++ {
		if math.IsInf(plnr.upper[pos], 1) {
			continue
		}
		row := make([]float64, n)
		row[pos] = 1.0
		ineqRows = append(ineqRows, row)
		ineqRHS = append(ineqRHS, plnr.upper[pos])
	}

	// standard form: each inequality row gets its own slack column.
	// Building the system directly keeps the decision variables in the
	// leading columns of the solution.
	mEq := len(plnr.eqRows)
	mIneq := len(ineqRows)
	nTot := n + mIneq
	a := mat.NewDense(mEq+mIneq, nTot, nil)
	b := make([]float64, mEq+mIneq)
	c := make([]float64, nTot)

	for r, row := range plnr.eqRows {
		for pos, coeff := range row {
			a.Set(r, pos, coeff)
		}
		b[r] = plnr.eqRHS[r]
	}
	for k, row := range ineqRows {
		for pos, coeff := range row {
			a.Set(mEq+k, pos, coeff)
		}
		a.Set(mEq+k, n+k, 1.0)
		b[mEq+k] = ineqRHS[k]
	}
	copy(c, plnr.objective)

	_, solution, err := lp.Simplex(c, a, b, 1e-10, nil)
	if err != nil {
		return &InfeasibleError{Status: err.Error(), Err: err}
	}

	for _, v := range plannerDecisionVars {
		for _, indices := range plnr.schema.RadixMapIterVar(v) {
			value := solution[plnr.ri.Pos(v, indices...)]
			serr := plnr.di.SetData(value, v, plnr.schema.IndicesPlainToDict(v, indices...))
			if serr != nil {
				return serr
			}
		}
	}
	return nil
}

// PlannedObjective evaluates the plan's worth from the written-back values,
// weighting processed amounts against dropped ones
func PlannedObjective(di DataInterface) (float64, error) {
	schema := di.Schema()
	alpha0, err := di.Data(VarWeightProcessed, nil)
	if err != nil {
		return 0.0, err
	}
	alpha1, err := di.Data(VarWeightDropped, nil)
	if err != nil {
		return 0.0, err
	}

	quality := 0.0
	for _, indices := range schema.RadixMapIterVar(VarProcess) {
		value, gerr := di.Data(VarProcess, schema.IndicesPlainToDict(VarProcess, indices...))
		if gerr != nil {
			return 0.0, gerr
		}
		quality += alpha0 * value
	}
	for _, indices := range schema.RadixMapIterVar(VarDrop) {
		value, zerr := di.Data(VarDrop, schema.IndicesPlainToDict(VarDrop, indices...))
		if zerr != nil {
			return 0.0, zerr
		}
		quality -= alpha1 * value
	}
	return quality, nil
}
