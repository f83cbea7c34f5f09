package vnetopt

// ga.go holds the genetic search over the intensity fractions.  A gene is a
// flat vector over the three fraction variables; fitness of a gene is the
// simulated quality of the plan the linear planner produces for it.

import (
	"fmt"
	"math"
	"sort"

	"github.com/iti/evt/evtm"
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// geneVars lists the fraction variables a gene spans, in gene order
var geneVars = []string{VarFractionTransfer, VarFractionStore, VarFractionProcess}

// A Gene is one candidate assignment of the fraction variables.  Genes are
// value types over a shared schema and RowIndex; Clone gives a gene its own
// storage.
type Gene struct {
	schema *Schema
	ri     *RowIndex
	values []float64
}

// CreateGene builds a zero gene over the schema's fraction variables
func CreateGene(schema *Schema) Gene {
	ri := RowIndexFromSchema(schema, geneVars)
	return Gene{schema: schema, ri: ri, values: make([]float64, ri.RowLen())}
}

// Clone returns a gene with its own copy of the values
func (gene Gene) Clone() Gene {
	return Gene{schema: gene.schema, ri: gene.ri, values: slices.Clone(gene.values)}
}

// Len returns the number of slots in the gene
func (gene Gene) Len() int {
	return gene.ri.RowLen()
}

// Get returns the fraction stored for the variable's index tuple
func (gene Gene) Get(variable string, indices ...int) float64 {
	return gene.values[gene.ri.Pos(variable, indices...)]
}

// Set stores a fraction for the variable's index tuple
func (gene Gene) Set(value float64, variable string, indices ...int) {
	gene.values[gene.ri.Pos(variable, indices...)] = value
}

// Normalize rescales the gene so that for every variable and every fixed
// combination of its non-environment indices the fractions sum to one over
// the environments.  A group that sums to zero is spread uniformly.
func (gene Gene) Normalize() {
	for _, v := range gene.ri.Variables() {
		radix := gene.ri.Radix(v)
		rhoDim := slices.Index(gene.schema.GetVarIndices(v), IdxEnvironment)
		if rhoDim < 0 {
			continue
		}
		environments := radix[rhoDim]

		// enumerate the non-environment index combinations
		outer := slices.Clone(radix)
		outer[rhoDim] = 1
		for _, tuple := range radixCartesianProduct(outer) {
			total := 0.0
			for rho := 0; rho < environments; rho++ {
				tuple[rhoDim] = rho
				total += gene.Get(v, tuple...)
			}
			for rho := 0; rho < environments; rho++ {
				tuple[rhoDim] = rho
				if total > 0.0 {
					gene.Set(gene.Get(v, tuple...)/total, v, tuple...)
				} else {
					gene.Set(1.0/float64(environments), v, tuple...)
				}
			}
		}
	}
}

// Randomize fills the gene with uniform draws and normalizes
func (gene Gene) Randomize(rng *rngstream.RngStream) {
	for pos := range gene.values {
		gene.values[pos] = rng.RandU01()
	}
	gene.Normalize()
}

// Crossover swaps a random subset of slots between two genes and normalizes
// both.  swapFrac bounds the expected share of slots exchanged.
func Crossover(a, b Gene, swapFrac float64, rng *rngstream.RngStream) {
	for pos := range a.values {
		if rng.RandU01() < swapFrac {
			a.values[pos], b.values[pos] = b.values[pos], a.values[pos]
		}
	}
	a.Normalize()
	b.Normalize()
}

// GeneFromData loads a gene from the fraction values reachable through di
func GeneFromData(di DataInterface) (Gene, error) {
	schema := di.Schema()
	gene := CreateGene(schema)
	for _, v := range geneVars {
		for _, indices := range schema.RadixMapIterVar(v) {
			value, err := di.Data(v, schema.IndicesPlainToDict(v, indices...))
			if err != nil {
				return gene, err
			}
			gene.Set(value, v, indices...)
		}
	}
	return gene, nil
}

// Materialize writes the gene's fractions into the provider
func (gene Gene) Materialize(provider DataProvider) {
	for _, v := range geneVars {
		for _, indices := range gene.schema.RadixMapIterVar(v) {
			provider.SetDataPlain(gene.Get(v, indices...), v, indices...)
		}
	}
}

// GaCfg carries the population-search parameters
type GaCfg struct {
	Population         int     `json:"population" yaml:"population"`
	SwapFracPopulation float64 `json:"swapfracpopulation" yaml:"swapfracpopulation"`
	SwapFracGenes      float64 `json:"swapfracgenes" yaml:"swapfracgenes"`
	RemoveFrac         float64 `json:"removefrac" yaml:"removefrac"`
	Iterations         int     `json:"iterations" yaml:"iterations"`
	RngName            string  `json:"rngname" yaml:"rngname"`
}

// DefaultGaCfg returns the stock search parameters
func DefaultGaCfg() GaCfg {
	return GaCfg{
		Population:         20,
		SwapFracPopulation: 0.3,
		SwapFracGenes:      0.5,
		RemoveFrac:         0.3,
		Iterations:         30,
		RngName:            "ga",
	}
}

// A GaOptimizer searches the fraction space.  Every candidate is scored by
// planning on its fractions and replaying the plan through the simulation.
type GaOptimizer struct {
	schema     *Schema
	scenario   *MemDataProvider
	cfg        GaCfg
	plannerCfg PlannerCfg
	simCfg     SimCfg
	rng        *rngstream.RngStream

	genes   []Gene
	quality []float64
}

// CreateGaOptimizer builds an optimizer over the scenario held in the
// provider.  The provider's own fraction values seed the first gene; the
// rest of the population starts random.
func CreateGaOptimizer(schema *Schema, scenario *MemDataProvider,
	cfg GaCfg, plannerCfg PlannerCfg, simCfg SimCfg) *GaOptimizer {

	if cfg.Population < 2 {
		panic(fmt.Sprintf("ga: population must hold at least two genes, got %d", cfg.Population))
	}
	gao := new(GaOptimizer)
	gao.schema = schema
	gao.scenario = scenario
	gao.cfg = cfg
	gao.plannerCfg = plannerCfg
	gao.simCfg = simCfg
	gao.rng = rngstream.New(cfg.RngName)

	seed, err := GeneFromData(WrapStandardChain(schema, scenario))
	if err != nil {
		panic(fmt.Sprintf("ga: seeding from scenario failed, %v", err))
	}
	seed.Normalize()
	gao.genes = append(gao.genes, seed)
	for n := 1; n < cfg.Population; n++ {
		gene := CreateGene(schema)
		gene.Randomize(gao.rng)
		gao.genes = append(gao.genes, gene)
	}
	gao.quality = make([]float64, cfg.Population)
	return gao
}

// evaluate scores one gene.  An infeasible plan scores negative infinity so
// the cull removes it.
func (gao *GaOptimizer) evaluate(gene Gene) float64 {
	provider := gao.scenario.Clone()
	gene.Materialize(provider)
	di := WrapStandardChain(gao.schema, provider)

	plnr := CreatePlanner(di, gao.plannerCfg)
	if err := plnr.Solve(); err != nil {
		if IsInfeasible(err) {
			return math.Inf(-1)
		}
		panic(fmt.Sprintf("ga: planning failed, %v", err))
	}

	sim := CreateSimulation(di, gao.simCfg)
	if err := sim.Run(evtm.New()); err != nil {
		panic(fmt.Sprintf("ga: simulation failed, %v", err))
	}
	return sim.Quality()
}

// step runs one generation: score, sort, crossover among survivors, cull and
// regenerate the tail
func (gao *GaOptimizer) step() {
	for n, gene := range gao.genes {
		gao.quality[n] = gao.evaluate(gene)
	}

	order := make([]int, len(gao.genes))
	for n := range order {
		order[n] = n
	}
	sort.SliceStable(order, func(a, b int) bool {
		return gao.quality[order[a]] > gao.quality[order[b]]
	})
	ranked := make([]Gene, len(gao.genes))
	rankedQ := make([]float64, len(gao.genes))
	for n, src := range order {
		ranked[n] = gao.genes[src]
		rankedQ[n] = gao.quality[src]
	}
	gao.genes = ranked
	gao.quality = rankedQ

	survivors := len(gao.genes) - int(gao.cfg.RemoveFrac*float64(len(gao.genes)))
	if survivors < 2 {
		survivors = 2
	}

	// the culled tail is regenerated with fresh random genes, so new
	// material keeps entering the search every generation
	for n := survivors; n < len(gao.genes); n++ {
		gao.genes[n].Randomize(gao.rng)
	}

	// shake the surviving middle of the population; the best gene never
	// participates, so the search cannot lose it
	pairs := int(gao.cfg.SwapFracPopulation * float64(survivors))
	for p := 0; p < pairs; p++ {
		a := 1 + gao.rng.RandInt(0, survivors-2)
		b := 1 + gao.rng.RandInt(0, survivors-2)
		if a == b {
			continue
		}
		Crossover(gao.genes[a], gao.genes[b], gao.cfg.SwapFracGenes, gao.rng)
	}
}

// Run iterates the search and returns the best gene with its quality
func (gao *GaOptimizer) Run() (Gene, float64) {
	for iter := 0; iter < gao.cfg.Iterations; iter++ {
		gao.step()
	}
	for n, gene := range gao.genes {
		gao.quality[n] = gao.evaluate(gene)
	}
	best := 0
	for n := 1; n < len(gao.genes); n++ {
		if gao.quality[n] > gao.quality[best] {
			best = n
		}
	}
	return gao.genes[best].Clone(), gao.quality[best]
}

// Genes hands out the current population, best first after a step
func (gao *GaOptimizer) Genes() []Gene {
	return slices.Clone(gao.genes)
}
