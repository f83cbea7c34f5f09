package vnetopt

// sim.go holds the tick-driven simulation that replays a plan against noisy
// transfer and processing rates.  Each planned movement of information
// becomes an operation; operations draw from and feed containers, and the
// event manager drives one tick handler that advances every operation
// active in the current structural stability interval.

import (
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
)

// SimCfg carries the simulation options.  DT is the tick duration in
// seconds, RngName seeds the stream that drives rate noise and tick-order
// shuffling.
type SimCfg struct {
	DT      float64 `json:"dt" yaml:"dt"`
	RngName string  `json:"rngname" yaml:"rngname"`
}

// A Container accumulates an amount of information held at one place, a
// node's working material for one interval or a node's persistent store
type Container struct {
	Name   string
	Amount float64
}

// A TracePoint records an operation's cumulative progress at one tick
type TracePoint struct {
	Time      float64 `json:"time" yaml:"time"`
	Processed float64 `json:"processed" yaml:"processed"`
}

// A simOp advances some planned movement of information by one tick.  step
// claims material, stepTeardown commits it, so that the claim phase of every
// operation in a tick sees a consistent container state.
type simOp interface {
	OpName() string
	Interval() int
	Processed() float64
	step(sim *Simulation, dt float64)
	stepTeardown(sim *Simulation, dt float64)
	reset()
	core() *opCore
}

// opCore carries the state every operation shares
type opCore struct {
	name      string
	interval  int
	indices   []int
	planned   float64
	intensity float64
	fraction  float64
	processed float64
	pending   float64
	history   []TracePoint
}

func (oc *opCore) OpName() string {
	return oc.name
}

func (oc *opCore) Interval() int {
	return oc.interval
}

func (oc *opCore) Processed() float64 {
	return oc.processed
}

func (oc *opCore) core() *opCore {
	return oc
}

func (oc *opCore) reset() {
	oc.processed = 0.0
	oc.pending = 0.0
	oc.history = oc.history[:0]
}

func (oc *opCore) record(now float64) {
	oc.history = append(oc.history, TracePoint{Time: now, Processed: oc.processed})
}

// amountMaxAvailable bounds what the operation may move this tick: never
// more than the plan's remainder, never more than the rate envelope allows.
// Noise only ever raises the envelope above the nominal rate.
func (oc *opCore) amountMaxAvailable(sim *Simulation, dt float64, noisy bool) float64 {
	rate := oc.intensity * oc.fraction
	if noisy {
		rate += sim.noise(oc.intensity)
	}
	if rate < 0.0 {
		rate = 0.0
	}
	return clamp(oc.planned-oc.processed, 0.0, rate*dt)
}

// A generateOp injects a node's influx into its working container at a
// steady rate over its interval
type generateOp struct {
	opCore
	output *Container
}

func (gop *generateOp) step(sim *Simulation, dt float64) {
	gop.pending = gop.amountMaxAvailable(sim, dt, false)
}

func (gop *generateOp) stepTeardown(sim *Simulation, dt float64) {
	gop.output.Amount += gop.pending
	gop.processed += gop.pending
	gop.pending = 0.0
}

// A transferOp moves material from one node's working container to a peer's
type transferOp struct {
	opCore
	input  *Container
	output *Container
}

func (top *transferOp) step(sim *Simulation, dt float64) {
	amount := math.Min(top.amountMaxAvailable(sim, dt, true), top.input.Amount)
	top.input.Amount -= amount
	top.pending = amount
}

func (top *transferOp) stepTeardown(sim *Simulation, dt float64) {
	top.output.Amount += top.pending
	top.processed += top.pending
	top.pending = 0.0
}

// A processOp consumes material from a node's working container
type processOp struct {
	opCore
	input  *Container
	output *Container
}

func (pop *processOp) step(sim *Simulation, dt float64) {
	amount := math.Min(pop.amountMaxAvailable(sim, dt, true), pop.input.Amount)
	pop.input.Amount -= amount
	pop.pending = amount
}

func (pop *processOp) stepTeardown(sim *Simulation, dt float64) {
	pop.output.Amount += pop.pending
	pop.processed += pop.pending
	pop.pending = 0.0
}

// A storeOp moves material into a node's persistent store, which outlives
// the interval.  When the plan for the current interval calls for a lower
// store level than the store holds, the excess flows back into the working
// container, rate limited like any other movement.
type storeOp struct {
	opCore
	input    *Container
	output   *Container
	endLevel float64
}

func (sop *storeOp) step(sim *Simulation, dt float64) {
	rate := sop.intensity * sop.fraction
	if rate < 0.0 {
		rate = 0.0
	}
	if sop.output.Amount < sop.planned {
		amount := math.Min(clamp(sop.planned-sop.output.Amount, 0.0, rate*dt), sop.input.Amount)
		sop.input.Amount -= amount
		sop.pending = amount
	} else {
		sop.pending = -math.Min(sop.output.Amount-sop.planned, rate*dt)
	}
}

func (sop *storeOp) stepTeardown(sim *Simulation, dt float64) {
	sop.output.Amount += sop.pending
	if sop.pending > 0.0 {
		sop.processed += sop.pending
	} else {
		sop.input.Amount -= sop.pending
	}
	sop.pending = 0.0
}

// A dropOp sweeps whatever the consumers left in a node's working container.
// It claims after every transfer, store and process has claimed, but before
// their teardowns commit, so material arriving this tick survives into the
// next one and only then becomes subject to loss.
type dropOp struct {
	opCore
	input  *Container
	output *Container
}

func (dop *dropOp) step(sim *Simulation, dt float64) {
	dop.sweep()
}

func (dop *dropOp) stepTeardown(sim *Simulation, dt float64) {
}

func (dop *dropOp) sweep() {
	amount := dop.input.Amount
	dop.input.Amount = 0.0
	dop.output.Amount += amount
	dop.processed += amount
}

// A Simulation owns the containers and operations built from one planned
// scenario, and replays the plan tick by tick
type Simulation struct {
	di     DataInterface
	schema *Schema
	cfg    SimCfg
	rng    *rngstream.RngStream

	containers map[string]*Container
	generate   []*generateOp
	movement   []simOp
	store      []*storeOp
	drop       []*dropOp

	intervalStart []float64
	totalTime     float64
	closed        []bool
}

// CreateSimulation builds the container and operation graph from the planned
// scenario reachable through di
func CreateSimulation(di DataInterface, cfg SimCfg) *Simulation {
	if cfg.DT <= 0.0 {
		panic(fmt.Sprintf("sim: tick duration must be positive, got %g", cfg.DT))
	}
	if cfg.RngName == "" {
		cfg.RngName = "sim"
	}
	sim := new(Simulation)
	sim.di = di
	sim.schema = di.Schema()
	sim.cfg = cfg
	sim.rng = rngstream.New(cfg.RngName)
	sim.containers = make(map[string]*Container)
	sim.buildTimeline()
	sim.buildOps()
	return sim
}

// buildTimeline reads the interval durations and lays the intervals end to end
func (sim *Simulation) buildTimeline() {
	intervals := sim.schema.GetIndexBound(IdxInterval)
	sim.intervalStart = make([]float64, intervals)
	sim.closed = make([]bool, intervals)
	at := 0.0
	for l := 0; l < intervals; l++ {
		sim.intervalStart[l] = at
		duration, err := sim.di.Data(VarIntervalLen, map[string]int{IdxInterval: l})
		if err != nil {
			panic(fmt.Sprintf("sim: reading %s failed, %v", VarIntervalLen, err))
		}
		if duration <= 0.0 {
			panic(fmt.Sprintf("sim: interval %d has non-positive duration %g", l, duration))
		}
		at += duration
	}
	sim.totalTime = at
}

// container returns (creating on demand) the named container
func (sim *Simulation) container(name string) *Container {
	box, present := sim.containers[name]
	if !present {
		box = &Container{Name: name}
		sim.containers[name] = box
	}
	return box
}

func workingName(j, rho, l int) string {
	return fmt.Sprintf("working_%d_%d_%d", j, rho, l)
}

func storeName(j, rho int) string {
	return fmt.Sprintf("store_%d_%d", j, rho)
}

// read pulls one scenario value, treating read failure as a configuration error
func (sim *Simulation) read(variable string, indices map[string]int) float64 {
	value, err := sim.di.Data(variable, indices)
	if err != nil {
		panic(fmt.Sprintf("sim: reading %s failed, %v", variable, err))
	}
	return value
}

// buildOps instantiates one operation per planned movement.  Transfers are
// only built over usable channels: a channel must connect distinct nodes and
// carry positive capacity, fraction and plan.
func (sim *Simulation) buildOps() {
	nodes := sim.schema.GetIndexBound(IdxNode)

	for _, idx := range sim.schema.RadixMapIter(IdxNode, IdxEnvironment, IdxInterval) {
		j, rho, l := idx[0], idx[1], idx[2]
		working := sim.container(workingName(j, rho, l))
		dims := map[string]int{IdxNode: j, IdxEnvironment: rho, IdxInterval: l}

		influx := sim.read(VarGenerate, dims)
		if influx > 0.0 {
			duration := sim.read(VarIntervalLen, map[string]int{IdxInterval: l})
			sim.generate = append(sim.generate, &generateOp{
				opCore: opCore{
					name:      fmt.Sprintf("generate_%d_%d_%d", j, rho, l),
					interval:  l,
					indices:   []int{j, rho, l},
					planned:   influx,
					intensity: influx / duration,
					fraction:  1.0,
				},
				output: working,
			})
		}

		sim.store = append(sim.store, &storeOp{
			opCore: opCore{
				name:      fmt.Sprintf("store_%d_%d_%d", j, rho, l),
				interval:  l,
				indices:   []int{j, rho, l},
				planned:   sim.read(VarStore, dims),
				intensity: sim.read(VarIntensityStore, map[string]int{IdxNode: j, IdxInterval: l}),
				fraction:  sim.read(VarFractionStore, dims),
			},
			input:  working,
			output: sim.container(storeName(j, rho)),
		})

		sim.movement = append(sim.movement, &processOp{
			opCore: opCore{
				name:      fmt.Sprintf("process_%d_%d_%d", j, rho, l),
				interval:  l,
				indices:   []int{j, rho, l},
				planned:   sim.read(VarProcess, dims),
				intensity: sim.read(VarIntensityProcess, map[string]int{IdxNode: j, IdxInterval: l}),
				fraction:  sim.read(VarFractionProcess, dims),
			},
			input:  working,
			output: sim.container(fmt.Sprintf("processed_%d_%d", j, rho)),
		})

		sim.drop = append(sim.drop, &dropOp{
			opCore: opCore{
				name:     fmt.Sprintf("drop_%d_%d_%d", j, rho, l),
				interval: l,
				indices:  []int{j, rho, l},
			},
			input:  working,
			output: sim.container(fmt.Sprintf("dropped_%d_%d", j, rho)),
		})

		for i := 0; i < nodes; i++ {
			if i == j {
				continue
			}
			link := map[string]int{IdxNode: j, IdxPeer: i, IdxEnvironment: rho, IdxInterval: l}
			planned := sim.read(VarTransfer, link)
			capacity := sim.read(VarCapTransfer, link)
			fraction := sim.read(VarFractionTransfer, link)
			if planned <= 0.0 || capacity <= 0.0 || fraction <= 0.0 {
				continue
			}
			sim.movement = append(sim.movement, &transferOp{
				opCore: opCore{
					name:      fmt.Sprintf("transfer_%d_%d_%d_%d", j, i, rho, l),
					interval:  l,
					indices:   []int{j, i, rho, l},
					planned:   planned,
					intensity: sim.read(VarIntensityTransfer, map[string]int{IdxNode: j, IdxPeer: i, IdxInterval: l}),
					fraction:  fraction,
				},
				input:  working,
				output: sim.container(workingName(i, rho, l)),
			})
		}
	}
}

// noise draws the non-negative rate disturbance, N(0, intensity/4) with the
// negative half folded to zero
func (sim *Simulation) noise(intensity float64) float64 {
	u1 := sim.rng.RandU01()
	for u1 <= 0.0 {
		u1 = sim.rng.RandU01()
	}
	u2 := sim.rng.RandU01()
	draw := (intensity / 4.0) * math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
	if draw < 0.0 {
		return 0.0
	}
	return draw
}

// shuffle permutes the operations so that no operation systematically claims
// container material first
func (sim *Simulation) shuffle(ops []simOp) {
	for n := len(ops) - 1; n > 0; n-- {
		m := sim.rng.RandInt(0, n)
		ops[n], ops[m] = ops[m], ops[n]
	}
}

// intervalAt returns the structural stability interval containing the instant
func (sim *Simulation) intervalAt(now float64) int {
	l := len(sim.intervalStart) - 1
	for ; l > 0; l-- {
		if now >= sim.intervalStart[l] {
			break
		}
	}
	return l
}

// closeInterval runs the interval's teardown: stores snapshot their level for
// reporting, drops sweep what the final tick's teardowns left stranded in the
// interval's working containers
func (sim *Simulation) closeInterval(l int) {
	if sim.closed[l] {
		return
	}
	sim.closed[l] = true
	for _, sop := range sim.store {
		if sop.interval == l {
			sop.endLevel = sop.output.Amount
		}
	}
	for _, dop := range sim.drop {
		if dop.interval == l {
			dop.sweep()
		}
	}
}

// simTick advances every active operation over one tick, then reschedules
// itself until the timeline is exhausted
func simTick(evtMgr *evtm.EventManager, context any, data any) any {
	sim := context.(*Simulation)
	now := evtMgr.CurrentSeconds()
	if now >= sim.totalTime-1e-9 {
		return nil
	}
	l := sim.intervalAt(now)

	// ticks never straddle an interval boundary, so every interval sees
	// its full planned span
	bound := sim.totalTime
	if l+1 < len(sim.intervalStart) {
		bound = sim.intervalStart[l+1]
	}
	dt := math.Min(sim.cfg.DT, bound-now)

	// injection happens first so consumers can see fresh material
	for _, gop := range sim.generate {
		if gop.interval != l {
			continue
		}
		gop.step(sim, dt)
		gop.stepTeardown(sim, dt)
		gop.record(now + dt)
	}

	active := make([]simOp, 0, len(sim.movement)+len(sim.store))
	for _, op := range sim.movement {
		if op.Interval() == l {
			active = append(active, op)
		}
	}
	for _, sop := range sim.store {
		if sop.interval == l {
			active = append(active, sop)
		}
	}
	sim.shuffle(active)
	for _, op := range active {
		op.step(sim, dt)
	}

	// drops claim what the consumers left, before this tick's arrivals land
	for _, dop := range sim.drop {
		if dop.interval == l {
			dop.step(sim, dt)
			dop.record(now + dt)
		}
	}

	for _, op := range active {
		op.stepTeardown(sim, dt)
	}
	for _, op := range active {
		op.core().record(now + dt)
	}

	next := now + dt
	if next >= sim.intervalStart[l]+sim.intervalDuration(l)-1e-9 {
		sim.closeInterval(l)
	}
	if next < sim.totalTime-1e-9 {
		evtMgr.Schedule(sim, nil, simTick, vrtime.SecondsToTime(dt))
	}
	return nil
}

func (sim *Simulation) intervalDuration(l int) float64 {
	if l == len(sim.intervalStart)-1 {
		return sim.totalTime - sim.intervalStart[l]
	}
	return sim.intervalStart[l+1] - sim.intervalStart[l]
}

// Run replays the whole timeline through the event manager and writes the
// realized amounts back through the data interface
func (sim *Simulation) Run(evtMgr *evtm.EventManager) error {
	evtMgr.Schedule(sim, nil, simTick, vrtime.SecondsToTime(0.0))
	evtMgr.Run(sim.totalTime + sim.cfg.DT)

	// intervals the tick loop closed at the timeline's exact end may race
	// float rounding, close anything left
	for l := range sim.closed {
		sim.closeInterval(l)
	}
	return sim.writeResults()
}

// writeResults stores the realized counterpart of every planned variable
func (sim *Simulation) writeResults() error {
	errs := []error{}
	for _, gop := range sim.generate {
		j, rho, l := gop.indices[0], gop.indices[1], gop.indices[2]
		errs = append(errs, sim.di.SetData(gop.processed, VarGenerateHat,
			map[string]int{IdxNode: j, IdxEnvironment: rho, IdxInterval: l}))
	}
	for _, op := range sim.movement {
		oc := op.core()
		switch op.(type) {
		case *transferOp:
			errs = append(errs, sim.di.SetData(oc.processed, VarTransferHat, map[string]int{
				IdxNode: oc.indices[0], IdxPeer: oc.indices[1],
				IdxEnvironment: oc.indices[2], IdxInterval: oc.indices[3]}))
		case *processOp:
			errs = append(errs, sim.di.SetData(oc.processed, VarProcessHat, map[string]int{
				IdxNode: oc.indices[0], IdxEnvironment: oc.indices[1], IdxInterval: oc.indices[2]}))
		}
	}
	for _, sop := range sim.store {
		errs = append(errs, sim.di.SetData(sop.endLevel, VarStoreHat, map[string]int{
			IdxNode: sop.indices[0], IdxEnvironment: sop.indices[1], IdxInterval: sop.indices[2]}))
	}
	for _, dop := range sim.drop {
		errs = append(errs, sim.di.SetData(dop.processed, VarDropHat, map[string]int{
			IdxNode: dop.indices[0], IdxEnvironment: dop.indices[1], IdxInterval: dop.indices[2]}))
	}
	return ReportErrs(errs)
}

// Reset returns the simulation to its initial state so the same operation
// graph can be replayed
func (sim *Simulation) Reset() {
	for _, box := range sim.containers {
		box.Amount = 0.0
	}
	for _, gop := range sim.generate {
		gop.reset()
	}
	for _, op := range sim.movement {
		op.reset()
	}
	for _, sop := range sim.store {
		sop.reset()
		sop.endLevel = 0.0
	}
	for _, dop := range sim.drop {
		dop.reset()
	}
	for l := range sim.closed {
		sim.closed[l] = false
	}
}

// Quality scores the run: processed amounts count for the plan, dropped
// amounts count against it
func (sim *Simulation) Quality() float64 {
	alpha0 := sim.read(VarWeightProcessed, nil)
	alpha1 := sim.read(VarWeightDropped, nil)

	quality := 0.0
	for _, op := range sim.movement {
		if _, isProcess := op.(*processOp); isProcess {
			quality += alpha0 * op.Processed()
		}
	}
	for _, dop := range sim.drop {
		quality -= alpha1 * dop.processed
	}
	return quality
}

// Ops hands every operation to the consumer, for tracing and reporting
func (sim *Simulation) Ops(consume func(simOp)) {
	for _, gop := range sim.generate {
		consume(gop)
	}
	for _, op := range sim.movement {
		consume(op)
	}
	for _, sop := range sim.store {
		consume(sop)
	}
	for _, dop := range sim.drop {
		consume(dop)
	}
}
