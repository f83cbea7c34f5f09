package vnetopt

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// TraceManager gathers the per-tick progress of every simulation operation
// for post-run analysis
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// per-operation cumulative progress, keyed by operation name
	Histories map[string][]TracePoint `json:"histories" yaml:"histories"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.Histories = make(map[string][]TracePoint)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// Gather copies every operation's tick history out of a finished run
func (tm *TraceManager) Gather(sim *Simulation) {
	if !tm.InUse {
		return
	}
	sim.Ops(func(op simOp) {
		oc := op.core()
		points := make([]TracePoint, len(oc.history))
		copy(points, oc.history)
		tm.Histories[oc.name] = points
	})
}

// WriteToFile stores the gathered histories to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
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
	return true
}
