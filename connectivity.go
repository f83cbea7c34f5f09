package vnetopt

// connectivity.go holds the reachability check run before planning.  A node
// that no entry node can reach through positive-capacity channels can never
// receive material, and influx assigned to an unreachable relay points at a
// scenario authoring error rather than at the planner.

import (
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// A ConnectivityReport lists, for one environment and interval, the nodes no
// entry node reaches
type ConnectivityReport struct {
	Environment int   `json:"environment" yaml:"environment"`
	Interval    int   `json:"interval" yaml:"interval"`
	Unreachable []int `json:"unreachable" yaml:"unreachable"`
}

// buildChannelGraph returns a graph over the nodes of one (environment,
// interval) slice, with an edge wherever the channel capacity is positive
func buildChannelGraph(di DataInterface, rho, l int) graph.Graph {
	schema := di.Schema()
	nodes := schema.GetIndexBound(IdxNode)

	channelGraph := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	gNodes := make(map[int]simple.Node)
	for j := 0; j < nodes; j++ {
		gNodes[j] = simple.Node(j)
		channelGraph.AddNode(gNodes[j])
	}
	for j := 0; j < nodes; j++ {
		for i := 0; i < nodes; i++ {
			if i == j {
				continue
			}
			capacity, err := di.Data(VarCapTransfer,
				map[string]int{IdxNode: j, IdxPeer: i, IdxEnvironment: rho, IdxInterval: l})
			if err != nil || capacity <= 0.0 {
				continue
			}
			weightedEdge := simple.WeightedEdge{F: gNodes[j], T: gNodes[i], W: 1.0}
			channelGraph.SetWeightedEdge(weightedEdge)
		}
	}
	return channelGraph
}

// entryNodes returns the nodes with positive influx in the (environment,
// interval) slice
func entryNodes(di DataInterface, rho, l int) []int {
	schema := di.Schema()
	nodes := schema.GetIndexBound(IdxNode)

	entries := make([]int, 0)
	for j := 0; j < nodes; j++ {
		influx, err := di.Data(VarGenerate,
			map[string]int{IdxNode: j, IdxEnvironment: rho, IdxInterval: l})
		if err == nil && influx > 0.0 {
			entries = append(entries, j)
		}
	}
	return entries
}

// CheckConnectivity examines every (environment, interval) slice and reports
// the ones where some node is cut off from all entry nodes.  Slices with no
// influx at all are skipped.
func CheckConnectivity(di DataInterface) []ConnectivityReport {
	schema := di.Schema()
	nodes := schema.GetIndexBound(IdxNode)

	reports := make([]ConnectivityReport, 0)
	for _, idx := range schema.RadixMapIter(IdxEnvironment, IdxInterval) {
		rho, l := idx[0], idx[1]
		entries := entryNodes(di, rho, l)
		if len(entries) == 0 {
			continue
		}
		channelGraph := buildChannelGraph(di, rho, l)

		reached := make(map[int]bool)
		for _, from := range entries {
			reached[from] = true
			spTree := path.DijkstraFrom(simple.Node(from), channelGraph)
			for j := 0; j < nodes; j++ {
				if _, weight := spTree.To(int64(j)); !math.IsInf(weight, 1) {
					reached[j] = true
				}
			}
		}

		unreachable := make([]int, 0)
		for j := 0; j < nodes; j++ {
			if !reached[j] {
				unreachable = append(unreachable, j)
			}
		}
		if len(unreachable) > 0 {
			reports = append(reports, ConnectivityReport{
				Environment: rho, Interval: l, Unreachable: unreachable})
		}
	}
	return reports
}
