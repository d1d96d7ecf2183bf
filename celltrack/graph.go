package celltrack

import (
	"sort"
)

// CandidateEdge is a potential link between instance Prev of frame t and
// instance Next of frame t+1 (both frame-local labels).
type CandidateEdge struct {
	Prev     int
	Next     int
	Overlap  int
	FracPrev float64
	FracNext float64
	IoU      float64
	Distance float64
	// Lower cost means stronger link. Always in [0, 1]
	Cost float64
}

// OverlapFraction returns the larger of the two relative overlaps
func (e CandidateEdge) OverlapFraction() float64 {
	return maxFloat64(e.FracPrev, e.FracNext)
}

// AnchorFunc returns the position a previous instance is expected at in the next frame.
type AnchorFunc func(inst Instance) Point

// TransitionGraph is the weighted bipartite candidate graph between two consecutive frames.
type TransitionGraph struct {
	Prev *InstanceSet
	Next *InstanceSet
	// Edges sorted by (prev label, next label)
	Edges []CandidateEdge
	// Instances without any surviving edge
	IsolatedPrev []int
	IsolatedNext []int

	byPrev   map[int][]int
	byNext   map[int][]int
	byPair   map[[2]int]int
	rawByNxt map[int][]Overlap
}

// BuildGraph creates candidate edges between consecutive instance sets. Edge
// survives when its overlap fraction reaches MinOverlapFraction or centroid
// displacement stays within MaxDisplacement. Anchor may be nil, then previous
// centroids are used as is.
func BuildGraph(prev, next *InstanceSet, overlaps []Overlap, cfg GraphConfig, anchor AnchorFunc) *TransitionGraph {
	if anchor == nil {
		anchor = func(inst Instance) Point { return inst.Centroid }
	}
	graph := &TransitionGraph{
		Prev:     prev,
		Next:     next,
		Edges:    make([]CandidateEdge, 0, len(overlaps)),
		byPrev:   make(map[int][]int),
		byNext:   make(map[int][]int),
		byPair:   make(map[[2]int]int),
		rawByNxt: make(map[int][]Overlap),
	}

	overlapOf := make(map[[2]int]int, len(overlaps))
	partners := make(map[int][]int)
	for _, ov := range overlaps {
		overlapOf[[2]int{ov.Prev, ov.Next}] = ov.Area
		partners[ov.Prev] = append(partners[ov.Prev], ov.Next)
		graph.rawByNxt[ov.Next] = append(graph.rawByNxt[ov.Next], ov)
	}

	var grid *gridIndex
	if cfg.MaxDisplacement > 0 && next.Len() > 0 {
		grid = newInstanceGrid(next, int(cfg.MaxDisplacement)+1)
	}

	for _, p := range prev.Instances {
		at := anchor(p)
		candidates := make(map[int]struct{}, len(partners[p.Key.Label]))
		for _, label := range partners[p.Key.Label] {
			candidates[label] = struct{}{}
		}
		if grid != nil {
			for _, idx := range grid.queryRadius(at, cfg.MaxDisplacement) {
				candidates[next.Instances[idx].Key.Label] = struct{}{}
			}
		}
		labels := make([]int, 0, len(candidates))
		for label := range candidates {
			labels = append(labels, label)
		}
		sort.Ints(labels)

		for _, label := range labels {
			n, ok := next.Get(label)
			if !ok {
				continue
			}
			edge := newCandidateEdge(p, n, overlapOf[[2]int{p.Key.Label, label}], at, cfg)
			if edge.OverlapFraction() < cfg.MinOverlapFraction || edge.Overlap == 0 {
				if edge.Distance > cfg.MaxDisplacement {
					continue
				}
			}
			graph.addEdge(edge)
		}
	}

	for _, p := range prev.Instances {
		if len(graph.byPrev[p.Key.Label]) == 0 {
			graph.IsolatedPrev = append(graph.IsolatedPrev, p.Key.Label)
		}
	}
	for _, n := range next.Instances {
		if len(graph.byNext[n.Key.Label]) == 0 {
			graph.IsolatedNext = append(graph.IsolatedNext, n.Key.Label)
		}
	}
	return graph
}

func newCandidateEdge(p, n Instance, overlap int, anchor Point, cfg GraphConfig) CandidateEdge {
	edge := CandidateEdge{
		Prev:     p.Key.Label,
		Next:     n.Key.Label,
		Overlap:  overlap,
		FracPrev: float64(overlap) / float64(p.Area),
		FracNext: float64(overlap) / float64(n.Area),
		IoU:      overlapIoU(overlap, p.Area, n.Area),
		Distance: euclideanDistance(anchor, n.Centroid),
	}
	var normDistance float64
	if cfg.MaxDisplacement > 0 {
		normDistance = minFloat64(1.0, edge.Distance/cfg.MaxDisplacement)
	} else if edge.Distance > 0 {
		normDistance = 1.0
	}
	edge.Cost = (cfg.OverlapWeight*(1.0-edge.IoU) + cfg.DistanceWeight*normDistance) / (cfg.OverlapWeight + cfg.DistanceWeight)
	return edge
}

// addEdge must be called in (prev, next) order so Edges stays sorted
func (graph *TransitionGraph) addEdge(edge CandidateEdge) {
	idx := len(graph.Edges)
	graph.Edges = append(graph.Edges, edge)
	graph.byPrev[edge.Prev] = append(graph.byPrev[edge.Prev], idx)
	graph.byNext[edge.Next] = append(graph.byNext[edge.Next], idx)
	graph.byPair[[2]int{edge.Prev, edge.Next}] = idx
}

// EdgesFrom returns edges of previous instance ordered by next label
func (graph *TransitionGraph) EdgesFrom(prevLabel int) []CandidateEdge {
	return graph.collect(graph.byPrev[prevLabel])
}

// EdgesTo returns edges of next instance ordered by previous label
func (graph *TransitionGraph) EdgesTo(nextLabel int) []CandidateEdge {
	return graph.collect(graph.byNext[nextLabel])
}

// Edge returns edge between given pair of labels
func (graph *TransitionGraph) Edge(prevLabel, nextLabel int) (CandidateEdge, bool) {
	idx, ok := graph.byPair[[2]int{prevLabel, nextLabel}]
	if !ok {
		return CandidateEdge{}, false
	}
	return graph.Edges[idx], true
}

// OverlapsOfNext returns raw overlaps of next instance, including pairs pruned from the graph
func (graph *TransitionGraph) OverlapsOfNext(nextLabel int) []Overlap {
	return graph.rawByNxt[nextLabel]
}

func (graph *TransitionGraph) collect(indices []int) []CandidateEdge {
	edges := make([]CandidateEdge, len(indices))
	for i, idx := range indices {
		edges[i] = graph.Edges[idx]
	}
	return edges
}
