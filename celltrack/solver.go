package celltrack

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Resolution is the set of events resolved for one frame transition.
type Resolution struct {
	PrevFrame int
	NextFrame int
	Events    []Event
	Warnings  []Warning
}

// Count returns number of events of given kind
func (res *Resolution) Count(kind EventKind) int {
	n := 0
	for _, e := range res.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type mergeInfo struct {
	kept int
	lost int
}

// solverState tracks which nodes are already consumed while going through the
// resolution steps. Later steps depend on what earlier steps took, so a state
// is never shared between goroutines.
type solverState struct {
	graph *TransitionGraph
	cfg   SolverConfig

	// continuation prev -> next and its reverse
	cont      map[int]int
	contOwner map[int]int
	// division prev -> daughters
	divisions map[int][2]int
	// merge artifact by next label
	merges map[int]mergeInfo

	usedPrev map[int]struct{}
	usedNext map[int]struct{}
	warnings []Warning
}

// Solve resolves candidate graph into events covering every instance of both
// frames exactly once. Resolution order:
//  1. unique mutual best matches become continuations;
//  2. continuations whose mother also explains another free instance are upgraded to divisions;
//  3. free previous instances swallowed by a taken next instance become merge artifacts;
//  4. what is left disappears (previous frame) or appears (next frame).
//
// The result is a deterministic function of the graph.
func Solve(graph *TransitionGraph, cfg SolverConfig) (*Resolution, error) {
	state := &solverState{
		graph:     graph,
		cfg:       cfg,
		cont:      make(map[int]int),
		contOwner: make(map[int]int),
		divisions: make(map[int][2]int),
		merges:    make(map[int]mergeInfo),
		usedPrev:  make(map[int]struct{}),
		usedNext:  make(map[int]struct{}),
	}

	var pairs [][2]int
	switch cfg.Matching {
	case MatchingHungarian:
		pairs = hungarianMatching(graph)
	default:
		pairs = greedyMatching(graph)
	}
	for _, pair := range pairs {
		state.cont[pair[0]] = pair[1]
		state.contOwner[pair[1]] = pair[0]
		state.usedPrev[pair[0]] = struct{}{}
		state.usedNext[pair[1]] = struct{}{}
	}

	for _, p := range graph.Prev.Instances {
		n, ok := state.cont[p.Key.Label]
		if !ok {
			continue
		}
		state.detectDivision(p, n)
	}

	for _, q := range graph.Prev.Instances {
		if _, used := state.usedPrev[q.Key.Label]; used {
			continue
		}
		state.detectMerge(q)
	}

	res := &Resolution{
		PrevFrame: graph.Prev.Frame,
		NextFrame: graph.Next.Frame,
		Events:    state.events(),
		Warnings:  state.warnings,
	}
	if err := checkTotality(graph, res); err != nil {
		return nil, err
	}
	return res, nil
}

// greedyMatching takes edges from cheapest to most expensive and accepts every
// edge whose endpoints are both still free. The cheapest remaining edge is by
// construction the best edge of both of its endpoints, so this resolves unique
// mutual best matches repeatedly until none is left.
func greedyMatching(graph *TransitionGraph) [][2]int {
	priorityQueue := make(edgeHeap, 0, len(graph.Edges))
	for i := range graph.Edges {
		priorityQueue.Push(&graph.Edges[i])
	}
	// We need to prevent double usage of instances
	reservedPrev := make(map[int]struct{})
	reservedNext := make(map[int]struct{})
	pairs := make([][2]int, 0)
	for priorityQueue.Len() > 0 {
		edge := priorityQueue.Pop()
		if _, ok := reservedPrev[edge.Prev]; ok {
			continue
		}
		if _, ok := reservedNext[edge.Next]; ok {
			continue
		}
		reservedPrev[edge.Prev] = struct{}{}
		reservedNext[edge.Next] = struct{}{}
		pairs = append(pairs, [2]int{edge.Prev, edge.Next})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i][0] < pairs[j][0]
	})
	return pairs
}

func (state *solverState) detectDivision(mother Instance, partner int) {
	motherLabel := mother.Key.Label
	if !state.isDaughter(motherLabel, partner) {
		return
	}
	plausible := []CandidateEdge{}
	for _, edge := range state.graph.EdgesFrom(motherLabel) {
		if edge.Next == partner {
			plausible = append(plausible, edge)
			continue
		}
		if _, used := state.usedNext[edge.Next]; used {
			continue
		}
		if state.isDaughter(motherLabel, edge.Next) {
			plausible = append(plausible, edge)
		}
	}
	if len(plausible) < 2 {
		return
	}
	sort.SliceStable(plausible, func(i, j int) bool {
		if plausible[i].Overlap != plausible[j].Overlap {
			return plausible[i].Overlap > plausible[j].Overlap
		}
		return plausible[i].Next < plausible[j].Next
	})
	first, second := plausible[0], plausible[1]

	share := float64(first.Overlap+second.Overlap) / float64(mother.Area)
	if share < state.cfg.DivisionAreaShare {
		return
	}
	firstInst, _ := state.graph.Next.Get(first.Next)
	secondInst, _ := state.graph.Next.Get(second.Next)
	small, large := minInt(firstInst.Area, secondInst.Area), maxInt(firstInst.Area, secondInst.Area)
	if float64(small)/float64(large) < state.cfg.MinDaughterAreaRatio {
		return
	}

	if len(plausible) > 2 {
		dropped := make([]string, 0, len(plausible)-2)
		for _, edge := range plausible[2:] {
			dropped = append(dropped, fmt.Sprint(edge.Next))
		}
		state.warn(fmt.Sprintf("ambiguous division of %s: %d plausible daughters, keeping %d and %d, treating %v as appearances",
			mother.Key, len(plausible), first.Next, second.Next, dropped))
	}

	delete(state.cont, motherLabel)
	delete(state.contOwner, partner)
	delete(state.usedNext, partner)
	state.divisions[motherLabel] = [2]int{first.Next, second.Next}
	state.usedNext[first.Next] = struct{}{}
	state.usedNext[second.Next] = struct{}{}
}

// isDaughter checks that next instance lies mostly inside the mother and is
// barely touched by any other previous instance
func (state *solverState) isDaughter(motherLabel, nextLabel int) bool {
	edge, ok := state.graph.Edge(motherLabel, nextLabel)
	if !ok || edge.FracNext < state.cfg.DaughterMinInside {
		return false
	}
	daughter, ok := state.graph.Next.Get(nextLabel)
	if !ok {
		return false
	}
	for _, ov := range state.graph.OverlapsOfNext(nextLabel) {
		if ov.Prev == motherLabel {
			continue
		}
		if float64(ov.Area)/float64(daughter.Area) >= state.cfg.DaughterExclusivity {
			return false
		}
	}
	return true
}

func (state *solverState) detectMerge(q Instance) {
	var target *CandidateEdge
	for _, edge := range state.graph.EdgesFrom(q.Key.Label) {
		if _, ok := state.contOwner[edge.Next]; !ok {
			if _, merged := state.merges[edge.Next]; !merged {
				continue
			}
		}
		if edge.FracPrev < state.cfg.MergeMinInside {
			continue
		}
		if target == nil || edge.Overlap > target.Overlap {
			e := edge
			target = &e
		}
	}
	if target == nil {
		return
	}
	if info, merged := state.merges[target.Next]; merged {
		state.warn(fmt.Sprintf("instance %d of frame %d absorbs more than two predecessors (%d, %d, %d), %d disappears",
			target.Next, state.graph.Next.Frame, info.kept, info.lost, q.Key.Label, q.Key.Label))
		return
	}

	owner := state.contOwner[target.Next]
	ownerEdge, _ := state.graph.Edge(owner, target.Next)
	info := mergeInfo{kept: owner, lost: q.Key.Label}
	if target.Overlap > ownerEdge.Overlap || (target.Overlap == ownerEdge.Overlap && q.Key.Label < owner) {
		info = mergeInfo{kept: q.Key.Label, lost: owner}
	}
	delete(state.cont, owner)
	delete(state.contOwner, target.Next)
	state.merges[target.Next] = info
	state.usedPrev[q.Key.Label] = struct{}{}
}

func (state *solverState) warn(msg string) {
	state.warnings = append(state.warnings, Warning{Frame: state.graph.Next.Frame, Message: msg})
}

func (state *solverState) events() []Event {
	prevFrame := state.graph.Prev.Frame
	nextFrame := state.graph.Next.Frame
	prevKey := func(label int) InstanceKey { return InstanceKey{Frame: prevFrame, Label: label} }
	nextKey := func(label int) InstanceKey { return InstanceKey{Frame: nextFrame, Label: label} }

	keptBy := make(map[int]int, len(state.merges))
	lost := make(map[int]struct{}, len(state.merges))
	for next, info := range state.merges {
		keptBy[info.kept] = next
		lost[info.lost] = struct{}{}
	}

	events := make([]Event, 0, state.graph.Prev.Len()+state.graph.Next.Len())
	for _, p := range state.graph.Prev.Instances {
		label := p.Key.Label
		if next, ok := state.cont[label]; ok {
			events = append(events, Event{Kind: Continuation, Prev: p.Key, Next: nextKey(next)})
			continue
		}
		if daughters, ok := state.divisions[label]; ok {
			events = append(events, Event{Kind: Division, Prev: p.Key, Next: nextKey(daughters[0]), Second: nextKey(daughters[1])})
			continue
		}
		if next, ok := keptBy[label]; ok {
			info := state.merges[next]
			events = append(events, Event{Kind: MergeArtifact, Prev: p.Key, Lost: prevKey(info.lost), Next: nextKey(next)})
			continue
		}
		if _, ok := lost[label]; ok {
			continue
		}
		events = append(events, Event{Kind: Disappearance, Prev: p.Key})
	}

	covered := make(map[int]struct{}, state.graph.Next.Len())
	for _, e := range events {
		for _, k := range e.NextKeys() {
			covered[k.Label] = struct{}{}
		}
	}
	for _, n := range state.graph.Next.Instances {
		if _, ok := covered[n.Key.Label]; ok {
			continue
		}
		events = append(events, Event{Kind: Appearance, Next: n.Key})
	}
	return events
}

// checkTotality verifies that every instance of both frames is covered by exactly one event
func checkTotality(graph *TransitionGraph, res *Resolution) error {
	prevSeen := make(map[InstanceKey]int, graph.Prev.Len())
	nextSeen := make(map[InstanceKey]int, graph.Next.Len())
	for _, e := range res.Events {
		for _, k := range e.PrevKeys() {
			prevSeen[k]++
		}
		for _, k := range e.NextKeys() {
			nextSeen[k]++
		}
	}
	for _, key := range graph.Prev.Keys() {
		if prevSeen[key] != 1 {
			return errors.Wrap(invariantf(graph.Next.Frame, "instance %s covered by %d events", key, prevSeen[key]), "solve")
		}
	}
	for _, key := range graph.Next.Keys() {
		if nextSeen[key] != 1 {
			return errors.Wrap(invariantf(graph.Next.Frame, "instance %s covered by %d events", key, nextSeen[key]), "solve")
		}
	}
	if len(prevSeen) != graph.Prev.Len() || len(nextSeen) != graph.Next.Len() {
		return errors.Wrap(invariantf(graph.Next.Frame, "events reference unknown instances"), "solve")
	}
	return nil
}
