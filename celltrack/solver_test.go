package celltrack

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func key(frame, label int) InstanceKey {
	return InstanceKey{Frame: frame, Label: label}
}

func mustSolve(t *testing.T, graph *TransitionGraph, cfg Config) *Resolution {
	t.Helper()
	res, err := Solve(graph, cfg.Solver)
	if err != nil {
		t.Fatalf("Can't solve: %v", err)
	}
	return res
}

func TestSolveContinuation(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(20, 20,
		box{label: 1, row0: 2, col0: 2, row1: 5, col1: 5},
		box{label: 2, row0: 10, col0: 10, row1: 13, col1: 13},
	)
	// Labels are frame-local and swapped in the next frame
	nextImg := drawImage(20, 20,
		box{label: 2, row0: 2, col0: 2, row1: 5, col1: 5},
		box{label: 1, row0: 10, col0: 10, row1: 13, col1: 13},
	)
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	expected := []Event{
		{Kind: Continuation, Prev: key(0, 1), Next: key(1, 2)},
		{Kind: Continuation, Prev: key(0, 2), Next: key(1, 1)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", res.Warnings)
	}
}

func TestSolveDivision(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(20, 20, box{label: 1, row0: 4, col0: 4, row1: 11, col1: 11})
	nextImg := drawImage(20, 20,
		box{label: 1, row0: 4, col0: 4, row1: 11, col1: 7},
		box{label: 2, row0: 4, col0: 8, row1: 11, col1: 11},
	)
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	expected := []Event{
		{Kind: Division, Prev: key(0, 1), Next: key(1, 1), Second: key(1, 2)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestSolveDivisionAreaShare(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(30, 30, box{label: 1, row0: 4, col0: 4, row1: 11, col1: 11})
	// Daughters cover 16 of 64 mother pixels
	nextImg := drawImage(30, 30,
		box{label: 1, row0: 4, col0: 4, row1: 5, col1: 7},
		box{label: 2, row0: 4, col0: 8, row1: 5, col1: 11},
	)
	cfg.Solver.DivisionAreaShare = 0.5
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	if res.Count(Division) != 0 {
		t.Errorf("Expected no division below area share, got %v", res.Events)
	}
	if res.Count(Continuation) != 1 || res.Count(Appearance) != 1 {
		t.Errorf("Expected continuation and appearance, got %v", res.Events)
	}

	cfg.Solver.DivisionAreaShare = 0.2
	res = mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	if res.Count(Division) != 1 {
		t.Errorf("Expected division with lower area share, got %v", res.Events)
	}
}

func TestSolveAmbiguousDivision(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(30, 30, box{label: 1, row0: 0, col0: 0, row1: 11, col1: 11})
	nextImg := drawImage(30, 30,
		box{label: 1, row0: 0, col0: 0, row1: 11, col1: 3},
		box{label: 2, row0: 0, col0: 4, row1: 11, col1: 7},
		box{label: 3, row0: 0, col0: 8, row1: 11, col1: 11},
	)
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	expected := []Event{
		{Kind: Division, Prev: key(0, 1), Next: key(1, 1), Second: key(1, 2)},
		{Kind: Appearance, Next: key(1, 3)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected one warning, got %v", res.Warnings)
	}
	if res.Warnings[0].Frame != 1 || !strings.Contains(res.Warnings[0].Message, "ambiguous division") {
		t.Errorf("Unexpected warning: %s", res.Warnings[0])
	}
}

func TestSolveMergeArtifact(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(20, 20,
		box{label: 1, row0: 4, col0: 4, row1: 7, col1: 7},
		box{label: 2, row0: 4, col0: 8, row1: 7, col1: 13},
	)
	nextImg := drawImage(20, 20, box{label: 1, row0: 4, col0: 4, row1: 7, col1: 13})
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	// Label 2 has larger overlap with the merged instance, so it keeps its track
	expected := []Event{
		{Kind: MergeArtifact, Prev: key(0, 2), Lost: key(0, 1), Next: key(1, 1)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestSolveMergeArtifactTieBreak(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(20, 20,
		box{label: 1, row0: 4, col0: 4, row1: 7, col1: 7},
		box{label: 2, row0: 4, col0: 8, row1: 7, col1: 11},
	)
	nextImg := drawImage(20, 20, box{label: 1, row0: 4, col0: 4, row1: 7, col1: 11})
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	expected := []Event{
		{Kind: MergeArtifact, Prev: key(0, 1), Lost: key(0, 2), Next: key(1, 1)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestSolveMergeOfThree(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(20, 20,
		box{label: 1, row0: 4, col0: 4, row1: 7, col1: 7},
		box{label: 2, row0: 4, col0: 8, row1: 7, col1: 11},
		box{label: 3, row0: 4, col0: 12, row1: 7, col1: 15},
	)
	nextImg := drawImage(20, 20, box{label: 1, row0: 4, col0: 4, row1: 7, col1: 15})
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	// Only two predecessors are recorded, the third one ends
	expected := []Event{
		{Kind: MergeArtifact, Prev: key(0, 1), Lost: key(0, 2), Next: key(1, 1)},
		{Kind: Disappearance, Prev: key(0, 3)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected one warning, got %v", res.Warnings)
	}
	if w := res.Warnings[0]; w.Frame != 1 || !strings.Contains(w.Message, "absorbs") {
		t.Errorf("Unexpected warning: %s", w)
	}
}

func TestSolveTieBreakByLabel(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(20, 20,
		box{label: 1, row0: 0, col0: 0, row1: 3, col1: 3},
		box{label: 2, row0: 0, col0: 8, row1: 3, col1: 11},
	)
	// Exactly between both previous instances, touching neither
	nextImg := drawImage(20, 20, box{label: 1, row0: 0, col0: 4, row1: 3, col1: 7})
	graph := mustGraph(t, prevImg, nextImg, cfg)
	a, _ := graph.Edge(1, 1)
	b, _ := graph.Edge(2, 1)
	if a.Cost != b.Cost {
		t.Fatalf("Test setup expects equal costs, got %f and %f", a.Cost, b.Cost)
	}
	res := mustSolve(t, graph, cfg)
	expected := []Event{
		{Kind: Continuation, Prev: key(0, 1), Next: key(1, 1)},
		{Kind: Disappearance, Prev: key(0, 2)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestSolveAppearanceDisappearance(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(60, 60, box{label: 3, row0: 0, col0: 0, row1: 3, col1: 3})
	nextImg := drawImage(60, 60, box{label: 8, row0: 50, col0: 50, row1: 53, col1: 53})
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	expected := []Event{
		{Kind: Disappearance, Prev: key(0, 3)},
		{Kind: Appearance, Next: key(1, 8)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestSolveHungarian(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Solver.Matching = MatchingHungarian
	prevImg := drawImage(20, 20,
		box{label: 1, row0: 2, col0: 2, row1: 5, col1: 5},
		box{label: 2, row0: 10, col0: 10, row1: 13, col1: 13},
	)
	nextImg := drawImage(20, 20,
		box{label: 2, row0: 2, col0: 3, row1: 5, col1: 6},
		box{label: 1, row0: 10, col0: 11, row1: 13, col1: 14},
	)
	res := mustSolve(t, mustGraph(t, prevImg, nextImg, cfg), cfg)
	expected := []Event{
		{Kind: Continuation, Prev: key(0, 1), Next: key(1, 2)},
		{Kind: Continuation, Prev: key(0, 2), Next: key(1, 1)},
	}
	if diff := cmp.Diff(expected, res.Events); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestDedupePairs(t *testing.T) {
	pairs := [][2]int{{1, 1}, {1, 2}, {2, 1}, {3, 3}}
	expected := [][2]int{{1, 1}, {3, 3}}
	if diff := cmp.Diff(expected, dedupePairs(pairs)); diff != "" {
		t.Errorf("Unexpected pairs (-want +got):\n%s", diff)
	}
}

// randomFrames draws jittered and occasionally splitting or vanishing blocks
func randomFrames(seed int64, count int) []*LabelImage {
	rng := rand.New(rand.NewSource(seed))
	frames := make([]*LabelImage, count)
	for i := range frames {
		boxes := make([]box, 0, 16)
		for cell := 0; cell < 16; cell++ {
			if rng.Intn(8) == 0 {
				continue
			}
			row0 := (cell/4)*16 + rng.Intn(4)
			col0 := (cell%4)*16 + rng.Intn(4)
			height := 6 + rng.Intn(6)
			width := 6 + rng.Intn(6)
			label := int32(rng.Intn(50) + 1)
			if rng.Intn(6) == 0 {
				half := width / 2
				boxes = append(boxes,
					box{label: label, row0: row0, col0: col0, row1: row0 + height - 1, col1: col0 + half - 1},
					box{label: label + 100, row0: row0, col0: col0 + half, row1: row0 + height - 1, col1: col0 + width - 1},
				)
				continue
			}
			boxes = append(boxes, box{label: label, row0: row0, col0: col0, row1: row0 + height - 1, col1: col0 + width - 1})
		}
		frames[i] = drawImage(64, 64, boxes...)
	}
	return frames
}

func TestSolveTotality(t *testing.T) {
	for _, matching := range []MatchingAlgorithm{MatchingGreedy, MatchingHungarian} {
		cfg := DefaultConfig()
		cfg.Solver.Matching = matching
		frames := randomFrames(7, 12)
		for i := 1; i < len(frames); i++ {
			prev := mustExtract(t, i-1, frames[i-1])
			next := mustExtract(t, i, frames[i])
			overlaps, err := ComputeOverlaps(frames[i-1], frames[i], prev, next, 2)
			if err != nil {
				t.Fatalf("Can't compute overlaps: %v", err)
			}
			graph := BuildGraph(prev, next, overlaps, cfg.Graph, nil)
			res, err := Solve(graph, cfg.Solver)
			if err != nil {
				t.Fatalf("[%s] transition %d: %v", matching, i, err)
			}
			covered := make(map[InstanceKey]int)
			for _, e := range res.Events {
				for _, k := range append(e.PrevKeys(), e.NextKeys()...) {
					covered[k]++
				}
			}
			for _, k := range append(prev.Keys(), next.Keys()...) {
				if covered[k] != 1 {
					t.Errorf("[%s] instance %s covered %d times", matching, k, covered[k])
				}
			}

			again, err := Solve(graph, cfg.Solver)
			if err != nil {
				t.Fatalf("[%s] transition %d replay: %v", matching, i, err)
			}
			if diff := cmp.Diff(res, again); diff != "" {
				t.Errorf("[%s] solver is not deterministic (-first +second):\n%s", matching, diff)
			}
		}
	}
}
