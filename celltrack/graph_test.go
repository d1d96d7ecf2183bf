package celltrack

import (
	"math"
	"testing"
)

func TestBuildGraph(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(80, 80,
		box{label: 1, row0: 10, col0: 10, row1: 17, col1: 17},
		box{label: 2, row0: 60, col0: 60, row1: 63, col1: 63},
	)
	nextImg := drawImage(80, 80,
		// Same place as prev 1
		box{label: 1, row0: 10, col0: 10, row1: 17, col1: 17},
		// No overlap with anything, 10 pixels right of prev 1
		box{label: 2, row0: 10, col0: 24, row1: 17, col1: 31},
		// Far away from everything
		box{label: 3, row0: 40, col0: 0, row1: 43, col1: 3},
	)
	graph := mustGraph(t, prevImg, nextImg, cfg)

	if len(graph.Edges) != 2 {
		t.Fatalf("Expected 2 edges, got %d: %+v", len(graph.Edges), graph.Edges)
	}
	strong, ok := graph.Edge(1, 1)
	if !ok {
		t.Fatal("Expected edge 1 -> 1")
	}
	if strong.Overlap != 64 || strong.Cost != 0 || strong.IoU != 1 {
		t.Errorf("Unexpected strong edge: %+v", strong)
	}
	weak, ok := graph.Edge(1, 2)
	if !ok {
		t.Fatal("Expected distance-only edge 1 -> 2")
	}
	if weak.Overlap != 0 || math.Abs(weak.Distance-14) > 1e-9 {
		t.Errorf("Unexpected weak edge: %+v", weak)
	}
	expectedCost := (0.8*1.0 + 0.2*(14.0/15.0)) / 1.0
	if math.Abs(weak.Cost-expectedCost) > 1e-9 {
		t.Errorf("Expected cost %f, got %f", expectedCost, weak.Cost)
	}
	if weak.Cost <= strong.Cost {
		t.Error("Overlapping edge must be cheaper than distance-only edge")
	}

	if len(graph.IsolatedPrev) != 1 || graph.IsolatedPrev[0] != 2 {
		t.Errorf("Expected isolated previous instance 2, got %v", graph.IsolatedPrev)
	}
	if len(graph.IsolatedNext) != 1 || graph.IsolatedNext[0] != 3 {
		t.Errorf("Expected isolated next instance 3, got %v", graph.IsolatedNext)
	}
	if from := graph.EdgesFrom(1); len(from) != 2 || from[0].Next != 1 || from[1].Next != 2 {
		t.Errorf("Edges must be ordered by next label, got %+v", from)
	}
	if to := graph.EdgesTo(2); len(to) != 1 || to[0].Prev != 1 {
		t.Errorf("Unexpected edges to 2: %+v", to)
	}
}

func TestBuildGraphMinOverlap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.MaxDisplacement = 0
	cfg.Graph.MinOverlapFraction = 0.5
	prevImg := drawImage(40, 40, box{label: 1, row0: 0, col0: 0, row1: 9, col1: 9})
	nextImg := drawImage(40, 40,
		// 20 of 100 pixels overlap
		box{label: 1, row0: 0, col0: 8, row1: 9, col1: 17},
	)
	graph := mustGraph(t, prevImg, nextImg, cfg)
	if len(graph.Edges) != 0 {
		t.Errorf("Expected weak overlap to be pruned, got %+v", graph.Edges)
	}
	if len(graph.OverlapsOfNext(1)) != 1 {
		t.Error("Raw overlaps must survive pruning")
	}

	cfg.Graph.MinOverlapFraction = 0.2
	graph = mustGraph(t, prevImg, nextImg, cfg)
	if len(graph.Edges) != 1 {
		t.Errorf("Expected overlap edge to survive, got %+v", graph.Edges)
	}
}

func TestBuildGraphDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	prevImg := drawImage(50, 50,
		box{label: 9, row0: 0, col0: 0, row1: 5, col1: 5},
		box{label: 4, row0: 0, col0: 8, row1: 5, col1: 13},
		box{label: 6, row0: 8, col0: 0, row1: 13, col1: 5},
	)
	nextImg := drawImage(50, 50,
		box{label: 3, row0: 1, col0: 1, row1: 6, col1: 6},
		box{label: 1, row0: 1, col0: 9, row1: 6, col1: 14},
		box{label: 2, row0: 9, col0: 1, row1: 14, col1: 6},
	)
	first := mustGraph(t, prevImg, nextImg, cfg)
	for i := 0; i < 5; i++ {
		again := mustGraph(t, prevImg, nextImg, cfg)
		if len(again.Edges) != len(first.Edges) {
			t.Fatalf("Edge count changed between replays: %d vs %d", len(first.Edges), len(again.Edges))
		}
		for j := range first.Edges {
			if first.Edges[j] != again.Edges[j] {
				t.Fatalf("Edge %d changed between replays: %+v vs %+v", j, first.Edges[j], again.Edges[j])
			}
		}
	}
	for j := 1; j < len(first.Edges); j++ {
		a, b := first.Edges[j-1], first.Edges[j]
		if a.Prev > b.Prev || (a.Prev == b.Prev && a.Next >= b.Next) {
			t.Fatalf("Edges are not ordered by labels: %+v before %+v", a, b)
		}
	}
}
