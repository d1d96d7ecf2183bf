package celltrack

import "testing"

// box is an axis aligned block of pixels with inclusive bounds
type box struct {
	label      int32
	row0, col0 int
	row1, col1 int
}

func drawImage(width, height int, boxes ...box) *LabelImage {
	img := NewLabelImage(width, height)
	for _, b := range boxes {
		for row := b.row0; row <= b.row1; row++ {
			for col := b.col0; col <= b.col1; col++ {
				img.Set(row, col, b.label)
			}
		}
	}
	return img
}

func mustExtract(t *testing.T, frame int, img *LabelImage) *InstanceSet {
	t.Helper()
	set, err := ExtractInstances(frame, img, 1)
	if err != nil {
		t.Fatalf("Can't extract frame %d: %v", frame, err)
	}
	return set
}

func mustGraph(t *testing.T, prevImg, nextImg *LabelImage, cfg Config) *TransitionGraph {
	t.Helper()
	prev := mustExtract(t, 0, prevImg)
	next := mustExtract(t, 1, nextImg)
	overlaps, err := ComputeOverlaps(prevImg, nextImg, prev, next, 1)
	if err != nil {
		t.Fatalf("Can't compute overlaps: %v", err)
	}
	return BuildGraph(prev, next, overlaps, cfg.Graph, nil)
}

func mustRun(t *testing.T, cfg Config, frames ...*LabelImage) *Result {
	t.Helper()
	tracker, err := NewTracker(cfg, nil)
	if err != nil {
		t.Fatalf("Can't create tracker: %v", err)
	}
	result, err := tracker.Run(t.Context(), Frames(frames))
	if err != nil {
		t.Fatalf("Can't run tracker: %v", err)
	}
	return result
}
