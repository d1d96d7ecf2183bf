package celltrack

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Overlap is the exact number of pixels shared by an instance of frame t
// (Prev label) and an instance of frame t+1 (Next label).
type Overlap struct {
	Prev int
	Next int
	Area int
}

// ComputeOverlaps counts shared pixels for every pair of instances whose
// bounding boxes intersect. Only the box intersection is scanned and pairs
// without common box are never materialized. Previous instances are handled
// by independent workers; inputs are read-only.
func ComputeOverlaps(prevImg, nextImg *LabelImage, prev, next *InstanceSet, workers int) ([]Overlap, error) {
	if !prevImg.SameSize(nextImg) {
		return nil, &InputError{Frame: next.Frame, Err: errors.Wrapf(ErrDimensionMismatch, "%dx%d vs %dx%d", nextImg.Width, nextImg.Height, prevImg.Width, prevImg.Height)}
	}
	if prev.Len() == 0 || next.Len() == 0 {
		return []Overlap{}, nil
	}
	grid := newInstanceGrid(next, 8)

	perPrev := make([][]Overlap, prev.Len())
	var g errgroup.Group
	g.SetLimit(workerCount(workers))
	for i := range prev.Instances {
		i := i
		g.Go(func() error {
			p := prev.Instances[i]
			found := make([]Overlap, 0, 2)
			for _, j := range grid.query(p.BBox) {
				n := next.Instances[j]
				inter, ok := p.BBox.Intersect(n.BBox)
				if !ok {
					continue
				}
				count := countShared(prevImg, nextImg, inter, int32(p.Key.Label), int32(n.Key.Label))
				if count == 0 {
					continue
				}
				found = append(found, Overlap{Prev: p.Key.Label, Next: n.Key.Label, Area: count})
			}
			perPrev[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overlaps := make([]Overlap, 0, prev.Len())
	for _, part := range perPrev {
		overlaps = append(overlaps, part...)
	}
	sort.Slice(overlaps, func(i, j int) bool {
		if overlaps[i].Prev != overlaps[j].Prev {
			return overlaps[i].Prev < overlaps[j].Prev
		}
		return overlaps[i].Next < overlaps[j].Next
	})
	return overlaps, nil
}

func countShared(prevImg, nextImg *LabelImage, box BBox, prevLabel, nextLabel int32) int {
	count := 0
	for row := box.MinRow; row <= box.MaxRow; row++ {
		offset := row * prevImg.Width
		for col := box.MinCol; col <= box.MaxCol; col++ {
			if prevImg.Pix[offset+col] == prevLabel && nextImg.Pix[offset+col] == nextLabel {
				count++
			}
		}
	}
	return count
}
