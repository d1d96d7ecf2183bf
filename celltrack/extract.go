package celltrack

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// featureAccum collects per-label moments over a band of rows
type featureAccum struct {
	count  int
	sumRow int64
	sumCol int64
	bbox   BBox
}

func (acc *featureAccum) add(row, col int) {
	if acc.count == 0 {
		acc.bbox = BBox{MinRow: row, MinCol: col, MaxRow: row, MaxCol: col}
	} else {
		acc.bbox.extend(row, col)
	}
	acc.count++
	acc.sumRow += int64(row)
	acc.sumCol += int64(col)
}

func (acc *featureAccum) merge(other *featureAccum) {
	if other.count == 0 {
		return
	}
	if acc.count == 0 {
		*acc = *other
		return
	}
	acc.bbox = acc.bbox.union(other.bbox)
	acc.count += other.count
	acc.sumRow += other.sumRow
	acc.sumCol += other.sumCol
}

// ExtractInstances computes area, centroid and bounding box for every distinct
// non-zero label of the image. Rows are split into bands which are scanned by
// independent workers; sums are integral so the result does not depend on the
// number of workers.
func ExtractInstances(frame int, img *LabelImage, workers int) (*InstanceSet, error) {
	if err := img.Validate(); err != nil {
		return nil, &InputError{Frame: frame, Err: err}
	}
	workers = minInt(workerCount(workers), img.Height)
	bandHeight := (img.Height + workers - 1) / workers

	partials := make([]map[int32]*featureAccum, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		rowStart := w * bandHeight
		rowEnd := minInt(rowStart+bandHeight, img.Height)
		g.Go(func() error {
			local := make(map[int32]*featureAccum)
			for row := rowStart; row < rowEnd; row++ {
				offset := row * img.Width
				for col := 0; col < img.Width; col++ {
					label := img.Pix[offset+col]
					if label == 0 {
						continue
					}
					if label < 0 {
						return errors.Wrapf(ErrNegativeLabel, "value %d at row %d, col %d", label, row, col)
					}
					acc, ok := local[label]
					if !ok {
						acc = &featureAccum{}
						local[label] = acc
					}
					acc.add(row, col)
				}
			}
			partials[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &InputError{Frame: frame, Err: err}
	}

	merged := make(map[int32]*featureAccum)
	for _, part := range partials {
		for label, acc := range part {
			existing, ok := merged[label]
			if !ok {
				merged[label] = acc
				continue
			}
			existing.merge(acc)
		}
	}

	instances := make([]Instance, 0, len(merged))
	for label, acc := range merged {
		instances = append(instances, Instance{
			Key:  InstanceKey{Frame: frame, Label: int(label)},
			Area: acc.count,
			Centroid: Point{
				X: float64(acc.sumCol) / float64(acc.count),
				Y: float64(acc.sumRow) / float64(acc.count),
			},
			BBox: acc.bbox,
		})
	}
	return newInstanceSet(frame, instances), nil
}
