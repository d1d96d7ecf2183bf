package celltrack

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Emission is the projection of a finished tracking run: relabeled frames and the lineage table.
type Emission struct {
	// Frame index of every relabeled image
	FrameIndices []int
	Frames       []*LabelImage
	Lineage      []LineageRow
}

// Relabel returns new image where every instance label is replaced by its
// track id. Background stays zero. Labels missing from assignment are an
// invariant violation since every instance must belong to a track.
func Relabel(img *LabelImage, frame int, assignment map[int]int) (*LabelImage, error) {
	if err := img.Validate(); err != nil {
		return nil, &InputError{Frame: frame, Err: err}
	}
	out := NewLabelImage(img.Width, img.Height)
	// Instances are large connected regions, so remember the last lookup
	lastLabel, lastTrack := int32(0), int32(0)
	for i, label := range img.Pix {
		if label == 0 {
			continue
		}
		if label != lastLabel {
			trackID, ok := assignment[int(label)]
			if !ok {
				return nil, invariantf(frame, "instance %d has no track", label)
			}
			lastLabel, lastTrack = label, int32(trackID)
		}
		out.Pix[i] = lastTrack
	}
	return out, nil
}

// Lineage converts tracks into lineage rows sorted by track id ascending
func Lineage(tracks []Track) []LineageRow {
	rows := make([]LineageRow, len(tracks))
	for i, track := range tracks {
		rows[i] = LineageRow{
			TrackID: track.ID,
			Start:   track.Start,
			End:     track.End,
			Parent:  track.Parent,
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TrackID < rows[j].TrackID
	})
	return rows
}

// Emit relabels every frame of a finished run and builds the lineage table.
// frames[i] must be the image the manager resolved as its i-th frame. Manager
// state is only read, so emitting twice yields identical output.
func Emit(m *Manager, frames []*LabelImage, workers int) (*Emission, error) {
	if !m.Finished() {
		return nil, errors.New("can't emit unfinished run")
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "emit")
	}
	indices := m.Frames()
	if len(indices) != len(frames) {
		return nil, errors.Errorf("manager resolved %d frames, %d images given", len(indices), len(frames))
	}

	out := make([]*LabelImage, len(frames))
	var g errgroup.Group
	g.SetLimit(workerCount(workers))
	for i := range frames {
		i := i
		g.Go(func() error {
			relabeled, err := Relabel(frames[i], indices[i], m.FrameAssignment(indices[i]))
			if err != nil {
				return err
			}
			out[i] = relabeled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Emission{
		FrameIndices: indices,
		Frames:       out,
		Lineage:      Lineage(m.Tracks()),
	}, nil
}
