package celltrack

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FrameSource provides label images of a sequence in time order
type FrameSource interface {
	Len() int
	Frame(ctx context.Context, i int) (*LabelImage, error)
}

// Frames is an in-memory FrameSource
type Frames []*LabelImage

// Len returns number of frames
func (f Frames) Len() int {
	return len(f)
}

// Frame returns i-th image
func (f Frames) Frame(_ context.Context, i int) (*LabelImage, error) {
	if i < 0 || i >= len(f) {
		return nil, errors.Errorf("frame %d out of range [0, %d)", i, len(f))
	}
	return f[i], nil
}

// Result is the complete output of one tracking run. It only exists when the
// whole sequence has been resolved and validated.
type Result struct {
	RunID        uuid.UUID
	Config       Config
	FrameIndices []int
	Frames       []*LabelImage
	Lineage      []LineageRow
	Tracks       []Track
	Divisions    []DivisionRecord
	Merges       []MergeRecord
	Warnings     []Warning
	History      []*Resolution
	Summary      Summary
	Elapsed      time.Duration
}

// Tracker runs the full pipeline over a frame sequence. A Tracker holds no run
// state, so independent sequences may be tracked concurrently with one Tracker.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
}

// NewTracker validates configuration and creates tracker. Nil logger discards messages.
func NewTracker(cfg Config, logger *slog.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run resolves every frame transition and then emits relabeled frames and the
// lineage table. Any error (including cancellation) discards the whole run.
func (t *Tracker) Run(ctx context.Context, source FrameSource) (*Result, error) {
	st := time.Now()
	total := source.Len()
	if total == 0 {
		return nil, ErrNoFrames
	}
	runID := uuid.New()
	logger := t.logger.With("run_id", runID.String())
	workers := t.cfg.Runtime.Workers
	manager := NewManager(t.cfg.Manager, logger)

	images := make([]*LabelImage, 0, total)
	var prevImg *LabelImage
	var prevSet *InstanceSet
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "tracking interrupted")
		}
		frame := t.cfg.Runtime.FirstFrame + i
		img, err := source.Frame(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(err, "tracking interrupted")
			}
			return nil, &InputError{Frame: frame, Err: errors.Wrap(err, "Can't read frame")}
		}
		if err := img.Validate(); err != nil {
			return nil, &InputError{Frame: frame, Err: err}
		}
		if prevImg != nil && !prevImg.SameSize(img) {
			return nil, &InputError{Frame: frame, Err: errors.Wrapf(ErrDimensionMismatch, "%dx%d vs %dx%d", img.Width, img.Height, prevImg.Width, prevImg.Height)}
		}
		set, err := ExtractInstances(frame, img, workers)
		if err != nil {
			return nil, err
		}

		if prevSet == nil {
			if err := manager.Start(set); err != nil {
				return nil, errors.Wrap(err, "Can't start tracking")
			}
		} else {
			overlaps, err := ComputeOverlaps(prevImg, img, prevSet, set, workers)
			if err != nil {
				return nil, err
			}
			graph := BuildGraph(prevSet, set, overlaps, t.cfg.Graph, manager.Anchor())
			res, err := Solve(graph, t.cfg.Solver)
			if err != nil {
				return nil, err
			}
			if err := manager.Apply(res, set); err != nil {
				return nil, err
			}
			logger.Debug("transition resolved",
				"frame", frame,
				"instances", set.Len(),
				"edges", len(graph.Edges),
				"continuations", res.Count(Continuation),
				"divisions", res.Count(Division),
				"merges", res.Count(MergeArtifact),
				"recoveries", res.Count(MergeRecovery),
				"appearances", res.Count(Appearance),
				"disappearances", res.Count(Disappearance),
			)
		}
		images = append(images, img)
		prevImg, prevSet = img, set
	}

	if err := manager.Finish(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "tracking interrupted")
	}
	emission, err := Emit(manager, images, workers)
	if err != nil {
		return nil, err
	}

	tracks := manager.Tracks()
	result := &Result{
		RunID:        runID,
		Config:       t.cfg,
		FrameIndices: emission.FrameIndices,
		Frames:       emission.Frames,
		Lineage:      emission.Lineage,
		Tracks:       tracks,
		Divisions:    manager.Divisions(),
		Merges:       manager.Merges(),
		Warnings:     manager.Warnings(),
		History:      manager.History(),
		Elapsed:      time.Since(st),
	}
	result.Summary = Summarize(tracks, result.History, result.Divisions, result.Merges, result.Warnings, total)
	logger.Info("tracking finished",
		"frames", total,
		"tracks", result.Summary.Tracks,
		"divisions", result.Summary.Divisions,
		"merges", result.Summary.Merges,
		"warnings", result.Summary.Warnings,
		"elapsed", result.Elapsed,
	)
	return result, nil
}
