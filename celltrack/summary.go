package celltrack

import (
	"gonum.org/v1/gonum/stat"
)

// Summary is a short statistical digest of a run
type Summary struct {
	Frames          int
	Tracks          int
	Divisions       int
	Merges          int
	RecoveredMerges int
	Warnings        int
	Events          map[EventKind]int
	MeanTrackLength float64
	StdTrackLength  float64
	MaxTrackLength  int
}

// Summarize computes run digest from the track table and the resolution history.
// Divisions that split a merge artifact again are recorded as MergeRecovery
// events and counted as recovered merges, not as divisions.
func Summarize(tracks []Track, history []*Resolution, divisions []DivisionRecord, merges []MergeRecord, warnings []Warning, frames int) Summary {
	summary := Summary{
		Frames:    frames,
		Tracks:    len(tracks),
		Divisions: len(divisions),
		Merges:    len(merges),
		Warnings:  len(warnings),
		Events:    make(map[EventKind]int),
	}
	for _, res := range history {
		for _, e := range res.Events {
			summary.Events[e.Kind]++
		}
	}
	for _, rec := range merges {
		if rec.Recovered {
			summary.RecoveredMerges++
		}
	}
	if len(tracks) == 0 {
		return summary
	}
	lengths := make([]float64, len(tracks))
	for i, track := range tracks {
		lengths[i] = float64(track.Len())
		summary.MaxTrackLength = maxInt(summary.MaxTrackLength, track.Len())
	}
	if len(lengths) == 1 {
		summary.MeanTrackLength = lengths[0]
		return summary
	}
	summary.MeanTrackLength, summary.StdTrackLength = stat.MeanStdDev(lengths, nil)
	return summary
}
