package celltrack

// TrackState is a lifecycle state of a track
type TrackState uint8

const (
	// TrackOpen tracks may still be extended by next frame
	TrackOpen TrackState = iota + 1
	// TrackClosed tracks have a fixed end frame
	TrackClosed
)

func (s TrackState) String() string {
	switch s {
	case TrackOpen:
		return "open"
	case TrackClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Track is a persistent trajectory of one cell. Every frame in [Start, End]
// has exactly one instance assigned to the track.
type Track struct {
	ID     int
	Start  int
	End    int
	Parent int
	State  TrackState
}

// Len returns number of frames covered by the track
func (t Track) Len() int {
	return t.End - t.Start + 1
}

// LineageRow is one row of the CTC lineage table
type LineageRow struct {
	TrackID int
	Start   int
	End     int
	Parent  int
}

// MergeRecord keeps a merge artifact found during tracking. Survivor track
// continued onto the merged instance while Absorbed track ended one frame
// before it.
type MergeRecord struct {
	Frame    int
	Instance InstanceKey
	Survivor int
	Absorbed int
	// Absorbed track's last centroid
	lastSeen Point
	// Set when the merged instance split again within recovery window
	Recovered bool
	// Track opened for the re-emerged cell (parent is Absorbed)
	RecoveredAs int
}
