package celltrack

import (
	"io"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
)

// DivisionRecord is a mitosis resolved by the manager
type DivisionRecord struct {
	Frame    int
	Parent   int
	Children [2]int
}

// Manager maps instances to persistent track identifiers frame by frame. It
// owns the id counter and the track table of one run; it is not safe for
// concurrent use and independent runs must use independent managers.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	// Counter for assigning unique track IDs
	lastID int
	tracks []*Track
	// frame -> label -> track id
	byFrame map[int]map[int]int
	// instances of the last resolved frame owned by open tracks
	openByKey map[InstanceKey]int
	motion    map[int]*motionModel
	centroids map[int]Point

	history   []*Resolution
	merges    []*MergeRecord
	divisions []DivisionRecord
	warnings  []Warning

	firstFrame int
	lastFrame  int
	started    bool
	finished   bool
}

// NewManager creates track manager. Nil logger discards messages.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		byFrame:   make(map[int]map[int]int),
		openByKey: make(map[InstanceKey]int),
		motion:    make(map[int]*motionModel),
		centroids: make(map[int]Point),
	}
}

// Start opens a track for every instance of the first frame
func (m *Manager) Start(first *InstanceSet) error {
	if m.started {
		return errors.New("manager already started")
	}
	m.started = true
	m.firstFrame = first.Frame
	m.lastFrame = first.Frame
	m.byFrame[first.Frame] = make(map[int]int, first.Len())
	newOpen := make(map[InstanceKey]int, first.Len())
	for _, inst := range first.Instances {
		if _, err := m.open(inst, 0, newOpen); err != nil {
			return err
		}
	}
	m.openByKey = newOpen
	m.logger.Debug("tracking started", "frame", first.Frame, "tracks", first.Len())
	return nil
}

// Apply consumes events of transition (lastFrame -> next.Frame). The manager
// keeps res in its history: a division that splits a recent merge artifact is
// rewritten in place to a MergeRecovery event.
func (m *Manager) Apply(res *Resolution, next *InstanceSet) error {
	if !m.started || m.finished {
		return errors.New("manager is not running")
	}
	if res.PrevFrame != m.lastFrame || res.NextFrame != next.Frame || next.Frame != m.lastFrame+1 {
		return invariantf(next.Frame, "resolution %d->%d does not follow frame %d", res.PrevFrame, res.NextFrame, m.lastFrame)
	}
	m.byFrame[next.Frame] = make(map[int]int, next.Len())
	newOpen := make(map[InstanceKey]int, next.Len())
	extended := make(map[int]struct{}, len(m.openByKey))

	instance := func(key InstanceKey) (Instance, error) {
		inst, ok := next.Get(key.Label)
		if !ok || key.Frame != next.Frame {
			return Instance{}, invariantf(next.Frame, "event references unknown instance %s", key)
		}
		return inst, nil
	}
	extend := func(trackID int, key InstanceKey) error {
		if _, ok := extended[trackID]; ok {
			return invariantf(next.Frame, "track %d extended twice", trackID)
		}
		inst, err := instance(key)
		if err != nil {
			return err
		}
		if err := m.claim(inst.Key, trackID); err != nil {
			return err
		}
		extended[trackID] = struct{}{}
		track := m.tracks[trackID-1]
		track.End = inst.Key.Frame
		newOpen[inst.Key] = trackID
		m.centroids[trackID] = inst.Centroid
		if model, ok := m.motion[trackID]; ok {
			if err := model.Update(inst.Centroid); err != nil {
				return errors.Wrapf(err, "track %d", trackID)
			}
		}
		return nil
	}
	openNew := func(key InstanceKey, parent int) (int, error) {
		inst, err := instance(key)
		if err != nil {
			return 0, err
		}
		return m.open(inst, parent, newOpen)
	}

	for i, e := range res.Events {
		switch e.Kind {
		case Continuation:
			trackID, err := m.owner(e.Prev, next.Frame)
			if err != nil {
				return err
			}
			if err := extend(trackID, e.Next); err != nil {
				return err
			}
		case Division:
			trackID, err := m.owner(e.Prev, next.Frame)
			if err != nil {
				return err
			}
			if rec := m.recoverableMerge(trackID, next.Frame); rec != nil {
				recovered, err := m.recoverMerge(rec, e, next, extend, openNew)
				if err != nil {
					return err
				}
				res.Events[i] = recovered
				continue
			}
			if err := m.close(trackID, res.PrevFrame); err != nil {
				return err
			}
			first, err := openNew(e.Next, trackID)
			if err != nil {
				return err
			}
			second, err := openNew(e.Second, trackID)
			if err != nil {
				return err
			}
			m.divisions = append(m.divisions, DivisionRecord{Frame: next.Frame, Parent: trackID, Children: [2]int{first, second}})
		case MergeArtifact:
			keptID, err := m.owner(e.Prev, next.Frame)
			if err != nil {
				return err
			}
			lostID, err := m.owner(e.Lost, next.Frame)
			if err != nil {
				return err
			}
			if keptID == lostID {
				return invariantf(next.Frame, "merge artifact of track %d with itself", keptID)
			}
			if err := extend(keptID, e.Next); err != nil {
				return err
			}
			if err := m.close(lostID, res.PrevFrame); err != nil {
				return err
			}
			m.merges = append(m.merges, &MergeRecord{
				Frame:    next.Frame,
				Instance: e.Next,
				Survivor: keptID,
				Absorbed: lostID,
				lastSeen: m.centroids[lostID],
			})
			m.logger.Info("merge artifact", "frame", next.Frame, "instance", e.Next.Label, "survivor", keptID, "absorbed", lostID)
		case Appearance:
			if _, err := openNew(e.Next, 0); err != nil {
				return err
			}
		case Disappearance:
			trackID, err := m.owner(e.Prev, next.Frame)
			if err != nil {
				return err
			}
			if err := m.close(trackID, res.PrevFrame); err != nil {
				return err
			}
		default:
			return invariantf(next.Frame, "unknown event kind %s", e.Kind)
		}
	}

	for key, trackID := range m.openByKey {
		if m.tracks[trackID-1].State != TrackOpen {
			continue
		}
		if _, ok := extended[trackID]; !ok {
			return invariantf(next.Frame, "track %d owning %s was neither extended nor closed", trackID, key)
		}
	}
	for _, inst := range next.Instances {
		if _, ok := m.byFrame[next.Frame][inst.Key.Label]; !ok {
			return invariantf(next.Frame, "instance %s left without track", inst.Key)
		}
	}

	for _, w := range res.Warnings {
		m.logger.Warn("data quality", "frame", w.Frame, "message", w.Message)
	}
	m.warnings = append(m.warnings, res.Warnings...)
	m.history = append(m.history, res)
	m.openByKey = newOpen
	m.lastFrame = next.Frame
	return nil
}

// Finish closes all tracks still open at the final frame
func (m *Manager) Finish() error {
	if !m.started {
		return errors.New("manager is not started")
	}
	if m.finished {
		return nil
	}
	for _, trackID := range m.openByKey {
		if err := m.close(trackID, m.lastFrame); err != nil {
			return err
		}
	}
	m.openByKey = make(map[InstanceKey]int)
	m.finished = true
	m.logger.Debug("tracking finished", "frame", m.lastFrame, "tracks", len(m.tracks))
	return m.Validate()
}

// Anchor returns Kalman based anchor function for the graph builder or nil if
// motion prediction is disabled. Each evaluation advances the filter of the
// owning track by one step, so it must be evaluated once per previous instance.
func (m *Manager) Anchor() AnchorFunc {
	if !m.cfg.MotionPrediction {
		return nil
	}
	return func(inst Instance) Point {
		trackID, ok := m.openByKey[inst.Key]
		if !ok {
			return inst.Centroid
		}
		model, ok := m.motion[trackID]
		if !ok {
			return inst.Centroid
		}
		return model.PredictNextPosition()
	}
}

// Validate checks track table invariants. It is called by Finish and may be
// called again by consumers before emitting anything.
func (m *Manager) Validate() error {
	owned := make(map[[2]int]int)
	for frame, labels := range m.byFrame {
		for _, owner := range labels {
			owned[[2]int{frame, owner}]++
		}
	}
	for key := range owned {
		frame, trackID := key[0], key[1]
		if trackID < 1 || trackID > len(m.tracks) {
			return invariantf(frame, "instance assigned to unknown track %d", trackID)
		}
		track := m.tracks[trackID-1]
		if frame < track.Start || frame > track.End {
			return invariantf(frame, "track %d owns an instance outside of [%d, %d]", trackID, track.Start, track.End)
		}
	}
	children := make(map[int]int)
	for i, track := range m.tracks {
		if track.ID != i+1 {
			return invariantf(m.lastFrame, "track ids are not dense: position %d holds %d", i, track.ID)
		}
		if m.finished && track.State != TrackClosed {
			return invariantf(m.lastFrame, "track %d is still open", track.ID)
		}
		if track.End < track.Start {
			return invariantf(track.End, "track %d ends at %d before its start %d", track.ID, track.End, track.Start)
		}
		for frame := track.Start; frame <= track.End; frame++ {
			if count := owned[[2]int{frame, track.ID}]; count != 1 {
				return invariantf(frame, "track %d owns %d instances", track.ID, count)
			}
		}
		if track.Parent != 0 {
			if track.Parent < 1 || track.Parent > len(m.tracks) {
				return invariantf(track.Start, "track %d references unknown parent %d", track.ID, track.Parent)
			}
			parent := m.tracks[track.Parent-1]
			if parent.End >= track.Start {
				return invariantf(track.Start, "parent %d ends at %d, not before child %d starts at %d", parent.ID, parent.End, track.ID, track.Start)
			}
			children[track.Parent]++
			if children[track.Parent] > 2 {
				return invariantf(track.Start, "track %d has more than two children", track.Parent)
			}
		}
	}
	return nil
}

// Tracks returns copy of the track table ordered by id
func (m *Manager) Tracks() []Track {
	tracks := make([]Track, len(m.tracks))
	for i, track := range m.tracks {
		tracks[i] = *track
	}
	return tracks
}

// TrackOf returns track id assigned to the instance
func (m *Manager) TrackOf(key InstanceKey) (int, bool) {
	labels, ok := m.byFrame[key.Frame]
	if !ok {
		return 0, false
	}
	trackID, ok := labels[key.Label]
	return trackID, ok
}

// FrameAssignment returns copy of label -> track id mapping of the frame
func (m *Manager) FrameAssignment(frame int) map[int]int {
	labels := m.byFrame[frame]
	cp := make(map[int]int, len(labels))
	for label, trackID := range labels {
		cp[label] = trackID
	}
	return cp
}

// Frames returns resolved frame indices in ascending order
func (m *Manager) Frames() []int {
	frames := make([]int, 0, len(m.byFrame))
	for frame := range m.byFrame {
		frames = append(frames, frame)
	}
	sort.Ints(frames)
	return frames
}

// History returns per transition resolutions in time order
func (m *Manager) History() []*Resolution {
	return m.history
}

// Merges returns copies of merge artifact records
func (m *Manager) Merges() []MergeRecord {
	records := make([]MergeRecord, len(m.merges))
	for i, rec := range m.merges {
		records[i] = *rec
	}
	return records
}

// Divisions returns resolved mitoses
func (m *Manager) Divisions() []DivisionRecord {
	return m.divisions
}

// Warnings returns all data-quality warnings of the run
func (m *Manager) Warnings() []Warning {
	return m.warnings
}

// Finished reports whether Finish was called successfully
func (m *Manager) Finished() bool {
	return m.finished
}

func (m *Manager) open(inst Instance, parent int, newOpen map[InstanceKey]int) (int, error) {
	m.lastID++
	track := &Track{
		ID:     m.lastID,
		Start:  inst.Key.Frame,
		End:    inst.Key.Frame,
		Parent: parent,
		State:  TrackOpen,
	}
	m.tracks = append(m.tracks, track)
	if err := m.claim(inst.Key, track.ID); err != nil {
		return 0, err
	}
	newOpen[inst.Key] = track.ID
	m.centroids[track.ID] = inst.Centroid
	if m.cfg.MotionPrediction {
		m.motion[track.ID] = newMotionModel(inst.Centroid)
	}
	return track.ID, nil
}

func (m *Manager) claim(key InstanceKey, trackID int) error {
	labels, ok := m.byFrame[key.Frame]
	if !ok {
		labels = make(map[int]int)
		m.byFrame[key.Frame] = labels
	}
	if owner, ok := labels[key.Label]; ok {
		return invariantf(key.Frame, "instance %s claimed by tracks %d and %d", key, owner, trackID)
	}
	labels[key.Label] = trackID
	return nil
}

func (m *Manager) owner(key InstanceKey, frame int) (int, error) {
	trackID, ok := m.openByKey[key]
	if !ok {
		return 0, invariantf(frame, "instance %s has no open track", key)
	}
	if m.tracks[trackID-1].State != TrackOpen {
		return 0, invariantf(frame, "track %d owning %s is already closed", trackID, key)
	}
	return trackID, nil
}

func (m *Manager) close(trackID int, frame int) error {
	track := m.tracks[trackID-1]
	if track.State != TrackOpen {
		return invariantf(frame, "track %d closed twice", trackID)
	}
	if track.End != frame {
		return invariantf(frame, "track %d closed at %d but last seen at %d", trackID, frame, track.End)
	}
	track.State = TrackClosed
	delete(m.motion, trackID)
	return nil
}

// recoverableMerge returns the latest unresolved merge the track survived within recovery window
func (m *Manager) recoverableMerge(trackID int, frame int) *MergeRecord {
	if m.cfg.MergeRecoveryWindow <= 0 {
		return nil
	}
	for i := len(m.merges) - 1; i >= 0; i-- {
		rec := m.merges[i]
		if frame-rec.Frame > m.cfg.MergeRecoveryWindow {
			break
		}
		if rec.Survivor == trackID && !rec.Recovered {
			return rec
		}
	}
	return nil
}

// recoverMerge treats split of a merged instance as the merge coming apart:
// the piece closer to where the absorbed cell was last seen starts a new
// track with the absorbed track as parent, the survivor continues on the other piece.
func (m *Manager) recoverMerge(
	rec *MergeRecord,
	e Event,
	next *InstanceSet,
	extend func(int, InstanceKey) error,
	openNew func(InstanceKey, int) (int, error),
) (Event, error) {
	first, ok := next.Get(e.Next.Label)
	if !ok {
		return Event{}, invariantf(next.Frame, "event references unknown instance %s", e.Next)
	}
	second, ok := next.Get(e.Second.Label)
	if !ok {
		return Event{}, invariantf(next.Frame, "event references unknown instance %s", e.Second)
	}
	survivorKey, reemergedKey := e.Next, e.Second
	if euclideanDistance(first.Centroid, rec.lastSeen) < euclideanDistance(second.Centroid, rec.lastSeen) {
		survivorKey, reemergedKey = e.Second, e.Next
	}
	if err := extend(rec.Survivor, survivorKey); err != nil {
		return Event{}, err
	}
	newID, err := openNew(reemergedKey, rec.Absorbed)
	if err != nil {
		return Event{}, err
	}
	rec.Recovered = true
	rec.RecoveredAs = newID
	m.logger.Info("merge artifact recovered", "frame", e.Next.Frame, "survivor", rec.Survivor, "absorbed", rec.Absorbed, "track", newID)
	return Event{Kind: MergeRecovery, Prev: e.Prev, Next: survivorKey, Second: reemergedKey}, nil
}
