package celltrack

import (
	"fmt"
	"sort"
)

// InstanceKey identifies an instance by its frame and frame-local label. Labels
// are reused between frames so the pair is the only stable identity.
type InstanceKey struct {
	Frame int
	Label int
}

func (k InstanceKey) String() string {
	return fmt.Sprintf("%d:%d", k.Frame, k.Label)
}

// Instance is one connected segmented region of a single frame.
// It is immutable after extraction.
type Instance struct {
	Key      InstanceKey
	Area     int
	Centroid Point
	BBox     BBox
}

// Label returns frame-local label of the instance
func (inst Instance) Label() int {
	return inst.Key.Label
}

// InstanceSet holds instances of one frame sorted by label ascending.
type InstanceSet struct {
	Frame     int
	Instances []Instance
	byLabel   map[int]int
}

func newInstanceSet(frame int, instances []Instance) *InstanceSet {
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Key.Label < instances[j].Key.Label
	})
	byLabel := make(map[int]int, len(instances))
	for i := range instances {
		byLabel[instances[i].Key.Label] = i
	}
	return &InstanceSet{
		Frame:     frame,
		Instances: instances,
		byLabel:   byLabel,
	}
}

// Len returns number of instances
func (set *InstanceSet) Len() int {
	return len(set.Instances)
}

// Get returns instance by its frame-local label
func (set *InstanceSet) Get(label int) (Instance, bool) {
	idx, ok := set.byLabel[label]
	if !ok {
		return Instance{}, false
	}
	return set.Instances[idx], true
}

// Keys returns keys of all instances in label order
func (set *InstanceSet) Keys() []InstanceKey {
	keys := make([]InstanceKey, len(set.Instances))
	for i := range set.Instances {
		keys[i] = set.Instances[i].Key
	}
	return keys
}
