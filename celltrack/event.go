package celltrack

import "fmt"

// EventKind is the type of resolved transition outcome
type EventKind uint8

const (
	// Continuation links one previous instance to one next instance
	Continuation EventKind = iota + 1
	// Division links mother instance to two daughters
	Division
	// MergeArtifact marks two previous instances segmented as one next instance
	MergeArtifact
	// Appearance marks next instance without predecessor
	Appearance
	// Disappearance marks previous instance without successor
	Disappearance
	// MergeRecovery marks merged instance splitting back into the tracks it
	// absorbed. Only the track manager produces it, by rewriting a division.
	MergeRecovery
)

func (k EventKind) String() string {
	switch k {
	case Continuation:
		return "continuation"
	case Division:
		return "division"
	case MergeArtifact:
		return "merge_artifact"
	case Appearance:
		return "appearance"
	case Disappearance:
		return "disappearance"
	case MergeRecovery:
		return "merge_recovery"
	default:
		return fmt.Sprintf("event_kind(%d)", uint8(k))
	}
}

// Event is the resolved outcome for instances of one frame transition.
// Which fields are set depends on Kind:
//
//	Continuation:  Prev -> Next
//	Division:      Prev -> Next, Second (daughters by descending overlap share)
//	MergeArtifact: Prev (kept), Lost -> Next
//	Appearance:    Next
//	Disappearance: Prev
//	MergeRecovery: Prev -> Next (survivor), Second (re-emerged)
type Event struct {
	Kind   EventKind
	Prev   InstanceKey
	Lost   InstanceKey
	Next   InstanceKey
	Second InstanceKey
}

func (e Event) String() string {
	switch e.Kind {
	case Continuation:
		return fmt.Sprintf("%s(%s -> %s)", e.Kind, e.Prev, e.Next)
	case Division, MergeRecovery:
		return fmt.Sprintf("%s(%s -> %s, %s)", e.Kind, e.Prev, e.Next, e.Second)
	case MergeArtifact:
		return fmt.Sprintf("%s(%s + %s -> %s)", e.Kind, e.Prev, e.Lost, e.Next)
	case Appearance:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Next)
	case Disappearance:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Prev)
	default:
		return e.Kind.String()
	}
}

// PrevKeys returns previous-frame instances covered by the event
func (e Event) PrevKeys() []InstanceKey {
	switch e.Kind {
	case Continuation, Division, Disappearance, MergeRecovery:
		return []InstanceKey{e.Prev}
	case MergeArtifact:
		return []InstanceKey{e.Prev, e.Lost}
	default:
		return nil
	}
}

// NextKeys returns next-frame instances covered by the event
func (e Event) NextKeys() []InstanceKey {
	switch e.Kind {
	case Continuation, MergeArtifact, Appearance:
		return []InstanceKey{e.Next}
	case Division, MergeRecovery:
		return []InstanceKey{e.Next, e.Second}
	default:
		return nil
	}
}

// Warning is a data-quality note produced while resolving a transition. It
// never fails the run.
type Warning struct {
	Frame   int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("frame %d: %s", w.Frame, w.Message)
}
