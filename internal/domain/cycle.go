package domain

// CycleStatus is the lifecycle state of a single store query cycle.
type CycleStatus int

const (
	CyclePending CycleStatus = iota
	CycleCompleted
	CycleSuperseded
)

func (s CycleStatus) String() string {
	switch s {
	case CyclePending:
		return "pending"
	case CycleCompleted:
		return "completed"
	case CycleSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Represents one run of the store resolution pipeline for a reference position.
// Generation is assigned by the owning controller and increases monotonically.
type QueryCycle struct {
	Generation uint64
	Reference  Position
	Status     CycleStatus
}
