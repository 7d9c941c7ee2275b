package printing

// Stage represents where a print workflow is in its single-shot
// sequence. A job moves idle -> rendering -> printing -> complete;
// failed is reachable from rendering and printing.
type Stage string

const (
	StageIdle      Stage = "IDLE"
	StageRendering Stage = "RENDERING"
	StagePrinting  Stage = "PRINTING"
	StageComplete  Stage = "COMPLETE"
	StageFailed    Stage = "FAILED"
)

// IsValid checks if the Stage is a valid value
func (s Stage) IsValid() bool {
	switch s {
	case StageIdle, StageRendering, StagePrinting, StageComplete, StageFailed:
		return true
	}
	return false
}

// String returns the string representation of Stage
func (s Stage) String() string {
	return string(s)
}

// IsTerminal returns true if this is a terminal stage (no further transitions)
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// CanTransitionTo checks if the stage can transition to the target stage
func (s Stage) CanTransitionTo(target Stage) bool {
	switch s {
	case StageIdle:
		return target == StageRendering
	case StageRendering:
		return target == StagePrinting || target == StageFailed
	case StagePrinting:
		return target == StageComplete || target == StageFailed
	case StageComplete, StageFailed:
		return false
	default:
		return false
	}
}
