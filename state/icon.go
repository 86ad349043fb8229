package state

// IconType selects the icon a presentation layer shows for a node.
type IconType string

const (
	IconPending            IconType = "pending"
	IconPendingAutorun     IconType = "pendingAutorun"
	IconScheduled          IconType = "scheduled"
	IconRunning            IconType = "running"
	IconRunningFailed      IconType = "runningFailed"
	IconPassed             IconType = "passed"
	IconPassedAutorun      IconType = "passedAutorun"
	IconFailed             IconType = "failed"
	IconFailedAutorun      IconType = "failedAutorun"
	IconSkipped            IconType = "skipped"
	IconPassedFaint        IconType = "passedFaint"
	IconPassedFaintAutorun IconType = "passedFaintAutorun"
	IconFailedFaint        IconType = "failedFaint"
	IconFailedFaintAutorun IconType = "failedFaintAutorun"
	IconDuplicate          IconType = "duplicate"
	IconErrored            IconType = "errored"
	IconErroredFaint       IconType = "erroredFaint"
)

// Icon picks the icon for s. A pending node shows a faint version of its
// previous result.
func Icon(s NodeState) IconType {
	switch s.Current {
	case Scheduled:
		return IconScheduled
	case Running:
		return IconRunning
	case RunningFailed:
		return IconRunningFailed
	case Passed:
		if s.Autorun {
			return IconPassedAutorun
		}
		return IconPassed
	case Failed:
		if s.Autorun {
			return IconFailedAutorun
		}
		return IconFailed
	case Skipped, AlwaysSkipped:
		return IconSkipped
	case Duplicate:
		return IconDuplicate
	case Errored:
		return IconErrored
	}

	switch s.Previous {
	case PrevPassed:
		if s.Autorun {
			return IconPassedFaintAutorun
		}
		return IconPassedFaint
	case PrevFailed:
		if s.Autorun {
			return IconFailedFaintAutorun
		}
		return IconFailedFaint
	case PrevSkipped, PrevAlwaysSkipped:
		return IconSkipped
	case PrevDuplicate:
		return IconDuplicate
	case PrevErrored:
		return IconErroredFaint
	}

	if s.Autorun {
		return IconPendingAutorun
	}
	return IconPending
}
