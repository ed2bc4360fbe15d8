package maintenance

// RepoState is the opaque fingerprint of the checkout, e.g. a commit hash.
type RepoState string

// UpdateOutcome is the successful result of a self-update attempt.
type UpdateOutcome int

const (
	// Unchanged means the checkout fingerprint did not move.
	Unchanged UpdateOutcome = iota
	// Updated means new code was pulled and post-update steps ran.
	Updated
)

// String implements fmt.Stringer.
func (o UpdateOutcome) String() string {
	if o == Updated {
		return "updated"
	}

	return "unchanged"
}

// Phase is the orchestrator state for the lifetime of one process.
type Phase int

const (
	// PhaseBootstrap is the initial phase of a fresh top-level invocation.
	PhaseBootstrap Phase = iota
	// PhaseRunning is entered directly by a process re-executed after an update.
	PhaseRunning
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p == PhaseRunning {
		return "running"
	}

	return "bootstrap"
}

// PhaseFromMarker picks the phase from the presence of the re-exec marker.
func PhaseFromMarker(markerSet bool) Phase {
	if markerSet {
		return PhaseRunning
	}

	return PhaseBootstrap
}

// Action is what the orchestrator does next.
type Action int

const (
	// ActionRunTask runs the requested task and finishes the process.
	ActionRunTask Action = iota
	// ActionReexec replaces the process with a fresh copy in PhaseRunning.
	ActionReexec
)

// String implements fmt.Stringer.
func (a Action) String() string {
	if a == ActionReexec {
		return "reexec"
	}

	return "run-task"
}

// Next is the transition function of the orchestrator state machine.
// Only a bootstrap process that actually pulled new code re-executes, which
// bounds the chain to a single re-exec per external trigger.
func Next(phase Phase, outcome UpdateOutcome) Action {
	if phase == PhaseBootstrap && outcome == Updated {
		return ActionReexec
	}

	return ActionRunTask
}
