package core

import "time"

// =============================================================================
// Trap: the suspension request a task yields to the kernel
// =============================================================================

// TrapKind tags which blocking operation a task requested.
type TrapKind int

const (
	// TrapBlock waits on an arbitrary source until Kernel.Unblock.
	TrapBlock TrapKind = iota

	// TrapJoin waits for another task's completion.
	TrapJoin

	// TrapPoll waits for I/O readiness on a descriptor.
	TrapPoll

	// TrapSleep waits for a deadline (or forever).
	TrapSleep
)

func (k TrapKind) String() string {
	switch k {
	case TrapBlock:
		return "block"
	case TrapJoin:
		return "join"
	case TrapPoll:
		return "poll"
	case TrapSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// PollEvent selects which readiness a poll trap waits for.
type PollEvent int

const (
	PollRead PollEvent = iota
	PollWrite
)

// Trap is the value a suspending task hands to the kernel. Only the fields
// selected by Kind are meaningful.
type Trap struct {
	Kind TrapKind

	// TrapBlock
	Source    any
	PostBlock func()

	// TrapJoin
	Target *Task

	// TrapPoll
	FD    int
	Event PollEvent

	// TrapSleep
	Duration time.Duration
	Forever  bool
}

func blockTrap(source any, postBlock func()) *Trap {
	return &Trap{Kind: TrapBlock, Source: source, PostBlock: postBlock}
}

func joinTrap(target *Task) *Trap {
	return &Trap{Kind: TrapJoin, Target: target}
}

func pollTrap(fd int, event PollEvent) *Trap {
	return &Trap{Kind: TrapPoll, FD: fd, Event: event}
}

func sleepTrap(d time.Duration) *Trap {
	return &Trap{Kind: TrapSleep, Duration: d}
}

func sleepForeverTrap() *Trap {
	return &Trap{Kind: TrapSleep, Forever: true}
}
