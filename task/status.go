package task

import "fmt"

// HandleStatus is the state of one TaskGroup ring slot (spec.md §2,
// glossary "Task handle"): IDLE -> PROCESSING -> PROC_DONE -> IDLE.
type HandleStatus int

const (
	Idle HandleStatus = iota
	Processing
	ProcDone
)

func (s HandleStatus) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Processing:
		return "PROCESSING"
	case ProcDone:
		return "PROC_DONE"
	default:
		return fmt.Sprintf("<unknown:%d>", int(s))
	}
}
