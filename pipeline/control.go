package pipeline

import "fmt"

// ControlCommand is the closed sum type behind spec.md §6's "Control
// commands (recognized)" list, plus a catch-all Other case for
// forwarding (SPEC_FULL.md §4.8).
type ControlCommand struct {
	kind    controlKind
	name    string
	payload any
}

type controlKind int

const (
	controlSetFrameInfo controlKind = iota
	controlGetVPUMemUsedCount
	controlSetDisableError
	controlSetPresentTimeOrder
	controlSetEnableDeinterlace
	controlOther
)

// SetFrameInfoCmd seeds slot geometry from a frame descriptor
// (spec.md §6).
func SetFrameInfoCmd(width, height int) ControlCommand {
	return ControlCommand{kind: controlSetFrameInfo, payload: [2]int{width, height}}
}

// GetVPUMemUsedCountCmd queries the live frame-slot count into out
// (spec.md §6, SPEC_FULL.md §9).
func GetVPUMemUsedCountCmd(out *int) ControlCommand {
	return ControlCommand{kind: controlGetVPUMemUsedCount, payload: out}
}

// SetDisableErrorCmd suppresses error/discard flags on output frames
// (spec.md §6, §4.7).
func SetDisableErrorCmd(v bool) ControlCommand {
	return ControlCommand{kind: controlSetDisableError, payload: v}
}

// SetPresentTimeOrderCmd enables PTS reordering via the TimestampQueue
// (spec.md §6).
func SetPresentTimeOrderCmd(v bool) ControlCommand {
	return ControlCommand{kind: controlSetPresentTimeOrder, payload: v}
}

// SetEnableDeinterlaceCmd enables the lazy post-processor
// (spec.md §6).
func SetEnableDeinterlaceCmd(v bool) ControlCommand {
	return ControlCommand{kind: controlSetEnableDeinterlace, payload: v}
}

// OtherCmd forwards an unrecognized command verbatim to both
// collaborators (spec.md §6 "Unknown commands are forwarded to parser
// and hardware collaborators and otherwise ignored").
func OtherCmd(name string, payload any) ControlCommand {
	return ControlCommand{kind: controlOther, name: name, payload: payload}
}

func (c ControlCommand) String() string {
	switch c.kind {
	case controlSetFrameInfo:
		return "set-frame-info"
	case controlGetVPUMemUsedCount:
		return "get-vpu-mem-used-count"
	case controlSetDisableError:
		return "set-disable-error"
	case controlSetPresentTimeOrder:
		return "set-present-time-order"
	case controlSetEnableDeinterlace:
		return "set-enable-deinterlace"
	case controlOther:
		return fmt.Sprintf("other(%s)", c.name)
	default:
		return fmt.Sprintf("<unknown control kind %d>", int(c.kind))
	}
}
