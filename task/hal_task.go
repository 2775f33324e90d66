package task

import "fmt"

// MaxRefSlots bounds the number of reference-frame slots a single hal
// task may bind, matching the fixed-size "up to N reference slot
// indices" of spec.md §3. H.264/H.265 in practice need very few
// simultaneous references for a single decode task; 16 covers every
// profile the out-of-scope bitstream parsers are expected to target.
const MaxRefSlots = 16

// HalDecTaskFlags is the flag set carried by HalDecTask (spec.md §3).
type HalDecTaskFlags struct {
	EOS        bool
	InfoChange bool
	HadError   bool
	UsedForRef bool
	WaitDone   bool
}

// HalDecTask is the payload submitted to the hardware collaborator
// (spec.md §3): one input slot, one output slot, and the set of
// reference slots the decode depends on.
type HalDecTask struct {
	InputSlot  int
	OutputSlot int
	RefSlots   []int
	Flags      HalDecTaskFlags

	// Valid is false for a task that never accumulated a real access
	// unit (e.g. a beacon carrying only EOS/InfoChange).
	Valid bool
}

// IsBeacon reports whether this task exists purely to carry a protocol
// event through the pipeline rather than decoded image data (spec.md
// glossary "Beacon task").
func (t *HalDecTask) IsBeacon() bool {
	return t != nil && !t.Valid && (t.Flags.EOS || t.Flags.InfoChange)
}

func (t *HalDecTask) String() string {
	if t == nil {
		return "HalDecTask(<nil>)"
	}
	return fmt.Sprintf(
		"HalDecTask(in=%d out=%d refs=%v valid=%t eos=%t info_change=%t err=%t used_for_ref=%t wait_done=%t)",
		t.InputSlot, t.OutputSlot, t.RefSlots, t.Valid,
		t.Flags.EOS, t.Flags.InfoChange, t.Flags.HadError, t.Flags.UsedForRef, t.Flags.WaitDone,
	)
}
