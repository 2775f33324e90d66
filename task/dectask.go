package task

import "strings"

// StepStatus is the per-DecTask accumulation bitfield of spec.md §3:
// each bit marks one scheduling step (spec.md §4.3) as already done,
// so a turn of the parser loop can resume exactly where the previous
// turn left off instead of redoing completed work.
type StepStatus uint16

const (
	StatusHandleAcquired StepStatus = 1 << iota
	StatusPacketAvailable
	StatusPacketIndexAllocated
	StatusPacketBufferAllocated
	StatusPayloadCopied
	StatusParseValid
	StatusPreviousTaskRetired
	StatusInfoTaskGenerated
	StatusParseComplete
)

var stepStatusNames = [...]struct {
	bit  StepStatus
	name string
}{
	{StatusHandleAcquired, "handle_acquired"},
	{StatusPacketAvailable, "packet_available"},
	{StatusPacketIndexAllocated, "packet_index_allocated"},
	{StatusPacketBufferAllocated, "packet_buffer_allocated"},
	{StatusPayloadCopied, "payload_copied"},
	{StatusParseValid, "parse_valid"},
	{StatusPreviousTaskRetired, "previous_task_retired"},
	{StatusInfoTaskGenerated, "info_task_generated"},
	{StatusParseComplete, "parse_complete"},
}

func (s StepStatus) Has(bit StepStatus) bool { return s&bit != 0 }

func (s StepStatus) String() string {
	var names []string
	for _, e := range stepStatusNames {
		if s.Has(e.bit) {
			names = append(names, e.name)
		}
	}
	if len(names) == 0 {
		return "<none>"
	}
	return strings.Join(names, "|")
}

// WaitReason is the "blocking reasons" bitfield mirroring StepStatus
// (spec.md §3, §4.3, §9): each bit names a precondition another stage
// can satisfy, and the parser sleeps only when every bit is clear.
type WaitReason uint16

const (
	WaitTaskHandle WaitReason = 1 << iota
	WaitInputPacket
	WaitPacketIndex
	WaitPacketBuffer
	WaitPreviousTask
	WaitDisplayQueueFull
	WaitBufferPoolFull
	WaitFrameSlot
	WaitInfoChange
)

var waitReasonNames = [...]struct {
	bit  WaitReason
	name string
}{
	{WaitTaskHandle, "task_hnd"},
	{WaitInputPacket, "input_packet"},
	{WaitPacketIndex, "dec_pkt_idx"},
	{WaitPacketBuffer, "dec_pkt_buf"},
	{WaitPreviousTask, "dec_all_done"},
	{WaitDisplayQueueFull, "dis_que_full"},
	{WaitBufferPoolFull, "buf_full"},
	{WaitFrameSlot, "frame_slot"},
	{WaitInfoChange, "info_change"},
}

func (w WaitReason) Has(bit WaitReason) bool { return w&bit != 0 }
func (w WaitReason) None() bool              { return w == 0 }

func (w WaitReason) String() string {
	var names []string
	for _, e := range waitReasonNames {
		if w.Has(e.bit) {
			names = append(names, e.name)
		}
	}
	if len(names) == 0 {
		return "<none>"
	}
	return strings.Join(names, "|")
}

// DecTask is the in-flight scheduling record of spec.md §3: it
// accumulates StepStatus/WaitReason bits across multiple ParserStage
// turns until it is submitted, at which point a fresh DecTask replaces
// it (spec.md "Lifecycle").
type DecTask struct {
	Handle *Handle
	Status StepStatus
	Wait   WaitReason
	Hal    HalDecTask

	// Packet is the input packet currently held while this DecTask is
	// being assembled (spec.md §4.3 step 2). Declared as `any` here to
	// avoid an import cycle with package packet; pipeline narrows it.
	Packet any
}

// Reset clears a DecTask back to its just-born state, ready to reuse
// the struct for the next access unit (spec.md "begin a fresh
// DecTask").
func (t *DecTask) Reset() {
	handle := t.Handle
	*t = DecTask{Handle: handle}
}
