package slot

import "strings"

// Flags is the reference-counted-like bitmask of reasons a slot is
// alive (spec.md §3, §4.1). Each bit is a distinct reason-to-live; a
// slot returns to the free pool only once every bit has been cleared.
type Flags uint32

const (
	// CodecReady means the slot's buffer has been fully written by the
	// codec side and is safe to read.
	CodecReady Flags = 1 << iota
	// HALInput means the slot is bound as input (a source packet, or a
	// reference frame) to at least one in-flight hardware task.
	HALInput
	// HALOutput means the slot is the decode target of an in-flight
	// hardware task.
	HALOutput
	// QueueUse means the slot is a member of at least one output queue
	// (e.g. awaiting display or post-processing).
	QueueUse
)

var allFlags = [...]struct {
	bit  Flags
	name string
}{
	{CodecReady, "CODEC_READY"},
	{HALInput, "HAL_INPUT"},
	{HALOutput, "HAL_OUTPUT"},
	{QueueUse, "QUEUE_USE"},
}

// Has reports whether bit is set in f.
func (f Flags) Has(bit Flags) bool {
	return f&bit != 0
}

// IsAlive reports whether any reason-to-live bit is set.
func (f Flags) IsAlive() bool {
	return f != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "<none>"
	}
	var names []string
	for _, e := range allFlags {
		if f.Has(e.bit) {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, "|")
}
