package pipeline

import (
	"sync"

	"github.com/Damenly/mpp/frame"
	"github.com/Damenly/mpp/hal"
	"github.com/Damenly/mpp/packet"
	"github.com/Damenly/mpp/parser"
	"github.com/Damenly/mpp/postproc"
	"github.com/Damenly/mpp/slot"
	"github.com/Damenly/mpp/task"
	"github.com/Damenly/mpp/tsqueue"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// shared holds everything both stages reach into, plus the lock
// protecting the state spec.md §5 calls out as shared mutables:
// BufferSlots, TaskGroup, the in-flight DecTask, the held input
// packet, and the reset handshake flags.
//
// spec.md §5 describes two locks per stage (work, control). This
// implementation collapses that to one mutex shared by three
// condition variables (parserWork, hardwareWork, control) bound to
// it, a standard Go pattern for multiple wait conditions over one
// critical section. It preserves every invariant §5 lists — BufferSlots
// and TaskGroup access under "the enclosing stage's lock", the fixed
// acquisition order, "never nested across stages" — trivially, since
// there is only one lock to order or nest. See DESIGN.md.
type shared struct {
	id  uuid.UUID
	cfg Config

	parser   parser.Collaborator
	hardware hal.Collaborator
	postproc postproc.Collaborator // nil until set-enable-deinterlace fires

	tsq     *tsqueue.Queue // own leaf lock
	display *DisplayPath   // own leaf lock

	inputQueue chan *packet.Packet

	disableError    atomic.Bool
	presetTimeOrder atomic.Bool
	deinterlace     atomic.Bool

	// warnedAdvancedNoBuffer latches the SPEC_FULL.md §4.6 diagnostic so
	// it is only logged once per decoder instance.
	warnedAdvancedNoBuffer atomic.Bool

	// warnedNoPostproc latches the "deinterlacing enabled but no
	// post-processor collaborator was configured" diagnostic.
	warnedNoPostproc atomic.Bool

	mu sync.Mutex

	parserWork   *sync.Cond
	hardwareWork *sync.Cond
	control      *sync.Cond

	packetSlots *slot.Registry
	frameSlots  *slot.Registry
	tasks       *task.Group

	cur task.DecTask // the parser stage's single in-flight DecTask (spec.md §3 "Lifecycle")

	// prevWaitDone/prevHandle back the fast-mode previous-task gate of
	// spec.md §4.3 step 7: "wait only when wait_done was latched on the
	// previous submission and the PROCESSING queue has not fully
	// drained".
	prevWaitDone bool

	resetRequested bool
	resetAck       bool

	closed atomic.Bool
}

func newShared(cfg Config, p parser.Collaborator, h hal.Collaborator, inputQueue chan *packet.Packet, outputQueue chan *frame.Frame) *shared {
	sh := &shared{
		id:          uuid.New(),
		cfg:         cfg,
		parser:      p,
		hardware:    h,
		tsq:         tsqueue.New(),
		display:     newDisplayPath(cfg.displayQueueLimit(), outputQueue),
		inputQueue:  inputQueue,
		packetSlots: slot.NewRegistry("packet", cfg.packetSlotCount()),
		frameSlots:  slot.NewRegistry("frame", cfg.frameSlotCount()),
		tasks:       task.NewGroup(cfg.taskHandleCount()),
	}
	sh.parserWork = sync.NewCond(&sh.mu)
	sh.hardwareWork = sync.NewCond(&sh.mu)
	sh.control = sync.NewCond(&sh.mu)
	sh.disableError.Store(cfg.DisableError)
	sh.presetTimeOrder.Store(cfg.UsePresetTimeOrder)
	sh.deinterlace.Store(cfg.EnableDeinterlace)
	return sh
}

// heldPacket narrows cur.Packet back to its concrete type. Callers must
// hold sh.mu.
func (sh *shared) heldPacket() *packet.Packet {
	p, _ := sh.cur.Packet.(*packet.Packet)
	return p
}

// wakeAll broadcasts on every condition variable, used after a state
// change that could unblock either stage or the reset handshake
// (spec.md §4.4 step 5 "Signal parser after every state change").
func (sh *shared) wakeAll() {
	sh.parserWork.Broadcast()
	sh.hardwareWork.Broadcast()
	sh.control.Broadcast()
}
