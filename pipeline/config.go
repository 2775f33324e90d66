package pipeline

import "github.com/davecgh/go-spew/spew"

// Coding names the bitstream syntax the (external) parser collaborator
// understands. The concrete parsers are out of scope (spec.md §1); the
// core only needs the name to pick MJPEG's reset short-circuit
// (spec.md §4.5 "Reset is skipped entirely for MJPEG").
type Coding string

const (
	CodingH264  Coding = "h264"
	CodingH265  Coding = "h265"
	CodingVP9   Coding = "vp9"
	CodingMJPEG Coding = "mjpeg"
)

// Config is the cfg argument of spec.md §6 "init(cfg)".
type Config struct {
	Coding Coding

	// NeedSplit tells the parser collaborator that a single packet may
	// carry more than one access unit and must be split (spec.md §8
	// scenario 2).
	NeedSplit bool

	// FastMode adds a third task handle, allowing a second task to
	// start hardware before the first completes (spec.md §6, glossary
	// "Fast mode").
	FastMode bool

	// InternalPTS, when true, has the parser collaborator derive PTS
	// internally rather than trusting the packet's PTS field. Carried
	// through untouched to the parser collaborator's Control calls;
	// the scheduler itself does not interpret it.
	InternalPTS bool

	// PacketSlotCount and FrameSlotCount size the two BufferSlots
	// registries (spec.md §4.1). Zero uses sane defaults.
	PacketSlotCount int
	FrameSlotCount  int

	// DisplayQueueLimit is the tunable named in spec.md §9 ("The
	// display-list upper bound of four is empirical; treat as a
	// tunable"). Zero uses the spec's default of four.
	DisplayQueueLimit int

	// UsePresetTimeOrder seeds the set-present-time-order control
	// command at init time (spec.md §6).
	UsePresetTimeOrder bool

	// DisableError seeds the set-disable-error control command.
	DisableError bool

	// EnableDeinterlace seeds the set-enable-deinterlace control
	// command.
	EnableDeinterlace bool
}

const (
	defaultPacketSlotCount   = 8
	defaultFrameSlotCount    = 16
	defaultDisplayQueueLimit = 4
)

func (c Config) taskHandleCount() int {
	if c.FastMode {
		return 3
	}
	return 2
}

func (c Config) packetSlotCount() int {
	if c.PacketSlotCount > 0 {
		return c.PacketSlotCount
	}
	return defaultPacketSlotCount
}

func (c Config) frameSlotCount() int {
	if c.FrameSlotCount > 0 {
		return c.FrameSlotCount
	}
	return defaultFrameSlotCount
}

func (c Config) displayQueueLimit() int {
	if c.DisplayQueueLimit > 0 {
		return c.DisplayQueueLimit
	}
	return defaultDisplayQueueLimit
}

// String dumps the configuration for debug logging, grounded on the
// teacher's GapFillerConfig.String() (kernel/gap_filler.go), which
// uses spew.Sdump for the same purpose.
func (c Config) String() string {
	return spew.Sdump(c)
}

// isStateless reports whether the codec has no cross-packet decoder
// state to drain on reset (spec.md §4.5 "Reset is skipped entirely for
// MJPEG (stateless codec, no pipeline to drain)").
func (c Config) isStateless() bool {
	return c.Coding == CodingMJPEG
}
