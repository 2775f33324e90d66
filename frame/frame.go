// Package frame defines the decoded-image descriptor the pipeline emits
// on its output path. A Frame owns neither pixel memory nor its slot;
// the slot in package slot owns those (spec.md §3).
package frame

import (
	"fmt"
	"sync"
)

// PixelFormat is a codec-agnostic placeholder for the pixel layout of a
// decoded frame. The concrete bitstream parser is an external
// collaborator (spec.md §1); this package only needs to carry the
// value through, not interpret it.
type PixelFormat int

// InterlaceMode describes whether a frame is progressive or one field
// of an interlaced picture.
type InterlaceMode int

const (
	InterlaceNone InterlaceMode = iota
	InterlaceTopFieldFirst
	InterlaceBottomFieldFirst
)

func (m InterlaceMode) String() string {
	switch m {
	case InterlaceNone:
		return "progressive"
	case InterlaceTopFieldFirst:
		return "top-field-first"
	case InterlaceBottomFieldFirst:
		return "bottom-field-first"
	default:
		return fmt.Sprintf("<unknown:%d>", int(m))
	}
}

// Frame is the decoded image descriptor of spec.md §3.
type Frame struct {
	Width            int
	Height           int
	StrideHorizontal int
	StrideVertical   int
	PixelFormat      PixelFormat

	PTS int64
	DTS int64

	Interlace InterlaceMode

	ErrInfo    bool
	Discard    bool
	EOS        bool
	InfoChange bool
}

// Clone returns a deep copy suitable for appending to the output frame
// list independently of the slot it was read from (spec.md §4.7 "deep
// copying and appending to the output frame list").
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

func (f *Frame) String() string {
	if f == nil {
		return "Frame(<nil>)"
	}
	return fmt.Sprintf(
		"Frame(%dx%d/%dx%d %s pts=%d dts=%d interlace=%s eos=%t info_change=%t err=%t discard=%t)",
		f.Width, f.Height, f.StrideHorizontal, f.StrideVertical, f.formatName(),
		f.PTS, f.DTS, f.Interlace, f.EOS, f.InfoChange, f.ErrInfo, f.Discard,
	)
}

func (f *Frame) formatName() string {
	return fmt.Sprintf("pixfmt(%d)", int(f.PixelFormat))
}

// Pool recycles Frame structs, grounded on the teacher's frame.Pool
// (codec/decoder_locked.go's Drain uses frame.Pool.Get()/Put() to avoid
// an allocation per decoded frame on the hot path).
var Pool = pool{Pool: &sync.Pool{New: func() any { return &Frame{} }}}

type pool struct {
	*sync.Pool
}

func (p pool) Get() *Frame {
	return p.Pool.Get().(*Frame)
}

func (p pool) Put(f *Frame) {
	if f == nil {
		return
	}
	*f = Frame{}
	p.Pool.Put(f)
}
