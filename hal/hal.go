// Package hal declares the interface to the hardware register-generation
// and submission layer, an external collaborator kept interface-only
// per spec.md §1: "no hardware register layouts".
package hal

import (
	"context"

	"github.com/Damenly/mpp/task"
)

// Collaborator is the hardware-side seam of spec.md §2.5.
type Collaborator interface {
	// RegGen builds the register program for t without submitting it
	// (spec.md §4 "reg_gen(task)").
	RegGen(ctx context.Context, t *task.HalDecTask) error

	// Start submits t to the hardware engine (spec.md §4 "start(task)").
	Start(ctx context.Context, t *task.HalDecTask) error

	// Wait blocks until t has completed on the hardware engine
	// (spec.md §4 "wait(task)", §5 "hardware wait, which is itself
	// treated as a blocking operation").
	Wait(ctx context.Context, t *task.HalDecTask) error

	// Flush and Reset forward the corresponding control-surface calls
	// (spec.md §6 "flush", §4.5d "hardware.reset()").
	Flush(ctx context.Context) error
	Reset(ctx context.Context) error

	// Control forwards an unrecognized control command verbatim.
	Control(ctx context.Context, name string, payload any) error
}
