package pipeline

import "context"

// NotifyInfo is the payload delivered to the shared notify callback
// (spec.md §6 "Notify callbacks").
type NotifyInfo struct {
	Source  string
	Payload any
}

// NotifyFunc is the callback shape both collaborators receive
// (spec.md §6 "parser and hardware both receive a callback with
// (ctx, info)").
type NotifyFunc func(ctx context.Context, info NotifyInfo)

// notify is the core's own callback registered with both
// collaborators at init time: it interprets nothing and simply wakes
// both stages, since any state a collaborator's notification concerns
// itself is read cooperatively on the next scheduler turn (spec.md §6
// "The core exposes one such callback that merely wakes its own
// stages").
func (sh *shared) notify(ctx context.Context, info NotifyInfo) {
	sh.mu.Lock()
	sh.wakeAll()
	sh.mu.Unlock()
}
