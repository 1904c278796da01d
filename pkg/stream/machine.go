package stream

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// Session states.
const (
	StateIdle     = "idle"     // no capture session
	StateReady    = "ready"    // running, free to capture
	StateAwaiting = "awaiting" // running, one frame in flight
)

// Session events.
const (
	evStart   = "start"
	evSend    = "send"
	evResolve = "resolve"
	evStop    = "stop"
)

func newMachine(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evStart, Src: []string{StateIdle}, Dst: StateReady},
			{Name: evSend, Src: []string{StateReady}, Dst: StateAwaiting},
			{Name: evResolve, Src: []string{StateAwaiting}, Dst: StateReady},
			{Name: evStop, Src: []string{StateReady, StateAwaiting}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("state change", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
}

// fire applies event if the current state allows it. The transition
// happens even when ctx is already cancelled, as on loop shutdown.
func fire(ctx context.Context, m *fsm.FSM, event string) bool {
	if !m.Can(event) {
		return false
	}
	return m.Event(context.WithoutCancel(ctx), event) == nil
}
