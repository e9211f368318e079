package device

// Event is an input to the device state machine.
type Event string

// State machine events.
const (
	// EventHeartbeat is a liveness report received from the device.
	EventHeartbeat Event = "heartbeat-received"

	// EventStaleTimeout is applied by the sweeper when no heartbeat has
	// arrived within the staleness timeout.
	EventStaleTimeout Event = "staleness-timeout-exceeded"

	// EventOperatorSet is an explicit administrator status override.
	EventOperatorSet Event = "operator-set-status"
)

// Transition computes the next status for a device given its current status
// and an incoming event. It is pure: persistence, cache refresh, and event
// fan-out are the caller's concern.
//
// The target parameter is only consulted for EventOperatorSet; other events
// ignore it.
//
// Rules:
//   - A heartbeat promotes offline to online and refreshes an online device.
//     It never moves a device out of maintenance or error: a device reporting
//     under load must not auto-clear an operator-declared fault.
//   - The staleness timeout only demotes online to offline.
//   - An operator override moves to any target state unconditionally. It is
//     the only way into or out of maintenance and error.
//
// The second return value reports whether the status actually changed, which
// drives status-changed event suppression under steady-state heartbeating.
func Transition(current Status, event Event, target Status) (Status, bool) {
	switch event {
	case EventHeartbeat:
		if current == StatusOffline {
			return StatusOnline, true
		}
		// online stays online (timestamps refresh); maintenance and error
		// are left untouched.
		return current, false

	case EventStaleTimeout:
		if current == StatusOnline {
			return StatusOffline, true
		}
		return current, false

	case EventOperatorSet:
		return target, target != current

	default:
		return current, false
	}
}
