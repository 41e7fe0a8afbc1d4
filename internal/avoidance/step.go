package avoidance

import "fmt"

// Action is the controller action decided for a cycle
type Action int

const (
	NoAction      Action = iota
	ActionHalt           // take control and stop
	ActionRelease        // release control
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "none"
	case ActionHalt:
		return "halt"
	case ActionRelease:
		return "release"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Step is the hysteresis latch. It returns ActionHalt on the first blocked
// observation while control is free and ActionRelease on the first clear
// observation while control is asserted. Any other combination, including a
// latch already held by someone else at startup, yields NoAction and leaves
// the latch unchanged.
func Step(current Observation, wasAsserted bool) (Action, bool) {
	switch {
	case !current.IsClear && !wasAsserted:
		return ActionHalt, true
	case current.IsClear && wasAsserted:
		return ActionRelease, false
	}
	return NoAction, wasAsserted
}
