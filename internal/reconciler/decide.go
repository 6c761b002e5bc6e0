package reconciler

import "github.com/imrishuroy/marketplace-orderflow/internal/orders"

// StateAbsent stands for "no local record" in Decide.
const StateAbsent orders.State = ""

// Action is what the reconciler does for one notification.
type Action int

const (
	ActionIgnore Action = iota
	ActionCreate
	ActionUpdate
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionCancel:
		return "cancel"
	default:
		return "ignore"
	}
}

// Decide is the order transition table.
//
//	absent + paid                    -> create
//	absent + anything else           -> ignore
//	cancelled/other + anything       -> ignore
//	live + unknown or same state     -> ignore
//	live + cancelled                 -> cancel
//	live + other known state         -> update
//
// Live states are paid, pending and unknown.
func Decide(current, upstream orders.State) Action {
	if current == StateAbsent {
		if upstream == orders.StatePaid {
			return ActionCreate
		}
		return ActionIgnore
	}
	if current.Terminal() || upstream == orders.StateUnknown || upstream == current {
		return ActionIgnore
	}
	if upstream == orders.StateCancelled {
		return ActionCancel
	}
	return ActionUpdate
}
