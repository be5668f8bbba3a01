package qos

import "github.com/Gowtham2005-2005/RL-Based-QoS-Allocation/pkg/config"

// Action is one of the discrete QoS policies the controller can apply.
// Actions are categorical; their numeric order carries no meaning.
type Action int

const (
	ActionWorkPriority Action = iota
	ActionBalanced
	ActionEntertainPriority
)

// NumActions is the size of the discrete action space
const NumActions = 3

func (a Action) String() string {
	switch a {
	case ActionWorkPriority:
		return "WORK_PRIORITY"
	case ActionBalanced:
		return "BALANCED"
	case ActionEntertainPriority:
		return "ENTERTAINMENT_PRIORITY"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether a is a member of the action set
func (a Action) Valid() bool {
	return a >= 0 && a < NumActions
}

// QueueAssignment holds the queue ids an action maps each class to
type QueueAssignment struct {
	WorkQueue      int
	EntertainQueue int
}

// QueueMapping is the static action to queue-assignment table. It is built
// once from configuration and immutable afterwards.
type QueueMapping map[Action]QueueAssignment

// NewQueueMapping builds the mapping table from configuration
func NewQueueMapping(cfg config.QueueMapping) QueueMapping {
	return QueueMapping{
		ActionWorkPriority:      {WorkQueue: cfg.WorkPriority.Work, EntertainQueue: cfg.WorkPriority.Entertain},
		ActionBalanced:          {WorkQueue: cfg.Balanced.Work, EntertainQueue: cfg.Balanced.Entertain},
		ActionEntertainPriority: {WorkQueue: cfg.EntertainPriority.Work, EntertainQueue: cfg.EntertainPriority.Entertain},
	}
}
