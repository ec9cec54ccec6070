package distribution

import (
	"strings"
)

const (
	EventNodeAdded EventType = iota
	EventNodeRemoved
	EventNodeChanged
)

// Event describes a distribution change - a change in the list of nodes or in a node attribute.
type Event struct {
	Type    EventType
	NodeID  string
	Message string
}

type EventType int

type Events []Event

func newEvent(e MembershipEvent) Event {
	out := Event{NodeID: e.Member.ID, Message: e.String()}
	switch e.Type {
	case MemberAdded:
		out.Type = EventNodeAdded
	case MemberRemoved:
		out.Type = EventNodeRemoved
	default:
		out.Type = EventNodeChanged
	}
	return out
}

// Messages converts events to a string for logging purposes.
func (v Events) Messages() string {
	var out strings.Builder
	last := len(v) - 1
	for i, e := range v {
		out.WriteString(e.Message)
		if i != last {
			out.WriteString("; ")
		}
	}
	return out.String()
}
