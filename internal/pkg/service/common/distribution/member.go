package distribution

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Member is a cluster participant.
// Liveness is not stored, a member exists while its registration is alive.
type Member struct {
	ID         string            `json:"id" validate:"required"`
	Address    string            `json:"address,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
}

const (
	MemberAdded MembershipEventType = iota
	MemberRemoved
	MemberAttributeChanged
)

type MembershipEventType int

// MembershipEvent is delivered once to each registered Observer.
// Attribute is set only for the MemberAttributeChanged event.
type MembershipEvent struct {
	Type      MembershipEventType
	Member    Member
	Attribute string
}

// Observer receives membership events, it must not block.
type Observer func(event MembershipEvent)

func (t MembershipEventType) String() string {
	switch t {
	case MemberAdded:
		return "added"
	case MemberRemoved:
		return "removed"
	case MemberAttributeChanged:
		return "attributeChanged"
	default:
		return "unknown"
	}
}

func (e MembershipEvent) String() string {
	switch e.Type {
	case MemberAdded:
		return fmt.Sprintf(`found a new node "%s"`, e.Member.ID)
	case MemberRemoved:
		return fmt.Sprintf(`the node "%s" gone`, e.Member.ID)
	default:
		return fmt.Sprintf(`the node "%s" attribute "%s" changed`, e.Member.ID, e.Attribute)
	}
}

func (m Member) Clone() Member {
	m.Attributes = maps.Clone(m.Attributes)
	return m
}

// changedAttributes returns sorted names of the added, modified and removed attributes.
func changedAttributes(old, current Member) (out []string) {
	for k, v := range current.Attributes {
		if oldValue, found := old.Attributes[k]; !found || oldValue != v {
			out = append(out, k)
		}
	}
	for k := range old.Attributes {
		if _, found := current.Attributes[k]; !found {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
