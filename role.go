package standby

import "fmt"

// Role is a server node's place in the replication scheme. It has exactly one
// transition:
// Standby → Active
//
// There is no demotion. A node that has become active stays active for the
// rest of its lifetime.
type Role string

const (
	// RoleStandby replicates the active node's board and probes its liveness.
	RoleStandby Role = "standby"
	// RoleActive accepts client moves and fans state out to standbys.
	RoleActive Role = "active"
)

var validTransitions = map[Role][]Role{
	RoleStandby: {
		RoleActive,
	},
	RoleActive: {},
}

func (r Role) valid() bool {
	_, ok := validTransitions[r]
	return ok
}

func (r *Role) canTransitionTo(role Role) error {
	for _, target := range validTransitions[*r] {
		if target == role {
			return nil
		}
	}
	return fmt.Errorf("unable to transition from %s to %s", *r, role)
}

func (r *Role) transitionTo(role Role) error {
	if err := r.canTransitionTo(role); err != nil {
		return err
	}
	*r = role
	return nil
}
