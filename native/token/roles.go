package token

import (
	"tokend/core/events"
)

// Auxiliary role names. The system owner always authorizes alongside the
// current holder.
const (
	RoleRecoveryAdmin  = "recoveryAdmin"
	RoleBlocklistAdmin = "blocklistAdmin"
)

// Role is the persisted record for a claimable privilege: the current holder
// plus an optional nominated successor.
type Role struct {
	Holder     [20]byte
	Pending    [20]byte
	HasPending bool
}

// RoleState is the persistence surface for role records.
type RoleState interface {
	RoleGet(name string) (Role, bool, error)
	RolePut(name string, role Role) error
}

// Roles implements two-step transfer of auxiliary privileges: the holder (or
// the owner) nominates a successor, and the successor must claim before the
// privilege moves.
type Roles struct {
	state   RoleState
	owner   [20]byte
	emitter events.Emitter
}

// NewRoles creates a role registry with a no-op emitter.
func NewRoles() *Roles {
	return &Roles{emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend.
func (r *Roles) SetState(state RoleState) { r.state = state }

// SetOwner fixes the system owner identity. Initialized once at bootstrap from
// the configuration record.
func (r *Roles) SetOwner(owner [20]byte) { r.owner = owner }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Roles) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Owner returns the system owner address.
func (r *Roles) Owner() [20]byte { return r.owner }

func knownRole(name string) bool {
	switch name {
	case RoleRecoveryAdmin, RoleBlocklistAdmin:
		return true
	default:
		return false
	}
}

// Holder returns the current holder of the named role. An unset role defaults
// to the system owner.
func (r *Roles) Holder(name string) ([20]byte, error) {
	if r == nil || r.state == nil {
		return [20]byte{}, ErrNilState
	}
	if !knownRole(name) {
		return [20]byte{}, ErrUnknownRole
	}
	role, ok, err := r.state.RoleGet(name)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return r.owner, nil
	}
	return role.Holder, nil
}

// Authorize reports whether caller may exercise the named role. The system
// owner is always authorized.
func (r *Roles) Authorize(caller [20]byte, name string) error {
	holder, err := r.Holder(name)
	if err != nil {
		return err
	}
	if caller == holder || caller == r.owner {
		return nil
	}
	return ErrUnauthorized
}

// Transfer nominates a successor for the role. Only the current holder or the
// owner may nominate; the privilege does not move until the successor claims.
func (r *Roles) Transfer(caller [20]byte, name string, pending [20]byte) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if !knownRole(name) {
		return ErrUnknownRole
	}
	if err := r.Authorize(caller, name); err != nil {
		return err
	}
	holder, err := r.Holder(name)
	if err != nil {
		return err
	}
	if err := r.state.RolePut(name, Role{Holder: holder, Pending: pending, HasPending: true}); err != nil {
		return err
	}
	r.emitter.Emit(events.RolePending{Role: name, Current: holder, Pending: pending})
	return nil
}

// Claim completes a two-step transfer. Only the nominated successor may claim.
func (r *Roles) Claim(caller [20]byte, name string) error {
	if r == nil || r.state == nil {
		return ErrNilState
	}
	if !knownRole(name) {
		return ErrUnknownRole
	}
	role, ok, err := r.state.RoleGet(name)
	if err != nil {
		return err
	}
	if !ok || !role.HasPending {
		return ErrNoPendingRole
	}
	if caller != role.Pending {
		return ErrUnauthorized
	}
	if err := r.state.RolePut(name, Role{Holder: caller}); err != nil {
		return err
	}
	r.emitter.Emit(events.RoleClaimed{Role: name, Holder: caller})
	return nil
}
