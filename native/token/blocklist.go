package token

import (
	"tokend/core/events"
)

// BlocklistState is the persistence surface for the restriction list.
type BlocklistState interface {
	IsBlocked(addr [20]byte) (bool, error)
	SetBlocked(addr [20]byte, blocked bool) error
}

// Blocklist administers the restriction list. The core engines only consume
// the membership query; mutation is gated on the blocklist-admin role.
type Blocklist struct {
	state   BlocklistState
	roles   *Roles
	emitter events.Emitter
}

// NewBlocklist creates a blocklist administrator with a no-op emitter.
func NewBlocklist(roles *Roles) *Blocklist {
	return &Blocklist{roles: roles, emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend.
func (b *Blocklist) SetState(state BlocklistState) { b.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (b *Blocklist) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// IsBlocked reports restriction-list membership.
func (b *Blocklist) IsBlocked(addr [20]byte) (bool, error) {
	if b == nil || b.state == nil {
		return false, ErrNilState
	}
	return b.state.IsBlocked(addr)
}

// SetBlocked adds or removes the account from the restriction list. Callable
// by the blocklist admin or the system owner.
func (b *Blocklist) SetBlocked(caller, account [20]byte, blocked bool) error {
	if b == nil || b.state == nil {
		return ErrNilState
	}
	if err := b.roles.Authorize(caller, RoleBlocklistAdmin); err != nil {
		return err
	}
	current, err := b.state.IsBlocked(account)
	if err != nil {
		return err
	}
	if current == blocked {
		return nil
	}
	if err := b.state.SetBlocked(account, blocked); err != nil {
		return err
	}
	b.emitter.Emit(events.BlocklistUpdated{Account: account, Blocked: blocked})
	return nil
}
