package events

import (
	"math/big"

	"tokend/core/types"
)

const (
	// TypeTransfer is emitted for every balance movement, including recovery
	// sweeps.
	TypeTransfer = "token.transfer"
	// TypeApproval is emitted when an allowance is set directly or via permit.
	TypeApproval = "token.approval"
	// TypePermitUsed is emitted after a successful off-line-signed approval.
	TypePermitUsed = "permit.used"
	// TypeBlocklistUpdated is emitted when an account is added to or removed
	// from the blocklist.
	TypeBlocklistUpdated = "token.blocklist.updated"
	// TypeRolePending is emitted when a role holder nominates a successor.
	TypeRolePending = "token.role.pending"
	// TypeRoleClaimed is emitted when a nominated successor accepts a role.
	TypeRoleClaimed = "token.role.claimed"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":   addrString(e.From),
			"to":     addrString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type Approval struct {
	Owner   [20]byte
	Spender [20]byte
	Value   *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{
		Type: TypeApproval,
		Attributes: map[string]string{
			"owner":   addrString(e.Owner),
			"spender": addrString(e.Spender),
			"value":   formatAmount(e.Value),
		},
	}
}

type PermitUsed struct {
	Holder  [20]byte
	Spender [20]byte
	Value   *big.Int
	Nonce   uint64
}

func (PermitUsed) EventType() string { return TypePermitUsed }

func (e PermitUsed) Event() *types.Event {
	return &types.Event{
		Type: TypePermitUsed,
		Attributes: map[string]string{
			"holder":  addrString(e.Holder),
			"spender": addrString(e.Spender),
			"value":   formatAmount(e.Value),
			"nonce":   uintToString(e.Nonce),
		},
	}
}

type BlocklistUpdated struct {
	Account [20]byte
	Blocked bool
}

func (BlocklistUpdated) EventType() string { return TypeBlocklistUpdated }

func (e BlocklistUpdated) Event() *types.Event {
	blocked := "false"
	if e.Blocked {
		blocked = "true"
	}
	return &types.Event{
		Type: TypeBlocklistUpdated,
		Attributes: map[string]string{
			"account": addrString(e.Account),
			"blocked": blocked,
		},
	}
}

type RolePending struct {
	Role    string
	Current [20]byte
	Pending [20]byte
}

func (RolePending) EventType() string { return TypeRolePending }

func (e RolePending) Event() *types.Event {
	return &types.Event{
		Type: TypeRolePending,
		Attributes: map[string]string{
			"role":    e.Role,
			"current": addrString(e.Current),
			"pending": addrString(e.Pending),
		},
	}
}

type RoleClaimed struct {
	Role   string
	Holder [20]byte
}

func (RoleClaimed) EventType() string { return TypeRoleClaimed }

func (e RoleClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRoleClaimed,
		Attributes: map[string]string{
			"role":   e.Role,
			"holder": addrString(e.Holder),
		},
	}
}
