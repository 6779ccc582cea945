package token

// BlocklistView is the membership predicate the gate consumes. The core never
// mutates the restriction list through this interface.
type BlocklistView interface {
	IsBlocked(addr [20]byte) (bool, error)
}

// AccessGate interposes on every balance-mutating path. Each checkpoint is a
// side-effect-free predicate; a failure aborts the enclosing operation before
// any state is touched.
type AccessGate struct {
	blocklist BlocklistView
}

// NewAccessGate constructs a gate over the supplied blocklist view.
func NewAccessGate(blocklist BlocklistView) *AccessGate {
	return &AccessGate{blocklist: blocklist}
}

// BeforeTransfer rejects transfers whose sender or receiver is blocked.
func (g *AccessGate) BeforeTransfer(from, to [20]byte) error {
	if g == nil || g.blocklist == nil {
		return ErrNilState
	}
	blocked, err := g.blocklist.IsBlocked(from)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedSender
	}
	blocked, err = g.blocklist.IsBlocked(to)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedReceiver
	}
	return nil
}

// BeforeApprove rejects approvals whose owner or spender is blocked.
func (g *AccessGate) BeforeApprove(owner, spender [20]byte) error {
	if g == nil || g.blocklist == nil {
		return ErrNilState
	}
	blocked, err := g.blocklist.IsBlocked(owner)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedOwner
	}
	blocked, err = g.blocklist.IsBlocked(spender)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedSpender
	}
	return nil
}

// BeforeSpendAllowance rejects allowance spends by a blocked spender. The owner
// is deliberately not re-checked on this path; the transfer checkpoint covers
// the funds themselves.
func (g *AccessGate) BeforeSpendAllowance(spender [20]byte) error {
	if g == nil || g.blocklist == nil {
		return ErrNilState
	}
	blocked, err := g.blocklist.IsBlocked(spender)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedSpender
	}
	return nil
}
