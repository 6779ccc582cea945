package token

import (
	"math/big"

	"tokend/core/events"
	"tokend/core/types"
)

// State is the narrow persistence surface the ledger requires.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
	Allowance(owner, spender [20]byte) (*big.Int, error)
	SetAllowance(owner, spender [20]byte, value *big.Int) error
	IsBlocked(addr [20]byte) (bool, error)
	TotalSupply() (*big.Int, error)
	SetTotalSupply(supply *big.Int) error
}

// Ledger owns balance, allowance, and supply bookkeeping. Every mutation passes
// through the access gate before any state is touched.
type Ledger struct {
	state     State
	gate      *AccessGate
	emitter   events.Emitter
	notifiers *NotifierRegistry
}

// NewLedger creates a ledger with a no-op emitter and an empty notifier
// registry. Callers wire state via SetState.
func NewLedger() *Ledger {
	return &Ledger{
		emitter:   events.NoopEmitter{},
		notifiers: NewNotifierRegistry(),
	}
}

// SetState configures the state backend and rebuilds the access gate over it.
func (l *Ledger) SetState(state State) {
	l.state = state
	l.gate = NewAccessGate(state)
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Gate exposes the access gate so sibling engines share the same checkpoints.
func (l *Ledger) Gate() *AccessGate { return l.gate }

// Notifiers exposes the transfer notifier registry.
func (l *Ledger) Notifiers() *NotifierRegistry { return l.notifiers }

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// BalanceOf returns the current balance of the address.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// AllowanceOf returns the allowance owner has granted spender.
func (l *Ledger) AllowanceOf(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.state.Allowance(owner, spender)
}

// TotalSupply returns the live token supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	return l.state.TotalSupply()
}

// Transfer moves amount from one account to another. The access gate runs
// first; balances mutate only after every check passes. Registered notifiers
// run last, after all state updates.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := l.TransferWithoutNotify(from, to, amount); err != nil {
		return err
	}
	return l.notifiers.Notify(from, to, amount, nil)
}

// TransferWithoutNotify moves funds through the gate but leaves receiver
// notification to the caller. Batch operations use it to notify once, after
// the whole batch has been applied.
func (l *Ledger) TransferWithoutNotify(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.gate.BeforeTransfer(from, to); err != nil {
		return err
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// NotifyReceiver invokes the notifier registered for the receiver, if any.
// Callers must only invoke this after all internal state has been updated.
func (l *Ledger) NotifyReceiver(from, to [20]byte, amount *big.Int, data []byte) error {
	return l.notifiers.Notify(from, to, amount, data)
}

// move applies the balance arithmetic without gate checks or notifications.
func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	sender, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	receiver, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	receiver.Balance = new(big.Int).Add(receiver.Balance, amount)
	if err := l.state.PutAccount(from, sender); err != nil {
		return err
	}
	return l.state.PutAccount(to, receiver)
}

// Approve sets the allowance owner grants spender.
func (l *Ledger) Approve(owner, spender [20]byte, value *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := validAmount(value); err != nil {
		return err
	}
	if err := l.gate.BeforeApprove(owner, spender); err != nil {
		return err
	}
	if err := l.state.SetAllowance(owner, spender, value); err != nil {
		return err
	}
	l.emit(events.Approval{Owner: owner, Spender: spender, Value: new(big.Int).Set(value)})
	return nil
}

// TransferFrom spends spender's allowance on owner's balance. The spender is
// re-checked against the blocklist; the owner is covered by the transfer
// checkpoint.
func (l *Ledger) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := l.gate.BeforeSpendAllowance(spender); err != nil {
		return err
	}
	if err := l.gate.BeforeTransfer(from, to); err != nil {
		return err
	}
	allowance, err := l.state.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	if err := l.state.SetAllowance(from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	l.emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount)})
	return l.notifiers.Notify(from, to, amount, nil)
}

// Mint credits freshly issued supply to the receiver. Only the genesis
// bootstrap path uses this; there is no public mint operation.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return ErrNilState
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	blocked, err := l.state.IsBlocked(to)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlockedReceiver
	}
	receiver, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	receiver.Balance = new(big.Int).Add(receiver.Balance, amount)
	if err := l.state.PutAccount(to, receiver); err != nil {
		return err
	}
	supply, err := l.state.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.state.SetTotalSupply(new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	l.emit(events.Transfer{From: [20]byte{}, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
