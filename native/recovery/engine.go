package recovery

import (
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokend/core/events"
	"tokend/native/token"
)

// State is the persistence surface the recovery engine requires.
type State interface {
	RecoveryGet() (*Request, bool, error)
	RecoveryPut(request *Request) error
	RecoveryClear() error
	TotalRecovered() (*big.Int, error)
	SetTotalRecovered(total *big.Int) error
	TotalSupply() (*big.Int, error)
}

// Ledger is the transfer surface the engine drives. Every movement passes the
// access gate inside the ledger, so recovery cannot bypass the blocklist.
type Ledger interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	TransferWithoutNotify(from, to [20]byte, amount *big.Int) error
	NotifyReceiver(from, to [20]byte, amount *big.Int, data []byte) error
}

// Authority resolves whether a caller may exercise the recovery-admin role.
type Authority interface {
	Authorize(caller [20]byte, role string) error
}

// Engine owns the timelocked recovery state machine: request, maturation by
// elapsed time, execution bound to the published commit hash, and cancellation.
type Engine struct {
	state     State
	ledger    Ledger
	authority Authority
	emitter   events.Emitter
	cfg       Config
	nowFn     func() int64
}

// NewEngine creates a recovery engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state State) { e.state = state }

// SetLedger configures the transfer surface.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetAuthority configures role resolution for privileged calls.
func (e *Engine) SetAuthority(authority Authority) { e.authority = authority }

// SetConfig installs validated recovery parameters.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// Config returns the active recovery parameters.
func (e *Engine) Config() Config { return e.cfg }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) authorize(caller [20]byte) error {
	if e.authority == nil {
		return token.ErrUnauthorized
	}
	return e.authority.Authorize(caller, token.RoleRecoveryAdmin)
}

type commitPayload struct {
	ExecutionTimestamp uint64
	Accounts           [][20]byte
	Values             []*big.Int
}

// CommitHash binds the exact execution parameters published at request time.
func CommitHash(executionTimestamp int64, accounts [][20]byte, values []*big.Int) ([32]byte, error) {
	var hash [32]byte
	if executionTimestamp < 0 {
		return hash, ErrInvalidValue
	}
	encoded, err := rlp.EncodeToBytes(commitPayload{
		ExecutionTimestamp: uint64(executionTimestamp),
		Accounts:           accounts,
		Values:             values,
	})
	if err != nil {
		return hash, err
	}
	copy(hash[:], ethcrypto.Keccak256(encoded))
	return hash, nil
}

// ActiveRequest returns a copy of the stored request, if any.
func (e *Engine) ActiveRequest() (*Request, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	request, ok, err := e.state.RecoveryGet()
	if err != nil || !ok {
		return nil, false, err
	}
	return request.Clone(), true, nil
}

// Request publishes a new timelocked recovery request, superseding (and
// emitting a cancellation for) any active one. Values are capped against the
// current balances; the capped snapshot is what the commit hash binds.
func (e *Engine) Request(caller [20]byte, accounts [][20]byte, requestedValues []*big.Int) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.ledger == nil {
		return nil, ErrNilLedger
	}
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	if len(accounts) != len(requestedValues) {
		return nil, ErrLengthMismatch
	}
	if len(accounts) == 0 {
		return nil, ErrEmptyInput
	}
	for _, v := range requestedValues {
		if v == nil || v.Sign() < 0 {
			return nil, ErrInvalidValue
		}
	}

	prior, ok, err := e.state.RecoveryGet()
	if err != nil {
		return nil, err
	}
	if ok {
		e.emitter.Emit(events.RecoveryCancelled{Hash: prior.Hash})
	}

	capped := make([]*big.Int, len(accounts))
	for i, addr := range accounts {
		balance, err := e.ledger.BalanceOf(addr)
		if err != nil {
			return nil, err
		}
		if balance.Cmp(requestedValues[i]) < 0 {
			capped[i] = new(big.Int).Set(balance)
		} else {
			capped[i] = new(big.Int).Set(requestedValues[i])
		}
	}

	now := e.nowFn()
	executionTimestamp := now + e.cfg.TimelockSeconds
	hash, err := CommitHash(executionTimestamp, accounts, capped)
	if err != nil {
		return nil, err
	}
	request := &Request{
		Hash:               hash,
		RequestTimestamp:   now,
		ExecutionTimestamp: executionTimestamp,
		Accounts:           append([][20]byte(nil), accounts...),
		CappedValues:       capped,
	}
	if err := e.state.RecoveryPut(request); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.RecoveryRequested{
		Hash:               hash,
		RequestTimestamp:   now,
		ExecutionTimestamp: executionTimestamp,
		Accounts:           request.Accounts,
		CappedValues:       request.CappedValues,
	})
	return request.Clone(), nil
}

// Execute runs a matured request. The supplied parameters must hash to the
// stored commitment exactly; amounts are re-capped against current balances in
// case funds moved during the timelock window. The limit check runs before any
// balance mutates, so a violation leaves balances, the running total, and the
// request untouched (still matured, retryable with corrected values).
func (e *Engine) Execute(caller [20]byte, accounts [][20]byte, values []*big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if e.ledger == nil {
		return nil, ErrNilLedger
	}
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	stored, ok, err := e.state.RecoveryGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoActiveRequest
	}
	if e.nowFn() < stored.ExecutionTimestamp {
		return nil, ErrTimelockNotElapsed
	}
	hash, err := CommitHash(stored.ExecutionTimestamp, accounts, values)
	if err != nil {
		return nil, err
	}
	if hash != stored.Hash {
		return nil, ErrHashMismatch
	}

	// Re-cap against what each account will still hold when its turn comes:
	// an account named more than once has earlier entries deducted first.
	moved := make([]*big.Int, len(accounts))
	total := big.NewInt(0)
	drained := make(map[[20]byte]*big.Int)
	for i, addr := range accounts {
		balance, err := e.ledger.BalanceOf(addr)
		if err != nil {
			return nil, err
		}
		if prior, ok := drained[addr]; ok {
			balance = balance.Sub(balance, prior)
		}
		if balance.Cmp(values[i]) < 0 {
			moved[i] = new(big.Int).Set(balance)
		} else {
			moved[i] = new(big.Int).Set(values[i])
		}
		total = total.Add(total, moved[i])
		if prior, ok := drained[addr]; ok {
			drained[addr] = prior.Add(prior, moved[i])
		} else {
			drained[addr] = new(big.Int).Set(moved[i])
		}
	}

	recovered, err := e.state.TotalRecovered()
	if err != nil {
		return nil, err
	}
	newTotal := new(big.Int).Add(recovered, total)
	enabled, err := e.limitAllows(newTotal)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrLimitExceeded
	}

	for i, addr := range accounts {
		if moved[i].Sign() == 0 {
			continue
		}
		if err := e.ledger.TransferWithoutNotify(addr, e.cfg.Receiver, moved[i]); err != nil {
			return nil, err
		}
	}
	if err := e.state.SetTotalRecovered(newTotal); err != nil {
		return nil, err
	}
	if err := e.state.RecoveryClear(); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.RecoveryExecuted{Hash: stored.Hash, TotalMoved: new(big.Int).Set(total)})
	// Receiver notification runs last so the callback observes post-execution
	// state. A failure here aborts the enclosing transaction.
	if err := e.ledger.NotifyReceiver([20]byte{}, e.cfg.Receiver, total, stored.Hash[:]); err != nil {
		return nil, err
	}
	return total, nil
}

// Cancel clears the active request.
func (e *Engine) Cancel(caller [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	stored, ok, err := e.state.RecoveryGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoActiveRequest
	}
	if err := e.state.RecoveryClear(); err != nil {
		return err
	}
	e.emitter.Emit(events.RecoveryCancelled{Hash: stored.Hash})
	return nil
}

// IsEnabled reports whether further recovery is possible: true iff the running
// total is still below the configured fraction of the live supply.
func (e *Engine) IsEnabled() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	recovered, err := e.state.TotalRecovered()
	if err != nil {
		return false, err
	}
	return e.limitAllows(recovered)
}

// limitAllows reports whether the supplied running total stays strictly below
// totalSupply * limitBps / 10_000 evaluated against the live supply.
func (e *Engine) limitAllows(total *big.Int) (bool, error) {
	supply, err := e.state.TotalSupply()
	if err != nil {
		return false, err
	}
	limit := new(big.Int).Mul(supply, new(big.Int).SetUint64(e.cfg.LimitBps))
	limit = limit.Div(limit, new(big.Int).SetUint64(MaxLimitBps))
	return total.Cmp(limit) < 0, nil
}
