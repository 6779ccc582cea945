package core

import (
	"fmt"
	"math/big"
	"sync"

	"tokend/core/events"
	"tokend/core/state"
	"tokend/native/permit"
	"tokend/native/recovery"
	"tokend/native/token"
	"tokend/storage"
)

// NodeConfig carries the bootstrap parameters for a ledger node. Owner is the
// AdminAuthority identity; it is fixed here and never looked up implicitly.
type NodeConfig struct {
	Owner         [20]byte
	TokenName     string
	TokenVersion  string
	ChainID       uint64
	ModuleAddress [20]byte
	Recovery      recovery.Config
}

// Node wires the ledger, permit authorizer, blocklist, roles, and recovery
// engine over a shared state manager. Public operations are serialized under
// one mutex and run inside an overlay transaction: they either commit fully or
// leave no trace, and events reach external sinks only after commit.
type Node struct {
	mu sync.Mutex

	state      *state.Manager
	ledger     *token.Ledger
	roles      *token.Roles
	blocklist  *token.Blocklist
	authorizer *permit.Authorizer
	recovery   *recovery.Engine

	emitter events.Emitter
	pending []events.Event
}

// collector buffers events emitted during an operation so they can be dropped
// on rollback and flushed only after commit.
type collector struct {
	node *Node
}

func (c collector) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	c.node.pending = append(c.node.pending, evt)
}

// NewNode constructs a fully wired node over the supplied database.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if err := cfg.Recovery.Validate(); err != nil {
		return nil, err
	}

	node := &Node{emitter: events.NoopEmitter{}}
	sink := collector{node: node}

	manager := state.NewManager(db)
	node.state = manager

	roles := token.NewRoles()
	roles.SetState(manager)
	roles.SetOwner(cfg.Owner)
	roles.SetEmitter(sink)
	node.roles = roles

	ledger := token.NewLedger()
	ledger.SetState(manager)
	ledger.SetEmitter(sink)
	node.ledger = ledger

	blocklist := token.NewBlocklist(roles)
	blocklist.SetState(manager)
	blocklist.SetEmitter(sink)
	node.blocklist = blocklist

	authorizer := permit.NewAuthorizer(cfg.TokenName, cfg.TokenVersion, cfg.ChainID, cfg.ModuleAddress)
	authorizer.SetState(manager)
	authorizer.SetApprover(ledger)
	authorizer.SetEmitter(sink)
	node.authorizer = authorizer

	engine := recovery.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetAuthority(roles)
	engine.SetEmitter(sink)
	if err := engine.SetConfig(cfg.Recovery); err != nil {
		return nil, err
	}
	node.recovery = engine

	return node, nil
}

// SetEmitter configures the external event sink. Passing nil resets it to a
// no-op.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// Authorizer exposes the permit engine for digest computation (e.g. CLI
// signing tools).
func (n *Node) Authorizer() *permit.Authorizer { return n.authorizer }

// RegisterNotifier installs an in-process transfer notifier for the address.
func (n *Node) RegisterNotifier(addr [20]byte, notifier token.Notifier) {
	n.ledger.Notifiers().Register(addr, notifier)
}

// transact runs fn inside an overlay transaction. On failure the overlay and
// any buffered events are discarded; on success the overlay commits and the
// events flush to the external sink.
func (n *Node) transact(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = n.pending[:0]
	n.state.Begin()
	if err := fn(); err != nil {
		n.state.Rollback()
		n.pending = n.pending[:0]
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Rollback()
		n.pending = n.pending[:0]
		return err
	}
	for _, evt := range n.pending {
		n.emitter.Emit(evt)
	}
	n.pending = n.pending[:0]
	return nil
}

// InitGenesis mints the initial supply to the treasury when the ledger is
// empty. Calling it against a non-empty ledger is a no-op.
func (n *Node) InitGenesis(treasury [20]byte, supply *big.Int) error {
	return n.transact(func() error {
		current, err := n.ledger.TotalSupply()
		if err != nil {
			return err
		}
		if current.Sign() > 0 {
			return nil
		}
		if supply == nil || supply.Sign() <= 0 {
			return fmt.Errorf("core: genesis supply must be positive")
		}
		return n.ledger.Mint(treasury, supply)
	})
}

// Transfer moves funds between two accounts.
func (n *Node) Transfer(from, to [20]byte, amount *big.Int) error {
	return n.transact(func() error {
		return n.ledger.Transfer(from, to, amount)
	})
}

// Approve sets an allowance directly.
func (n *Node) Approve(owner, spender [20]byte, value *big.Int) error {
	return n.transact(func() error {
		return n.ledger.Approve(owner, spender, value)
	})
}

// TransferFrom spends an allowance.
func (n *Node) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	return n.transact(func() error {
		return n.ledger.TransferFrom(spender, from, to, amount)
	})
}

// Permit applies an off-line-signed approval.
func (n *Node) Permit(holder, spender [20]byte, value *big.Int, deadline int64, signature []byte) error {
	return n.transact(func() error {
		return n.authorizer.Permit(holder, spender, value, deadline, signature)
	})
}

// RequestRecovery publishes a timelocked recovery request.
func (n *Node) RequestRecovery(caller [20]byte, accounts [][20]byte, values []*big.Int) (*recovery.Request, error) {
	var request *recovery.Request
	err := n.transact(func() error {
		var innerErr error
		request, innerErr = n.recovery.Request(caller, accounts, values)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ExecuteRecovery executes a matured request and returns the total moved.
func (n *Node) ExecuteRecovery(caller [20]byte, accounts [][20]byte, values []*big.Int) (*big.Int, error) {
	var total *big.Int
	err := n.transact(func() error {
		var innerErr error
		total, innerErr = n.recovery.Execute(caller, accounts, values)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// CancelRecovery clears the active request.
func (n *Node) CancelRecovery(caller [20]byte) error {
	return n.transact(func() error {
		return n.recovery.Cancel(caller)
	})
}

// SetBlocked administers the restriction list.
func (n *Node) SetBlocked(caller, account [20]byte, blocked bool) error {
	return n.transact(func() error {
		return n.blocklist.SetBlocked(caller, account, blocked)
	})
}

// TransferRole nominates a successor for an auxiliary role.
func (n *Node) TransferRole(caller [20]byte, role string, pending [20]byte) error {
	return n.transact(func() error {
		return n.roles.Transfer(caller, role, pending)
	})
}

// ClaimRole completes a two-step role transfer.
func (n *Node) ClaimRole(caller [20]byte, role string) error {
	return n.transact(func() error {
		return n.roles.Claim(caller, role)
	})
}

// --- Read-only queries ---

func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.BalanceOf(addr)
}

func (n *Node) AllowanceOf(owner, spender [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.AllowanceOf(owner, spender)
}

func (n *Node) NonceOf(holder [20]byte) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authorizer.NonceOf(holder)
}

func (n *Node) TotalSupply() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.TotalSupply()
}

func (n *Node) TotalRecovered() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.TotalRecovered()
}

func (n *Node) IsBlocked(addr [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocklist.IsBlocked(addr)
}

func (n *Node) IsRecoveryEnabled() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recovery.IsEnabled()
}

func (n *Node) ActiveRecoveryRequest() (*recovery.Request, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recovery.ActiveRequest()
}

func (n *Node) RoleHolder(role string) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roles.Holder(role)
}
