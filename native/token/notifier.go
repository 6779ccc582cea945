package token

import (
	"math/big"
	"sync"
)

// Notifier is the callback contract expected of a registered transfer target.
// It is invoked strictly after all ledger state has been updated, so the
// callback observes post-transfer state. A false return or an error aborts the
// whole enclosing operation.
type Notifier interface {
	OnTokenReceived(from [20]byte, amount *big.Int, data []byte) (bool, error)
}

// NotifierRegistry maps receiver addresses to in-process notifier hooks.
type NotifierRegistry struct {
	mu        sync.RWMutex
	notifiers map[[20]byte]Notifier
}

// NewNotifierRegistry constructs an empty registry.
func NewNotifierRegistry() *NotifierRegistry {
	return &NotifierRegistry{notifiers: make(map[[20]byte]Notifier)}
}

// Register installs a notifier for the address. A nil notifier removes any
// existing registration.
func (r *NotifierRegistry) Register(addr [20]byte, notifier Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if notifier == nil {
		delete(r.notifiers, addr)
		return
	}
	r.notifiers[addr] = notifier
}

// Lookup returns the notifier registered for the address, if any.
func (r *NotifierRegistry) Lookup(addr [20]byte) (Notifier, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	notifier, ok := r.notifiers[addr]
	return notifier, ok
}

// Notify invokes the notifier registered for the receiver, if any. Callers must
// only invoke this after all internal state updates have been applied.
func (r *NotifierRegistry) Notify(from, to [20]byte, amount *big.Int, data []byte) error {
	notifier, ok := r.Lookup(to)
	if !ok {
		return nil
	}
	accepted, err := notifier.OnTokenReceived(from, amount, data)
	if err != nil {
		return err
	}
	if !accepted {
		return ErrNotifierRejected
	}
	return nil
}
