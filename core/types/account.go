package types

import "math/big"

// Account is the persisted per-address ledger record. Nonce is the permit
// replay counter; it only ever advances.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// EnsureDefaults replaces nil numeric fields with zero values so callers can
// mutate the account without nil checks.
func (a *Account) EnsureDefaults() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	out := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		out.Balance = new(big.Int).Set(a.Balance)
	}
	return out
}
