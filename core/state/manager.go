package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tokend/core/types"
	"tokend/native/recovery"
	"tokend/native/token"
	"tokend/storage"
)

var (
	keySupply    = []byte("token/supply")
	keyRecovered = []byte("recovery/total")
	keyRequest   = []byte("recovery/request")

	acctPrefix  = "acct/"
	allowPrefix = "allow/"
	blockPrefix = "block/"
	rolePrefix  = "role/"
)

var errNoTxn = errors.New("state: no transaction in progress")

type accountRecord struct {
	Nonce   uint64
	Balance *big.Int
}

type requestRecord struct {
	Hash               [32]byte
	RequestTimestamp   uint64
	ExecutionTimestamp uint64
	Accounts           [][20]byte
	CappedValues       []*big.Int
}

type roleRecord struct {
	Holder     [20]byte
	Pending    [20]byte
	HasPending bool
}

// Manager provides typed access to the persisted ledger state on top of a raw
// key-value database. Mutations made inside a Begin/Commit window are staged in
// an overlay and only reach the backing store on Commit, giving every public
// operation all-or-nothing semantics.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	deleted map[string]struct{}
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens an overlay transaction. Nested transactions are not supported;
// a second Begin discards the prior staged writes.
func (m *Manager) Begin() {
	m.overlay = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}

// Commit flushes staged writes to the backing store in one atomic batch and
// closes the overlay. A backend failure leaves the store untouched.
func (m *Manager) Commit() error {
	if m.overlay == nil {
		return errNoTxn
	}
	batch := storage.NewBatch()
	for key := range m.deleted {
		batch.Delete([]byte(key))
	}
	for key, value := range m.overlay {
		batch.Put([]byte(key), value)
	}
	if err := m.db.WriteBatch(batch); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	m.overlay = nil
	m.deleted = nil
	return nil
}

// Rollback discards the overlay without touching the backing store.
func (m *Manager) Rollback() {
	m.overlay = nil
	m.deleted = nil
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			return value, true, nil
		}
		if _, ok := m.deleted[string(key)]; ok {
			return nil, false, nil
		}
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key, value []byte) error {
	if m.overlay != nil {
		delete(m.deleted, string(key))
		m.overlay[string(key)] = value
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) delete(key []byte) error {
	if m.overlay != nil {
		delete(m.overlay, string(key))
		m.deleted[string(key)] = struct{}{}
		return nil
	}
	return m.db.Delete(key)
}

func acctKey(addr [20]byte) []byte {
	return []byte(acctPrefix + hex.EncodeToString(addr[:]))
}

func allowKey(owner, spender [20]byte) []byte {
	return []byte(allowPrefix + hex.EncodeToString(owner[:]) + "/" + hex.EncodeToString(spender[:]))
}

func blockKey(addr [20]byte) []byte {
	return []byte(blockPrefix + hex.EncodeToString(addr[:]))
}

func roleKey(name string) []byte {
	return []byte(rolePrefix + name)
}

// GetAccount loads the account record for the address, returning a zero-value
// account when none is stored yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, ok, err := m.get(acctKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	var record accountRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	acc := &types.Account{Nonce: record.Nonce, Balance: record.Balance}
	return acc.EnsureDefaults(), nil
}

// PutAccount persists the account record for the address.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	acc = acc.EnsureDefaults()
	encoded, err := rlp.EncodeToBytes(accountRecord{Nonce: acc.Nonce, Balance: acc.Balance})
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.put(acctKey(addr), encoded)
}

// Allowance returns the spendable amount owner has granted spender.
func (m *Manager) Allowance(owner, spender [20]byte) (*big.Int, error) {
	raw, ok, err := m.get(allowKey(owner, spender))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// SetAllowance overwrites the allowance owner grants spender.
func (m *Manager) SetAllowance(owner, spender [20]byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return m.delete(allowKey(owner, spender))
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: allowance must not be negative")
	}
	return m.put(allowKey(owner, spender), value.Bytes())
}

// IsBlocked reports whether the address is on the restriction list.
func (m *Manager) IsBlocked(addr [20]byte) (bool, error) {
	_, ok, err := m.get(blockKey(addr))
	return ok, err
}

// SetBlocked adds or removes the address from the restriction list.
func (m *Manager) SetBlocked(addr [20]byte, blocked bool) error {
	if blocked {
		return m.put(blockKey(addr), []byte{1})
	}
	return m.delete(blockKey(addr))
}

// TotalSupply returns the current total token supply.
func (m *Manager) TotalSupply() (*big.Int, error) {
	raw, ok, err := m.get(keySupply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// SetTotalSupply overwrites the total token supply.
func (m *Manager) SetTotalSupply(supply *big.Int) error {
	if supply == nil || supply.Sign() < 0 {
		return fmt.Errorf("state: total supply must not be negative")
	}
	return m.put(keySupply, supply.Bytes())
}

// TotalRecovered returns the running sum of all value moved by successful
// recovery executions.
func (m *Manager) TotalRecovered() (*big.Int, error) {
	raw, ok, err := m.get(keyRecovered)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// SetTotalRecovered overwrites the recovery running sum.
func (m *Manager) SetTotalRecovered(total *big.Int) error {
	if total == nil || total.Sign() < 0 {
		return fmt.Errorf("state: total recovered must not be negative")
	}
	return m.put(keyRecovered, total.Bytes())
}

// RecoveryGet loads the active recovery request, if any.
func (m *Manager) RecoveryGet() (*recovery.Request, bool, error) {
	raw, ok, err := m.get(keyRequest)
	if err != nil || !ok {
		return nil, false, err
	}
	var record requestRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, false, fmt.Errorf("state: decode recovery request: %w", err)
	}
	request := &recovery.Request{
		Hash:               record.Hash,
		RequestTimestamp:   int64(record.RequestTimestamp),
		ExecutionTimestamp: int64(record.ExecutionTimestamp),
		Accounts:           record.Accounts,
		CappedValues:       record.CappedValues,
	}
	return request, true, nil
}

// RecoveryPut stores the recovery request, replacing any prior one.
func (m *Manager) RecoveryPut(request *recovery.Request) error {
	if request == nil {
		return fmt.Errorf("state: nil recovery request")
	}
	if request.RequestTimestamp < 0 || request.ExecutionTimestamp < 0 {
		return fmt.Errorf("state: recovery timestamps must not be negative")
	}
	record := requestRecord{
		Hash:               request.Hash,
		RequestTimestamp:   uint64(request.RequestTimestamp),
		ExecutionTimestamp: uint64(request.ExecutionTimestamp),
		Accounts:           request.Accounts,
		CappedValues:       request.CappedValues,
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("state: encode recovery request: %w", err)
	}
	return m.put(keyRequest, encoded)
}

// RecoveryClear removes the active recovery request.
func (m *Manager) RecoveryClear() error {
	return m.delete(keyRequest)
}

// RoleGet loads the named role record.
func (m *Manager) RoleGet(name string) (token.Role, bool, error) {
	raw, ok, err := m.get(roleKey(name))
	if err != nil || !ok {
		return token.Role{}, false, err
	}
	var record roleRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return token.Role{}, false, fmt.Errorf("state: decode role: %w", err)
	}
	return token.Role{Holder: record.Holder, Pending: record.Pending, HasPending: record.HasPending}, true, nil
}

// RolePut stores the named role record.
func (m *Manager) RolePut(name string, role token.Role) error {
	encoded, err := rlp.EncodeToBytes(roleRecord{Holder: role.Holder, Pending: role.Pending, HasPending: role.HasPending})
	if err != nil {
		return fmt.Errorf("state: encode role: %w", err)
	}
	return m.put(roleKey(name), encoded)
}
