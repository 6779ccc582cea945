package permit

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tokend/core/events"
	"tokend/core/types"
)

var (
	// ErrNilState indicates the authorizer was used before a state backend was wired.
	ErrNilState = errors.New("permit: state not configured")
	// ErrNilApprover indicates no allowance writer was wired.
	ErrNilApprover = errors.New("permit: approver not configured")
	// ErrExpired indicates the permit deadline has passed.
	ErrExpired = errors.New("permit: deadline expired")
	// ErrInvalidSignature indicates the signature could not be recovered or the
	// recovered signer is not the holder.
	ErrInvalidSignature = errors.New("permit: invalid signature")
	// ErrInvalidValue indicates a nil or negative approval value.
	ErrInvalidValue = errors.New("permit: value must not be negative")
)

var (
	domainTypeHash = ethcrypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	permitTypeHash = ethcrypto.Keccak256Hash([]byte(
		"Permit(address holder,address spender,uint256 value,uint256 nonce,uint256 deadline)",
	))
)

// State is the nonce persistence surface the authorizer requires.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
}

// Approver writes the allowance once the signature checks out. The ledger
// satisfies this; its access gate re-validates holder and spender.
type Approver interface {
	Approve(owner, spender [20]byte, value *big.Int) error
}

// Verifier recovers the signing account from a digest and signature. It is a
// separate interface so tests can substitute a deterministic stub.
type Verifier interface {
	Recover(digest [32]byte, signature []byte) ([20]byte, error)
}

// SecpVerifier is the production verifier backed by secp256k1 public key
// recovery over 65-byte [R || S || V] signatures.
type SecpVerifier struct{}

// Recover implements the Verifier interface.
func (SecpVerifier) Recover(digest [32]byte, signature []byte) ([20]byte, error) {
	if len(signature) != 65 {
		return [20]byte{}, ErrInvalidSignature
	}
	pubKey, err := ethcrypto.SigToPub(digest[:], signature)
	if err != nil {
		return [20]byte{}, ErrInvalidSignature
	}
	var signer [20]byte
	copy(signer[:], ethcrypto.PubkeyToAddress(*pubKey).Bytes())
	return signer, nil
}

// Authorizer verifies typed-data permit signatures and drives the resulting
// approval through the ledger. The domain separator is fixed at construction
// so signed permits stay valid for the lifetime of the deployment.
type Authorizer struct {
	state     State
	approver  Approver
	verifier  Verifier
	emitter   events.Emitter
	separator [32]byte
	nowFn     func() int64
}

// NewAuthorizer derives the domain separator from the token identity, a
// version tag, the chain identifier, and the stable module address.
func NewAuthorizer(name, version string, chainID uint64, module [20]byte) *Authorizer {
	return &Authorizer{
		verifier:  SecpVerifier{},
		emitter:   events.NoopEmitter{},
		separator: domainSeparator(name, version, chainID, module),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the nonce backend.
func (a *Authorizer) SetState(state State) { a.state = state }

// SetApprover configures the allowance writer.
func (a *Authorizer) SetApprover(approver Approver) { a.approver = approver }

// SetVerifier overrides the signature verifier. Passing nil restores the
// production secp256k1 verifier.
func (a *Authorizer) SetVerifier(verifier Verifier) {
	if verifier == nil {
		a.verifier = SecpVerifier{}
		return
	}
	a.verifier = verifier
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (a *Authorizer) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (a *Authorizer) SetNowFunc(now func() int64) {
	if now == nil {
		a.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	a.nowFn = now
}

// DomainSeparator returns the domain separator bound into every digest.
func (a *Authorizer) DomainSeparator() [32]byte { return a.separator }

// NonceOf returns the next unconsumed permit nonce for the holder.
func (a *Authorizer) NonceOf(holder [20]byte) (uint64, error) {
	if a == nil || a.state == nil {
		return 0, ErrNilState
	}
	acc, err := a.state.GetAccount(holder)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// Digest computes the signable typed-data digest for the given permit
// parameters and nonce.
func (a *Authorizer) Digest(holder, spender [20]byte, value *big.Int, nonce uint64, deadline int64) [32]byte {
	structHash := ethcrypto.Keccak256(
		permitTypeHash.Bytes(),
		addressWord(holder),
		addressWord(spender),
		uintWord(value),
		uintWord(new(big.Int).SetUint64(nonce)),
		uintWord(big.NewInt(deadline)),
	)
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, a.separator[:], structHash)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// Permit validates the signed approval and, on success, consumes the holder's
// nonce and writes the allowance through the ledger's access gate. The nonce
// only advances on success: a rejected permit does not burn it, so callers can
// resubmit a corrected signature over the same nonce.
func (a *Authorizer) Permit(holder, spender [20]byte, value *big.Int, deadline int64, signature []byte) error {
	if a == nil || a.state == nil {
		return ErrNilState
	}
	if a.approver == nil {
		return ErrNilApprover
	}
	if value == nil || value.Sign() < 0 {
		return ErrInvalidValue
	}
	if a.nowFn() > deadline {
		return ErrExpired
	}
	acc, err := a.state.GetAccount(holder)
	if err != nil {
		return err
	}
	nonce := acc.Nonce
	digest := a.Digest(holder, spender, value, nonce, deadline)
	signer, err := a.verifier.Recover(digest, signature)
	if err != nil {
		return err
	}
	if signer != holder {
		return ErrInvalidSignature
	}
	acc.Nonce = nonce + 1
	if err := a.state.PutAccount(holder, acc); err != nil {
		return err
	}
	if err := a.approver.Approve(holder, spender, value); err != nil {
		return err
	}
	a.emitter.Emit(events.PermitUsed{
		Holder:  holder,
		Spender: spender,
		Value:   new(big.Int).Set(value),
		Nonce:   nonce,
	})
	return nil
}

func domainSeparator(name, version string, chainID uint64, module [20]byte) [32]byte {
	encoded := ethcrypto.Keccak256(
		domainTypeHash.Bytes(),
		ethcrypto.Keccak256([]byte(name)),
		ethcrypto.Keccak256([]byte(version)),
		uintWord(new(big.Int).SetUint64(chainID)),
		addressWord(module),
	)
	var out [32]byte
	copy(out[:], encoded)
	return out
}

// addressWord left-pads a 20-byte address into a 32-byte word.
func addressWord(addr [20]byte) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr[:])
	return word
}

// uintWord left-pads a non-negative integer into a 32-byte word.
func uintWord(v *big.Int) []byte {
	word := make([]byte, 32)
	if v == nil || v.Sign() <= 0 {
		return word
	}
	b := v.Bytes()
	copy(word[32-len(b):], b)
	return word
}
