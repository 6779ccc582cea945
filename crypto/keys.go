package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// TokenPrefix is the human-readable part used for all tokend addresses.
const TokenPrefix = "tok"

// AddressLength is the raw byte length of a tokend address payload.
const AddressLength = 20

// Address represents a 20-byte tokend account address rendered as bech32.
type Address struct {
	bytes []byte
}

// NewAddress wraps the provided 20-byte payload. It returns an error when the
// payload length is wrong so callers handling external input can recover.
func NewAddress(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes (got %d)", AddressLength, len(b))
	}
	payload := make([]byte, AddressLength)
	copy(payload, b)
	return Address{bytes: payload}, nil
}

// MustNewAddress wraps the payload and panics on malformed input. Intended for
// internal 20-byte arrays that are correct by construction.
func MustNewAddress(b []byte) Address {
	addr, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(TokenPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw 20-byte payload.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a.bytes))
	copy(out, a.bytes)
	return out
}

// Raw returns the payload as a fixed-size array for map keys and state records.
func (a Address) Raw() [20]byte {
	var raw [20]byte
	copy(raw[:], a.bytes)
	return raw
}

// DecodeAddress parses a bech32 tokend address string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	if prefix != TokenPrefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte [R || S || V] secp256k1 signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if k == nil || k.PrivateKey == nil {
		return nil, errors.New("crypto: nil private key")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto: digest must be 32 bytes (got %d)", len(digest))
	}
	return crypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
