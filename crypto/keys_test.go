package crypto

import (
	"bytes"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	address := key.PubKey().Address()
	encoded := address.String()
	if !strings.HasPrefix(encoded, TokenPrefix+"1") {
		t.Fatalf("encoded address %q lacks the %q prefix", encoded, TokenPrefix)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), address.Bytes()) {
		t.Fatal("round trip changed the payload")
	}
	if decoded.Raw() != address.Raw() {
		t.Fatal("raw forms differ after round trip")
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"); err == nil {
		t.Fatal("foreign prefix accepted")
	}
	if _, err := DecodeAddress("not bech32 at all"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestNewAddressLengthCheck(t *testing.T) {
	if _, err := NewAddress(make([]byte, 19)); err == nil {
		t.Fatal("short payload accepted")
	}
	if _, err := NewAddress(make([]byte, 20)); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	digest := ethcrypto.Keccak256([]byte("payload"))
	signature, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if len(signature) != 65 {
		t.Fatalf("signature length = %d, want 65", len(signature))
	}
	recovered, err := ethcrypto.SigToPub(digest, signature)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if ethcrypto.PubkeyToAddress(*recovered) != ethcrypto.PubkeyToAddress(*key.PubKey().PublicKey) {
		t.Fatal("recovered key does not match signer")
	}
}

func TestSignRejectsBadDigestLength(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	if _, err := key.Sign([]byte("short")); err == nil {
		t.Fatal("short digest accepted")
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.PubKey().Address().Raw() != key.PubKey().Address().Raw() {
		t.Fatal("restored key derives a different address")
	}
}
