package core

import (
	"errors"
	"math/big"
	"testing"

	"tokend/core/events"
	"tokend/crypto"
	"tokend/native/recovery"
	"tokend/native/token"
	"tokend/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

var (
	testOwner    = addr(0xA0)
	testTreasury = addr(0xA1)
	testReceiver = addr(0xA2)
	testModule   = addr(0xA3)
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt)
}

type rejectingNotifier struct{}

func (rejectingNotifier) OnTokenReceived([20]byte, *big.Int, []byte) (bool, error) {
	return false, nil
}

func newTestNode(t *testing.T) (*Node, *recordingEmitter) {
	t.Helper()
	node, err := NewNode(storage.NewMemDB(), NodeConfig{
		Owner:         testOwner,
		TokenName:     "Guarded Token",
		TokenVersion:  "1",
		ChainID:       240011,
		ModuleAddress: testModule,
		Recovery: recovery.Config{
			Receiver:        testReceiver,
			LimitBps:        1000,
			TimelockSeconds: 0,
		},
	})
	if err != nil {
		t.Fatalf("node construction failed: %v", err)
	}
	emitter := &recordingEmitter{}
	node.SetEmitter(emitter)
	if err := node.InitGenesis(testTreasury, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("genesis failed: %v", err)
	}
	return node, emitter
}

func TestGenesisIsIdempotent(t *testing.T) {
	node, _ := newTestNode(t)
	if err := node.InitGenesis(testTreasury, big.NewInt(500)); err != nil {
		t.Fatalf("repeat genesis failed: %v", err)
	}
	supply, err := node.TotalSupply()
	if err != nil {
		t.Fatalf("supply query failed: %v", err)
	}
	if supply.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("supply = %s, want 1000000", supply)
	}
}

func TestTransferCommitsAndFlushesEvents(t *testing.T) {
	node, emitter := newTestNode(t)
	receiver := addr(1)

	before := len(emitter.events)
	if err := node.Transfer(testTreasury, receiver, big.NewInt(100)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	balance, err := node.BalanceOf(receiver)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, want 100", balance)
	}
	if len(emitter.events) != before+1 {
		t.Fatalf("expected one flushed event, got %d", len(emitter.events)-before)
	}
}

func TestFailedOperationEmitsNothing(t *testing.T) {
	node, emitter := newTestNode(t)
	before := len(emitter.events)
	err := node.Transfer(addr(1), addr(2), big.NewInt(10))
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if len(emitter.events) != before {
		t.Fatalf("failed operation leaked %d events", len(emitter.events)-before)
	}
}

func TestNotifierFailureRollsBackTransfer(t *testing.T) {
	node, emitter := newTestNode(t)
	receiver := addr(1)
	node.RegisterNotifier(receiver, rejectingNotifier{})

	before := len(emitter.events)
	err := node.Transfer(testTreasury, receiver, big.NewInt(100))
	if !errors.Is(err, token.ErrNotifierRejected) {
		t.Fatalf("expected ErrNotifierRejected, got %v", err)
	}
	// The balance mutation preceded the notifier call but must not survive it.
	balance, err := node.BalanceOf(receiver)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("receiver balance = %s after rollback, want 0", balance)
	}
	treasury, err := node.BalanceOf(testTreasury)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	if treasury.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("treasury balance = %s after rollback", treasury)
	}
	if len(emitter.events) != before {
		t.Fatalf("rolled-back operation leaked %d events", len(emitter.events)-before)
	}
}

func TestPermitEndToEnd(t *testing.T) {
	node, _ := newTestNode(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	holder := key.PubKey().Address().Raw()
	spender := addr(2)
	value := big.NewInt(250)

	// Fund the holder so the spender can later draw on the allowance.
	if err := node.Transfer(testTreasury, holder, big.NewInt(1000)); err != nil {
		t.Fatalf("funding transfer failed: %v", err)
	}

	deadline := int64(1<<62 - 1)
	digest := node.Authorizer().Digest(holder, spender, value, 0, deadline)
	signature, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	if err := node.Permit(holder, spender, value, deadline, signature); err != nil {
		t.Fatalf("permit failed: %v", err)
	}
	allowance, err := node.AllowanceOf(holder, spender)
	if err != nil {
		t.Fatalf("allowance query failed: %v", err)
	}
	if allowance.Cmp(value) != 0 {
		t.Fatalf("allowance = %s, want %s", allowance, value)
	}
	nonce, err := node.NonceOf(holder)
	if err != nil {
		t.Fatalf("nonce query failed: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("nonce = %d, want 1", nonce)
	}

	if err := node.TransferFrom(spender, holder, addr(3), big.NewInt(250)); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
}

func TestPermitBlockedHolderRollsBackNonce(t *testing.T) {
	node, _ := newTestNode(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	holder := key.PubKey().Address().Raw()
	spender := addr(2)

	if err := node.SetBlocked(testOwner, holder, true); err != nil {
		t.Fatalf("setBlocked failed: %v", err)
	}

	deadline := int64(1<<62 - 1)
	digest := node.Authorizer().Digest(holder, spender, big.NewInt(5), 0, deadline)
	signature, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	err = node.Permit(holder, spender, big.NewInt(5), deadline, signature)
	if !errors.Is(err, token.ErrBlockedOwner) {
		t.Fatalf("expected ErrBlockedOwner from the approval gate, got %v", err)
	}
	// The nonce increment inside the failed transaction must not persist.
	nonce, err := node.NonceOf(holder)
	if err != nil {
		t.Fatalf("nonce query failed: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("nonce = %d after rollback, want 0", nonce)
	}
}

func TestRecoveryEndToEnd(t *testing.T) {
	node, _ := newTestNode(t)
	a, b := addr(1), addr(2)
	if err := node.Transfer(testTreasury, a, big.NewInt(30)); err != nil {
		t.Fatalf("funding failed: %v", err)
	}
	if err := node.Transfer(testTreasury, b, big.NewInt(200)); err != nil {
		t.Fatalf("funding failed: %v", err)
	}

	request, err := node.RequestRecovery(testOwner, [][20]byte{a, b}, []*big.Int{big.NewInt(50), big.NewInt(200)})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if request.CappedValues[0].Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("capped[0] = %s, want 30", request.CappedValues[0])
	}

	// Zero timelock: the request matures immediately.
	total, err := node.ExecuteRecovery(testOwner, request.Accounts, request.CappedValues)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if total.Cmp(big.NewInt(230)) != 0 {
		t.Fatalf("total moved = %s, want 230", total)
	}
	balance, err := node.BalanceOf(testReceiver)
	if err != nil {
		t.Fatalf("balance query failed: %v", err)
	}
	if balance.Cmp(big.NewInt(230)) != 0 {
		t.Fatalf("receiver balance = %s, want 230", balance)
	}
	recovered, err := node.TotalRecovered()
	if err != nil {
		t.Fatalf("total recovered query failed: %v", err)
	}
	if recovered.Cmp(big.NewInt(230)) != 0 {
		t.Fatalf("running total = %s, want 230", recovered)
	}
	if _, ok, _ := node.ActiveRecoveryRequest(); ok {
		t.Fatal("request survived execution")
	}
}

func TestRecoveryRequiresAdmin(t *testing.T) {
	node, _ := newTestNode(t)
	if _, err := node.RequestRecovery(addr(9), [][20]byte{addr(1)}, []*big.Int{big.NewInt(1)}); !errors.Is(err, token.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// A claimed recovery admin can request without being the owner.
	admin := addr(9)
	if err := node.TransferRole(testOwner, token.RoleRecoveryAdmin, admin); err != nil {
		t.Fatalf("nominate failed: %v", err)
	}
	if err := node.ClaimRole(admin, token.RoleRecoveryAdmin); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := node.Transfer(testTreasury, addr(1), big.NewInt(10)); err != nil {
		t.Fatalf("funding failed: %v", err)
	}
	if _, err := node.RequestRecovery(admin, [][20]byte{addr(1)}, []*big.Int{big.NewInt(10)}); err != nil {
		t.Fatalf("admin request failed: %v", err)
	}
}

func TestBlockedAccountsStayFrozen(t *testing.T) {
	node, _ := newTestNode(t)
	frozen := addr(5)
	if err := node.Transfer(testTreasury, frozen, big.NewInt(100)); err != nil {
		t.Fatalf("funding failed: %v", err)
	}
	if err := node.SetBlocked(testOwner, frozen, true); err != nil {
		t.Fatalf("setBlocked failed: %v", err)
	}
	if err := node.Transfer(frozen, addr(6), big.NewInt(1)); !errors.Is(err, token.ErrBlockedSender) {
		t.Fatalf("expected ErrBlockedSender, got %v", err)
	}
	if err := node.Transfer(testTreasury, frozen, big.NewInt(1)); !errors.Is(err, token.ErrBlockedReceiver) {
		t.Fatalf("expected ErrBlockedReceiver, got %v", err)
	}
	// Recovery drains through the same gate, so a blocked source fails.
	request, err := node.RequestRecovery(testOwner, [][20]byte{frozen}, []*big.Int{big.NewInt(100)})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if _, err := node.ExecuteRecovery(testOwner, request.Accounts, request.CappedValues); !errors.Is(err, token.ErrBlockedSender) {
		t.Fatalf("expected ErrBlockedSender through recovery, got %v", err)
	}
	// Unblock and the same matured request executes.
	if err := node.SetBlocked(testOwner, frozen, false); err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if _, err := node.ExecuteRecovery(testOwner, request.Accounts, request.CappedValues); err != nil {
		t.Fatalf("execute after unblock failed: %v", err)
	}
}
