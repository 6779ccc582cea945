package token

import (
	"errors"
	"testing"
)

func newTestRoles(state *mockState, owner [20]byte) *Roles {
	roles := NewRoles()
	roles.SetState(state)
	roles.SetOwner(owner)
	return roles
}

func TestRoleDefaultsToOwner(t *testing.T) {
	owner := addr(1)
	roles := newTestRoles(newMockState(), owner)

	holder, err := roles.Holder(RoleRecoveryAdmin)
	if err != nil {
		t.Fatalf("holder query failed: %v", err)
	}
	if holder != owner {
		t.Fatalf("unset role holder = %x, want owner", holder)
	}
	if err := roles.Authorize(owner, RoleRecoveryAdmin); err != nil {
		t.Fatalf("owner should be authorized: %v", err)
	}
	if err := roles.Authorize(addr(2), RoleRecoveryAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRoleUnknownName(t *testing.T) {
	roles := newTestRoles(newMockState(), addr(1))
	if _, err := roles.Holder("minter"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if err := roles.Transfer(addr(1), "minter", addr(2)); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole on transfer, got %v", err)
	}
}

func TestRoleTwoStepTransfer(t *testing.T) {
	owner := addr(1)
	successor := addr(2)
	roles := newTestRoles(newMockState(), owner)

	if err := roles.Transfer(owner, RoleBlocklistAdmin, successor); err != nil {
		t.Fatalf("nominate failed: %v", err)
	}
	// Nomination alone does not move the privilege.
	holder, err := roles.Holder(RoleBlocklistAdmin)
	if err != nil {
		t.Fatalf("holder query failed: %v", err)
	}
	if holder != owner {
		t.Fatalf("holder moved before claim: %x", holder)
	}

	if err := roles.Claim(addr(3), RoleBlocklistAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-nominee claim, got %v", err)
	}
	if err := roles.Claim(successor, RoleBlocklistAdmin); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	holder, err = roles.Holder(RoleBlocklistAdmin)
	if err != nil {
		t.Fatalf("holder query failed: %v", err)
	}
	if holder != successor {
		t.Fatalf("holder = %x, want successor", holder)
	}

	if err := roles.Claim(successor, RoleBlocklistAdmin); !errors.Is(err, ErrNoPendingRole) {
		t.Fatalf("expected ErrNoPendingRole on repeat claim, got %v", err)
	}
}

func TestRoleOwnerStaysAuthorizedAfterTransfer(t *testing.T) {
	owner := addr(1)
	successor := addr(2)
	roles := newTestRoles(newMockState(), owner)

	if err := roles.Transfer(owner, RoleRecoveryAdmin, successor); err != nil {
		t.Fatalf("nominate failed: %v", err)
	}
	if err := roles.Claim(successor, RoleRecoveryAdmin); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := roles.Authorize(owner, RoleRecoveryAdmin); err != nil {
		t.Fatalf("owner should remain authorized: %v", err)
	}
	if err := roles.Authorize(successor, RoleRecoveryAdmin); err != nil {
		t.Fatalf("holder should be authorized: %v", err)
	}
}

func TestBlocklistAdminGating(t *testing.T) {
	owner := addr(1)
	admin := addr(2)
	target := addr(5)
	state := newMockState()
	roles := newTestRoles(state, owner)
	blocklist := NewBlocklist(roles)
	blocklist.SetState(state)
	emitter := &recordingEmitter{}
	blocklist.SetEmitter(emitter)

	if err := blocklist.SetBlocked(addr(9), target, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := roles.Transfer(owner, RoleBlocklistAdmin, admin); err != nil {
		t.Fatalf("nominate failed: %v", err)
	}
	if err := roles.Claim(admin, RoleBlocklistAdmin); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := blocklist.SetBlocked(admin, target, true); err != nil {
		t.Fatalf("setBlocked failed: %v", err)
	}
	blocked, err := blocklist.IsBlocked(target)
	if err != nil {
		t.Fatalf("isBlocked failed: %v", err)
	}
	if !blocked {
		t.Fatal("target should be blocked")
	}

	// Re-blocking an already blocked account is a no-op and emits nothing new.
	before := len(emitter.events)
	if err := blocklist.SetBlocked(admin, target, true); err != nil {
		t.Fatalf("repeat setBlocked failed: %v", err)
	}
	if len(emitter.events) != before {
		t.Fatalf("no-op update emitted %d extra events", len(emitter.events)-before)
	}

	if err := blocklist.SetBlocked(owner, target, false); err != nil {
		t.Fatalf("owner unblock failed: %v", err)
	}
	blocked, err = blocklist.IsBlocked(target)
	if err != nil {
		t.Fatalf("isBlocked failed: %v", err)
	}
	if blocked {
		t.Fatal("target should be unblocked")
	}
}
