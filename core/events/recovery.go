package events

import (
	"encoding/hex"
	"math/big"
	"strings"

	"tokend/core/types"
)

const (
	// TypeRecoveryRequested is emitted when a timelocked recovery request is
	// published. It carries the full parameter set so the window is publicly
	// auditable before execution.
	TypeRecoveryRequested = "recovery.requested"
	// TypeRecoveryExecuted is emitted after a matured request is executed.
	TypeRecoveryExecuted = "recovery.executed"
	// TypeRecoveryCancelled is emitted when a request is cancelled explicitly
	// or superseded by a newer request.
	TypeRecoveryCancelled = "recovery.cancelled"
)

type RecoveryRequested struct {
	Hash               [32]byte
	RequestTimestamp   int64
	ExecutionTimestamp int64
	Accounts           [][20]byte
	CappedValues       []*big.Int
}

func (RecoveryRequested) EventType() string { return TypeRecoveryRequested }

func (e RecoveryRequested) Event() *types.Event {
	accounts := make([]string, 0, len(e.Accounts))
	for _, addr := range e.Accounts {
		accounts = append(accounts, addrString(addr))
	}
	values := make([]string, 0, len(e.CappedValues))
	for _, v := range e.CappedValues {
		values = append(values, formatAmount(v))
	}
	return &types.Event{
		Type: TypeRecoveryRequested,
		Attributes: map[string]string{
			"hash":               hashString(e.Hash),
			"requestTimestamp":   intToString(e.RequestTimestamp),
			"executionTimestamp": intToString(e.ExecutionTimestamp),
			"accounts":           strings.Join(accounts, ","),
			"cappedValues":       strings.Join(values, ","),
		},
	}
}

type RecoveryExecuted struct {
	Hash       [32]byte
	TotalMoved *big.Int
}

func (RecoveryExecuted) EventType() string { return TypeRecoveryExecuted }

func (e RecoveryExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeRecoveryExecuted,
		Attributes: map[string]string{
			"hash":       hashString(e.Hash),
			"totalMoved": formatAmount(e.TotalMoved),
		},
	}
}

type RecoveryCancelled struct {
	Hash [32]byte
}

func (RecoveryCancelled) EventType() string { return TypeRecoveryCancelled }

func (e RecoveryCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeRecoveryCancelled,
		Attributes: map[string]string{
			"hash": hashString(e.Hash),
		},
	}
}

func hashString(h [32]byte) string {
	return "0x" + strings.ToLower(hex.EncodeToString(h[:]))
}
