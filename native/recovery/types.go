package recovery

import (
	"errors"
	"math/big"
)

// MaxTimelockSeconds bounds the delay between request and execution (30 days).
const MaxTimelockSeconds int64 = 30 * 24 * 60 * 60

// MaxLimitBps is the upper bound of the recovery limit fraction (100%).
const MaxLimitBps uint64 = 10_000

var (
	// ErrNilState indicates the engine was used before a state backend was wired.
	ErrNilState = errors.New("recovery: state not configured")
	// ErrNilLedger indicates no ledger was wired.
	ErrNilLedger = errors.New("recovery: ledger not configured")
	// ErrLengthMismatch indicates accounts and values differ in length.
	ErrLengthMismatch = errors.New("recovery: accounts and values length mismatch")
	// ErrEmptyInput indicates an empty account set was supplied.
	ErrEmptyInput = errors.New("recovery: empty account set")
	// ErrInvalidValue indicates a nil or negative requested value.
	ErrInvalidValue = errors.New("recovery: value must not be negative")
	// ErrNoActiveRequest indicates no recovery request is stored.
	ErrNoActiveRequest = errors.New("recovery: no active request")
	// ErrTimelockNotElapsed indicates the execution timestamp has not been reached.
	ErrTimelockNotElapsed = errors.New("recovery: timelock not elapsed")
	// ErrHashMismatch indicates the supplied parameters do not match the commit hash.
	ErrHashMismatch = errors.New("recovery: parameters do not match commit hash")
	// ErrLimitExceeded indicates the execution would push the running total at or
	// beyond the configured fraction of live supply.
	ErrLimitExceeded = errors.New("recovery: limit exceeded")
	// ErrInvalidConfig indicates out-of-bounds recovery configuration.
	ErrInvalidConfig = errors.New("recovery: invalid configuration")
)

// Config captures the recovery runtime parameters. Mutated only through the
// administrator-gated configuration path.
type Config struct {
	// Receiver is the account credited by recovery executions.
	Receiver [20]byte
	// LimitBps is the maximum cumulative recovered value as basis points of the
	// live total supply. 10_000 = 100%.
	LimitBps uint64
	// TimelockSeconds is the mandatory delay between request and execution.
	TimelockSeconds int64
}

// Validate enforces the configuration bounds.
func (c Config) Validate() error {
	if c.LimitBps > MaxLimitBps {
		return ErrInvalidConfig
	}
	if c.TimelockSeconds < 0 || c.TimelockSeconds > MaxTimelockSeconds {
		return ErrInvalidConfig
	}
	return nil
}

// Request is the singleton timelocked recovery request. CappedValues is a
// snapshot taken at request time and is never revalidated automatically.
type Request struct {
	Hash               [32]byte
	RequestTimestamp   int64
	ExecutionTimestamp int64
	Accounts           [][20]byte
	CappedValues       []*big.Int
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{
		Hash:               r.Hash,
		RequestTimestamp:   r.RequestTimestamp,
		ExecutionTimestamp: r.ExecutionTimestamp,
		Accounts:           make([][20]byte, len(r.Accounts)),
		CappedValues:       make([]*big.Int, len(r.CappedValues)),
	}
	copy(out.Accounts, r.Accounts)
	for i, v := range r.CappedValues {
		if v != nil {
			out.CappedValues[i] = new(big.Int).Set(v)
		} else {
			out.CappedValues[i] = big.NewInt(0)
		}
	}
	return out
}
