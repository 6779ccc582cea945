package token

import "errors"

var (
	// ErrNilState indicates the engine was used before a state backend was wired.
	ErrNilState = errors.New("token: state not configured")
	// ErrBlockedSender indicates the transfer sender is on the blocklist.
	ErrBlockedSender = errors.New("token: sender account blocked")
	// ErrBlockedReceiver indicates the transfer receiver is on the blocklist.
	ErrBlockedReceiver = errors.New("token: receiver account blocked")
	// ErrBlockedOwner indicates the approval owner is on the blocklist.
	ErrBlockedOwner = errors.New("token: owner account blocked")
	// ErrBlockedSpender indicates the approval or allowance spender is on the blocklist.
	ErrBlockedSpender = errors.New("token: spender account blocked")
	// ErrInvalidAmount indicates a negative or nil amount was supplied.
	ErrInvalidAmount = errors.New("token: amount must not be negative")
	// ErrInsufficientBalance indicates the sender balance cannot cover the transfer.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance indicates the spender allowance cannot cover the transfer.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrUnauthorized indicates the caller does not hold the required role.
	ErrUnauthorized = errors.New("token: caller not authorized")
	// ErrNotifierRejected indicates a registered transfer notifier refused the funds.
	ErrNotifierRejected = errors.New("token: transfer notifier rejected")
	// ErrUnknownRole indicates the named role does not exist.
	ErrUnknownRole = errors.New("token: unknown role")
	// ErrNoPendingRole indicates a claim was attempted with no nomination outstanding.
	ErrNoPendingRole = errors.New("token: no pending role holder")
)
